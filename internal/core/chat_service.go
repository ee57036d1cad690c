package core

import (
	"context"
	"strings"

	"gwi.com/onboarding-backend/internal/llm"
	"gwi.com/onboarding-backend/internal/platform/logger"
)

const (
	maxHistoryTurns = 5 // last 5 turns, to avoid too long prompts

	degradedAnswer = "I'm sorry, I couldn't reach the assistant right now. Try the chapters listed in sources, or ask again in a moment."
)

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	RepoURL string     `json:"repo_url"`
	Message string     `json:"message"`
	History []ChatTurn `json:"history"`
	Level   string     `json:"level,omitempty"`
}

type ChatReply struct {
	Response   string   `json:"response"`
	Sources    []string `json:"sources"`
	Degraded   bool     `json:"degraded"`
	AnalysisID string   `json:"analysis_id"`
}

// ChatService answers questions about a repository from its latest analysis.
type ChatService struct {
	codebases *CodebaseService
	provider  llm.Provider
	log       *logger.Logger
}

func NewChatService(codebases *CodebaseService, provider llm.Provider, log *logger.Logger) *ChatService {
	return &ChatService{
		codebases: codebases,
		provider:  provider,
		log:       log.With("service", "ChatService"),
	}
}

func (s *ChatService) Ask(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	question := strings.TrimSpace(req.Message)
	if question == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	repoURL := CanonicalRepoURL(req.RepoURL)
	if repoURL == "" {
		return nil, &ValidationError{Field: "repo_url", Reason: "must not be empty"}
	}

	analysis, err := s.codebases.GetLatest(ctx, repoURL)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, &CodebaseNotAnalyzedError{RepoURL: repoURL}
	}

	level := strings.ToLower(strings.TrimSpace(req.Level))
	if level == "" {
		level = LevelJunior
	}
	variant, _, _ := pickVariant(analysis, level)

	material, sources := NewChapterRetriever(variant, s.log).Context(question)
	if sources == nil {
		sources = []string{}
	}

	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	reply := &ChatReply{Sources: sources, AnalysisID: analysis.AnalysisID}
	answer, err := s.provider.Generate(ctx, chatPrompt(&variant, analysis.RepoName, material, history, question))
	if err != nil || strings.TrimSpace(answer) == "" {
		s.log.Warn("chat generation failed", "repo_url", repoURL, "error", err)
		reply.Response = degradedAnswer
		reply.Degraded = true
		return reply, nil
	}
	reply.Response = strings.TrimSpace(answer)
	return reply, nil
}
