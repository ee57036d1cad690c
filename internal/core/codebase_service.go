package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gwi.com/onboarding-backend/internal/codebase"
	"gwi.com/onboarding-backend/internal/llm"
	"gwi.com/onboarding-backend/internal/platform/logger"
	"gwi.com/onboarding-backend/internal/store"
)

const (
	analysisVersion = "2.0"

	// maxConcurrentLevels bounds provider calls made by one analysis.
	maxConcurrentLevels = 4
)

// SourceReader reads a repository checkout. *codebase.Reader is the production implementation.
type SourceReader interface {
	Read(ctx context.Context, repoURL string) (*codebase.Snapshot, error)
}

type CodebaseService struct {
	db            store.ContentStore
	provider      llm.Provider
	prompts       *PromptBook
	source        SourceReader
	defaultLevels []string
	log           *logger.Logger
	now           func() time.Time
}

// NewCodebaseService builds the service. A nil source generates variants from the repository
// URL alone.
func NewCodebaseService(db store.ContentStore, provider llm.Provider, prompts *PromptBook, source SourceReader, defaultLevels []string, log *logger.Logger) *CodebaseService {
	if prompts == nil {
		prompts = NewPromptBook()
	}
	if len(defaultLevels) == 0 {
		defaultLevels = []string{LevelJunior, LevelSenior}
	}
	return &CodebaseService{
		db:            db,
		provider:      provider,
		prompts:       prompts,
		source:        source,
		defaultLevels: defaultLevels,
		log:           log.With("service", "CodebaseService"),
		now:           time.Now,
	}
}

// AnalyzeAndStore generates one variant per level and stores the result as a new analysis.
// A level whose generation fails gets a placeholder variant; the other levels are unaffected.
func (s *CodebaseService) AnalyzeAndStore(ctx context.Context, repoURL string, levels []string) (*store.CodebaseAnalysis, error) {
	repoURL = CanonicalRepoURL(repoURL)
	if repoURL == "" {
		return nil, &ValidationError{Field: "repo_url", Reason: "must not be empty"}
	}
	levels = normalizeLevels(levels)
	if len(levels) == 0 {
		levels = normalizeLevels(s.defaultLevels)
	}

	repoName := RepoName(repoURL)
	log := s.log.With("repo_url", repoURL)
	log.Info("starting codebase analysis", "levels", levels)
	start := time.Now()

	src, info := s.readSource(ctx, repoURL, log)

	var (
		mu       sync.Mutex
		variants = make(map[string]store.CodebaseVariant, len(levels))
		modes    = make(map[string]string, len(levels))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLevels)
	for _, level := range levels {
		level := level
		g.Go(func() error {
			v := s.generateVariant(gctx, repoURL, repoName, level, src, log)
			mu.Lock()
			variants[level] = v
			modes[level] = v.GenerationMode
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	analyzedAt := s.now().UTC()
	analysis := &store.CodebaseAnalysis{
		AnalysisID:       analysisID(repoURL, analyzedAt),
		RepoURL:          repoURL,
		RepoName:         repoName,
		AnalyzedAt:       analyzedAt,
		ExperienceLevels: levels,
		Variants:         variants,
		Metadata: store.AnalysisMetadata{
			AnalysisVersion: analysisVersion,
			GenerationModes: modes,
			Model:           s.provider.Name(),
			Source:          info,
		},
	}
	if err := s.db.Put(ctx, store.CodebaseAnalyses, analysis.AnalysisID, analysis); err != nil {
		return nil, fmt.Errorf("failed to store codebase analysis: %w", err)
	}
	log.Info("stored codebase analysis", "analysis_id", analysis.AnalysisID, "modes", modes, "duration", time.Since(start))
	return analysis, nil
}

// repoSource is the repository context shared by every level of one analysis.
type repoSource struct {
	prompt string
	graph  store.KnowledgeGraph
}

// readSource reads the repository once per analysis. A failed read is recorded and the
// analysis continues from the URL alone.
func (s *CodebaseService) readSource(ctx context.Context, repoURL string, log *logger.Logger) (*repoSource, *store.SourceInfo) {
	if s.source == nil {
		return nil, nil
	}
	snap, err := s.source.Read(ctx, repoURL)
	if err != nil {
		log.Warn("failed to read repository, generating from the URL only", "error", err)
		return nil, &store.SourceInfo{KeyFiles: []string{}, Error: err.Error()}
	}
	keyFiles := snap.KeyFiles(maxKeyFiles)
	info := snap.Source(keyFiles)
	return &repoSource{prompt: renderSource(snap, keyFiles), graph: snap.KnowledgeGraph()}, &info
}

// generateVariant never fails: a level whose generation fails gets a placeholder. When the
// repository was read, its graph replaces whatever graph the variant carries.
func (s *CodebaseService) generateVariant(ctx context.Context, repoURL, repoName, level string, src *repoSource, log *logger.Logger) store.CodebaseVariant {
	prompt := ""
	if src != nil {
		prompt = src.prompt
	}
	v, err := s.requestVariant(ctx, repoURL, level, prompt)
	if err != nil {
		log.Warn("variant generation failed, using placeholder", "level", level, "error", err)
		v = placeholderVariant(repoName, level, err.Error())
	}
	if src != nil {
		v.KnowledgeGraph = src.graph
	}
	return v
}

func (s *CodebaseService) requestVariant(ctx context.Context, repoURL, level, source string) (store.CodebaseVariant, error) {
	out, err := s.provider.Generate(ctx, s.prompts.CodebasePrompt(repoURL, level, source))
	if err != nil {
		return store.CodebaseVariant{}, err
	}
	v, err := llm.DecodeJSON[store.CodebaseVariant](s.provider.Name(), out)
	if err != nil {
		return store.CodebaseVariant{}, err
	}
	if err := normalizeVariant(&v); err != nil {
		return store.CodebaseVariant{}, err
	}
	return v, nil
}

// GetLatest returns the analysis of repoURL with the greatest analyzed_at, or nil if the
// repository has never been analyzed.
func (s *CodebaseService) GetLatest(ctx context.Context, repoURL string) (*store.CodebaseAnalysis, error) {
	analyses, err := s.forRepo(ctx, repoURL)
	if err != nil {
		return nil, err
	}
	if len(analyses) == 0 {
		return nil, nil
	}
	return &analyses[0], nil
}

func (s *CodebaseService) Get(ctx context.Context, analysisID string) (*store.CodebaseAnalysis, error) {
	var a store.CodebaseAnalysis
	if err := s.db.Get(ctx, store.CodebaseAnalyses, analysisID, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns summaries newest first. An empty repoURL lists every repository.
func (s *CodebaseService) List(ctx context.Context, repoURL string) ([]store.AnalysisSummary, error) {
	analyses, err := s.forRepo(ctx, repoURL)
	if err != nil {
		return nil, err
	}
	out := make([]store.AnalysisSummary, 0, len(analyses))
	for _, a := range analyses {
		out = append(out, a.Summary())
	}
	return out, nil
}

// forRepo scans the namespace and returns matching analyses newest first.
func (s *CodebaseService) forRepo(ctx context.Context, repoURL string) ([]store.CodebaseAnalysis, error) {
	repoURL = CanonicalRepoURL(repoURL)
	entries, err := s.db.List(ctx, store.CodebaseAnalyses)
	if err != nil {
		return nil, fmt.Errorf("failed to list codebase analyses: %w", err)
	}
	var out []store.CodebaseAnalysis
	for _, e := range entries {
		var a store.CodebaseAnalysis
		if err := e.Decode(&a); err != nil {
			s.log.Warn("skipping unreadable codebase analysis", "key", e.Key, "error", err)
			continue
		}
		if repoURL != "" && CanonicalRepoURL(a.RepoURL) != repoURL {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AnalyzedAt.Equal(out[j].AnalyzedAt) {
			return out[i].AnalyzedAt.After(out[j].AnalyzedAt)
		}
		return out[i].AnalysisID > out[j].AnalysisID
	})
	return out, nil
}

func normalizeLevels(levels []string) []string {
	seen := make(map[string]bool, len(levels))
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
