package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gwi.com/onboarding-backend/internal/llm"
	"gwi.com/onboarding-backend/internal/platform/logger"
	"gwi.com/onboarding-backend/internal/store"
)

type fakeProvider struct {
	calls atomic.Int32
	fn    func(p llm.Prompt) (string, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, p llm.Prompt) (string, error) {
	f.calls.Add(1)
	return f.fn(p)
}

func respond(body string) *fakeProvider {
	return &fakeProvider{fn: func(llm.Prompt) (string, error) { return body, nil }}
}

func failing() *fakeProvider {
	return &fakeProvider{fn: func(llm.Prompt) (string, error) {
		return "", &llm.ProviderError{Provider: "fake", Reason: "service unavailable", Retryable: true}
	}}
}

func newTestStore(t *testing.T) store.ContentStore {
	t.Helper()
	db, err := store.NewFileStore(t.TempDir(), logger.Nop())
	require.NoError(t, err)
	return db
}

// clock returns a now function that advances by one minute per call.
func clock(start time.Time) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)-1) * time.Minute)
	}
}

const testResume = `Jane Doe
Backend Engineer
B.Sc. Computer Science, University of Crete

Experience: 6 years building Go services, Kubernetes operators
and PostgreSQL-backed APIs with Docker and Redis.`

const testAnalysisJSON = `{
  "candidate_name": "Jane Doe",
  "experience_years": 6,
  "education": ["B.Sc. Computer Science"],
  "technical_skills": {"languages": ["Go"], "frameworks": [], "tools": ["Docker"], "databases": ["PostgreSQL"]},
  "experience_summary": ["Builds backend services"],
  "strengths": ["Distributed systems"],
  "knowledge_gaps": ["Frontend frameworks", "Observability"],
  "recommended_learning_path": ["Tracing basics"]
}`

const testVariantJSON = "```json\n" + `{
  "summary": {"overview": "A job queue service", "purpose": "Runs background work", "key_components": ["scheduler", "workers"], "technologies": ["Go"], "difficulty_level": "intermediate"},
  "chapters": [
    {"title": "Workers", "order": 2, "content": "How workers pull jobs.", "sections": [{"heading": "Leasing", "content": "Jobs are leased for a minute."}]},
    {"title": "Getting Started", "order": 1, "content": "Clone and run.", "sections": []}
  ],
  "curriculum": {"weeks": [{"week": 1, "title": "Basics", "goals": ["run it"]}]},
  "knowledge_graph": {"nodes": [], "edges": []}
}` + "\n```"

func chapters(titles ...string) []store.Chapter {
	out := make([]store.Chapter, 0, len(titles))
	for i, t := range titles {
		out = append(out, store.Chapter{
			Title:   t,
			Order:   i + 1,
			Content: t + " explained.",
			Sections: []store.Section{
				{Heading: t + " basics", Content: "The basics of " + t + ". More detail follows."},
			},
		})
	}
	return out
}

func putProfile(t *testing.T, db store.ContentStore, id string, years store.Years, gaps ...string) {
	t.Helper()
	p := store.CandidateProfile{
		ProfileID:   id,
		ContentHash: id + "-hash",
		UploadedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Analysis: store.ResumeAnalysis{
			CandidateName:   "Test Candidate",
			ExperienceYears: years,
			KnowledgeGaps:   gaps,
		},
	}
	p.Analysis.Normalize()
	require.NoError(t, db.Put(context.Background(), store.Profiles, id, p))
}

func putAnalysis(t *testing.T, db store.ContentStore, repoURL string, at time.Time, variants map[string]store.CodebaseVariant) *store.CodebaseAnalysis {
	t.Helper()
	a := &store.CodebaseAnalysis{
		AnalysisID: analysisID(repoURL, at),
		RepoURL:    repoURL,
		RepoName:   RepoName(repoURL),
		AnalyzedAt: at,
		Variants:   variants,
	}
	for level := range variants {
		a.ExperienceLevels = append(a.ExperienceLevels, level)
	}
	require.NoError(t, db.Put(context.Background(), store.CodebaseAnalyses, a.AnalysisID, a))
	return a
}
