package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/onboarding-backend/internal/extract"
	"gwi.com/onboarding-backend/internal/llm"
	"gwi.com/onboarding-backend/internal/platform/logger"
	"gwi.com/onboarding-backend/internal/store"
	"gwi.com/onboarding-backend/internal/utils"
)

func newResumeService(t *testing.T, db store.ContentStore, p llm.Provider) *ResumeService {
	t.Helper()
	svc := NewResumeService(db, p, extract.NewTextExtractor(50), utils.NewHasher(12), NewLocalLocker(), logger.Nop())
	svc.now = clock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	return svc
}

func TestAnalyzeDeduplicatesSequentialUploads(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	p := respond(testAnalysisJSON)
	svc := newResumeService(t, db, p)
	data := []byte(testResume)

	first, dup, err := svc.Analyze(ctx, data, "jane.txt", UploadOptions{CandidateEmail: "jane@example.com"})
	require.NoError(t, err)
	assert.False(t, dup)

	h := utils.NewHasher(12)
	assert.Equal(t, h.DeriveID(h.Hash(data)), first.ProfileID)
	assert.Len(t, first.ProfileID, 12)
	assert.Equal(t, "Jane Doe", first.Analysis.CandidateName)
	assert.Empty(t, first.Analysis.Warning)

	for i := 0; i < 3; i++ {
		again, dup, err := svc.Analyze(ctx, data, "renamed.txt", UploadOptions{CandidateEmail: "other@example.com"})
		require.NoError(t, err)
		assert.True(t, dup)
		assert.Equal(t, first.ProfileID, again.ProfileID)
		assert.Equal(t, first.UploadedAt, again.UploadedAt)
		assert.Equal(t, "jane.txt", again.SourceFilename)
		assert.Equal(t, "jane@example.com", again.CandidateEmail)
	}
	assert.EqualValues(t, 1, p.calls.Load())

	entries, err := db.List(ctx, store.Profiles)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAnalyzeDeduplicatesConcurrentUploads(t *testing.T) {
	db := newTestStore(t)
	p := &fakeProvider{fn: func(llm.Prompt) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return testAnalysisJSON, nil
	}}
	svc := newResumeService(t, db, p)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = map[string]bool{}
		news int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			profile, dup, err := svc.Analyze(context.Background(), []byte(testResume), "jane.txt", UploadOptions{})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[profile.ProfileID] = true
			if !dup {
				news++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, news)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestAnalyzeProviderFailureUsesMockAnalysis(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	p := failing()
	svc := newResumeService(t, db, p)

	profile, dup, err := svc.Analyze(ctx, []byte(testResume), "jane.txt", UploadOptions{})
	require.NoError(t, err)
	assert.False(t, dup)

	a := profile.Analysis
	assert.NotEmpty(t, a.Warning)
	assert.Equal(t, "Jane Doe", a.CandidateName)
	years, ok := a.ExperienceYears.Value()
	require.True(t, ok)
	assert.Equal(t, 6.0, years)
	assert.Contains(t, a.TechnicalSkills.Languages, "Go")
	assert.Contains(t, a.TechnicalSkills.Tools, "Kubernetes")
	assert.Contains(t, a.TechnicalSkills.Databases, "PostgreSQL")
	assert.NotEmpty(t, a.KnowledgeGaps)
	assert.NotNil(t, a.Education)

	stored, err := svc.GetProfile(ctx, profile.ProfileID)
	require.NoError(t, err)
	assert.Equal(t, a.Warning, stored.Analysis.Warning)
	assert.Equal(t, LevelSenior, NewLevelRouter(DefaultSeniorYears).Route(*stored))
}

func TestAnalyzeMalformedOutputUsesMockAnalysis(t *testing.T) {
	svc := newResumeService(t, newTestStore(t), respond("Sorry, I can't help with that."))
	profile, _, err := svc.Analyze(context.Background(), []byte(testResume), "jane.txt", UploadOptions{})
	require.NoError(t, err)
	assert.Contains(t, profile.Analysis.Warning, "AI analysis unavailable")
}

func TestAnalyzeWrongSchemaUsesMockAnalysis(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"error body", `{"status":"error","message":"rate limited"}`, "no candidate name"},
		{"empty object", `{}`, "no candidate name"},
		{"name only", `{"candidate_name":"Jane Doe","experience_years":"unknown","technical_skills":{"languages":[" "]}}`, "no experience"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc := newResumeService(t, newTestStore(t), respond(tt.body))

			profile, duplicate, err := svc.Analyze(ctx, []byte(testResume), "jane.txt", UploadOptions{})
			require.NoError(t, err)
			assert.False(t, duplicate)
			assert.Contains(t, profile.Analysis.Warning, "AI analysis unavailable")
			assert.Contains(t, profile.Analysis.Warning, tt.reason)
			assert.Equal(t, "Jane Doe", profile.Analysis.CandidateName)
			assert.NotEmpty(t, profile.Analysis.KnowledgeGaps)

			again, duplicate, err := svc.Analyze(ctx, []byte(testResume), "jane.txt", UploadOptions{})
			require.NoError(t, err)
			assert.True(t, duplicate)
			assert.Equal(t, profile.Analysis.Warning, again.Analysis.Warning)
		})
	}
}

func TestAnalyzeRejectsUnreadableDocuments(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	p := respond(testAnalysisJSON)
	svc := newResumeService(t, db, p)

	_, _, err := svc.Analyze(ctx, []byte("too short"), "cv.txt", UploadOptions{})
	var ee *extract.ExtractionError
	require.True(t, errors.As(err, &ee))

	_, _, err = svc.Analyze(ctx, []byte(testResume), "cv.png", UploadOptions{})
	require.True(t, errors.As(err, &ee))

	assert.EqualValues(t, 0, p.calls.Load())
	entries, err := db.List(ctx, store.Profiles)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAnalyzeIgnoresWarningFromGenerator(t *testing.T) {
	svc := newResumeService(t, newTestStore(t), respond(`{"candidate_name":"X","experience_years":"2 years","warning":"made up"}`))
	profile, _, err := svc.Analyze(context.Background(), []byte(testResume), "jane.txt", UploadOptions{})
	require.NoError(t, err)
	assert.Empty(t, profile.Analysis.Warning)
	assert.NotNil(t, profile.Analysis.TechnicalSkills.Frameworks)
}

func TestGetProfileNotFound(t *testing.T) {
	svc := newResumeService(t, newTestStore(t), failing())
	_, err := svc.GetProfile(context.Background(), "missing")
	var nf *ProfileNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.ProfileID)
}

func TestMockAnalysisWithoutSignals(t *testing.T) {
	a := mockAnalysis("1234 5678\n\n", "timeout")
	assert.Equal(t, "Unknown Candidate", a.CandidateName)
	years, ok := a.ExperienceYears.Value()
	assert.True(t, ok)
	assert.Zero(t, years)
	assert.Empty(t, a.TechnicalSkills.Languages)
	assert.NotNil(t, a.TechnicalSkills.Languages)
	assert.Contains(t, a.Warning, "timeout")
}

func TestMockAnalysisSkillMatching(t *testing.T) {
	a := mockAnalysis("Sam\nGolang, C++ and TypeScript; goes to Google meetups", "x")
	assert.Equal(t, []string{"Golang", "TypeScript", "C++"}, a.TechnicalSkills.Languages)
}
