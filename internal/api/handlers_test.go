package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/onboarding-backend/internal/core"
	"gwi.com/onboarding-backend/internal/extract"
	"gwi.com/onboarding-backend/internal/jobs"
	"gwi.com/onboarding-backend/internal/llm"
	"gwi.com/onboarding-backend/internal/platform/logger"
	"gwi.com/onboarding-backend/internal/store"
	"gwi.com/onboarding-backend/internal/utils"
)

const testResume = `Jane Doe
Backend Engineer
B.Sc. Computer Science, University of Crete

Experience: 6 years building Go services, Kubernetes operators
and PostgreSQL-backed APIs with Docker and Redis.`

const testRepo = "https://github.com/acme/jobs"

type fakeQueue struct {
	published []jobs.AnalysisRequest
	err       error
}

func (q *fakeQueue) Publish(_ context.Context, req jobs.AnalysisRequest) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, req)
	return nil
}

// newTestServer wires real services over a file store. The provider always fails, so every
// response comes from the deterministic fallbacks.
func newTestServer(t *testing.T, queue Enqueuer) (*httptest.Server, store.ContentStore) {
	t.Helper()
	log := logger.Nop()
	db, err := store.NewFileStore(t.TempDir(), log)
	require.NoError(t, err)
	provider := llm.Unavailable{}

	resumes := core.NewResumeService(db, provider, extract.NewTextExtractor(50), utils.NewHasher(12), core.NewLocalLocker(), log)
	codebases := core.NewCodebaseService(db, provider, core.NewPromptBook(), nil, nil, log)
	plans := core.NewStudyPlanService(db, resumes, codebases, core.NewLevelRouter(core.DefaultSeniorYears), provider, 4, 12, log)
	chat := core.NewChatService(codebases, provider, log)

	h := NewAPIHandler(Services{
		Resumes:   resumes,
		Codebases: codebases,
		Plans:     plans,
		Chat:      chat,
		Queue:     queue,
	}, HealthInfo{Version: "test", Store: db.Name(), Provider: provider.Name()}, 1<<20, log)

	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, db
}

func upload(t *testing.T, srv *httptest.Server, filename, content string, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("resume", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/analyzeResume", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postJSON(t *testing.T, srv *httptest.Server, path string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	switch p := payload.(type) {
	case string:
		body.WriteString(p)
	default:
		require.NoError(t, json.NewEncoder(&body).Encode(p))
	}
	resp, err := http.Post(srv.URL+path, "application/json", &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func requireError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.Equal(t, code, body.Code)
	assert.NotEmpty(t, body.Error)
}

func analyze(t *testing.T, srv *httptest.Server) *store.CodebaseAnalysis {
	t.Helper()
	resp := postJSON(t, srv, "/api/codebaseAnalyses", map[string]any{"repo_url": testRepo + ".git"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[*store.CodebaseAnalysis](t, resp)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp := get(t, srv, "/api/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := decode[map[string]string](t, resp)
	assert.Equal(t, map[string]string{"status": "ok", "version": "test", "store": "file", "provider": "none"}, body)
}

func TestAnalyzeResumeDeduplicates(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	first := upload(t, srv, "jane.txt", testResume, map[string]string{"candidate_email": "jane@example.com"})
	require.Equal(t, http.StatusCreated, first.StatusCode)
	created := decode[analyzeResumeResponse](t, first)
	assert.False(t, created.IsDuplicate)
	assert.Len(t, created.ProfileID, 12)
	assert.Equal(t, "jane@example.com", created.Profile.CandidateEmail)
	assert.Equal(t, "Jane Doe", created.Analysis.CandidateName)
	assert.Contains(t, created.Analysis.Warning, "AI analysis unavailable")
	assert.Nil(t, created.Plan)

	second := upload(t, srv, "renamed.txt", testResume, nil)
	require.Equal(t, http.StatusOK, second.StatusCode)
	dup := decode[analyzeResumeResponse](t, second)
	assert.True(t, dup.IsDuplicate)
	assert.Equal(t, created.ProfileID, dup.ProfileID)
	assert.Equal(t, "jane.txt", dup.Profile.SourceFilename)

	resp := get(t, srv, "/api/getProfile/"+created.ProfileID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decode[store.CandidateProfile](t, resp)
	assert.Equal(t, created.ProfileID, profile.ProfileID)
}

func TestAnalyzeResumeRejectsBadUploads(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	requireError(t, upload(t, srv, "", "", map[string]string{"candidate_email": "x@example.com"}), http.StatusBadRequest, "invalid_request")
	requireError(t, upload(t, srv, "short.txt", "too short", nil), http.StatusUnprocessableEntity, "extraction_failed")
	requireError(t, upload(t, srv, "photo.png", testResume, nil), http.StatusUnsupportedMediaType, "unsupported_media_type")
	requireError(t, upload(t, srv, "huge.txt", strings.Repeat("a", 1<<20+1), nil), http.StatusRequestEntityTooLarge, "payload_too_large")
}

func TestAnalyzeResumeWithPlan(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := upload(t, srv, "jane.txt", testResume, map[string]string{"repo_url": testRepo})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[analyzeResumeResponse](t, resp)
	assert.Nil(t, body.Plan)
	assert.Contains(t, body.PlanError, "no codebase analysis found")

	analyze(t, srv)
	resp = upload(t, srv, "jane.txt", testResume, map[string]string{"repo_url": testRepo, "duration_weeks": "3", "use_ai": "false"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode[analyzeResumeResponse](t, resp)
	assert.Empty(t, body.PlanError)
	require.NotNil(t, body.Plan)
	assert.Equal(t, 3, body.Plan.DurationWeeks)
	assert.Equal(t, core.LevelSenior, body.Plan.ExperienceLevel)

	resp = upload(t, srv, "jane.txt", testResume, map[string]string{"repo_url": testRepo, "duration_weeks": "three"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode[analyzeResumeResponse](t, resp)
	assert.Contains(t, body.PlanError, "duration_weeks")
}

func TestGetProfileNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	requireError(t, get(t, srv, "/api/getProfile/abc123"), http.StatusNotFound, "profile_not_found")
}

func TestStudyPlanLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	profile := decode[analyzeResumeResponse](t, upload(t, srv, "jane.txt", testResume, nil))

	requireError(t, postJSON(t, srv, "/api/generateStudyPlan", map[string]any{
		"profile_id": profile.ProfileID, "repo_url": testRepo,
	}), http.StatusNotFound, "codebase_not_analyzed")

	analyze(t, srv)

	resp := postJSON(t, srv, "/api/generateStudyPlan", map[string]any{
		"profile_id": profile.ProfileID, "repo_url": testRepo, "duration_weeks": 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	plan := decode[store.StudyPlan](t, resp)
	assert.Equal(t, core.GenerationModeFallback, plan.GenerationMode)
	require.Len(t, plan.Weeks, 5)
	assert.Equal(t, core.WeekStatusStart, plan.Weeks[0].Status)
	assert.Equal(t, core.WeekStatusLocked, plan.Weeks[4].Status)

	resp = get(t, srv, "/api/studyPlans/"+plan.PlanID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, plan.PlanID, decode[store.StudyPlan](t, resp).PlanID)

	q := url.Values{"profile_id": {profile.ProfileID}, "repo_url": {testRepo}}
	resp = get(t, srv, "/api/studyPlans/latest?"+q.Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, plan.PlanID, decode[store.StudyPlan](t, resp).PlanID)

	requireError(t, get(t, srv, "/api/studyPlans/missing"), http.StatusNotFound, "plan_not_found")
	requireError(t, get(t, srv, "/api/studyPlans/latest?profile_id="+profile.ProfileID), http.StatusBadRequest, "invalid_request")
}

func TestGenerateStudyPlanValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	profile := decode[analyzeResumeResponse](t, upload(t, srv, "jane.txt", testResume, nil))
	analyze(t, srv)

	tests := []struct {
		name    string
		payload any
		status  int
		code    string
	}{
		{"malformed body", `{"profile_id":`, http.StatusBadRequest, "invalid_request"},
		{"unknown field", `{"profile_id":"x","weeks":3}`, http.StatusBadRequest, "invalid_request"},
		{"missing profile id", map[string]any{"repo_url": testRepo}, http.StatusBadRequest, "invalid_request"},
		{"too many weeks", map[string]any{"profile_id": profile.ProfileID, "repo_url": testRepo, "duration_weeks": 13}, http.StatusBadRequest, "invalid_request"},
		{"negative weeks", map[string]any{"profile_id": profile.ProfileID, "repo_url": testRepo, "duration_weeks": -1}, http.StatusBadRequest, "invalid_request"},
		{"missing repo", map[string]any{"profile_id": profile.ProfileID}, http.StatusBadRequest, "invalid_request"},
		{"unknown profile", map[string]any{"profile_id": "nobody", "repo_url": testRepo}, http.StatusNotFound, "profile_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireError(t, postJSON(t, srv, "/api/generateStudyPlan", tt.payload), tt.status, tt.code)
		})
	}
}

func TestCodebaseAnalysisEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	requireError(t, get(t, srv, "/api/getCodeBaseSummary?codebase_url="+url.QueryEscape(testRepo)), http.StatusNotFound, "codebase_not_analyzed")
	requireError(t, get(t, srv, "/api/getCodeBaseSummary"), http.StatusBadRequest, "invalid_request")
	requireError(t, postJSON(t, srv, "/api/codebaseAnalyses", map[string]any{"repo_url": " "}), http.StatusBadRequest, "invalid_request")

	created := analyze(t, srv)
	assert.Equal(t, testRepo, created.RepoURL)
	assert.ElementsMatch(t, []string{core.LevelJunior, core.LevelSenior}, created.ExperienceLevels)
	for level, v := range created.Variants {
		assert.Equal(t, core.GenerationModeFallback, v.GenerationMode, level)
		assert.NotEmpty(t, v.Chapters, level)
	}

	resp := get(t, srv, "/api/getCodeBaseSummary?codebase_url="+url.QueryEscape(testRepo+"/"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.AnalysisID, decode[store.CodebaseAnalysis](t, resp).AnalysisID)

	resp = get(t, srv, "/api/codebaseAnalyses?repo_url="+url.QueryEscape(testRepo))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[map[string][]store.AnalysisSummary](t, resp)
	require.Len(t, list["analyses"], 1)
	assert.Equal(t, created.AnalysisID, list["analyses"][0].AnalysisID)

	resp = get(t, srv, "/api/codebaseAnalyses?repo_url="+url.QueryEscape("https://github.com/acme/other"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[map[string][]store.AnalysisSummary](t, resp)["analyses"])

	resp = get(t, srv, "/api/codebaseAnalyses/"+created.AnalysisID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.AnalysisID, decode[store.CodebaseAnalysis](t, resp).AnalysisID)

	requireError(t, get(t, srv, "/api/codebaseAnalyses/unknown"), http.StatusNotFound, "not_found")
}

func TestTriggerAnalysisQueued(t *testing.T) {
	q := &fakeQueue{}
	srv, db := newTestServer(t, q)

	resp := postJSON(t, srv, "/api/codebaseAnalyses", map[string]any{"repo_url": testRepo + ".git", "levels": []string{"junior"}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "queued", "repo_url": testRepo}, decode[map[string]string](t, resp))
	require.Len(t, q.published, 1)
	assert.Equal(t, jobs.AnalysisRequest{RepoURL: testRepo, Levels: []string{"junior"}}, q.published[0])

	entries, err := db.List(context.Background(), store.CodebaseAnalyses)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTriggerAnalysisFallsBackWhenQueueFails(t *testing.T) {
	srv, _ := newTestServer(t, &fakeQueue{err: errors.New("connection closed")})
	analyze(t, srv)
}

func TestChat(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	requireError(t, postJSON(t, srv, "/api/chat", map[string]any{"repo_url": testRepo, "message": "How do I start?"}), http.StatusNotFound, "codebase_not_analyzed")
	requireError(t, postJSON(t, srv, "/api/chat", map[string]any{"repo_url": testRepo, "message": "  "}), http.StatusBadRequest, "invalid_request")

	analyze(t, srv)
	resp := postJSON(t, srv, "/api/chat", map[string]any{
		"repo_url": testRepo,
		"message":  "How do I get started with the project layout?",
		"history":  []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply := decode[core.ChatReply](t, resp)
	assert.True(t, reply.Degraded)
	assert.NotNil(t, reply.Sources)
	assert.NotEmpty(t, reply.AnalysisID)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&core.ValidationError{Field: "f", Reason: "r"}, http.StatusBadRequest, "invalid_request"},
		{&extract.ExtractionError{Filename: "a.pdf", Reason: "empty"}, http.StatusUnprocessableEntity, "extraction_failed"},
		{&core.ProfileNotFoundError{ProfileID: "p"}, http.StatusNotFound, "profile_not_found"},
		{&core.PlanNotFoundError{PlanID: "p"}, http.StatusNotFound, "plan_not_found"},
		{&core.CodebaseNotAnalyzedError{RepoURL: "r"}, http.StatusNotFound, "codebase_not_analyzed"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		status, code := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
