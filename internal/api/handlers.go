package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"gwi.com/onboarding-backend/internal/core"
	"gwi.com/onboarding-backend/internal/extract"
	"gwi.com/onboarding-backend/internal/jobs"
	"gwi.com/onboarding-backend/internal/platform/logger"
	"gwi.com/onboarding-backend/internal/store"
)

// multipart bodies carry form fields on top of the file itself
const formOverhead = 1 << 20

// Enqueuer hands codebase analyses to a background worker.
type Enqueuer interface {
	Publish(ctx context.Context, req jobs.AnalysisRequest) error
}

type HealthInfo struct {
	Version  string `json:"version"`
	Store    string `json:"store"`
	Provider string `json:"provider"`
}

type Services struct {
	Resumes   *core.ResumeService
	Codebases *core.CodebaseService
	Plans     *core.StudyPlanService
	Chat      *core.ChatService
	// Queue is optional; without it analyses run inside the request.
	Queue Enqueuer
}

type APIHandler struct {
	resumes        *core.ResumeService
	codebases      *core.CodebaseService
	plans          *core.StudyPlanService
	chat           *core.ChatService
	queue          Enqueuer
	info           HealthInfo
	maxUploadBytes int64
	log            *logger.Logger
}

func NewAPIHandler(svc Services, info HealthInfo, maxUploadBytes int64, log *logger.Logger) *APIHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &APIHandler{
		resumes:        svc.Resumes,
		codebases:      svc.Codebases,
		plans:          svc.Plans,
		chat:           svc.Chat,
		queue:          svc.Queue,
		info:           info,
		maxUploadBytes: maxUploadBytes,
		log:            log.With("component", "api"),
	}
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		HealthInfo
	}{Status: "ok", HealthInfo: h.info})
}

type analyzeResumeResponse struct {
	ProfileID   string                  `json:"profile_id"`
	IsDuplicate bool                    `json:"is_duplicate"`
	Message     string                  `json:"message"`
	Profile     *store.CandidateProfile `json:"profile"`
	Analysis    store.ResumeAnalysis    `json:"analysis"`
	Plan        *store.StudyPlan        `json:"plan,omitempty"`
	PlanError   string                  `json:"plan_error,omitempty"`
}

// AnalyzeResumeHandler accepts a multipart upload with the file in the "resume" field.
// When repo_url is also given a study plan is generated in the same call.
func (h *APIHandler) AnalyzeResumeHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "resume file is too large", "payload_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error(), "invalid_request")
		return
	}

	file, header, err := r.FormFile("resume")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing resume file", "invalid_request")
		return
	}
	defer file.Close()

	if !extract.Supported(header.Filename) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type, expected .pdf, .docx, .txt or .md", "unsupported_media_type")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read resume file", "invalid_request")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "resume file is too large", "payload_too_large")
		return
	}

	profile, duplicate, err := h.resumes.Analyze(r.Context(), data, header.Filename, core.UploadOptions{
		CandidateEmail: strings.TrimSpace(r.FormValue("candidate_email")),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := analyzeResumeResponse{
		ProfileID:   profile.ProfileID,
		IsDuplicate: duplicate,
		Message:     "Resume analyzed successfully",
		Profile:     profile,
		Analysis:    profile.Analysis,
	}
	if duplicate {
		resp.Message = "Resume already analyzed, returning existing profile"
	}

	if repoURL := strings.TrimSpace(r.FormValue("repo_url")); repoURL != "" {
		plan, err := h.planFromForm(r, profile.ProfileID, repoURL)
		if err != nil {
			h.log.Warn("plan generation after upload failed", "profile_id", profile.ProfileID, "repo_url", repoURL, "error", err)
			resp.PlanError = err.Error()
		}
		resp.Plan = plan
	}

	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *APIHandler) planFromForm(r *http.Request, profileID, repoURL string) (*store.StudyPlan, error) {
	weeks := 0
	if v := strings.TrimSpace(r.FormValue("duration_weeks")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &core.ValidationError{Field: "duration_weeks", Reason: "must be an integer"}
		}
		weeks = n
	}
	useAI := true
	if v := strings.TrimSpace(r.FormValue("use_ai")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &core.ValidationError{Field: "use_ai", Reason: "must be a boolean"}
		}
		useAI = b
	}
	return h.plans.Generate(r.Context(), core.PlanRequest{
		ProfileID:        profileID,
		RepoURL:          repoURL,
		DurationWeeks:    weeks,
		PreferGeneration: useAI,
	})
}

func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	if err := store.ValidateKey(profileID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
		return
	}
	profile, err := h.resumes.GetProfile(r.Context(), profileID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type generatePlanRequest struct {
	ProfileID     string `json:"profile_id"`
	RepoURL       string `json:"repo_url"`
	DurationWeeks int    `json:"duration_weeks"`
	UseAI         *bool  `json:"use_ai"`
}

func (h *APIHandler) GenerateStudyPlanHandler(w http.ResponseWriter, r *http.Request) {
	var req generatePlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request")
		return
	}
	if strings.TrimSpace(req.ProfileID) == "" {
		writeError(w, http.StatusBadRequest, "profile_id is required", "invalid_request")
		return
	}
	useAI := true
	if req.UseAI != nil {
		useAI = *req.UseAI
	}

	plan, err := h.plans.Generate(r.Context(), core.PlanRequest{
		ProfileID:        strings.TrimSpace(req.ProfileID),
		RepoURL:          req.RepoURL,
		DurationWeeks:    req.DurationWeeks,
		PreferGeneration: useAI,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (h *APIHandler) GetStudyPlanHandler(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	if err := store.ValidateKey(planID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
		return
	}
	plan, err := h.plans.GetPlan(r.Context(), planID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *APIHandler) LatestStudyPlanHandler(w http.ResponseWriter, r *http.Request) {
	profileID := r.URL.Query().Get("profile_id")
	repoURL := r.URL.Query().Get("repo_url")
	if profileID == "" || repoURL == "" {
		writeError(w, http.StatusBadRequest, "profile_id and repo_url are required", "invalid_request")
		return
	}
	plan, err := h.plans.LatestPlan(r.Context(), profileID, repoURL)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *APIHandler) GetCodeBaseSummaryHandler(w http.ResponseWriter, r *http.Request) {
	repoURL := r.URL.Query().Get("codebase_url")
	if repoURL == "" {
		repoURL = r.URL.Query().Get("repo_url")
	}
	if strings.TrimSpace(repoURL) == "" {
		writeError(w, http.StatusBadRequest, "codebase_url is required", "invalid_request")
		return
	}
	analysis, err := h.codebases.GetLatest(r.Context(), repoURL)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if analysis == nil {
		h.writeServiceError(w, r, &core.CodebaseNotAnalyzedError{RepoURL: core.CanonicalRepoURL(repoURL)})
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (h *APIHandler) ListCodebaseAnalysesHandler(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.codebases.List(r.Context(), r.URL.Query().Get("repo_url"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []store.AnalysisSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": summaries})
}

func (h *APIHandler) GetCodebaseAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	analysisID := chi.URLParam(r, "analysisID")
	if err := store.ValidateKey(analysisID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
		return
	}
	analysis, err := h.codebases.Get(r.Context(), analysisID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (h *APIHandler) TriggerCodebaseAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	var req jobs.AnalysisRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request")
		return
	}
	req.RepoURL = core.CanonicalRepoURL(req.RepoURL)
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "repo_url is required", "invalid_request")
		return
	}

	if h.queue != nil {
		err := h.queue.Publish(r.Context(), req)
		if err == nil {
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "repo_url": req.RepoURL})
			return
		}
		h.log.Warn("analysis queue unavailable, analyzing inline", "repo_url", req.RepoURL, "error", err)
	}

	analysis, err := h.codebases.AnalyzeAndStore(r.Context(), req.RepoURL, req.Levels)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, analysis)
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req core.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request")
		return
	}
	reply, err := h.chat.Ask(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
