package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(apiHandler.log))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		// Candidates
		r.Post("/analyzeResume", apiHandler.AnalyzeResumeHandler)
		r.Get("/getProfile/{profileID}", apiHandler.GetProfileHandler)

		// Study plans
		r.Post("/generateStudyPlan", apiHandler.GenerateStudyPlanHandler)
		r.Get("/studyPlans/latest", apiHandler.LatestStudyPlanHandler)
		r.Get("/studyPlans/{planID}", apiHandler.GetStudyPlanHandler)

		// Codebases
		r.Get("/getCodeBaseSummary", apiHandler.GetCodeBaseSummaryHandler)
		r.Get("/codebaseAnalyses", apiHandler.ListCodebaseAnalysesHandler)
		r.Post("/codebaseAnalyses", apiHandler.TriggerCodebaseAnalysisHandler)
		r.Get("/codebaseAnalyses/{analysisID}", apiHandler.GetCodebaseAnalysisHandler)
		r.Post("/chat", apiHandler.ChatHandler)
	})

	return r
}
