package core

import (
	"context"
	"fmt"
	"time"

	"gwi.com/onboarding-backend/internal/llm"
	"gwi.com/onboarding-backend/internal/platform/logger"
	"gwi.com/onboarding-backend/internal/store"
)

type PlanRequest struct {
	ProfileID        string
	RepoURL          string
	DurationWeeks    int
	PreferGeneration bool
}

type planPayload struct {
	Weeks []store.Week `json:"weeks"`
}

type StudyPlanService struct {
	db           store.ContentStore
	resumes      *ResumeService
	codebases    *CodebaseService
	router       *LevelRouter
	provider     llm.Provider
	defaultWeeks int
	maxWeeks     int
	log          *logger.Logger
	now          func() time.Time
}

func NewStudyPlanService(db store.ContentStore, resumes *ResumeService, codebases *CodebaseService, router *LevelRouter, provider llm.Provider, defaultWeeks, maxWeeks int, log *logger.Logger) *StudyPlanService {
	return &StudyPlanService{
		db:           db,
		resumes:      resumes,
		codebases:    codebases,
		router:       router,
		provider:     provider,
		defaultWeeks: defaultWeeks,
		maxWeeks:     maxWeeks,
		log:          log.With("service", "StudyPlanService"),
		now:          time.Now,
	}
}

// Generate builds and stores a new plan. Only a missing profile or a repository without an
// analysis fails the call; generation problems fall back to the deterministic plan.
func (s *StudyPlanService) Generate(ctx context.Context, req PlanRequest) (*store.StudyPlan, error) {
	weeks := req.DurationWeeks
	if weeks == 0 {
		weeks = s.defaultWeeks
	}
	if weeks < 1 || weeks > s.maxWeeks {
		return nil, &ValidationError{Field: "duration_weeks", Reason: fmt.Sprintf("must be between 1 and %d", s.maxWeeks)}
	}
	repoURL := CanonicalRepoURL(req.RepoURL)
	if repoURL == "" {
		return nil, &ValidationError{Field: "repo_url", Reason: "must not be empty"}
	}

	profile, err := s.resumes.GetProfile(ctx, req.ProfileID)
	if err != nil {
		return nil, err
	}
	level := s.router.Route(*profile)

	analysis, err := s.codebases.GetLatest(ctx, repoURL)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, &CodebaseNotAnalyzedError{RepoURL: repoURL}
	}
	variant, variantLevel, _ := pickVariant(analysis, level)

	log := s.log.With("profile_id", profile.ProfileID, "repo_url", repoURL, "level", level, "variant_level", variantLevel)

	var planWeeks []store.Week
	mode := GenerationModeFallback
	if req.PreferGeneration {
		planWeeks, err = s.generateWeeks(ctx, *profile, repoURL, variant, weeks)
		if err != nil {
			log.Warn("plan generation failed, using fallback plan", "error", err)
		} else {
			mode = GenerationModeGenerated
		}
	}
	if mode == GenerationModeFallback {
		planWeeks = fallbackWeeks(*profile, analysis.RepoName, variant, weeks)
	}

	generatedAt := s.now().UTC()
	plan := &store.StudyPlan{
		PlanID:          planID(profile.ProfileID, repoURL, generatedAt),
		ProfileID:       profile.ProfileID,
		RepoURL:         repoURL,
		AnalysisID:      analysis.AnalysisID,
		ExperienceLevel: level,
		VariantLevel:    variantLevel,
		DurationWeeks:   len(planWeeks),
		RequestedWeeks:  weeks,
		GenerationMode:  mode,
		GeneratedAt:     generatedAt,
		Weeks:           planWeeks,
	}
	if err := s.db.Put(ctx, store.StudyPlans, plan.PlanID, plan); err != nil {
		return nil, fmt.Errorf("failed to store study plan: %w", err)
	}
	log.Info("stored study plan", "plan_id", plan.PlanID, "mode", mode, "weeks", plan.DurationWeeks)
	return plan, nil
}

func (s *StudyPlanService) generateWeeks(ctx context.Context, profile store.CandidateProfile, repoURL string, variant store.CodebaseVariant, weeks int) ([]store.Week, error) {
	out, err := s.provider.Generate(ctx, planPrompt(profile, repoURL, variant, weeks))
	if err != nil {
		return nil, err
	}
	payload, err := llm.DecodeJSON[planPayload](s.provider.Name(), out)
	if err != nil {
		return nil, err
	}
	return normalizeWeeks(payload.Weeks, weeks)
}

func (s *StudyPlanService) GetPlan(ctx context.Context, planID string) (*store.StudyPlan, error) {
	var plan store.StudyPlan
	if err := s.db.Get(ctx, store.StudyPlans, planID, &plan); err != nil {
		if store.IsNotFound(err) {
			return nil, &PlanNotFoundError{PlanID: planID}
		}
		return nil, fmt.Errorf("failed to load study plan: %w", err)
	}
	return &plan, nil
}

// LatestPlan returns the newest plan for the profile and repository pair.
func (s *StudyPlanService) LatestPlan(ctx context.Context, profileID, repoURL string) (*store.StudyPlan, error) {
	repoURL = CanonicalRepoURL(repoURL)
	entries, err := s.db.List(ctx, store.StudyPlans)
	if err != nil {
		return nil, fmt.Errorf("failed to list study plans: %w", err)
	}
	var latest *store.StudyPlan
	for _, e := range entries {
		var plan store.StudyPlan
		if err := e.Decode(&plan); err != nil {
			s.log.Warn("skipping unreadable study plan", "key", e.Key, "error", err)
			continue
		}
		if plan.ProfileID != profileID || plan.RepoURL != repoURL {
			continue
		}
		if latest == nil || plan.GeneratedAt.After(latest.GeneratedAt) {
			p := plan
			latest = &p
		}
	}
	if latest == nil {
		return nil, &PlanNotFoundError{PlanID: fmt.Sprintf("latest for %s on %s", profileID, repoURL)}
	}
	return latest, nil
}
