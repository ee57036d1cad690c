package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gwi.com/onboarding-backend/internal/llm"
	"gwi.com/onboarding-backend/internal/platform/logger"
	"gwi.com/onboarding-backend/internal/store"
	"gwi.com/onboarding-backend/internal/utils"
)

// Extractor turns an uploaded document into text.
type Extractor interface {
	Extract(filename string, data []byte) (string, error)
}

type UploadOptions struct {
	CandidateEmail string
}

type ResumeService struct {
	db        store.ContentStore
	provider  llm.Provider
	extractor Extractor
	hasher    utils.Hasher
	locker    KeyLocker
	log       *logger.Logger
	now       func() time.Time
}

func NewResumeService(db store.ContentStore, provider llm.Provider, extractor Extractor, hasher utils.Hasher, locker KeyLocker, log *logger.Logger) *ResumeService {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &ResumeService{
		db:        db,
		provider:  provider,
		extractor: extractor,
		hasher:    hasher,
		locker:    locker,
		log:       log.With("service", "ResumeService"),
		now:       time.Now,
	}
}

// Analyze returns the profile for data, creating it on first upload. The second return value
// is true when a profile with the same content hash already existed; in that case nothing is
// extracted or generated.
func (s *ResumeService) Analyze(ctx context.Context, data []byte, filename string, opts UploadOptions) (*store.CandidateProfile, bool, error) {
	contentHash := s.hasher.Hash(data)
	log := s.log.With("content_hash", contentHash, "filename", filename)

	unlock, err := s.locker.Lock(ctx, "profile:"+contentHash)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		// Duplicate generation is possible without the lock, duplicate profiles are not.
		log.Warn("failed to acquire upload lock, continuing without it", "error", err)
		unlock = func() {}
	}
	defer unlock()

	existing, err := s.findByHash(ctx, contentHash)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		log.Info("duplicate resume upload", "profile_id", existing.ProfileID)
		return existing, true, nil
	}

	text, err := s.extractor.Extract(filename, data)
	if err != nil {
		return nil, false, err
	}

	analysis := s.generateAnalysis(ctx, text, log)

	profile := &store.CandidateProfile{
		ProfileID:      s.hasher.DeriveID(contentHash),
		ContentHash:    contentHash,
		UploadedAt:     s.now().UTC(),
		SourceFilename: filename,
		CandidateEmail: opts.CandidateEmail,
		Analysis:       analysis,
	}
	if err := s.db.Put(ctx, store.Profiles, profile.ProfileID, profile); err != nil {
		return nil, false, fmt.Errorf("failed to store profile: %w", err)
	}
	log.Info("created profile", "profile_id", profile.ProfileID, "degraded", analysis.Warning != "")
	return profile, false, nil
}

func (s *ResumeService) findByHash(ctx context.Context, contentHash string) (*store.CandidateProfile, error) {
	entry, err := s.db.FindByField(ctx, store.Profiles, "content_hash", contentHash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up profile by content hash: %w", err)
	}
	if entry == nil {
		return nil, nil
	}
	var profile store.CandidateProfile
	if err := entry.Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// generateAnalysis never fails: provider errors and unusable output produce a mock analysis.
func (s *ResumeService) generateAnalysis(ctx context.Context, text string, log *logger.Logger) store.ResumeAnalysis {
	analysis, err := s.requestAnalysis(ctx, text)
	if err != nil {
		log.Warn("resume analysis generation failed, using keyword analysis", "provider", s.provider.Name(), "error", err)
		return mockAnalysis(text, err.Error())
	}
	return analysis
}

func (s *ResumeService) requestAnalysis(ctx context.Context, text string) (store.ResumeAnalysis, error) {
	out, err := s.provider.Generate(ctx, resumePrompt(text))
	if err != nil {
		return store.ResumeAnalysis{}, err
	}
	analysis, err := llm.DecodeJSON[store.ResumeAnalysis](s.provider.Name(), out)
	if err != nil {
		return store.ResumeAnalysis{}, err
	}
	if err := validateAnalysis(&analysis); err != nil {
		return store.ResumeAnalysis{}, &llm.ProviderError{Provider: s.provider.Name(), Reason: err.Error(), Err: err}
	}
	return analysis, nil
}

func (s *ResumeService) GetProfile(ctx context.Context, profileID string) (*store.CandidateProfile, error) {
	var profile store.CandidateProfile
	if err := s.db.Get(ctx, store.Profiles, profileID, &profile); err != nil {
		if store.IsNotFound(err) {
			return nil, &ProfileNotFoundError{ProfileID: profileID}
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &profile, nil
}
