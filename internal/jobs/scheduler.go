// Package jobs runs codebase analyses outside the request path: on a cron schedule and from
// an AMQP work queue.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"

	"gwi.com/onboarding-backend/internal/config"
	"gwi.com/onboarding-backend/internal/platform/logger"
	"gwi.com/onboarding-backend/internal/store"
)

// Analyzer is the analysis entry point the jobs drive.
type Analyzer interface {
	AnalyzeAndStore(ctx context.Context, repoURL string, levels []string) (*store.CodebaseAnalysis, error)
}

type RunReport struct {
	Analyzed []string
	Failed   map[string]error
}

type Scheduler struct {
	analyzer  Analyzer
	reposFile string
	timeout   time.Duration
	cron      *cron.Cron
	running   atomic.Bool
	log       *logger.Logger
}

// NewScheduler re-reads reposFile on every run so edits apply without a restart. timeout
// bounds a whole run.
func NewScheduler(analyzer Analyzer, reposFile string, timeout time.Duration, log *logger.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Scheduler{
		analyzer:  analyzer,
		reposFile: reposFile,
		timeout:   timeout,
		log:       log.With("service", "Scheduler"),
	}
}

// Start registers spec (seconds-first cron syntax) and starts ticking.
func (s *Scheduler) Start(spec string) error {
	c := cron.New()
	err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("scheduled analysis run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid analysis schedule %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	s.log.Info("analysis scheduler started", "schedule", spec, "repos_file", s.reposFile)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.log.Info("analysis scheduler stopped")
	}
}

// RunOnce analyzes every configured repository in order. A failing repository is logged and
// recorded; it does not stop the run. Overlapping runs are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) (*RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("previous analysis run still in progress, skipping")
		return &RunReport{Failed: map[string]error{}}, nil
	}
	defer s.running.Store(false)

	repos, err := config.LoadRepos(s.reposFile)
	if err != nil {
		return nil, err
	}

	report := &RunReport{Failed: map[string]error{}}
	s.log.Info("starting scheduled codebase analysis", "repositories", len(repos.Repositories))
	for _, repo := range repos.Repositories {
		if err := ctx.Err(); err != nil {
			report.Failed[repo.URL] = err
			continue
		}
		analysis, err := s.analyzer.AnalyzeAndStore(ctx, repo.URL, repo.Levels)
		if err != nil {
			s.log.Error("error analyzing repository", "repo_url", repo.URL, "error", err)
			report.Failed[repo.URL] = err
			continue
		}
		s.log.Info("completed analysis", "repo_url", repo.URL, "analysis_id", analysis.AnalysisID)
		report.Analyzed = append(report.Analyzed, analysis.AnalysisID)
	}
	s.log.Info("scheduled analysis run completed", "analyzed", len(report.Analyzed), "failed", len(report.Failed))
	return report, nil
}
