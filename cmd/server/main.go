package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"gwi.com/onboarding-backend/internal/api"
	"gwi.com/onboarding-backend/internal/codebase"
	"gwi.com/onboarding-backend/internal/config"
	"gwi.com/onboarding-backend/internal/core"
	"gwi.com/onboarding-backend/internal/extract"
	"gwi.com/onboarding-backend/internal/jobs"
	"gwi.com/onboarding-backend/internal/llm"
	"gwi.com/onboarding-backend/internal/platform/logger"
	"gwi.com/onboarding-backend/internal/store"
	"gwi.com/onboarding-backend/internal/utils"
)

var version = "dev"

func main() {
	// Command line flag for a one-off analysis of every repository in repos.yaml
	analyzeFlag := flag.Bool("analyze", false, "Analyze every repository in the repos file and exit")
	flag.Parse()

	// Load configuration
	warnings, cfgErr := config.LoadConfig()
	cfg := config.AppConfig

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	for _, w := range warnings {
		log.Warn(w)
	}
	if cfgErr != nil {
		log.Fatal("invalid configuration", "error", cfgErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize document store
	db, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize store", "backend", cfg.StoreBackend, "error", err)
	}
	defer db.Close()

	// Initialize generation provider
	provider, closeProvider, err := llm.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize generation provider", "provider", cfg.LLMProvider, "error", err)
	}
	defer closeProvider()

	repos, err := config.LoadRepos(cfg.ReposFile)
	if err != nil {
		log.Fatal("failed to load repositories file", "path", cfg.ReposFile, "error", err)
	}
	extraLevels := make([]core.LevelThreshold, 0, len(repos.Levels))
	for _, l := range repos.Levels {
		extraLevels = append(extraLevels, core.LevelThreshold{Level: l.Name, MinYears: l.MinYears})
	}

	var locker core.KeyLocker = core.NewLocalLocker()
	if cfg.RedisURL != "" {
		lockTTL := cfg.LLMTimeout * time.Duration(cfg.LLMMaxAttempts+1)
		redisLocker, err := core.NewRedisLocker(ctx, cfg.RedisURL, lockTTL)
		if err != nil {
			log.Fatal("failed to connect to redis", "error", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
		log.Info("using redis for upload deduplication locks")
	}

	var source core.SourceReader
	if cfg.Source.Enabled {
		source = codebase.NewReader(codebase.Options{
			Include:      cfg.Source.Include,
			Exclude:      cfg.Source.Exclude,
			MaxFileBytes: cfg.Source.MaxFileBytes,
			MaxFiles:     cfg.Source.MaxFiles,
			GitHubToken:  cfg.Source.GitHubToken,
			AllowLocal:   cfg.Source.AllowLocal,
		}, log)
	}

	// Initialize services
	resumes := core.NewResumeService(db, provider, extract.NewTextExtractor(cfg.MinResumeChars), utils.NewHasher(cfg.ProfileIDLength), locker, log)
	codebases := core.NewCodebaseService(db, provider, core.NewPromptBook(repos.Levels...), source, cfg.AnalysisLevels, log)
	router := core.NewLevelRouter(cfg.SeniorYearsThreshold, extraLevels...)
	for _, level := range router.Levels() {
		if !slices.Contains(cfg.AnalysisLevels, level) {
			log.Warn("level is routable but not in ANALYSIS_LEVELS, its plans will use another analyzed variant", "level", level)
		}
	}
	plans := core.NewStudyPlanService(db, resumes, codebases, router, provider, cfg.DefaultPlanWeeks, cfg.MaxPlanWeeks, log)
	chat := core.NewChatService(codebases, provider, log)

	scheduler := jobs.NewScheduler(codebases, cfg.ReposFile, 0, log)

	// Handle one-off analysis if flag is set
	if *analyzeFlag {
		report, err := scheduler.RunOnce(ctx)
		if err != nil {
			log.Fatal("analysis run failed", "error", err)
		}
		log.Info("analysis run complete, exiting", "analyzed", len(report.Analyzed), "failed", len(report.Failed))
		return
	}

	services := api.Services{Resumes: resumes, Codebases: codebases, Plans: plans, Chat: chat}

	if cfg.AMQPURL != "" {
		queue, err := jobs.NewAnalysisQueue(cfg.AMQPURL, cfg.AMQPQueue, log)
		if err != nil {
			log.Fatal("failed to connect to rabbitmq", "error", err)
		}
		defer queue.Close()
		services.Queue = queue
		go func() {
			if err := queue.Consume(ctx, codebases); err != nil {
				log.Error("analysis consumer stopped", "error", err)
			}
		}()
	}

	if cfg.SchedulerEnabled {
		if err := scheduler.Start(cfg.AnalysisSchedule); err != nil {
			log.Fatal("failed to start analysis scheduler", "error", err)
		}
		defer scheduler.Stop()
	}

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(services, api.HealthInfo{
		Version:  version,
		Store:    db.Name(),
		Provider: provider.Name(),
	}, cfg.MaxUploadBytes, log)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     api.NewRouter(apiHandler),
		ReadTimeout: 15 * time.Second,
		// a plan request may wait on several generation calls
		WriteTimeout: 3*cfg.LLMTimeout*time.Duration(cfg.LLMMaxAttempts) + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", serverAddr, "store", db.Name(), "provider", provider.Name(), "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not listen", "addr", serverAddr, "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	log.Info("server exiting gracefully")
}
