package store

import (
	"context"
	"fmt"

	"gwi.com/onboarding-backend/internal/config"
	"gwi.com/onboarding-backend/internal/platform/logger"
)

// Open builds the ContentStore selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.Config, log *logger.Logger) (ContentStore, error) {
	switch cfg.StoreBackend {
	case config.StoreFile:
		return NewFileStore(cfg.DataDir, log)
	case config.StoreSQLite:
		return NewSQLiteStore(cfg.DatabaseURL)
	case config.StoreS3:
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
