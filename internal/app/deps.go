package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reelmatch/backend/internal/admin"
	"github.com/reelmatch/backend/internal/catalog"
	"github.com/reelmatch/backend/internal/config"
	"github.com/reelmatch/backend/internal/coordinator"
	"github.com/reelmatch/backend/internal/db"
	"github.com/reelmatch/backend/internal/eventbus"
	"github.com/reelmatch/backend/internal/handlers"
	"github.com/reelmatch/backend/internal/middleware"
	"github.com/reelmatch/backend/internal/repositories"
	"github.com/reelmatch/backend/internal/storage"
)

// buildDependencies wires the concrete implementations behind the HTTP
// layer's interfaces.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, error) {
	bus := eventbus.New()

	coord := coordinator.New(
		repositories.NewPostgresSessionRepository(pool),
		repositories.NewPostgresParticipantRepository(pool),
		repositories.NewPostgresVoteRepository(pool),
		repositories.NewPostgresFinalVoteRepository(pool),
		bus,
	)
	coord.Logger = logger

	if cfg.MediaServerURL != "" {
		client := catalog.NewClient(cfg.MediaServerURL, cfg.MediaServerKey, cfg.CatalogTimeout)
		coord.Catalog = catalog.NewCachingProvider(client, cfg.CatalogCacheTTL)
	}

	adminSvc := &admin.Service{
		Settings: repositories.NewPostgresSettingsRepository(pool),
	}
	if cfg.ObjectStore.Bucket != "" {
		store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, fmt.Errorf("init object storage: %w", err)
		}
		adminSvc.Storage = store
	}

	return handlers.Dependencies{
		Coordinator: coord,
		Stream:      bus,
		Admin:       adminSvc,
		Limiter:     middleware.NewKeyRateLimiter(10, time.Minute, 5, 10*time.Minute),
	}, nil
}
