// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"vision_backend/internal/config"
	"vision_backend/internal/feature/annotation/adapters/gormstore"
	"vision_backend/internal/feature/annotation/adapters/mongodb"
	"vision_backend/internal/feature/annotation/usecase"
	"vision_backend/internal/platform/cache"
	platformdb "vision_backend/internal/platform/db"
	platformmongo "vision_backend/internal/platform/mongo"
)

// NewAnnotationRepository creates the AnnotationRepository implementation.
// If MONGO_URI is configured, it returns the Mongo-backed document store;
// otherwise it falls back to the relational store. Either way the result is
// wrapped with the Redis cache decorator (a nil Redis client disables it).
// The returned cleanup releases the store connection.
func NewAnnotationRepository(ctx context.Context, cfg *config.Config, rdb *redis.Client) (usecase.AnnotationRepository, func(), error) {
	var (
		inner   usecase.AnnotationRepository
		cleanup func()
	)

	if cfg.MongoURI != "" {
		client, err := platformmongo.NewClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		inner = mongodb.NewAnnotationMongo(client.Database(cfg.MongoDB).Collection("annotations"))
		cleanup = func() { _ = client.Disconnect(context.Background()) }
	} else {
		db := platformdb.OpenDB(cfg.DBDriver, cfg.DBDSN)
		inner = gormstore.NewAnnotationGorm(db)
		cleanup = func() {}
	}

	return cache.NewCachingAnnotationRepository(rdb, cfg.CacheTTL, inner, "annotations"), cleanup, nil
}
