// Package bootstrap connects the stores a Huddle process talks to.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"strings"

	"huddle/internal/cache"
	"huddle/internal/config"
	"huddle/internal/database"
	"huddle/internal/models"
	"huddle/internal/repository"
	"huddle/internal/seed"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedIfEmpty fills an empty development database with demo data.
	SeedIfEmpty bool
	Seed        seed.Options
}

// Runtime is the set of connected stores.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client // nil when Redis is unavailable
	Mongo *mongo.Client

	// PrivateChats is the Mongo private chat store, or nil for the SQL one.
	PrivateChats repository.PrivateChatRepository
}

// InitRuntime connects to the SQL database, Redis and, when configured, the
// Mongo private chat store. It optionally seeds demo data.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	rt := &Runtime{DB: db, Redis: cache.GetClient()}

	if cfg.UsesMongoForPrivateChats() {
		client, mdb, err := database.ConnectMongo(ctx, cfg)
		if err != nil {
			rt.Close(context.Background())
			return nil, fmt.Errorf("mongo connection failed: %w", err)
		}
		rt.Mongo = client
		repo, err := repository.NewMongoPrivateChatRepository(ctx, mdb)
		if err != nil {
			rt.Close(context.Background())
			return nil, fmt.Errorf("mongo private chat store: %w", err)
		}
		rt.PrivateChats = repo
	}

	if opts.SeedIfEmpty {
		if err := seedIfEmpty(ctx, cfg, rt, opts.Seed); err != nil {
			rt.Close(context.Background())
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return rt, nil
}

func seedIfEmpty(ctx context.Context, cfg *config.Config, rt *Runtime, opts seed.Options) error {
	if !strings.EqualFold(cfg.Env, "development") {
		return nil
	}

	var count int64
	if err := rt.DB.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	s, err := seed.NewSeeder(rt.DB, rt.PrivateChats, opts)
	if err != nil {
		return err
	}
	res, err := s.Run(ctx)
	if err != nil {
		return err
	}

	log.Printf("development demo data seeded: %d users, %d events, %d private chats",
		len(res.Users), len(res.Events), res.PrivateChats)
	return nil
}

// Close releases the Mongo and Redis clients. The SQL pool belongs to the
// caller.
func (r *Runtime) Close(ctx context.Context) {
	if r.Mongo != nil {
		_ = r.Mongo.Disconnect(ctx)
	}
	if r.Redis != nil {
		_ = r.Redis.Close()
		cache.SetClient(nil)
	}
}
