package commands

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"whisper.bot/config"
	"whisper.bot/internal/store"
)

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Backend, error) {
	slots := cfg.SavedMessages.Enabled

	switch cfg.Store.Type {
	case config.StoreRedis:
		st, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}, slots)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return st, nil
	case config.StoreMemory:
		logger.Warn().Msg("memory store selected, whispers will not survive a restart")
		return store.NewMemoryStore(slots), nil
	default:
		return store.OpenFileStore(ctx, store.FileOptions{
			Path:          cfg.Store.Path,
			SavedMessages: slots,
			Logger:        logger,
		})
	}
}
