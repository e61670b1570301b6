package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/objstore"
	"github.com/platebook/importer-backend/internal/services"
)

// Clients holds external connections. Store and Placeholder are optional:
// without MEDIA_GCS_BUCKET_NAME uploads are skipped, without PLACEHOLDER_FONT
// notes with no image simply get none.
type Clients struct {
	Redis       *goredis.Client
	Store       objstore.Store
	Placeholder services.PlaceholderService
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
	}

	var store objstore.Store
	if strings.TrimSpace(os.Getenv("MEDIA_GCS_BUCKET_NAME")) != "" {
		s, err := objstore.NewBucketStore(context.Background(), log)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init object storage: %w", err)
		}
		store = s
	} else {
		log.Warn("MEDIA_GCS_BUCKET_NAME not set, uploads disabled")
	}

	var placeholder services.PlaceholderService
	if strings.TrimSpace(os.Getenv("PLACEHOLDER_FONT")) != "" {
		p, err := services.NewPlaceholderService(log)
		if err != nil {
			log.Warn("Placeholder service unavailable", "error", err)
		} else {
			placeholder = p
		}
	}

	return Clients{Redis: rdb, Store: store, Placeholder: placeholder}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
