package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/genflow-backend/internal/platform/flowengine"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
	"github.com/yungbote/genflow-backend/internal/realtime/bus"
)

type Clients struct {
	Engine flowengine.Client
	// Redis is nil when REDIS_ADDR is unset; the bus and sweep lock are then
	// disabled.
	Redis goredis.UniversalClient
	Bus   bus.Bus
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	engine, err := flowengine.NewClient(log, cfg.Engine)
	if err != nil {
		return Clients{}, fmt.Errorf("init flow engine client: %w", err)
	}

	var rdb goredis.UniversalClient
	var b bus.Bus
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, DialTimeout: 5 * time.Second})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return Clients{}, fmt.Errorf("redis ping: %w", err)
		}
		rdb = client
		b = bus.NewRedisBusWithClient(log, rdb, cfg.RedisChannel)
	} else {
		log.Warn("REDIS_ADDR not set; realtime events and sweep lock disabled")
	}

	return Clients{Engine: engine, Redis: rdb, Bus: b}, nil
}

func (c Clients) Close() {
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
