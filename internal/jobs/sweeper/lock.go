package sweeper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

// Locker keeps two instances from sweeping on the same tick. Sweeps are safe
// to overlap, so a lock failure only costs duplicate work.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
}

func NewRedisLocker(log *logger.Logger, rdb goredis.UniversalClient, prefix string) Locker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "genflow:sweep:"
	}
	return &redisLocker{log: log.With("component", "SweepLock"), rdb: rdb, prefix: prefix}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l == nil || l.rdb == nil {
		return nil, false, fmt.Errorf("redis locker not initialized")
	}
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", full, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil && err != goredis.Nil {
			l.log.Warn("release sweep lock failed", "key", full, "error", err)
		}
	}
	return release, true, nil
}

type localLocker struct{}

// NewLocalLocker always grants the lock; for single-instance deployments.
func NewLocalLocker() Locker { return localLocker{} }

func (localLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
