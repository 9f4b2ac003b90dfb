package redisrepo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redisx "github.com/kirinyoku/tix-checkout/internal/redis"
	"github.com/redis/go-redis/v9"
)

const luaReleaseIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// UserLocker is a per-user mutex shared by every instance via Redis.
// The lock expires after ttl so a crashed holder cannot wedge a user.
type UserLocker struct {
	rdb      *redis.Client
	ttl      time.Duration
	retry    time.Duration
	release  *redis.Script
	newToken func() string
	logger   *slog.Logger
}

func NewUserLocker(rdb *redis.Client, ttl, retry time.Duration, logger *slog.Logger) *UserLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserLocker{
		rdb:      rdb,
		ttl:      ttl,
		retry:    retry,
		release:  redis.NewScript(luaReleaseIfOwner),
		newToken: uuid.NewString,
		logger:   logger.With("component", "user_lock"),
	}
}

// Lock polls until the user's lock is free or ctx is done. The returned
// func releases the lock only if this caller still owns it.
func (l *UserLocker) Lock(ctx context.Context, userID int64) (func(), error) {
	const op = "redisrepo.UserLocker.Lock"

	key := redisx.KeyUserLock(userID)
	token := l.newToken()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			return func() { l.unlock(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w: %w", op, ErrLockNotAcquired, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

func (l *UserLocker) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := l.release.Run(ctx, l.rdb, []string{key}, token).Int()
	if err != nil {
		l.logger.Warn("user lock release failed", "key", key, "err", err)
		return
	}
	if n == 0 {
		l.logger.Warn("user lock expired before release", "key", key, "ttl", l.ttl)
	}
}
