package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// unlockLua deletes a lock key only when its value still matches the
// holder's token, so a holder whose lock expired cannot release a
// successor's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SETNX plus a TTL. The
// daily reset runs under one of these locks so only a single instance
// rebases the ledger.
type LockManager struct {
	rdb    *redis.Client
	unlock *redis.Script
}

// NewLockManager loads the release script onto the shared client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:    c.Underlying(),
		unlock: redis.NewScript(unlockLua),
	}
}

// Acquire takes the distributed lock named key for at most ttl. The
// returned release function is idempotent. When another holder owns the
// lock, Acquire returns domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	name := "lock:" + key

	ok, err := lm.rdb.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// The caller's context may already be gone by the time the
			// critical section ends.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = lm.unlock.Run(rctx, lm.rdb, []string{name}, token).Err()
		})
	}
	return release, nil
}

var _ domain.LockManager = (*LockManager)(nil)
