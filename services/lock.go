package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TenantLocker guards a tenant's poll cycle. Acquire reports false when
// another cycle for the tenant holds the lock.
type TenantLocker interface {
	Acquire(ctx context.Context, tenantID uint, ttl time.Duration) (release func(), acquired bool, err error)
}

// LocalLocker is an in-process TenantLocker for single-replica deploys.
type LocalLocker struct {
	mu   sync.Mutex
	held map[uint]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[uint]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, tenantID uint, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[tenantID]; busy {
		return nil, false, nil
	}
	l.held[tenantID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, tenantID)
			l.mu.Unlock()
		})
	}, true, nil
}

// releaseScript deletes the lock only if it still carries our token, so
// a cycle that overran its TTL cannot free a lock someone else now holds.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a TenantLocker shared by every replica using the same Redis.
type RedisLocker struct {
	client *redis.Client
	prefix string
	log    *logrus.Entry
}

func NewRedisLocker(client *redis.Client, log *logrus.Entry) *RedisLocker {
	return &RedisLocker{client: client, prefix: "outreachly:poll-lock:", log: log}
}

func (l *RedisLocker) key(tenantID uint) string {
	return fmt.Sprintf("%s%d", l.prefix, tenantID)
}

func (l *RedisLocker) Acquire(ctx context.Context, tenantID uint, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	key := l.key(tenantID)

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire tenant lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		// The cycle's ctx may already be cancelled; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.log.WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"error":     err,
			}).Warn("Failed to release tenant lock")
		}
	}, true, nil
}
