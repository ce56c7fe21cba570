package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/store"
)

const defaultRetryInterval = 25 * time.Millisecond

// releaseScript deletes the key only while it still carries our token, so an
// expired lease cannot release a lock re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out only while the key carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a lease lock shared by every process using the same Redis.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
}

func NewRedisLocker(addr string, password string, db int, ttl time.Duration) *RedisLocker {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	return &RedisLocker{client: client, ttl: ttl, retryInterval: defaultRetryInterval}
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// Lock polls SET NX PX until it wins, ctx ends, or one lease TTL has passed.
// Giving up after a TTL is reported as store.ErrConflict. A held lease is
// extended in the background until the returned Unlock runs.
func (l *RedisLocker) Lock(ctx context.Context, kind domain.LinkKind, ownerID int64) (Unlock, error) {
	k := key(kind, ownerID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", k, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: owner %d of %s is busy", store.ErrConflict, ownerID, kind)
		}

		timer := time.NewTimer(l.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{k}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				log.Warn().Err(err).Str("key", k).Msg("release owner lock failed; lease will expire")
			}
		})
	}, nil
}

// renew extends the lease every third of its TTL until stop is closed or
// the lease turns out to belong to someone else.
func (l *RedisLocker) renew(k string, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
		extended, err := extendScript.Run(ctx, l.client, []string{k}, token, l.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("key", k).Msg("extend owner lock failed")
			continue
		}
		if extended == 0 {
			log.Warn().Str("key", k).Msg("owner lock lease lost")
			return
		}
	}
}
