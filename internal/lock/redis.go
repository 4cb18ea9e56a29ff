package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"github.com/rs/zerolog/log"
)

const (
	redisKeyPrefix     = "photo-groups:cluster-lock:"
	redisRetryDelay    = 100 * time.Millisecond
	redisUnlockTimeout = 5 * time.Second
)

// unlockScript deletes the key only when it still holds our token, so an
// expired lock that was taken over by another run is never released by us.
var unlockScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the expiry of a key we still hold.
var refreshScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker serializes runs across processes with SET NX PX. While a lock is
// held its key is refreshed every ttl/3, so runs longer than ttl keep it.
type RedisLocker struct {
	client rueidis.Client
	ttl    time.Duration
}

// NewRedisLocker connects to Redis and returns a locker whose locks expire after ttl.
func NewRedisLocker(addr string, ttl time.Duration) (*RedisLocker, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisLocker{client: client, ttl: ttl}, nil
}

// Close shuts down the client.
func (l *RedisLocker) Close() {
	l.client.Close()
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, ownerID int64) (func(), error) {
	key := fmt.Sprintf("%s%d", redisKeyPrefix, ownerID)
	token := uuid.NewString()

	for {
		cmd := l.client.B().Set().Key(key).Value(token).Nx().Px(l.ttl).Build()
		err := l.client.Do(ctx, cmd).Error()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			// The deadline can fire inside Do, not only between attempts.
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		}
		if !rueidis.IsRedisNil(err) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}

		select {
		case <-time.After(redisRetryDelay):
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, ownerID, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			releaseCtx, cancel := context.WithTimeout(context.Background(), redisUnlockTimeout)
			defer cancel()
			if err := unlockScript.Exec(releaseCtx, l.client, []string{key}, []string{token}).Error(); err != nil {
				log.Warn().Err(err).Int64("owner_id", ownerID).Msg("Failed to release cluster lock")
			}
		})
	}, nil
}

// keepAlive extends the key until stop is closed. A lost key is logged and not retaken.
func (l *RedisLocker) keepAlive(key, token string, ownerID int64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := max(l.ttl/3, redisRetryDelay)
	ttlMillis := strconv.FormatInt(l.ttl.Milliseconds(), 10)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		held, err := refreshScript.Exec(ctx, l.client, []string{key}, []string{token, ttlMillis}).AsInt64()
		cancel()
		switch {
		case err != nil:
			log.Warn().Err(err).Int64("owner_id", ownerID).Msg("Failed to refresh cluster lock")
		case held == 0:
			log.Error().Int64("owner_id", ownerID).Msg("Cluster lock expired while held")
			return
		}
	}
}
