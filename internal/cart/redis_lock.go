package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultLockTTL     = 30 * time.Second
	lockPollInterval   = 25 * time.Millisecond
	maxLockPoll        = 250 * time.Millisecond
	lockReleaseTimeout = 2 * time.Second
)

// redisLockStore is the part of the redis client the lock needs.
type redisLockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	CartLockKey(owner string) string
}

// RedisLocker shares per-owner cart locks across instances with SETNX + TTL.
// The TTL bounds how long a crashed holder can block the owner.
type RedisLocker struct {
	client redisLockStore
	ttl    time.Duration
	wait   time.Duration
	logg   *logger.Logger
}

func NewRedisLocker(client redisLockStore, ttl, wait time.Duration, logg *logger.Logger) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for cart lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait, logg: logg}, nil
}

// Lock polls SETNX until it wins, ctx is done, or the wait elapses.
func (l *RedisLocker) Lock(ctx context.Context, owner string) (func(), error) {
	key := l.client.CartLockKey(owner)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	backoff := lockPollInterval

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cart lock")
		}
		if ok {
			return l.unlockFunc(ctx, key, token), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errCartBusy()
		}
		sleep := backoff
		if sleep > remaining {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if backoff *= 2; backoff > maxLockPoll {
			backoff = maxLockPoll
		}
	}
}

func (l *RedisLocker) unlockFunc(ctx context.Context, key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
		defer cancel()
		if _, err := l.client.CompareAndDelete(releaseCtx, key, token); err != nil {
			l.logg.Warn(l.logg.WithField(ctx, "lock_key", key), "cart lock release failed, waiting for ttl")
		}
	}
}
