package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a lock could not be taken within the wait budget.
var ErrLockTimeout = errors.New("lock wait timed out")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a Locker shared by every instance talking to the same Redis.
// Each lock carries a random token so only its holder can release it, and a TTL so a crashed
// holder cannot wedge the ticket.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// RedisOptions tunes a RedisLocker.
type RedisOptions struct {
	Prefix        string
	TTL           time.Duration
	WaitTimeout   time.Duration
	RetryInterval time.Duration
}

// NewRedisLocker builds a Redis-backed Locker.
func NewRedisLocker(client *redis.Client, opts RedisOptions) *RedisLocker {
	if opts.Prefix == "" {
		opts.Prefix = "support-desk:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Second
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 3 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 25 * time.Millisecond
	}
	return &RedisLocker{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		wait:   opts.WaitTimeout,
		retry:  opts.RetryInterval,
	}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, redisKey, token, l.ttl).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, errors.Wrapf(err, "acquire lock %s", key)
		}
		if ok {
			return l.releaser(redisKey, token), nil
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrapf(ErrLockTimeout, "acquire lock %s", key)
		}
	}
}

func (l *RedisLocker) releaser(redisKey, token string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			// Detached from the request context so a cancelled request still frees the lock.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
		})
	}
}
