package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another replica holds the job lock.
var ErrLockHeld = errors.New("job lock held by another instance")

const unlockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`

// RedisLocker is a gocron.Locker that lets one replica at a time run a job.
// Locks expire after ttl so a crashed replica cannot block the sweep.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	token  func() string
}

// NewRedisLocker creates a locker storing keys under prefix.
func NewRedisLocker(client redis.Cmdable, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, token: uuid.NewString}
}

// NewRedisClient connects to the Redis URL, e.g. redis://localhost:6379/0.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Lock acquires key or fails with ErrLockHeld.
func (l *RedisLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	full := l.prefix + key
	token := l.token()

	ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", full, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &redisLock{client: l.client, key: full, token: token}, nil
}

type redisLock struct {
	client redis.Cmdable
	key    string
	token  string
}

// Unlock releases the lock only if it is still ours.
func (l *redisLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Err()
}

var _ gocron.Locker = (*RedisLocker)(nil)
