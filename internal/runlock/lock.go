package runlock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/studiosync/internal/clock"
	"github.com/smallbiznis/studiosync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// KeyImportRun guards the whole pipeline so two replicas never import at once.
const KeyImportRun = "studiosync:run"

var (
	ErrEmptyKey   = errors.New("lock key is empty")
	ErrInvalidTTL = errors.New("lock ttl must be positive")
)

// Locker hands out expiring, token-checked locks. TryLock returns ok=false
// without error when someone else holds key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

var Module = fx.Module("runlock",
	fx.Provide(Provide),
)

// Provide uses Redis when REDIS_ADDR is set, a process-local lock otherwise.
func Provide(lc fx.Lifecycle, cfg config.Config, c clock.Clock, log *zap.Logger) Locker {
	if !cfg.Redis.Enabled() {
		log.Named("runlock").Info("runlock.local", zap.String("reason", "redis_not_configured"))
		return NewLocalLocker(c)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Named("runlock").Info("runlock.redis", zap.String("addr", cfg.Redis.Addr))
	return NewRedisLocker(client)
}

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type RedisLocker struct {
	client redis.UniversalClient
	script *redis.Script
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes key only while it still holds token, so an expired lock
// taken over by another replica is left alone.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

type localLease struct {
	token   string
	expires time.Time
}

// LocalLocker serializes runs inside one process.
type LocalLocker struct {
	mu     sync.Mutex
	clock  clock.Clock
	leases map[string]localLease
}

func NewLocalLocker(c clock.Clock) *LocalLocker {
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &LocalLocker{clock: c, leases: make(map[string]localLease)}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if lease, ok := l.leases[key]; ok && now.Before(lease.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.leases[key] = localLease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.leases[key]; ok && lease.token == token {
		delete(l.leases, key)
	}
	return nil
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
