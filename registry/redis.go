// Package registry keeps server side session state in Redis: the set of
// live refresh token ids and the single use OAuth state values.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	refreshPrefix = "refresh:"
	statePrefix   = "oauth_state:"
)

// consumeScript deletes KEYS[1] only when it holds ARGV[1]. Returns 1 when
// the key was deleted.
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Options configures the Redis connection
type Options struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// KeyPrefix namespaces every key, e.g. "folio:".
	KeyPrefix string
}

// Redis implements the session registry and the OAuth state store
type Redis struct {
	client *redis.Client
	prefix string
}

// Connect parses opts.URL, applies timeouts and pings the server
func Connect(ctx context.Context, opts Options) (*Redis, error) {
	ropts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if opts.Password != "" {
		ropts.Password = opts.Password
	}
	if opts.DB > 0 {
		ropts.DB = opts.DB
	}
	if opts.PoolSize > 0 {
		ropts.PoolSize = opts.PoolSize
	}
	if opts.MaxRetries > 0 {
		ropts.MaxRetries = opts.MaxRetries
	}

	ropts.DialTimeout = durationOr(opts.DialTimeout, 5*time.Second)
	ropts.ReadTimeout = durationOr(opts.ReadTimeout, 3*time.Second)
	ropts.WriteTimeout = durationOr(opts.WriteTimeout, 3*time.Second)

	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return New(client, opts.KeyPrefix), nil
}

// New wraps an existing client
func New(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, prefix: keyPrefix}
}

// Register records jti as a live refresh token for uid
func (r *Redis) Register(ctx context.Context, jti, uid string, ttl time.Duration) error {
	if jti == "" || uid == "" {
		return errors.New("registry: jti and uid are required")
	}
	if err := r.client.Set(ctx, r.refreshKey(jti), uid, ttl).Err(); err != nil {
		return fmt.Errorf("registry register failed: %w", err)
	}
	return nil
}

// Consume atomically deletes the jti when it maps to uid
func (r *Redis) Consume(ctx context.Context, jti, uid string) (bool, error) {
	n, err := consumeScript.Run(ctx, r.client, []string{r.refreshKey(jti)}, uid).Int()
	if err != nil {
		return false, fmt.Errorf("registry consume failed: %w", err)
	}
	return n == 1, nil
}

// Revoke deletes the jti. A missing key is not an error.
func (r *Redis) Revoke(ctx context.Context, jti string) error {
	if err := r.client.Del(ctx, r.refreshKey(jti)).Err(); err != nil {
		return fmt.Errorf("registry revoke failed: %w", err)
	}
	return nil
}

// Lookup returns the uid registered for jti
func (r *Redis) Lookup(ctx context.Context, jti string) (string, bool, error) {
	uid, err := r.client.Get(ctx, r.refreshKey(jti)).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("registry lookup failed: %w", err)
	}
	return uid, true, nil
}

// SaveState stores a pending OAuth state. Reusing a live state fails.
func (r *Redis) SaveState(ctx context.Context, provider, state string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, r.stateKey(provider, state), "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("registry save state failed: %w", err)
	}
	if !ok {
		return errors.New("registry: oauth state already exists")
	}
	return nil
}

// ConsumeState deletes the state and reports whether it was present
func (r *Redis) ConsumeState(ctx context.Context, provider, state string) (bool, error) {
	_, err := r.client.GetDel(ctx, r.stateKey(provider, state)).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("registry consume state failed: %w", err)
	}
	return true, nil
}

// Ping checks connectivity
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) refreshKey(jti string) string {
	return r.prefix + refreshPrefix + jti
}

func (r *Redis) stateKey(provider, state string) string {
	return r.prefix + statePrefix + provider + ":" + state
}

func durationOr(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
