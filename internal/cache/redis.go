package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fiftybrains/delivery/internal/config"
	"fiftybrains/delivery/internal/ids"
)

var ErrLockHeld = errors.New("lock is held by another request")

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SubmitLocks serializes submissions per application across API replicas.
// The ledger still enforces the single-pending rule; the lock only keeps
// concurrent submits from racing through storage checks.
type SubmitLocks struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSubmitLocks(client *redis.Client, ttl time.Duration) *SubmitLocks {
	return &SubmitLocks{client: client, ttl: ttl}
}

// Acquire takes the lock for applicationID and returns its release func.
func (l *SubmitLocks) Acquire(ctx context.Context, applicationID string) (func(), error) {
	key := "submit:" + applicationID
	token := ids.New()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submit lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}

// Nonces remembers signed request nonces so a signature cannot be replayed
// within its validity window.
type Nonces struct {
	client *redis.Client
}

func NewNonces(client *redis.Client) *Nonces {
	return &Nonces{client: client}
}

// Claim returns false when the nonce was already seen for this caller.
func (n *Nonces) Claim(ctx context.Context, callerID, nonce string, ttl time.Duration) (bool, error) {
	ok, err := n.client.SetNX(ctx, fmt.Sprintf("sig:%s:%s", callerID, nonce), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim nonce: %w", err)
	}
	return ok, nil
}
