package billing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupGuard short-circuits redelivered events before any handler
// runs. It is a fast-path optimization only: the ledger's reference-id
// dedup is the correctness boundary, so the guard is allowed to fail
// open when Redis is unavailable.
type DedupGuard interface {
	// Seen reports whether the event id was already processed.
	Seen(ctx context.Context, eventID string) (bool, error)
	// MarkSeen records the event id after successful processing.
	MarkSeen(ctx context.Context, eventID string) error
}

// RedisDedupGuard keeps processed event ids in Redis with a TTL long
// enough to cover the processor's redelivery window.
type RedisDedupGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisDedupGuard returns a guard on the given client. A zero ttl
// defaults to 72 hours, which covers Stripe's retry schedule.
func NewRedisDedupGuard(client redis.UniversalClient, ttl time.Duration) *RedisDedupGuard {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisDedupGuard{client: client, prefix: "billing:webhook:seen:", ttl: ttl}
}

func (g *RedisDedupGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := g.client.Exists(ctx, g.prefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *RedisDedupGuard) MarkSeen(ctx context.Context, eventID string) error {
	return g.client.Set(ctx, g.prefix+eventID, 1, g.ttl).Err()
}

// NopDedupGuard disables the fast path. Used in tests and in the cron
// binary, where the recovery job must be able to replay events the
// dispatcher already saw.
type NopDedupGuard struct{}

func (NopDedupGuard) Seen(context.Context, string) (bool, error) { return false, nil }
func (NopDedupGuard) MarkSeen(context.Context, string) error     { return nil }
