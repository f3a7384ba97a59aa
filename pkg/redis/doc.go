// Package redis provides a retrying connector for the Redis instance
// backing the webhook event dedup guard.
//
// Redis here is a best-effort fast path: the ledger's reference-id
// constraints remain the source of idempotency truth, so a cold or
// unavailable Redis degrades to slightly more database work, never to
// double-applied credits.
package redis
