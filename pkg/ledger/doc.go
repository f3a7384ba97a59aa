// Package ledger is the client for the transactional credit-ledger
// procedures in Postgres.
//
// Balances live in two pools per user (subscription-granted and
// purchased) and every mutation is keyed by a reference id tying it to
// the external event that caused it. The procedures themselves own
// atomicity and idempotency: re-applying a mutation under the same
// reference id is a no-op, and clawing back by reference reverses at
// most what the reference originally granted. Application code must
// never read-modify-write balance columns directly.
package ledger
