package ledger

import "errors"

var (
	// ErrTransactionNotFound means no grant exists under the reference id
	// a clawback tried to correlate against. Callers decide whether this
	// is fatal; a refund correlation miss is deliberately not.
	ErrTransactionNotFound = errors.New("no ledger transaction found for reference")

	ErrInvalidAmount = errors.New("ledger amount must be positive")
	ErrEmptyRefID    = errors.New("ledger reference id is required")
	ErrInvalidPool   = errors.New("invalid credit pool")
)
