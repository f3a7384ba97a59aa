package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/pagelift/billing/pkg/statemachine"
)

// DisputeState tracks a chargeback through its processor lifecycle.
type DisputeState string

const (
	DisputeCreated DisputeState = "created"
	DisputeUpdated DisputeState = "updated"
	DisputeWon     DisputeState = "won"
	DisputeClosed  DisputeState = "closed"
)

// DisputeRecord is the local audit row for one processor dispute.
type DisputeRecord struct {
	DisputeID   string
	UserID      uuid.UUID
	ChargeID    string
	AmountCents int64
	CreditsHeld int64
	State       DisputeState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// disputeMachine validates dispute state transitions. Self-transitions
// are allowed implicitly, so a redelivered event is a no-op rather than
// an error; won and closed are terminal.
func disputeMachine() *statemachine.Machine[DisputeState] {
	m := statemachine.New[DisputeState]()
	m.Allow(DisputeCreated, DisputeUpdated, DisputeWon, DisputeClosed)
	m.Allow(DisputeUpdated, DisputeWon, DisputeClosed)
	return m
}
