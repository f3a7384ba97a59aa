package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryLedger is an in-memory Ledger honoring the same contract as the
// Postgres procedures: reference-id dedup, subscription-pool-first auto
// precedence, and clawback-by-reference reversing at most the original
// grant. Intended for tests and local development.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]*Balance
	grants   map[string]grant    // refID -> original grant split
	applied  map[string]struct{} // refIDs already applied (grants and clawbacks)
}

type grant struct {
	userID       uuid.UUID
	subscription int64
	purchased    int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[uuid.UUID]*Balance),
		grants:   make(map[string]grant),
		applied:  make(map[string]struct{}),
	}
}

func (m *MemoryLedger) balance(userID uuid.UUID) *Balance {
	b, ok := m.balances[userID]
	if !ok {
		b = &Balance{}
		m.balances[userID] = b
	}
	return b
}

func (m *MemoryLedger) AddSubscriptionCredits(_ context.Context, userID uuid.UUID, amount int64, refID, _ string) error {
	return m.add(userID, PoolSubscription, amount, refID)
}

func (m *MemoryLedger) AddPurchasedCredits(_ context.Context, userID uuid.UUID, amount int64, refID, _ string) error {
	return m.add(userID, PoolPurchased, amount, refID)
}

func (m *MemoryLedger) add(userID uuid.UUID, pool Pool, amount int64, refID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if refID == "" {
		return ErrEmptyRefID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Same reference twice is a no-op, matching the unique constraint.
	if _, done := m.applied[refID]; done {
		return nil
	}
	m.applied[refID] = struct{}{}

	b := m.balance(userID)
	g := grant{userID: userID}
	if pool == PoolSubscription {
		b.SubscriptionCredits += amount
		g.subscription = amount
	} else {
		b.PurchasedCredits += amount
		g.purchased = amount
	}
	m.grants[refID] = g
	return nil
}

func (m *MemoryLedger) ClawbackCredits(_ context.Context, userID uuid.UUID, amount int64, _, refID string, pool Pool) (ClawbackResult, error) {
	if amount <= 0 {
		return ClawbackResult{}, ErrInvalidAmount
	}
	if refID == "" {
		return ClawbackResult{}, ErrEmptyRefID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.balance(userID)

	if _, done := m.applied[refID]; done {
		return ClawbackResult{
			Success:                true,
			NewSubscriptionBalance: b.SubscriptionCredits,
			NewPurchasedBalance:    b.PurchasedCredits,
		}, nil
	}
	m.applied[refID] = struct{}{}

	var fromSub, fromPur int64
	switch pool {
	case PoolSubscription:
		fromSub = min(amount, b.SubscriptionCredits)
	case PoolPurchased:
		fromPur = min(amount, b.PurchasedCredits)
	case PoolAuto:
		// Subscription pool first, then purchased.
		fromSub = min(amount, b.SubscriptionCredits)
		fromPur = min(amount-fromSub, b.PurchasedCredits)
	default:
		return ClawbackResult{}, ErrInvalidPool
	}

	b.SubscriptionCredits -= fromSub
	b.PurchasedCredits -= fromPur

	return ClawbackResult{
		Success:                true,
		CreditsClawedBack:      fromSub + fromPur,
		SubscriptionClawed:     fromSub,
		PurchasedClawed:        fromPur,
		NewSubscriptionBalance: b.SubscriptionCredits,
		NewPurchasedBalance:    b.PurchasedCredits,
	}, nil
}

func (m *MemoryLedger) ClawbackFromTransaction(_ context.Context, userID uuid.UUID, originalRefID, _ string) (ClawbackResult, error) {
	if originalRefID == "" {
		return ClawbackResult{}, ErrEmptyRefID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grants[originalRefID]
	if !ok || g.userID != userID {
		return ClawbackResult{
			Success:      false,
			ErrorMessage: errTransactionNotFound,
		}, ErrTransactionNotFound
	}

	reverseRef := "reverse_" + originalRefID
	b := m.balance(userID)

	if _, done := m.applied[reverseRef]; done {
		return ClawbackResult{
			Success:                true,
			NewSubscriptionBalance: b.SubscriptionCredits,
			NewPurchasedBalance:    b.PurchasedCredits,
		}, nil
	}
	m.applied[reverseRef] = struct{}{}

	// Reverse exactly the original split, never more than remains.
	fromSub := min(g.subscription, b.SubscriptionCredits)
	fromPur := min(g.purchased, b.PurchasedCredits)
	b.SubscriptionCredits -= fromSub
	b.PurchasedCredits -= fromPur

	return ClawbackResult{
		Success:                true,
		CreditsClawedBack:      fromSub + fromPur,
		SubscriptionClawed:     fromSub,
		PurchasedClawed:        fromPur,
		NewSubscriptionBalance: b.SubscriptionCredits,
		NewPurchasedBalance:    b.PurchasedCredits,
	}, nil
}

func (m *MemoryLedger) Balance(_ context.Context, userID uuid.UUID) (Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.balance(userID), nil
}

// SetBalance seeds pool balances for a user. Test helper.
func (m *MemoryLedger) SetBalance(userID uuid.UUID, subscription, purchased int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = &Balance{SubscriptionCredits: subscription, PurchasedCredits: purchased}
}

var _ Ledger = (*MemoryLedger)(nil)
