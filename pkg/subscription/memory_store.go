package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu   sync.Mutex
	subs map[string]*Subscription // keyed by provider sub id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Subscription)}
}

func (m *MemoryStore) Upsert(_ context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *sub
	now := time.Now().UTC()
	if existing, ok := m.subs[sub.ProviderSubID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.subs[sub.ProviderSubID] = &cp
	return nil
}

func (m *MemoryStore) GetByProviderID(_ context.Context, providerSubID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[providerSubID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (m *MemoryStore) MarkCanceled(_ context.Context, providerSubID string, canceledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[providerSubID]
	if !ok {
		return ErrNotFound
	}
	sub.Status = StatusCanceled
	sub.CanceledAt = &canceledAt
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) UpdatePeriod(_ context.Context, providerSubID string, start, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[providerSubID]
	if !ok {
		return ErrNotFound
	}
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) ListExpiredActive(_ context.Context, now time.Time, limit int) ([]*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Subscription
	for _, sub := range m.subs {
		if sub.Status == StatusActive && sub.IsExpired(now) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrentPeriodEnd.Before(out[j].CurrentPeriodEnd) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) reconcilable() []*Subscription {
	var out []*Subscription
	for _, sub := range m.subs {
		switch sub.Status {
		case StatusActive, StatusTrialing, StatusPastDue:
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderSubID < out[j].ProviderSubID })
	return out
}

func (m *MemoryStore) ListReconcilable(_ context.Context, offset, limit int) ([]*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.reconcilable()
	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (m *MemoryStore) CountReconcilable(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reconcilable()), nil
}

var _ Store = (*MemoryStore)(nil)

// MemoryProfileStore is an in-memory ProfileStore for tests.
type MemoryProfileStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*Profile
}

func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[uuid.UUID]*Profile)}
}

// Put seeds a profile. Test helper.
func (m *MemoryProfileStore) Put(p *Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	if cp.DisputeStatus == "" {
		cp.DisputeStatus = DisputeNone
	}
	if cp.Role == "" {
		cp.Role = RoleUser
	}
	m.profiles[p.UserID] = &cp
}

func (m *MemoryProfileStore) Get(_ context.Context, userID uuid.UUID) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryProfileStore) GetByCustomerID(_ context.Context, customerID string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.profiles {
		if p.StripeCustomerID != nil && *p.StripeCustomerID == customerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrProfileNotFound
}

func (m *MemoryProfileStore) UpdateSubscriptionState(_ context.Context, userID uuid.UUID, status *Status, tierKey *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		return ErrProfileNotFound
	}
	p.SubscriptionStatus = status
	p.SubscriptionTier = tierKey
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryProfileStore) SetDisputeStatus(_ context.Context, userID uuid.UUID, flag DisputeFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		return ErrProfileNotFound
	}
	p.DisputeStatus = flag
	p.UpdatedAt = time.Now().UTC()
	return nil
}

var _ ProfileStore = (*MemoryProfileStore)(nil)
