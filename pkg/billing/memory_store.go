package billing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryDisputeStore is an in-memory DisputeStore used in tests.
type MemoryDisputeStore struct {
	mu   sync.RWMutex
	recs map[string]*DisputeRecord
}

// NewMemoryDisputeStore returns an empty in-memory store.
func NewMemoryDisputeStore() *MemoryDisputeStore {
	return &MemoryDisputeStore{recs: make(map[string]*DisputeRecord)}
}

func (s *MemoryDisputeStore) Upsert(_ context.Context, rec *DisputeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	now := time.Now()
	if existing, ok := s.recs[rec.DisputeID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.recs[rec.DisputeID] = &cp
	return nil
}

func (s *MemoryDisputeStore) Get(_ context.Context, disputeID string) (*DisputeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[disputeID]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryDisputeStore) SetState(_ context.Context, disputeID string, state DisputeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[disputeID]
	if !ok {
		return ErrDisputeNotFound
	}
	rec.State = state
	rec.UpdatedAt = time.Now()
	return nil
}

// MemoryWebhookEventStore is an in-memory WebhookEventStore used in
// tests.
type MemoryWebhookEventStore struct {
	mu     sync.RWMutex
	events map[string]*WebhookEvent
}

// NewMemoryWebhookEventStore returns an empty in-memory store.
func NewMemoryWebhookEventStore() *MemoryWebhookEventStore {
	return &MemoryWebhookEventStore{events: make(map[string]*WebhookEvent)}
}

func (s *MemoryWebhookEventStore) MarkCompleted(_ context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	ev, ok := s.events[eventID]
	if !ok {
		ev = &WebhookEvent{EventID: eventID, EventType: eventType, CreatedAt: now}
		s.events[eventID] = ev
	}
	ev.Status = WebhookCompleted
	ev.LastError = ""
	ev.UpdatedAt = now
	return nil
}

func (s *MemoryWebhookEventStore) RecordFailure(_ context.Context, eventID, eventType string, recoverable bool, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	ev, ok := s.events[eventID]
	if !ok {
		ev = &WebhookEvent{EventID: eventID, EventType: eventType, CreatedAt: now}
		s.events[eventID] = ev
	}
	if ev.Status == WebhookCompleted {
		return nil
	}
	ev.Status = WebhookFailed
	ev.Recoverable = recoverable
	if cause != nil {
		ev.LastError = cause.Error()
	}
	ev.UpdatedAt = now
	return nil
}

func (s *MemoryWebhookEventStore) ListRecoverable(_ context.Context, maxRetries, limit int) ([]*WebhookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*WebhookEvent
	for _, ev := range s.events {
		if ev.Status == WebhookFailed && ev.Recoverable && ev.RetryCount < maxRetries {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryWebhookEventStore) IncrementRetry(_ context.Context, eventID, lastError string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return 0, ErrWebhookEventNotFound
	}
	ev.RetryCount++
	ev.LastError = lastError
	now := time.Now()
	ev.LastRetryAt = &now
	ev.UpdatedAt = now
	return ev.RetryCount, nil
}

func (s *MemoryWebhookEventStore) MarkUnrecoverable(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return ErrWebhookEventNotFound
	}
	ev.Status = WebhookUnrecoverable
	ev.UpdatedAt = time.Now()
	return nil
}

// Get returns the tracked event, for assertions in tests.
func (s *MemoryWebhookEventStore) Get(eventID string) (*WebhookEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[eventID]
	if !ok {
		return nil, false
	}
	cp := *ev
	return &cp, true
}
