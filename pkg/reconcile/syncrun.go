package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunType identifies which job produced a sync run.
type RunType string

const (
	RunExpirationCheck    RunType = "expiration_check"
	RunFullReconciliation RunType = "full_reconciliation"
	RunWebhookRecovery    RunType = "webhook_recovery"
)

// RunStatus is the lifecycle state of a sync run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SyncRun is the audit record of one job execution.
type SyncRun struct {
	ID            uuid.UUID
	Type          RunType
	Status        RunStatus
	Processed     int
	Discrepancies int
	Fixed         int
	Failed        int
	// Notes describes each discrepancy the run found, one entry per
	// discrepancy, persisted as the run's metadata.
	Notes       []string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Outcome is what a finished job reports back onto its run.
type Outcome struct {
	Processed     int
	Discrepancies int
	Fixed         int
	Failed        int
	Notes         []string
	Err           error
}

// note records one discrepancy with a human-readable description.
func (o *Outcome) note(format string, args ...any) {
	o.Discrepancies++
	o.Notes = append(o.Notes, fmt.Sprintf(format, args...))
}

// ErrRunNotFound indicates no sync run with the given id.
var ErrRunNotFound = errors.New("sync run not found")

// RunStore persists sync runs. Create happens before the job does any
// work, so an aborted process leaves a visible running row behind;
// Complete is called exactly once per run.
type RunStore interface {
	Create(ctx context.Context, runType RunType) (*SyncRun, error)
	Complete(ctx context.Context, id uuid.UUID, outcome Outcome) error
	// List returns the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]*SyncRun, error)
}

// PGRunStore persists sync runs in the sync_runs table.
type PGRunStore struct {
	db *pgxpool.Pool
}

// NewPGRunStore returns a store backed by the given pool.
func NewPGRunStore(db *pgxpool.Pool) *PGRunStore {
	return &PGRunStore{db: db}
}

func (s *PGRunStore) Create(ctx context.Context, runType RunType) (*SyncRun, error) {
	run := &SyncRun{
		ID:     uuid.New(),
		Type:   runType,
		Status: RunRunning,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO sync_runs (id, run_type, status, started_at)
		VALUES ($1, $2, $3, now())
		RETURNING started_at`,
		run.ID, string(runType), string(RunRunning)).Scan(&run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create sync run: %w", err)
	}
	return run, nil
}

func (s *PGRunStore) Complete(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	status := RunCompleted
	errMsg := ""
	if outcome.Err != nil {
		status = RunFailed
		errMsg = outcome.Err.Error()
	}
	notes := outcome.Notes
	if notes == nil {
		notes = []string{}
	}
	metadata, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("marshal sync run metadata: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE sync_runs
		SET status = $2, processed = $3, discrepancies = $4, fixed = $5, failed = $6,
		    error = NULLIF($7, ''), metadata = $8, completed_at = now()
		WHERE id = $1 AND status = 'running'`,
		id, string(status), outcome.Processed, outcome.Discrepancies, outcome.Fixed, outcome.Failed, errMsg, metadata)
	if err != nil {
		return fmt.Errorf("complete sync run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *PGRunStore) List(ctx context.Context, limit int) ([]*SyncRun, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, run_type, status, processed, discrepancies, fixed, failed, COALESCE(error, ''), metadata, started_at, completed_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var out []*SyncRun
	for rows.Next() {
		var run SyncRun
		var runType, status string
		var metadata []byte
		if err := rows.Scan(&run.ID, &runType, &status, &run.Processed, &run.Discrepancies,
			&run.Fixed, &run.Failed, &run.Error, &metadata, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &run.Notes); err != nil {
				return nil, fmt.Errorf("unmarshal sync run metadata: %w", err)
			}
		}
		run.Type = RunType(runType)
		run.Status = RunStatus(status)
		out = append(out, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync runs: %w", err)
	}
	return out, nil
}

// MemoryRunStore is an in-memory RunStore used in tests.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*SyncRun
}

// NewMemoryRunStore returns an empty in-memory store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[uuid.UUID]*SyncRun)}
}

func (s *MemoryRunStore) Create(_ context.Context, runType RunType) (*SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := &SyncRun{
		ID:        uuid.New(),
		Type:      runType,
		Status:    RunRunning,
		StartedAt: time.Now(),
	}
	s.runs[run.ID] = run
	cp := *run
	return &cp, nil
}

func (s *MemoryRunStore) Complete(_ context.Context, id uuid.UUID, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.Status != RunRunning {
		return ErrRunNotFound
	}
	run.Status = RunCompleted
	if outcome.Err != nil {
		run.Status = RunFailed
		run.Error = outcome.Err.Error()
	}
	run.Processed = outcome.Processed
	run.Discrepancies = outcome.Discrepancies
	run.Fixed = outcome.Fixed
	run.Failed = outcome.Failed
	run.Notes = append([]string(nil), outcome.Notes...)
	now := time.Now()
	run.CompletedAt = &now
	return nil
}

func (s *MemoryRunStore) List(_ context.Context, limit int) ([]*SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SyncRun, 0, len(s.runs))
	for _, run := range s.runs {
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
