package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryJournal is an in-process journal used when no database is configured
// and in tests.
type MemoryJournal struct {
	mu      sync.Mutex
	records map[string]*Record
}

var _ TxJournal = (*MemoryJournal)(nil) // Compile-time interface check

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{records: make(map[string]*Record)}
}

// RecordSubmitted inserts a new journal row in SUBMITTED status.
func (j *MemoryJournal) RecordSubmitted(ctx context.Context, ref string, kind TxKind, txHash string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.records[ref]; ok {
		return fmt.Errorf("journal ref %s already recorded", ref)
	}
	now := time.Now()
	j.records[ref] = &Record{
		Ref:       ref,
		Kind:      kind,
		TxHash:    txHash,
		Status:    StatusSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// MarkConfirmed moves a row to CONFIRMED with the inclusion height.
func (j *MemoryJournal) MarkConfirmed(ctx context.Context, ref string, height uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.records[ref]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	rec.Status = StatusConfirmed
	rec.Height = height
	rec.UpdatedAt = time.Now()
	return nil
}

// MarkFailed moves a row to FAILED with the failure reason.
func (j *MemoryJournal) MarkFailed(ctx context.Context, ref string, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.records[ref]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	rec.Status = StatusFailed
	rec.Error = reason
	rec.UpdatedAt = time.Now()
	return nil
}

// Get returns a copy of the journal row for a reference.
func (j *MemoryJournal) Get(ctx context.Context, ref string) (*Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.records[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	cp := *rec
	return &cp, nil
}

// Records returns a copy of every journal row, in no particular order.
func (j *MemoryJournal) Records() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Record, 0, len(j.records))
	for _, rec := range j.records {
		out = append(out, *rec)
	}
	return out
}

// Close is a no-op for the in-memory journal.
func (j *MemoryJournal) Close() {}
