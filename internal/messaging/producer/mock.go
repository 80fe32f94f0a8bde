package producer

import (
	"context"
	"sync"

	"vaultsync/internal/models"
)

// MockProducer captures published records in memory for tests.
type MockProducer struct {
	mu      sync.Mutex
	records []*models.MutationRecord
	closed  bool
}

func NewMockProducer() *MockProducer {
	return &MockProducer{}
}

func (p *MockProducer) Publish(ctx context.Context, rec *models.MutationRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return nil
}

func (p *MockProducer) PublishBatch(ctx context.Context, recs []*models.MutationRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, recs...)
	return nil
}

func (p *MockProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Records returns a snapshot of everything published so far.
func (p *MockProducer) Records() []*models.MutationRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*models.MutationRecord, len(p.records))
	copy(out, p.records)
	return out
}

func (p *MockProducer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

var _ Producer = (*MockProducer)(nil)
