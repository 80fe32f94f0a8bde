// Package export batches applied-mutation records before handing them to the
// messaging producer, so a busy reconciliation burst becomes a handful of
// broker round-trips instead of one per event.
package export

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vaultsync/config"
	"vaultsync/internal/messaging/producer"
	"vaultsync/internal/models"
)

// ErrBatcherClosed is returned by Publish after Close.
var ErrBatcherClosed = errors.New("export: batcher closed")

// ErrBufferFull is returned when the intake buffer is saturated. The caller
// is the reconciliation fold, which must never block on export.
var ErrBufferFull = errors.New("export: intake buffer full")

// Batcher wraps a producer and flushes records in batches, either when the
// batch fills or when the batch timeout expires. It satisfies the Producer
// interface so callers can use it wherever a plain producer fits.
type Batcher struct {
	sink   producer.Producer
	logger *logrus.Logger

	batchSize    int
	batchTimeout time.Duration
	publishWait  time.Duration

	in   chan *models.MutationRecord
	stop chan struct{}
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewBatcher creates a batcher in front of sink and starts its flush loop.
func NewBatcher(cfg config.ExportConfig, sink producer.Producer, logger *logrus.Logger) *Batcher {
	if logger == nil {
		logger = logrus.New()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 1 * time.Second
	}
	publishWait := cfg.WriteTimeout
	if publishWait <= 0 {
		publishWait = 5 * time.Second
	}

	b := &Batcher{
		sink:         sink,
		logger:       logger,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		publishWait:  publishWait,
		in:           make(chan *models.MutationRecord, 4*batchSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go b.run()
	return b
}

var _ producer.Producer = (*Batcher)(nil) // Compile-time interface check

// Publish enqueues one record for the next flush. It never blocks: a
// saturated buffer drops the record and reports ErrBufferFull.
func (b *Batcher) Publish(ctx context.Context, rec *models.MutationRecord) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBatcherClosed
	}
	b.mu.Unlock()

	select {
	case b.in <- rec:
		return nil
	default:
		b.logger.WithField("vault", rec.Vault.Hex()).Warn("Export buffer full, dropping mutation record")
		return ErrBufferFull
	}
}

// PublishBatch enqueues every record, stopping at the first failure.
func (b *Batcher) PublishBatch(ctx context.Context, recs []*models.MutationRecord) error {
	for _, rec := range recs {
		if err := b.Publish(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes everything still buffered and closes the underlying
// producer.
func (b *Batcher) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stop)
	<-b.done
	return b.sink.Close()
}

// run is the flush loop. The timer starts on the first record of a batch and
// is quenched on every flush, mirroring how a full batch preempts it.
func (b *Batcher) run() {
	defer close(b.done)

	batch := make([]*models.MutationRecord, 0, b.batchSize)
	timer := time.NewTimer(0)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.publishWait)
		if err := b.sink.PublishBatch(ctx, batch); err != nil {
			b.logger.WithError(err).WithField("count", len(batch)).Error("Failed to flush export batch")
		}
		cancel()
		batch = make([]*models.MutationRecord, 0, b.batchSize)
	}

	for {
		select {
		case <-b.stop:
			// Drain whatever made it into the buffer before Close.
			for {
				select {
				case rec := <-b.in:
					batch = append(batch, rec)
					if len(batch) >= b.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}

		case <-timer.C:
			flush()

		case rec := <-b.in:
			if len(batch) == 0 {
				timer.Reset(b.batchTimeout)
			}
			batch = append(batch, rec)
			if len(batch) >= b.batchSize {
				flush()
			}
		}
	}
}
