package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	blockchain "vaultsync/blockchain/client"
	"vaultsync/blockchain/types"
)

// EventSink receives reconciled mutations, strictly serialized: the
// reconciler never calls it from more than one goroutine.
type EventSink func(types.Event) error

// EventCache persists reconciled events locally so a warm start can rebuild
// the projection before the ledger answers. Implemented by storage/eventcache.
type EventCache interface {
	Events(vault common.Address) ([]types.Event, error)
	Put(vault common.Address, ev types.Event) error
}

// Reconciler merges the historical replay and the live subscription of one
// vault into a single logically-ordered mutation stream and folds it into the
// sink. Correctness rests on one rule: every event is identified by its order
// key (height, log index), and an order key is applied at most once. The
// subscription is established before the boundary height is read and before
// replay is issued, so the two channels overlap rather than gap; the dedup
// set absorbs the overlap.
type Reconciler struct {
	client blockchain.LedgerClient
	vault  common.Address
	logger *logrus.Logger

	cache  EventCache // optional
	mirror func(types.Event)

	applied map[types.OrderKey]struct{}
}

// NewReconciler creates a reconciler for one vault. cache and mirror are
// optional.
func NewReconciler(client blockchain.LedgerClient, vault common.Address, cache EventCache, mirror func(types.Event), logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reconciler{
		client:  client,
		vault:   vault,
		logger:  logger,
		cache:   cache,
		mirror:  mirror,
		applied: make(map[types.OrderKey]struct{}),
	}
}

// Run drives the reconciliation until ctx is cancelled or the subscription
// drops. It blocks; callers run it in a dedicated goroutine, which is also
// what serializes every sink call.
func (r *Reconciler) Run(ctx context.Context, sink EventSink) error {
	// Warm start from the local cache, if any. Safe at any point before the
	// ledger is consulted: replay below re-delivers the same events and the
	// dedup set drops them.
	if r.cache != nil {
		cached, err := r.cache.Events(r.vault)
		if err != nil {
			r.logger.WithError(err).Warn("Event cache unreadable, continuing with cold start")
		} else {
			sort.Slice(cached, func(i, j int) bool { return cached[i].OrderKey().Less(cached[j].OrderKey()) })
			for _, ev := range cached {
				r.deliver(ev, sink, false)
			}
		}
	}

	// Subscribe first, then capture the boundary, then replay. The boundary
	// returned by the client is read after the subscription is live, so no
	// event can fall between replay's upper bound and the first live event.
	live, boundary, err := r.client.SubscribeVaultEvents(ctx, r.vault)
	if err != nil {
		return fmt.Errorf("failed to establish live subscription: %w", err)
	}

	past, err := r.client.PastVaultEvents(ctx, r.vault, 0, boundary)
	if err != nil {
		return fmt.Errorf("failed to replay history up to block %d: %w", boundary, err)
	}
	sort.Slice(past, func(i, j int) bool { return past[i].OrderKey().Less(past[j].OrderKey()) })
	for _, ev := range past {
		if ev.Height > boundary {
			// Replay answered beyond its window; the live channel owns
			// everything above the boundary.
			continue
		}
		r.deliver(ev, sink, true)
	}
	r.logger.WithFields(logrus.Fields{
		"vault":    r.vault.Hex(),
		"boundary": boundary,
		"replayed": len(past),
	}).Info("Historical replay complete, switching to live delivery")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-live:
			if !ok {
				return fmt.Errorf("live subscription for vault %s closed", r.vault.Hex())
			}
			r.deliver(ev, sink, true)
		}
	}
}

// deliver applies one event exactly once per order key. Duplicate order keys
// are dropped without consulting the payload: dedup is by position in the
// total order, never by content comparison.
func (r *Reconciler) deliver(ev types.Event, sink EventSink, persist bool) {
	key := ev.OrderKey()
	if _, seen := r.applied[key]; seen {
		return
	}
	r.applied[key] = struct{}{}

	if err := sink(ev); err != nil {
		if errors.Is(err, ErrDuplicateLiveDocument) {
			// Upstream invariant violation. The index rejected the event
			// atomically; log loudly and keep the stream alive.
			r.logger.WithFields(logrus.Fields{
				"vault":  r.vault.Hex(),
				"height": ev.Height,
				"log":    ev.LogIndex,
				"doc":    ev.DocID.Hex(),
			}).Error("Correctness alarm: duplicate live document in event stream")
			return
		}
		r.logger.WithError(err).WithField("height", ev.Height).Warn("Sink rejected event")
		return
	}

	if persist && r.cache != nil {
		if err := r.cache.Put(r.vault, ev); err != nil {
			r.logger.WithError(err).Warn("Failed to persist event to local cache")
		}
	}
	if r.mirror != nil {
		r.mirror(ev)
	}
}

// Applied reports whether an order key has already been folded. Exposed for
// tests and diagnostics.
func (r *Reconciler) Applied(key types.OrderKey) bool {
	_, ok := r.applied[key]
	return ok
}
