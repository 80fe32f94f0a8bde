// Package access decides, per (viewer, owner) pair, whether a vault's
// contents are visible, payable, or already paid for, and drives the payment
// transaction that moves a viewer from "must pay" to "has access".
package access

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	blockchain "vaultsync/blockchain/client"
	"vaultsync/blockchain/types"
	"vaultsync/internal/models"
	"vaultsync/storage/store"
)

// ErrNotAwaitingPayment is returned when a payment is requested from any
// state other than AwaitingPayment.
var ErrNotAwaitingPayment = errors.New("access: not awaiting payment")

// Grant is the resolved entitlement of a viewer for an owner's vault.
type Grant struct {
	State models.GrantState
	// Price is the quote to pay, set only in AwaitingPayment.
	Price *big.Int
	// TxRef identifies the in-flight payment, set only in Submitted.
	TxRef string
}

type pair struct {
	viewer common.Address
	owner  common.Address
}

// Gate resolves and transitions access grants. Granted is monotonic for the
// lifetime of the gate: once observed on-ledger it is cached and every later
// resolve short-circuits, so a viewer is never asked to pay twice. All other
// states are re-derived from the ledger on each resolve.
type Gate struct {
	client  blockchain.LedgerClient
	journal store.TxJournal
	logger  *logrus.Logger

	mu      sync.Mutex
	granted map[pair]struct{}
	pending map[pair]string // journal ref of the in-flight payment
}

// NewGate creates an access gate. journal may be nil.
func NewGate(client blockchain.LedgerClient, journal store.TxJournal, logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gate{
		client:  client,
		journal: journal,
		logger:  logger,
		granted: make(map[pair]struct{}),
		pending: make(map[pair]string),
	}
}

// Resolve derives the viewer's entitlement state for owner's vault.
func (g *Gate) Resolve(ctx context.Context, viewer, owner common.Address) (Grant, error) {
	if viewer == owner {
		return Grant{State: models.GrantNotApplicable}, nil
	}
	p := pair{viewer, owner}

	g.mu.Lock()
	if _, ok := g.granted[p]; ok {
		g.mu.Unlock()
		return Grant{State: models.GrantGranted}, nil
	}
	if ref, ok := g.pending[p]; ok {
		g.mu.Unlock()
		return Grant{State: models.GrantSubmitted, TxRef: ref}, nil
	}
	g.mu.Unlock()

	granted, err := g.client.HasAccess(ctx, viewer, owner)
	if err != nil {
		return Grant{}, fmt.Errorf("failed to query access grant: %w", err)
	}
	if granted {
		g.mu.Lock()
		g.granted[p] = struct{}{}
		g.mu.Unlock()
		return Grant{State: models.GrantGranted}, nil
	}

	price, err := g.client.AccessPrice(ctx, owner)
	if err != nil {
		return Grant{}, fmt.Errorf("failed to query access price: %w", err)
	}
	if price == nil {
		return Grant{State: models.GrantUnpriced}, nil
	}
	return Grant{State: models.GrantAwaitingPayment, Price: price}, nil
}

// RequestAccess submits the one-time payment for owner's vault. Valid only
// from AwaitingPayment. The returned stream mirrors the transaction
// progress; on failure the pair reverts to AwaitingPayment and the error is
// reported in-stream, never dropped.
func (g *Gate) RequestAccess(ctx context.Context, viewer, owner common.Address) (<-chan types.TxUpdate, error) {
	grant, err := g.Resolve(ctx, viewer, owner)
	if err != nil {
		return nil, err
	}
	if grant.State != models.GrantAwaitingPayment {
		return nil, fmt.Errorf("%w (state: %s)", ErrNotAwaitingPayment, grant.State)
	}

	updates, err := g.client.RequestAccess(ctx, owner, grant.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to submit access payment: %w", err)
	}

	p := pair{viewer, owner}
	ref := uuid.NewString()
	g.mu.Lock()
	g.pending[p] = ref
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"viewer": viewer.Hex(),
		"owner":  owner.Hex(),
		"ref":    ref,
		"price":  grant.Price.String(),
	}).Info("Access payment submitted")

	out := make(chan types.TxUpdate, 4)
	go g.track(ctx, p, ref, updates, out)
	return out, nil
}

// track drives one payment stream to its terminal stage and updates gate
// state and journal along the way.
func (g *Gate) track(ctx context.Context, p pair, ref string, updates <-chan types.TxUpdate, out chan<- types.TxUpdate) {
	defer close(out)
	for u := range updates {
		switch u.Stage {
		case types.StageSubmitted:
			g.journalSubmitted(ctx, ref, u.TxHash.Hex())
		case types.StageConfirmed:
			g.mu.Lock()
			g.granted[p] = struct{}{}
			delete(g.pending, p)
			g.mu.Unlock()
			g.journalConfirmed(ctx, ref, u.Height)
			g.logger.WithField("ref", ref).Info("Access granted")
		case types.StageFailed:
			g.mu.Lock()
			delete(g.pending, p)
			g.mu.Unlock()
			reason := "payment failed"
			if u.Err != nil {
				reason = u.Err.Error()
			}
			g.journalFailed(ctx, ref, reason)
			g.logger.WithField("ref", ref).WithError(u.Err).Warn("Access payment failed, back to awaiting payment")
		}
		out <- u
	}
}

func (g *Gate) journalSubmitted(ctx context.Context, ref, txHash string) {
	if g.journal == nil {
		return
	}
	if err := g.journal.RecordSubmitted(ctx, ref, store.KindRequestAccess, txHash); err != nil {
		g.logger.WithError(err).Warn("Failed to journal payment submission")
	}
}

func (g *Gate) journalConfirmed(ctx context.Context, ref string, height uint64) {
	if g.journal == nil {
		return
	}
	if err := g.journal.MarkConfirmed(ctx, ref, height); err != nil {
		g.logger.WithError(err).Warn("Failed to journal payment confirmation")
	}
}

func (g *Gate) journalFailed(ctx context.Context, ref, reason string) {
	if g.journal == nil {
		return
	}
	if err := g.journal.MarkFailed(ctx, ref, reason); err != nil {
		g.logger.WithError(err).Warn("Failed to journal payment failure")
	}
}
