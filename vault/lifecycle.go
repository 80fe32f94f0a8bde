package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	blockchain "vaultsync/blockchain/client"
	"vaultsync/blockchain/types"
	"vaultsync/internal/models"
)

// ErrAlreadyPending is returned when create is called while a creation
// transaction is already in flight.
var ErrAlreadyPending = errors.New("vault: creation already pending")

// ErrVaultExists is returned when create is called for an owner whose vault
// is already deployed.
var ErrVaultExists = errors.New("vault: already exists")

// Lifecycle tracks whether an owner has a vault and drives the creation
// transaction. States move Absent -> Pending -> Present; Present is terminal.
// The Pending -> Present transition is confirmed only by a creation event at
// a block height strictly greater than the height recorded when create
// started, which keeps a replayed historical event from being mistaken for
// the just-submitted one.
type Lifecycle struct {
	client blockchain.LedgerClient
	owner  common.Address
	logger *logrus.Logger

	mu           sync.Mutex
	state        models.LifecycleState
	address      common.Address
	createHeight uint64
	onPresent    func(common.Address)
}

// NewLifecycle creates a lifecycle tracker for one owner.
func NewLifecycle(client blockchain.LedgerClient, owner common.Address, logger *logrus.Logger) *Lifecycle {
	if logger == nil {
		logger = logrus.New()
	}
	return &Lifecycle{
		client: client,
		owner:  owner,
		logger: logger,
		state:  models.LifecycleAbsent,
	}
}

// OnPresent registers a callback invoked once when the vault becomes present,
// with the deployed address. Must be set before Create or Resolve.
func (l *Lifecycle) OnPresent(f func(common.Address)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onPresent = f
}

// State returns the current lifecycle state and the deployed address when
// present.
func (l *Lifecycle) State() (models.LifecycleState, common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.address
}

// Resolve queries the ledger for the owner's vault. A pending creation is
// never stomped by a resolve that still sees no vault.
func (l *Lifecycle) Resolve(ctx context.Context) (models.LifecycleState, common.Address, error) {
	registered, err := l.client.IsOwnerRegistered(ctx, l.owner)
	if err != nil {
		return "", common.Address{}, fmt.Errorf("failed to check owner registration: %w", err)
	}
	if !registered {
		l.setState(models.LifecycleNotRegistered, common.Address{})
		return models.LifecycleNotRegistered, common.Address{}, nil
	}

	addr, err := l.client.VaultAddress(ctx, l.owner)
	if err != nil {
		return "", common.Address{}, fmt.Errorf("failed to resolve vault address: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if addr != (common.Address{}) {
		l.becomePresentLocked(addr)
	} else if l.state != models.LifecyclePending {
		l.state = models.LifecycleAbsent
		l.address = common.Address{}
	}
	return l.state, l.address, nil
}

// Create submits the vault creation transaction. Valid only while the vault
// is absent; the returned stream mirrors the transaction progress. The state
// flips to Pending immediately and either reaches Present through the event
// watcher or reverts to Absent when the transaction fails.
func (l *Lifecycle) Create(ctx context.Context) (<-chan types.TxUpdate, error) {
	l.mu.Lock()
	switch l.state {
	case models.LifecyclePending:
		l.mu.Unlock()
		return nil, ErrAlreadyPending
	case models.LifecyclePresent:
		l.mu.Unlock()
		return nil, ErrVaultExists
	}
	l.mu.Unlock()

	// Record the head before anything is submitted: only creation events
	// strictly above this height may complete the transition.
	height, err := l.client.CurrentHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to record creation height: %w", err)
	}

	// Watch before submitting so the creation event cannot slip past.
	created, err := l.client.SubscribeVaultCreated(ctx, l.owner)
	if err != nil {
		return nil, fmt.Errorf("failed to watch for vault creation: %w", err)
	}

	updates, err := l.client.CreateVault(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to submit vault creation: %w", err)
	}

	l.mu.Lock()
	if l.state == models.LifecyclePending {
		l.mu.Unlock()
		return nil, ErrAlreadyPending
	}
	l.state = models.LifecyclePending
	l.createHeight = height
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"owner":  l.owner.Hex(),
		"height": height,
	}).Info("Vault creation submitted")

	go l.watchCreated(created)

	out := make(chan types.TxUpdate, 4)
	go func() {
		defer close(out)
		for u := range updates {
			if u.Stage == types.StageFailed {
				l.revertPending()
				l.logger.WithError(u.Err).Warn("Vault creation failed, reverting to absent")
			}
			out <- u
		}
	}()
	return out, nil
}

// watchCreated completes Pending -> Present on the first qualifying event.
func (l *Lifecycle) watchCreated(created <-chan types.Event) {
	for ev := range created {
		l.mu.Lock()
		if l.state != models.LifecyclePending {
			l.mu.Unlock()
			return
		}
		if ev.Height <= l.createHeight {
			// A stale historical event replayed into the watch window.
			recorded := l.createHeight
			l.mu.Unlock()
			l.logger.WithFields(logrus.Fields{
				"event_height":  ev.Height,
				"create_height": recorded,
			}).Debug("Ignoring creation event at or below recorded height")
			continue
		}
		l.becomePresentLocked(ev.Vault)
		l.mu.Unlock()
		return
	}
}

// becomePresentLocked flips to Present once and fires the callback. Caller
// holds l.mu.
func (l *Lifecycle) becomePresentLocked(addr common.Address) {
	if l.state == models.LifecyclePresent {
		return
	}
	l.state = models.LifecyclePresent
	l.address = addr
	l.logger.WithFields(logrus.Fields{
		"owner": l.owner.Hex(),
		"vault": addr.Hex(),
	}).Info("Vault present")
	if l.onPresent != nil {
		go l.onPresent(addr)
	}
}

func (l *Lifecycle) setState(s models.LifecycleState, addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
	l.address = addr
}

func (l *Lifecycle) revertPending() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == models.LifecyclePending {
		l.state = models.LifecycleAbsent
		l.createHeight = 0
	}
}
