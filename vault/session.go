package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vaultsync/access"
	blockchain "vaultsync/blockchain/client"
	"vaultsync/blockchain/types"
	"vaultsync/codec"
	"vaultsync/config"
	"vaultsync/contentstore"
	"vaultsync/internal/messaging/producer"
	"vaultsync/internal/models"
	"vaultsync/storage/store"
)

var (
	// ErrNotOwner is returned when a mutation intent is issued by a viewer
	// who does not own the vault.
	ErrNotOwner = errors.New("vault: intent requires vault ownership")

	// ErrVaultNotPresent is returned when a document intent is issued
	// before the owner's vault is deployed.
	ErrVaultNotPresent = errors.New("vault: not present")

	// ErrIdentityDocument is returned when removal targets the vault's
	// first document. The identity document anchors the vault and cannot
	// be removed.
	ErrIdentityDocument = errors.New("vault: identity document cannot be removed")

	// ErrUnknownDocument is returned when an intent targets an ID with no
	// live record.
	ErrUnknownDocument = errors.New("vault: no live document with that id")

	// ErrSessionClosed is returned by intents issued after Close.
	ErrSessionClosed = errors.New("vault: session closed")

	// ErrPriceNotSet is returned when vault creation is attempted before the
	// owner configured an access price. The registry requires the price
	// first, so the deposit and the access terms are fixed together.
	ErrPriceNotSet = errors.New("vault: access price must be set before creating a vault")
)

// Deps bundles everything a session needs. Journal, Content, Export and
// Cache are optional; a nil Export or a false MirrorApplied disables the
// mutation mirror.
type Deps struct {
	Client     blockchain.LedgerClient
	Journal    store.TxJournal
	Content    contentstore.ContentStore
	Export     producer.Producer
	Cache      EventCache
	Reconciler config.ReconcilerConfig
	Logger     *logrus.Logger
}

// Session is one viewer's window onto one owner's vault. It owns the
// lifecycle tracker, the reconciled document index and the access gate, and
// translates user intents into ledger submissions. All intents journal their
// transaction progress; none of them mutate the index directly, the index
// only ever changes by folding reconciled ledger events.
type Session struct {
	id     string
	client blockchain.LedgerClient
	owner  common.Address
	viewer common.Address
	logger *logrus.Logger

	lifecycle *Lifecycle
	index     *Index
	gate      *access.Gate

	journal store.TxJournal
	content contentstore.ContentStore
	export  producer.Producer
	cache   EventCache
	cfg     config.ReconcilerConfig

	mu        sync.Mutex
	closed    bool
	cancel    context.CancelFunc
	reconcile sync.Once
	wg        sync.WaitGroup
}

// NewSession creates a session for viewer looking at owner's vault. Owners
// open a session on themselves (viewer == owner), which unlocks the
// mutation intents.
func NewSession(deps Deps, viewer, owner common.Address) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	s := &Session{
		id:      uuid.NewString(),
		client:  deps.Client,
		owner:   owner,
		viewer:  viewer,
		logger:  logger,
		index:   NewIndex(),
		journal: deps.Journal,
		content: deps.Content,
		export:  deps.Export,
		cache:   deps.Cache,
		cfg:     deps.Reconciler,
	}
	s.lifecycle = NewLifecycle(deps.Client, owner, logger)
	s.gate = access.NewGate(deps.Client, deps.Journal, logger)
	return s
}

// ID returns the session identifier used in journal refs and export records.
func (s *Session) ID() string { return s.id }

// Start resolves the vault lifecycle and, when the vault is already present,
// begins reconciling its event stream. When the vault is created later the
// reconciler starts on the creation event. Start is valid once.
func (s *Session) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ErrSessionClosed
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.lifecycle.OnPresent(func(addr common.Address) {
		s.startReconciler(runCtx, addr)
	})

	if _, _, err := s.lifecycle.Resolve(ctx); err != nil {
		return err
	}
	return nil
}

// startReconciler launches the replay/live merge for the deployed vault.
// Guarded by a Once: the lifecycle can report Present through both Resolve
// and the creation watcher.
func (s *Session) startReconciler(ctx context.Context, vault common.Address) {
	s.reconcile.Do(func() {
		var mirror func(types.Event)
		if s.export != nil && s.cfg.MirrorApplied {
			mirror = func(ev types.Event) { s.mirrorEvent(ev) }
		}
		rec := NewReconciler(s.client, vault, s.cache, mirror, s.logger)

		gap := 5 * time.Second
		if d, err := time.ParseDuration(s.cfg.ResubscribeGap); err == nil && d > 0 {
			gap = d
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				err := rec.Run(ctx, s.index.Apply)
				if ctx.Err() != nil {
					return
				}
				s.logger.WithError(err).WithField("gap", gap).
					Warn("Reconciliation stopped, resubscribing")
				select {
				case <-ctx.Done():
					return
				case <-time.After(gap):
				}
			}
		}()
	})
}

// View assembles the reconciled snapshot for the presentation layer.
// Documents are included only when the viewer is the owner or holds a
// confirmed grant.
func (s *Session) View(ctx context.Context) (*models.ViewModel, error) {
	state, addr := s.lifecycle.State()

	vm := &models.ViewModel{
		Owner:        s.owner,
		Viewer:       s.viewer,
		Lifecycle:    state,
		VaultAddress: addr,
	}

	grant, err := s.gate.Resolve(ctx, s.viewer, s.owner)
	if err != nil {
		return nil, err
	}
	vm.Grant = grant.State
	vm.PriceQuote = grant.Price

	if symbol, err := s.client.TokenSymbol(ctx); err == nil {
		vm.TokenSymbol = symbol
	} else {
		s.logger.WithError(err).Debug("Token symbol unavailable")
	}
	if deposit, err := s.client.VaultDeposit(ctx); err == nil {
		vm.VaultDeposit = deposit
	} else {
		s.logger.WithError(err).Debug("Vault deposit unavailable")
	}

	if state == models.LifecyclePresent &&
		(grant.State == models.GrantNotApplicable || grant.State == models.GrantGranted) {
		vm.Documents = s.index.LiveDocuments()
	}
	return vm, nil
}

// CreateVault submits the vault creation transaction for the owner. The
// owner must have set an access price first.
func (s *Session) CreateVault(ctx context.Context) (<-chan types.TxUpdate, error) {
	if err := s.ownerIntent(); err != nil {
		return nil, err
	}
	price, err := s.client.AccessPrice(ctx, s.owner)
	if err != nil {
		return nil, fmt.Errorf("failed to check access price: %w", err)
	}
	if price == nil {
		return nil, ErrPriceNotSet
	}
	updates, err := s.lifecycle.Create(ctx)
	if err != nil {
		return nil, err
	}
	return s.journalStream(store.KindCreateVault, updates), nil
}

// Upload stores the payload in the content store and registers the derived
// ID on the vault. The first document of a fresh vault is the identity
// document; when the caller supplies no description or keywords for it the
// conventional defaults are applied.
func (s *Session) Upload(ctx context.Context, payload []byte, description string, keywords []string) (<-chan types.TxUpdate, error) {
	if err := s.ownerIntent(); err != nil {
		return nil, err
	}
	if err := s.requirePresent(); err != nil {
		return nil, err
	}

	// Nothing below touches engine state until the upload succeeds, so a
	// failed Put is always retryable.
	addr, err := s.content.Put(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to store payload: %w", err)
	}

	id, err := codec.FromContentAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("content store returned unusable address %q: %w", addr, err)
	}

	if s.index.Len() == 0 {
		if description == "" {
			description = "Identity document"
		}
		if len(keywords) == 0 {
			keywords = []string{"ID"}
		}
	}

	updates, err := s.client.AddDocument(ctx, id, description, keywords)
	if err != nil {
		return nil, fmt.Errorf("failed to submit document registration: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"session": s.id,
		"doc":     id.Hex(),
		"address": addr,
	}).Info("Document registration submitted")
	return s.journalStream(store.KindAddDocument, updates), nil
}

// Register registers an already-stored content address on the vault without
// re-uploading the payload.
func (s *Session) Register(ctx context.Context, contentAddress, description string, keywords []string) (<-chan types.TxUpdate, error) {
	if err := s.ownerIntent(); err != nil {
		return nil, err
	}
	if err := s.requirePresent(); err != nil {
		return nil, err
	}

	id, err := codec.FromContentAddress(contentAddress)
	if err != nil {
		return nil, err
	}
	updates, err := s.client.AddDocument(ctx, id, description, keywords)
	if err != nil {
		return nil, fmt.Errorf("failed to submit document registration: %w", err)
	}
	return s.journalStream(store.KindAddDocument, updates), nil
}

// Remove tombstones a live document. The identity document (the vault's
// oldest live entry) is refused.
func (s *Session) Remove(ctx context.Context, id types.DocumentID) (<-chan types.TxUpdate, error) {
	if err := s.ownerIntent(); err != nil {
		return nil, err
	}
	if err := s.requirePresent(); err != nil {
		return nil, err
	}
	if !s.index.IsLive(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, id.Hex())
	}
	if first, ok := s.index.FirstLive(); ok && first == id {
		return nil, ErrIdentityDocument
	}

	updates, err := s.client.RemoveDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to submit document removal: %w", err)
	}
	return s.journalStream(store.KindRemoveDocument, updates), nil
}

// AddKeyword appends a keyword to a live document.
func (s *Session) AddKeyword(ctx context.Context, id types.DocumentID, keyword string) (<-chan types.TxUpdate, error) {
	if err := s.ownerIntent(); err != nil {
		return nil, err
	}
	if err := s.requirePresent(); err != nil {
		return nil, err
	}
	if !s.index.IsLive(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, id.Hex())
	}

	updates, err := s.client.AddKeyword(ctx, id, keyword)
	if err != nil {
		return nil, fmt.Errorf("failed to submit keyword: %w", err)
	}
	return s.journalStream(store.KindAddKeyword, updates), nil
}

// SetPrice opens paid access to the owner's vault at the given token price.
func (s *Session) SetPrice(ctx context.Context, price *big.Int) (<-chan types.TxUpdate, error) {
	if err := s.ownerIntent(); err != nil {
		return nil, err
	}
	updates, err := s.client.SetAccessPrice(ctx, price)
	if err != nil {
		return nil, fmt.Errorf("failed to submit access price: %w", err)
	}
	return s.journalStream(store.KindSetPrice, updates), nil
}

// RequestAccess pays the owner's configured price. Valid only when the gate
// resolves to AwaitingPayment; the gate journals this one itself.
func (s *Session) RequestAccess(ctx context.Context) (<-chan types.TxUpdate, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.mu.Unlock()
	return s.gate.RequestAccess(ctx, s.viewer, s.owner)
}

// Grant resolves the viewer's current entitlement.
func (s *Session) Grant(ctx context.Context) (access.Grant, error) {
	return s.gate.Resolve(ctx, s.viewer, s.owner)
}

// Index exposes the reconciled document index, mainly for tests and
// diagnostics.
func (s *Session) Index() *Index { return s.index }

// Lifecycle exposes the lifecycle tracker.
func (s *Session) Lifecycle() *Lifecycle { return s.lifecycle }

// Close stops reconciliation and abandons in-flight intent streams: their
// goroutines drain to completion for the journal's sake, but late stages
// are no longer delivered anywhere the session's consumer can see.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.WithField("session", s.id).Info("Session closed")
}

func (s *Session) ownerIntent() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.viewer != s.owner {
		return ErrNotOwner
	}
	return nil
}

func (s *Session) requirePresent() error {
	if state, _ := s.lifecycle.State(); state != models.LifecyclePresent {
		return fmt.Errorf("%w (state: %s)", ErrVaultNotPresent, state)
	}
	return nil
}

// journalStream forwards a transaction stream while recording its progress
// under a fresh journal reference. The forwarded channel is buffered for the
// full stage count, so an abandoned consumer never blocks the recorder.
func (s *Session) journalStream(kind store.TxKind, updates <-chan types.TxUpdate) <-chan types.TxUpdate {
	ref := uuid.NewString()
	out := make(chan types.TxUpdate, 4)
	go func() {
		defer close(out)
		for u := range updates {
			switch u.Stage {
			case types.StageSubmitted:
				s.journalSubmitted(ref, kind, u.TxHash.Hex())
			case types.StageConfirmed:
				s.journalConfirmed(ref, u.Height)
			case types.StageFailed:
				reason := "transaction failed"
				if u.Err != nil {
					reason = u.Err.Error()
				}
				s.journalFailed(ref, reason)
			}
			out <- u
		}
	}()
	return out
}

func (s *Session) journalSubmitted(ref string, kind store.TxKind, txHash string) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.RecordSubmitted(ctx, ref, kind, txHash); err != nil {
		s.logger.WithError(err).Warn("Failed to journal submission")
	}
}

func (s *Session) journalConfirmed(ref string, height uint64) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.MarkConfirmed(ctx, ref, height); err != nil {
		s.logger.WithError(err).Warn("Failed to journal confirmation")
	}
}

func (s *Session) journalFailed(ref, reason string) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.MarkFailed(ctx, ref, reason); err != nil {
		s.logger.WithError(err).Warn("Failed to journal failure")
	}
}

// mirrorEvent publishes one applied mutation to the export topic. Export is
// best-effort and never blocks the fold.
func (s *Session) mirrorEvent(ev types.Event) {
	rec := &models.MutationRecord{
		SessionID:    s.id,
		Vault:        ev.Vault,
		Kind:         ev.Kind,
		Height:       ev.Height,
		LogIndex:     ev.LogIndex,
		Description:  ev.Description,
		Keyword:      ev.Keyword,
		KeywordIndex: ev.KeywordIndex,
	}
	if !ev.DocID.IsZero() {
		rec.DocID = ev.DocID.Hex()
		rec.ContentAddress = codec.ToContentAddress(ev.DocID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.export.Publish(ctx, rec); err != nil {
		s.logger.WithError(err).Warn("Failed to export mutation record")
	}
}
