package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"vaultsync/blockchain/types"
)

// MockLedger simulates a ledger for tests and local development. Chain state
// is set up directly on the struct's setters; events are injected with the
// Emit helpers and fan out to every open subscription.
type MockLedger struct {
	mu sync.Mutex

	logger *logrus.Logger

	height     uint64
	vaults     map[common.Address]common.Address
	registered map[common.Address]bool
	prices     map[common.Address]*big.Int
	grants     map[accessPair]bool
	symbol     string
	deposit    *big.Int
	account    common.Address

	past        map[common.Address][]types.Event
	vaultSubs   map[common.Address][]chan types.Event
	createdSubs map[common.Address][]chan types.Event

	// sendScript, when set, overrides the progress stream of every send.
	sendScript func(method string) []types.TxUpdate

	closed bool
}

type accessPair struct {
	viewer common.Address
	owner  common.Address
}

// NewMockLedger creates an empty mock ledger.
func NewMockLedger(logger *logrus.Logger) *MockLedger {
	if logger == nil {
		logger = logrus.New()
	}
	return &MockLedger{
		logger:      logger,
		vaults:      make(map[common.Address]common.Address),
		registered:  make(map[common.Address]bool),
		prices:      make(map[common.Address]*big.Int),
		grants:      make(map[accessPair]bool),
		symbol:      "MOCK",
		deposit:     big.NewInt(0),
		past:        make(map[common.Address][]types.Event),
		vaultSubs:   make(map[common.Address][]chan types.Event),
		createdSubs: make(map[common.Address][]chan types.Event),
	}
}

var _ LedgerClient = (*MockLedger)(nil) // Compile-time interface check

// --- test setup helpers ---

// SetHeight moves the simulated chain head.
func (m *MockLedger) SetHeight(h uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = h
}

// SetVault records a deployed vault address for an owner.
func (m *MockLedger) SetVault(owner, vault common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vaults[owner] = vault
}

// SetRegistered marks an owner as active in the registry.
func (m *MockLedger) SetRegistered(owner common.Address, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[owner] = active
}

// SetPriceQuote configures an owner's access price; nil means unpriced.
func (m *MockLedger) SetPriceQuote(owner common.Address, price *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[owner] = price
}

// SetAccount sets the simulated signing account, used to attribute grants
// recorded by RequestAccess.
func (m *MockLedger) SetAccount(account common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = account
}

// SetGrant records a paid access grant on the simulated ledger.
func (m *MockLedger) SetGrant(viewer, owner common.Address, granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[accessPair{viewer, owner}] = granted
}

// AppendPast adds an event to a vault's replayable history.
func (m *MockLedger) AppendPast(vault common.Address, ev types.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.past[vault] = append(m.past[vault], ev)
	if ev.Height > m.height {
		m.height = ev.Height
	}
}

// EmitLive delivers an event to every live subscriber of a vault. The event
// is also recorded in the replayable history, so a subscriber arriving after
// the emission still observes it; the duplicate delivery this can cause is
// exactly the replay/live overlap consumers must deduplicate by order key.
func (m *MockLedger) EmitLive(vault common.Address, ev types.Event) {
	m.mu.Lock()
	subs := append([]chan types.Event(nil), m.vaultSubs[vault]...)
	m.past[vault] = append(m.past[vault], ev)
	if ev.Height > m.height {
		m.height = ev.Height
	}
	m.mu.Unlock()
	for _, ch := range subs {
		ch <- ev
	}
}

// EmitVaultCreated delivers a creation event to an owner's watchers and
// records the deployed address.
func (m *MockLedger) EmitVaultCreated(ev types.Event) {
	m.mu.Lock()
	m.vaults[ev.Owner] = ev.Vault
	if ev.Height > m.height {
		m.height = ev.Height
	}
	subs := append([]chan types.Event(nil), m.createdSubs[ev.Owner]...)
	m.mu.Unlock()
	for _, ch := range subs {
		ch <- ev
	}
}

// ScriptSend overrides the progress stream of subsequent sends. Passing nil
// restores the default submitted/received/confirmed sequence.
func (m *MockLedger) ScriptSend(f func(method string) []types.TxUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendScript = f
}

// --- LedgerClient implementation ---

func (m *MockLedger) CurrentHeight(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height, nil
}

func (m *MockLedger) VaultAddress(ctx context.Context, owner common.Address) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vaults[owner], nil
}

func (m *MockLedger) IsOwnerRegistered(ctx context.Context, owner common.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered[owner], nil
}

func (m *MockLedger) AccessPrice(ctx context.Context, owner common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prices[owner], nil
}

func (m *MockLedger) HasAccess(ctx context.Context, viewer, owner common.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[accessPair{viewer, owner}], nil
}

func (m *MockLedger) TokenSymbol(ctx context.Context) (string, error) {
	return m.symbol, nil
}

func (m *MockLedger) VaultDeposit(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deposit, nil
}

func (m *MockLedger) PastVaultEvents(ctx context.Context, vault common.Address, from, to uint64) ([]types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []types.Event
	for _, ev := range m.past[vault] {
		if ev.Height >= from && ev.Height <= to {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (m *MockLedger) SubscribeVaultEvents(ctx context.Context, vault common.Address) (<-chan types.Event, uint64, error) {
	m.mu.Lock()
	ch := make(chan types.Event, 64)
	m.vaultSubs[vault] = append(m.vaultSubs[vault], ch)
	boundary := m.height
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.dropVaultSub(vault, ch)
	}()
	return ch, boundary, nil
}

func (m *MockLedger) SubscribeVaultCreated(ctx context.Context, owner common.Address) (<-chan types.Event, error) {
	m.mu.Lock()
	ch := make(chan types.Event, 8)
	m.createdSubs[owner] = append(m.createdSubs[owner], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.dropCreatedSub(owner, ch)
	}()
	return ch, nil
}

func (m *MockLedger) CreateVault(ctx context.Context) (<-chan types.TxUpdate, error) {
	return m.play("createVault")
}

func (m *MockLedger) AddDocument(ctx context.Context, id types.DocumentID, description string, keywords []string) (<-chan types.TxUpdate, error) {
	return m.play("addDocument")
}

func (m *MockLedger) RemoveDocument(ctx context.Context, id types.DocumentID) (<-chan types.TxUpdate, error) {
	return m.play("removeDocument")
}

func (m *MockLedger) AddKeyword(ctx context.Context, id types.DocumentID, keyword string) (<-chan types.TxUpdate, error) {
	return m.play("addKeyword")
}

func (m *MockLedger) SetAccessPrice(ctx context.Context, price *big.Int) (<-chan types.TxUpdate, error) {
	updates, err := m.play("setAccessPrice")
	if err != nil {
		return nil, err
	}
	out := make(chan types.TxUpdate, 4)
	go func() {
		defer close(out)
		for u := range updates {
			if u.Stage == types.StageConfirmed {
				m.mu.Lock()
				m.prices[m.account] = price
				m.mu.Unlock()
			}
			out <- u
		}
	}()
	return out, nil
}

func (m *MockLedger) RequestAccess(ctx context.Context, owner common.Address, price *big.Int) (<-chan types.TxUpdate, error) {
	updates, err := m.play("requestAccess")
	if err != nil {
		return nil, err
	}
	// Record the grant once the stream confirms, mirroring what the contract
	// does on a successful payment.
	out := make(chan types.TxUpdate, 4)
	pair := accessPair{viewer: m.account, owner: owner}
	go func() {
		defer close(out)
		for u := range updates {
			if u.Stage == types.StageConfirmed {
				m.mu.Lock()
				m.grants[pair] = true
				m.mu.Unlock()
			}
			out <- u
		}
	}()
	return out, nil
}

func (m *MockLedger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// play produces the progress stream for a send: the scripted sequence if one
// is set, otherwise a default success at head+1.
func (m *MockLedger) play(method string) (<-chan types.TxUpdate, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock ledger closed")
	}
	script := m.sendScript
	var updates []types.TxUpdate
	if script != nil {
		updates = script(method)
	} else {
		m.height++
		h := m.height
		hash := common.BytesToHash([]byte(fmt.Sprintf("%s@%d", method, h)))
		updates = []types.TxUpdate{
			{Stage: types.StageSubmitted, TxHash: hash},
			{Stage: types.StageReceived, TxHash: hash, Height: h},
			{Stage: types.StageConfirmed, TxHash: hash, Height: h, Confirmations: RequiredConfirmations},
		}
	}
	m.mu.Unlock()

	ch := make(chan types.TxUpdate, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)
	return ch, nil
}

func (m *MockLedger) dropVaultSub(vault common.Address, ch chan types.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.vaultSubs[vault]
	for i, s := range subs {
		if s == ch {
			m.vaultSubs[vault] = append(subs[:i], subs[i+1:]...)
			close(s)
			return
		}
	}
}

func (m *MockLedger) dropCreatedSub(owner common.Address, ch chan types.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.createdSubs[owner]
	for i, s := range subs {
		if s == ch {
			m.createdSubs[owner] = append(subs[:i], subs[i+1:]...)
			close(s)
			return
		}
	}
}
