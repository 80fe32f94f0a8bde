package vault

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blockchain "vaultsync/blockchain/client"
	"vaultsync/blockchain/types"
	"vaultsync/codec"
	"vaultsync/config"
	"vaultsync/contentstore"
	"vaultsync/internal/messaging/producer"
	"vaultsync/internal/models"
	"vaultsync/storage/store"
)

type sessionFixture struct {
	ledger  *blockchain.MockLedger
	journal *store.MemoryJournal
	content *contentstore.MemoryStore
	export  *producer.MockProducer
	session *Session
}

func newSessionFixture(t *testing.T, viewer, owner common.Address) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		ledger:  blockchain.NewMockLedger(nil),
		journal: store.NewMemoryJournal(),
		content: contentstore.NewMemoryStore(),
		export:  producer.NewMockProducer(),
	}
	f.ledger.SetAccount(viewer)
	f.session = NewSession(Deps{
		Client:     f.ledger,
		Journal:    f.journal,
		Content:    f.content,
		Export:     f.export,
		Reconciler: config.ReconcilerConfig{MirrorApplied: true, ResubscribeGap: "10ms"},
	}, viewer, owner)
	t.Cleanup(f.session.Close)
	return f
}

func drain(t *testing.T, updates <-chan types.TxUpdate) types.TxUpdate {
	t.Helper()
	var last types.TxUpdate
	for u := range updates {
		last = u
	}
	return last
}

func (f *sessionFixture) waitPresent(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		state, _ := f.session.Lifecycle().State()
		return state == models.LifecyclePresent
	}, time.Second, 5*time.Millisecond)
}

func TestSession_OwnerCreateAndUpload(t *testing.T) {
	owner := common.HexToAddress("0xaa")
	vaultAddr := common.HexToAddress("0xbb")
	f := newSessionFixture(t, owner, owner)
	f.ledger.SetRegistered(owner, true)
	f.ledger.SetHeight(10)

	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))

	vm, err := f.session.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleAbsent, vm.Lifecycle)
	assert.Equal(t, models.GrantNotApplicable, vm.Grant)
	assert.Empty(t, vm.Documents)

	// Document intents are refused until the vault is deployed.
	_, err = f.session.Upload(ctx, []byte("too early"), "", nil)
	require.ErrorIs(t, err, ErrVaultNotPresent)

	// Creation requires the access price to be fixed first.
	_, err = f.session.CreateVault(ctx)
	require.ErrorIs(t, err, ErrPriceNotSet)
	f.ledger.SetPriceQuote(owner, big.NewInt(10))

	updates, err := f.session.CreateVault(ctx)
	require.NoError(t, err)
	last := drain(t, updates)
	assert.Equal(t, types.StageConfirmed, last.Stage)

	f.ledger.EmitVaultCreated(types.Event{Kind: types.VaultCreated, Height: 15, Owner: owner, Vault: vaultAddr})
	f.waitPresent(t)

	// First upload: the identity document conventions kick in when the
	// caller supplies no description or keywords.
	payload := []byte("id scan")
	updates, err = f.session.Upload(ctx, payload, "", nil)
	require.NoError(t, err)
	last = drain(t, updates)
	assert.Equal(t, types.StageConfirmed, last.Stage)

	addr, err := codec.AddressOf(payload)
	require.NoError(t, err)
	id, err := codec.FromContentAddress(addr)
	require.NoError(t, err)
	assert.NotNil(t, f.content.Get(addr))

	f.ledger.EmitLive(vaultAddr, types.Event{
		Kind: types.DocumentAdded, Height: 20, DocID: id, Description: "Identity document", Vault: vaultAddr,
	})
	require.Eventually(t, func() bool { return f.session.Index().Len() == 1 }, time.Second, 5*time.Millisecond)

	vm, err = f.session.View(ctx)
	require.NoError(t, err)
	require.Len(t, vm.Documents, 1)
	assert.Equal(t, addr, vm.Documents[0].ContentAddress)
	assert.Equal(t, "Identity document", vm.Documents[0].Description)
	assert.Equal(t, "MOCK", vm.TokenSymbol)

	// The applied mutation was mirrored to the export producer.
	require.Eventually(t, func() bool { return len(f.export.Records()) == 1 }, time.Second, 5*time.Millisecond)
	rec := f.export.Records()[0]
	assert.Equal(t, f.session.ID(), rec.SessionID)
	assert.Equal(t, addr, rec.ContentAddress)

	// Every send left a journal trail.
	journaled := f.journal.Records()
	require.Len(t, journaled, 2)
	for _, r := range journaled {
		assert.Equal(t, store.StatusConfirmed, r.Status)
	}
}

func TestSession_IdentityDocumentCannotBeRemoved(t *testing.T) {
	owner := common.HexToAddress("0xaa")
	vaultAddr := common.HexToAddress("0xbb")
	f := newSessionFixture(t, owner, owner)
	f.ledger.SetRegistered(owner, true)
	f.ledger.SetVault(owner, vaultAddr)

	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))
	f.waitPresent(t)

	f.ledger.EmitLive(vaultAddr, types.Event{Kind: types.DocumentAdded, Height: 5, DocID: docID(1), Description: "identity"})
	f.ledger.EmitLive(vaultAddr, types.Event{Kind: types.DocumentAdded, Height: 6, DocID: docID(2), Description: "diploma"})
	require.Eventually(t, func() bool { return f.session.Index().Len() == 2 }, time.Second, 5*time.Millisecond)

	_, err := f.session.Remove(ctx, docID(1))
	require.ErrorIs(t, err, ErrIdentityDocument)

	_, err = f.session.Remove(ctx, docID(9))
	require.ErrorIs(t, err, ErrUnknownDocument)

	updates, err := f.session.Remove(ctx, docID(2))
	require.NoError(t, err)
	last := drain(t, updates)
	assert.Equal(t, types.StageConfirmed, last.Stage)

	f.ledger.EmitLive(vaultAddr, types.Event{Kind: types.DocumentRemoved, Height: 8, DocID: docID(2)})
	require.Eventually(t, func() bool { return f.session.Index().Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSession_ViewerPaysForAccess(t *testing.T) {
	owner := common.HexToAddress("0xaa")
	viewer := common.HexToAddress("0xcc")
	vaultAddr := common.HexToAddress("0xbb")
	f := newSessionFixture(t, viewer, owner)
	f.ledger.SetRegistered(owner, true)
	f.ledger.SetVault(owner, vaultAddr)

	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx))
	f.waitPresent(t)

	f.ledger.EmitLive(vaultAddr, types.Event{Kind: types.DocumentAdded, Height: 5, DocID: docID(1), Description: "identity"})
	require.Eventually(t, func() bool { return f.session.Index().Len() == 1 }, time.Second, 5*time.Millisecond)

	// Mutation intents are owner-only.
	_, err := f.session.Upload(ctx, []byte("x"), "", nil)
	require.ErrorIs(t, err, ErrNotOwner)

	// The owner never opened paid access: nothing to pay, nothing to see.
	vm, err := f.session.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GrantUnpriced, vm.Grant)
	assert.Empty(t, vm.Documents)

	_, err = f.session.RequestAccess(ctx)
	require.Error(t, err)

	// Paid access opens at a price; the documents stay hidden until the
	// payment confirms.
	f.ledger.SetPriceQuote(owner, big.NewInt(100))
	vm, err = f.session.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GrantAwaitingPayment, vm.Grant)
	assert.Equal(t, big.NewInt(100), vm.PriceQuote)
	assert.Empty(t, vm.Documents)

	payUpdates, err := f.session.RequestAccess(ctx)
	require.NoError(t, err)
	last := drain(t, payUpdates)
	assert.Equal(t, types.StageConfirmed, last.Stage)

	vm, err = f.session.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GrantGranted, vm.Grant)
	require.Len(t, vm.Documents, 1)
	assert.Equal(t, "identity", vm.Documents[0].Description)
}

func TestSession_SetPriceIsOwnerOnly(t *testing.T) {
	owner := common.HexToAddress("0xaa")
	viewer := common.HexToAddress("0xcc")
	f := newSessionFixture(t, viewer, owner)
	f.ledger.SetRegistered(owner, true)

	_, err := f.session.SetPrice(context.Background(), big.NewInt(50))
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestSession_ClosedSessionRefusesIntents(t *testing.T) {
	owner := common.HexToAddress("0xaa")
	f := newSessionFixture(t, owner, owner)
	f.ledger.SetRegistered(owner, true)

	require.NoError(t, f.session.Start(context.Background()))
	f.session.Close()

	_, err := f.session.CreateVault(context.Background())
	require.ErrorIs(t, err, ErrSessionClosed)
	_, err = f.session.RequestAccess(context.Background())
	require.ErrorIs(t, err, ErrSessionClosed)
}
