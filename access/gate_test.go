package access

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blockchain "vaultsync/blockchain/client"
	"vaultsync/blockchain/types"
	"vaultsync/internal/models"
	"vaultsync/storage/store"
)

var (
	testViewer = common.HexToAddress("0x01")
	testOwner  = common.HexToAddress("0x02")
)

func TestGate_OwnerIsNotApplicable(t *testing.T) {
	g := NewGate(blockchain.NewMockLedger(nil), nil, nil)

	grant, err := g.Resolve(context.Background(), testOwner, testOwner)
	require.NoError(t, err)
	assert.Equal(t, models.GrantNotApplicable, grant.State)
}

func TestGate_UnpricedVault(t *testing.T) {
	g := NewGate(blockchain.NewMockLedger(nil), nil, nil)

	grant, err := g.Resolve(context.Background(), testViewer, testOwner)
	require.NoError(t, err)
	assert.Equal(t, models.GrantUnpriced, grant.State)
	assert.Nil(t, grant.Price)

	// No price means nothing to pay.
	_, err = g.RequestAccess(context.Background(), testViewer, testOwner)
	require.ErrorIs(t, err, ErrNotAwaitingPayment)
}

func TestGate_AwaitingPaymentCarriesQuote(t *testing.T) {
	ledger := blockchain.NewMockLedger(nil)
	ledger.SetPriceQuote(testOwner, big.NewInt(250))
	g := NewGate(ledger, nil, nil)

	grant, err := g.Resolve(context.Background(), testViewer, testOwner)
	require.NoError(t, err)
	assert.Equal(t, models.GrantAwaitingPayment, grant.State)
	assert.Equal(t, big.NewInt(250), grant.Price)
}

func TestGate_PaymentReachesGranted(t *testing.T) {
	ledger := blockchain.NewMockLedger(nil)
	ledger.SetAccount(testViewer)
	ledger.SetPriceQuote(testOwner, big.NewInt(250))
	journal := store.NewMemoryJournal()
	g := NewGate(ledger, journal, nil)

	updates, err := g.RequestAccess(context.Background(), testViewer, testOwner)
	require.NoError(t, err)

	var last types.TxUpdate
	for u := range updates {
		last = u
	}
	assert.Equal(t, types.StageConfirmed, last.Stage)

	grant, err := g.Resolve(context.Background(), testViewer, testOwner)
	require.NoError(t, err)
	assert.Equal(t, models.GrantGranted, grant.State)

	// Paying twice is refused.
	_, err = g.RequestAccess(context.Background(), testViewer, testOwner)
	require.ErrorIs(t, err, ErrNotAwaitingPayment)

	records := journal.Records()
	require.Len(t, records, 1)
	assert.Equal(t, store.KindRequestAccess, records[0].Kind)
	assert.Equal(t, store.StatusConfirmed, records[0].Status)
}

func TestGate_GrantedIsMonotonic(t *testing.T) {
	ledger := blockchain.NewMockLedger(nil)
	ledger.SetGrant(testViewer, testOwner, true)
	g := NewGate(ledger, nil, nil)

	grant, err := g.Resolve(context.Background(), testViewer, testOwner)
	require.NoError(t, err)
	assert.Equal(t, models.GrantGranted, grant.State)

	// Even if the ledger later denies the grant, the gate never walks a
	// session back from granted.
	ledger.SetGrant(testViewer, testOwner, false)
	grant, err = g.Resolve(context.Background(), testViewer, testOwner)
	require.NoError(t, err)
	assert.Equal(t, models.GrantGranted, grant.State)
}

func TestGate_FailedPaymentRevertsToAwaiting(t *testing.T) {
	ledger := blockchain.NewMockLedger(nil)
	ledger.SetAccount(testViewer)
	ledger.SetPriceQuote(testOwner, big.NewInt(250))
	ledger.ScriptSend(func(method string) []types.TxUpdate {
		return []types.TxUpdate{
			{Stage: types.StageSubmitted},
			{Stage: types.StageFailed, Err: assert.AnError},
		}
	})
	journal := store.NewMemoryJournal()
	g := NewGate(ledger, journal, nil)

	updates, err := g.RequestAccess(context.Background(), testViewer, testOwner)
	require.NoError(t, err)

	var last types.TxUpdate
	for u := range updates {
		last = u
	}
	require.Equal(t, types.StageFailed, last.Stage)
	assert.Error(t, last.Err)

	// The pair is payable again, and the journal kept the failure.
	grant, err := g.Resolve(context.Background(), testViewer, testOwner)
	require.NoError(t, err)
	assert.Equal(t, models.GrantAwaitingPayment, grant.State)

	records := journal.Records()
	require.Len(t, records, 1)
	assert.Equal(t, store.StatusFailed, records[0].Status)
}

func TestGate_PendingPaymentResolvesSubmitted(t *testing.T) {
	ledger := blockchain.NewMockLedger(nil)
	ledger.SetAccount(testViewer)
	ledger.SetPriceQuote(testOwner, big.NewInt(250))

	// Hold the stream open at Submitted by scripting only the first stage.
	ledger.ScriptSend(func(method string) []types.TxUpdate {
		return []types.TxUpdate{{Stage: types.StageSubmitted}}
	})
	g := NewGate(ledger, nil, nil)

	updates, err := g.RequestAccess(context.Background(), testViewer, testOwner)
	require.NoError(t, err)
	u := <-updates
	require.Equal(t, types.StageSubmitted, u.Stage)

	grant, err := g.Resolve(context.Background(), testViewer, testOwner)
	require.NoError(t, err)
	assert.Equal(t, models.GrantSubmitted, grant.State)
	assert.NotEmpty(t, grant.TxRef)
}
