package vault

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blockchain "vaultsync/blockchain/client"
	"vaultsync/blockchain/types"
)

type memCache struct {
	mu     sync.Mutex
	events map[common.Address][]types.Event
	puts   int
}

func newMemCache() *memCache {
	return &memCache{events: make(map[common.Address][]types.Event)}
}

func (c *memCache) Events(vault common.Address) ([]types.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Event(nil), c.events[vault]...), nil
}

func (c *memCache) Put(vault common.Address, ev types.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[vault] = append(c.events[vault], ev)
	c.puts++
	return nil
}

func (c *memCache) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

func startReconciler(t *testing.T, rec *Reconciler, sink EventSink) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(ctx, sink)
	}()
	return func() {
		stop()
		<-done
	}
}

func TestReconciler_ReplayThenLive(t *testing.T) {
	ledger := blockchain.NewMockLedger(nil)
	vaultAddr := common.HexToAddress("0x1111")

	ledger.AppendPast(vaultAddr, addEvent(1, 0, docID(1), "identity"))
	ledger.AppendPast(vaultAddr, addEvent(3, 0, docID(2), "diploma"))

	x := NewIndex()
	rec := NewReconciler(ledger, vaultAddr, nil, nil, nil)
	stop := startReconciler(t, rec, x.Apply)
	defer stop()

	require.Eventually(t, func() bool { return x.Len() == 2 }, time.Second, 5*time.Millisecond)

	ledger.EmitLive(vaultAddr, addEvent(7, 0, docID(3), "certificate"))
	require.Eventually(t, func() bool { return x.Len() == 3 }, time.Second, 5*time.Millisecond)

	docs := x.LiveDocuments()
	assert.Equal(t, "identity", docs[0].Description)
	assert.Equal(t, "certificate", docs[2].Description)
}

func TestReconciler_OverlapDedupedByOrderKey(t *testing.T) {
	ledger := blockchain.NewMockLedger(nil)
	vaultAddr := common.HexToAddress("0x2222")

	// The same order key arrives through replay and through the live
	// channel; only the first application may stick.
	ev := addEvent(4, 1, docID(1), "identity")
	ledger.AppendPast(vaultAddr, ev)

	x := NewIndex()
	rec := NewReconciler(ledger, vaultAddr, nil, nil, nil)
	stop := startReconciler(t, rec, x.Apply)

	require.Eventually(t, func() bool { return x.Len() == 1 }, time.Second, 5*time.Millisecond)

	ledger.EmitLive(vaultAddr, ev)
	ledger.EmitLive(vaultAddr, addEvent(5, 0, docID(2), "diploma"))
	require.Eventually(t, func() bool { return x.Len() == 2 }, time.Second, 5*time.Millisecond)
	stop()

	assert.True(t, rec.Applied(ev.OrderKey()))
	assert.Equal(t, 2, x.Len())
}

func TestReconciler_WarmStartFromCache(t *testing.T) {
	ledger := blockchain.NewMockLedger(nil)
	vaultAddr := common.HexToAddress("0x3333")

	cache := newMemCache()
	require.NoError(t, cache.Put(vaultAddr, addEvent(2, 0, docID(1), "identity")))
	require.NoError(t, cache.Put(vaultAddr, addEvent(1, 0, docID(2), "older")))
	persistedBefore := cache.putCount()

	// The ledger replays the same history; the warm start must not double
	// apply and must not write cached events back to the cache.
	ledger.AppendPast(vaultAddr, addEvent(1, 0, docID(2), "older"))
	ledger.AppendPast(vaultAddr, addEvent(2, 0, docID(1), "identity"))

	x := NewIndex()
	rec := NewReconciler(ledger, vaultAddr, cache, nil, nil)
	stop := startReconciler(t, rec, x.Apply)

	require.Eventually(t, func() bool { return x.Len() == 2 }, time.Second, 5*time.Millisecond)

	// Cached events fold in order-key order regardless of insertion order.
	docs := x.LiveDocuments()
	assert.Equal(t, "older", docs[0].Description)
	assert.Equal(t, "identity", docs[1].Description)
	assert.Equal(t, persistedBefore, cache.putCount())

	// A genuinely new live event is persisted.
	ledger.EmitLive(vaultAddr, addEvent(9, 0, docID(3), "fresh"))
	require.Eventually(t, func() bool { return cache.putCount() == persistedBefore+1 }, time.Second, 5*time.Millisecond)
	stop()
}

func TestReconciler_DuplicateLiveDocumentKeepsStreamAlive(t *testing.T) {
	ledger := blockchain.NewMockLedger(nil)
	vaultAddr := common.HexToAddress("0x4444")

	ledger.AppendPast(vaultAddr, addEvent(1, 0, docID(1), "identity"))
	ledger.AppendPast(vaultAddr, addEvent(2, 0, docID(1), "identity dup"))
	ledger.AppendPast(vaultAddr, addEvent(3, 0, docID(2), "diploma"))

	x := NewIndex()
	rec := NewReconciler(ledger, vaultAddr, nil, nil, nil)
	stop := startReconciler(t, rec, x.Apply)
	defer stop()

	// The duplicate is rejected atomically; everything after it still folds.
	require.Eventually(t, func() bool { return x.Len() == 2 }, time.Second, 5*time.Millisecond)
	docs := x.LiveDocuments()
	assert.Equal(t, "identity", docs[0].Description)
	assert.Equal(t, "diploma", docs[1].Description)
}

func TestReconciler_MirrorsAppliedEvents(t *testing.T) {
	ledger := blockchain.NewMockLedger(nil)
	vaultAddr := common.HexToAddress("0x5555")

	ledger.AppendPast(vaultAddr, addEvent(1, 0, docID(1), "identity"))
	ledger.AppendPast(vaultAddr, addEvent(1, 0, docID(1), "identity")) // duplicate key never mirrors

	var mu sync.Mutex
	var mirrored []types.Event
	mirror := func(ev types.Event) {
		mu.Lock()
		mirrored = append(mirrored, ev)
		mu.Unlock()
	}

	x := NewIndex()
	rec := NewReconciler(ledger, vaultAddr, nil, mirror, nil)
	stop := startReconciler(t, rec, x.Apply)
	defer stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(mirrored) == 1
	}, time.Second, 5*time.Millisecond)
}
