package contentstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultsync/codec"
)

func TestMemoryStore_PutAddressesByContent(t *testing.T) {
	s := NewMemoryStore()
	payload := []byte("identity scan")

	addr, err := s.Put(context.Background(), payload)
	require.NoError(t, err)

	want, err := codec.AddressOf(payload)
	require.NoError(t, err)
	assert.Equal(t, want, addr)
	assert.Equal(t, payload, s.Get(addr))

	// Same content, same address.
	again, err := s.Put(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, []byte("x"))
	require.Error(t, err)
}
