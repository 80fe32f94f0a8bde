package codec_test

import (
	"crypto/sha256"
	"testing"

	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultsync/blockchain/types"
	"vaultsync/codec"
)

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("hello world"),
		[]byte(""),
		[]byte("identity document scan"),
		make([]byte, 1024),
	}

	for _, p := range payloads {
		addr, err := codec.AddressOf(p)
		require.NoError(t, err)

		id, err := codec.FromContentAddress(addr)
		require.NoError(t, err)

		assert.Equal(t, addr, codec.ToContentAddress(id))
	}
}

func TestFromContentAddress_DigestMatchesSha256(t *testing.T) {
	payload := []byte("hello world")
	addr, err := codec.AddressOf(payload)
	require.NoError(t, err)

	id, err := codec.FromContentAddress(addr)
	require.NoError(t, err)

	want := sha256.Sum256(payload)
	assert.Equal(t, want[:], id[:])
}

func TestFromContentAddress_RejectsOtherHashFunctions(t *testing.T) {
	// A sha1 multihash is a valid content address but cannot be stored in a
	// 32-byte on-chain key.
	mh, err := multihash.Sum([]byte("hello world"), multihash.SHA1, -1)
	require.NoError(t, err)

	_, err = codec.FromContentAddress(mh.B58String())
	assert.ErrorIs(t, err, codec.ErrUnsupportedEncoding)
}

func TestFromContentAddress_RejectsGarbage(t *testing.T) {
	_, err := codec.FromContentAddress("not-a-content-address-!!")
	assert.Error(t, err)

	_, err = codec.FromContentAddress("")
	assert.Error(t, err)
}

func TestToContentAddress_IsTotal(t *testing.T) {
	// Every 32-byte value decodes to some address, including the zero value.
	addr := codec.ToContentAddress(types.DocumentID{})
	require.NotEmpty(t, addr)

	id, err := codec.FromContentAddress(addr)
	require.NoError(t, err)
	assert.Equal(t, types.DocumentID{}, id)
}
