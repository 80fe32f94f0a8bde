// Package codec converts between self-describing content addresses and the
// fixed-width document IDs stored on the ledger. The ledger contract only has
// room for the 32-byte digest, so the two-byte multihash prefix (hash
// function code and digest length) is stripped on the way in and re-prepended
// on the way out, under the single convention the contract assumes:
// sha2-256 with a 32-byte digest.
package codec

import (
	"errors"
	"fmt"

	"github.com/multiformats/go-multihash"

	"vaultsync/blockchain/types"
)

// ErrUnsupportedEncoding is returned for content addresses whose hash
// function or digest length does not match the on-chain convention. Such
// addresses cannot round-trip through a DocumentID and must not be stored.
var ErrUnsupportedEncoding = errors.New("codec: content address does not use sha2-256/32")

// FromContentAddress projects a base58 multihash content address onto the
// fixed-width on-chain key by stripping the function-code/length prefix.
func FromContentAddress(addr string) (types.DocumentID, error) {
	var id types.DocumentID

	mh, err := multihash.FromB58String(addr)
	if err != nil {
		return id, fmt.Errorf("codec: malformed content address %q: %w", addr, err)
	}
	decoded, err := multihash.Decode(mh)
	if err != nil {
		return id, fmt.Errorf("codec: undecodable content address %q: %w", addr, err)
	}
	if decoded.Code != multihash.SHA2_256 || decoded.Length != len(id) {
		return id, fmt.Errorf("%w (code=0x%x length=%d)", ErrUnsupportedEncoding, decoded.Code, decoded.Length)
	}

	copy(id[:], decoded.Digest)
	return id, nil
}

// ToContentAddress re-prepends the sha2-256/32 prefix and renders the base58
// content address. It is total: every DocumentID yields an address, under
// the assumption that all stored IDs were produced by FromContentAddress.
func ToContentAddress(id types.DocumentID) string {
	mh, err := multihash.Encode(id[:], multihash.SHA2_256)
	if err != nil {
		// Encode only fails on unknown codes; SHA2_256 is always known.
		panic(fmt.Sprintf("codec: multihash encode: %v", err))
	}
	return multihash.Multihash(mh).B58String()
}

// AddressOf computes the content address of a payload under the on-chain
// convention, without touching the content store. Useful for verifying an
// upload result against the bytes that were sent.
func AddressOf(payload []byte) (string, error) {
	mh, err := multihash.Sum(payload, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("codec: hashing payload: %w", err)
	}
	return mh.B58String(), nil
}
