// Package contentstore abstracts the content-addressable store document
// payloads live in. Content is immutable and globally retrievable by address
// once Put succeeds; nothing in this engine ever needs to read it back.
package contentstore

import "context"

// ContentStore stores payloads by their self-describing content address.
type ContentStore interface {
	// Put stores the payload and returns its content address.
	Put(ctx context.Context, payload []byte) (string, error)
}
