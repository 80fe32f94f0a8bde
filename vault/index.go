package vault

import (
	"errors"
	"fmt"
	"sync"

	"vaultsync/blockchain/types"
	"vaultsync/codec"
	"vaultsync/internal/models"
)

// ErrDuplicateLiveDocument is returned when an Add arrives for an ID that
// already has a live record. It signals an upstream invariant violation (the
// ledger contract never emits two Adds without a Remove in between), not a
// user error; the index is left unchanged.
var ErrDuplicateLiveDocument = errors.New("vault: duplicate live document")

// document is the materialized record for one on-chain ID. Removal only
// flips alive; the record stays so a later Add can resurrect the ID as a
// fresh record with accurate ordering.
type document struct {
	id          types.DocumentID
	description string
	keywords    map[uint32]string
	maxKeyword  uint32
	hasKeywords bool
	alive       bool
	firstAdd    types.OrderKey
}

// Index is the live fold of the reconciled mutation stream for one vault.
// Apply calls must be serialized by the caller (the reconciler confines the
// fold to its run loop); the internal mutex only protects snapshot reads
// issued from other goroutines.
type Index struct {
	mu    sync.RWMutex
	docs  map[types.DocumentID]*document
	order []types.DocumentID // insertion order of the current live interval
}

// NewIndex creates an empty document index.
func NewIndex() *Index {
	return &Index{
		docs: make(map[types.DocumentID]*document),
	}
}

// Apply folds one mutation into the index. Replays of an already-applied
// order key must be filtered upstream; Apply assumes each event it sees is
// new. A failed Apply leaves the index unchanged.
func (x *Index) Apply(ev types.Event) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	switch ev.Kind {
	case types.DocumentAdded:
		return x.applyAdd(ev)
	case types.DocumentRemoved:
		return x.applyRemove(ev)
	case types.KeywordAdded:
		return x.applyKeyword(ev)
	default:
		// Lifecycle events are not index mutations.
		return nil
	}
}

func (x *Index) applyAdd(ev types.Event) error {
	if existing, ok := x.docs[ev.DocID]; ok && existing.alive {
		return fmt.Errorf("%w: %s", ErrDuplicateLiveDocument, ev.DocID.Hex())
	}

	// A fresh record, whether this is the first Add or a resurrection after
	// a tombstone. Keywords of the previous interval do not carry over.
	x.docs[ev.DocID] = &document{
		id:          ev.DocID,
		description: ev.Description,
		keywords:    make(map[uint32]string),
		alive:       true,
		firstAdd:    ev.OrderKey(),
	}
	x.order = append(x.order, ev.DocID)
	return nil
}

func (x *Index) applyRemove(ev types.Event) error {
	doc, ok := x.docs[ev.DocID]
	if !ok || !doc.alive {
		// Removing an unknown or already-dead document is a no-op; the
		// tombstone semantics make it safe under replay reordering.
		return nil
	}
	doc.alive = false
	x.dropFromOrder(ev.DocID)
	return nil
}

func (x *Index) applyKeyword(ev types.Event) error {
	doc, ok := x.docs[ev.DocID]
	if !ok || !doc.alive {
		return nil
	}
	// Last writer wins per index slot.
	doc.keywords[ev.KeywordIndex] = ev.Keyword
	if !doc.hasKeywords || ev.KeywordIndex > doc.maxKeyword {
		doc.maxKeyword = ev.KeywordIndex
	}
	doc.hasKeywords = true
	return nil
}

func (x *Index) dropFromOrder(id types.DocumentID) {
	for i, other := range x.order {
		if other == id {
			x.order = append(x.order[:i], x.order[i+1:]...)
			return
		}
	}
}

// LiveDocuments returns the live records in first-Add order. Keyword edits
// never re-sort the list.
func (x *Index) LiveDocuments() []models.Document {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]models.Document, 0, len(x.order))
	for _, id := range x.order {
		doc := x.docs[id]
		if doc == nil || !doc.alive {
			continue
		}
		out = append(out, models.Document{
			ID:             doc.id,
			ContentAddress: codec.ToContentAddress(doc.id),
			Description:    doc.description,
			Keywords:       doc.keywordSlice(),
		})
	}
	return out
}

// KeywordsOf returns a document's keywords ordered by keyword index. Absent
// slots below the maximum are skipped.
func (x *Index) KeywordsOf(id types.DocumentID) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	doc, ok := x.docs[id]
	if !ok || !doc.alive {
		return nil
	}
	return doc.keywordSlice()
}

// IsLive reports whether the ID currently has a live record.
func (x *Index) IsLive(id types.DocumentID) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	doc, ok := x.docs[id]
	return ok && doc.alive
}

// Len returns the number of live documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.order)
}

// FirstLive returns the oldest live document ID, if any. The first document
// of a vault is the identity document and is treated specially by the
// session's remove intent.
func (x *Index) FirstLive() (types.DocumentID, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.order) == 0 {
		return types.DocumentID{}, false
	}
	return x.order[0], true
}

func (d *document) keywordSlice() []string {
	if !d.hasKeywords {
		return nil
	}
	out := make([]string, 0, len(d.keywords))
	for i := uint32(0); i <= d.maxKeyword; i++ {
		if kw, ok := d.keywords[i]; ok {
			out = append(out, kw)
		}
	}
	return out
}
