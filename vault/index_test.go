package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultsync/blockchain/types"
)

func docID(b byte) types.DocumentID {
	var id types.DocumentID
	id[0] = b
	return id
}

func addEvent(h uint64, li uint, id types.DocumentID, desc string) types.Event {
	return types.Event{Kind: types.DocumentAdded, Height: h, LogIndex: li, DocID: id, Description: desc}
}

func removeEvent(h uint64, li uint, id types.DocumentID) types.Event {
	return types.Event{Kind: types.DocumentRemoved, Height: h, LogIndex: li, DocID: id}
}

func keywordEvent(h uint64, li uint, id types.DocumentID, kw string, slot uint32) types.Event {
	return types.Event{Kind: types.KeywordAdded, Height: h, LogIndex: li, DocID: id, Keyword: kw, KeywordIndex: slot}
}

func TestIndex_AddAndList(t *testing.T) {
	x := NewIndex()

	require.NoError(t, x.Apply(addEvent(1, 0, docID(1), "passport")))
	require.NoError(t, x.Apply(addEvent(2, 0, docID(2), "diploma")))

	docs := x.LiveDocuments()
	require.Len(t, docs, 2)
	assert.Equal(t, "passport", docs[0].Description)
	assert.Equal(t, "diploma", docs[1].Description)
	assert.Equal(t, 2, x.Len())
}

func TestIndex_DuplicateLiveAddRejected(t *testing.T) {
	x := NewIndex()

	require.NoError(t, x.Apply(addEvent(1, 0, docID(1), "passport")))
	err := x.Apply(addEvent(5, 0, docID(1), "passport again"))
	require.ErrorIs(t, err, ErrDuplicateLiveDocument)

	// The rejected event left no trace.
	docs := x.LiveDocuments()
	require.Len(t, docs, 1)
	assert.Equal(t, "passport", docs[0].Description)
}

func TestIndex_RemoveIsTombstone(t *testing.T) {
	x := NewIndex()

	require.NoError(t, x.Apply(addEvent(1, 0, docID(1), "passport")))
	require.NoError(t, x.Apply(removeEvent(2, 0, docID(1))))

	assert.False(t, x.IsLive(docID(1)))
	assert.Empty(t, x.LiveDocuments())

	// Removing again, or removing an unknown ID, is a no-op.
	require.NoError(t, x.Apply(removeEvent(3, 0, docID(1))))
	require.NoError(t, x.Apply(removeEvent(3, 1, docID(9))))
}

func TestIndex_ResurrectionIsFreshRecord(t *testing.T) {
	x := NewIndex()

	require.NoError(t, x.Apply(addEvent(1, 0, docID(1), "passport")))
	require.NoError(t, x.Apply(keywordEvent(2, 0, docID(1), "travel", 0)))
	require.NoError(t, x.Apply(addEvent(3, 0, docID(2), "diploma")))
	require.NoError(t, x.Apply(removeEvent(4, 0, docID(1))))

	// Resurrect after the tombstone: fresh description, no inherited
	// keywords, and ordering by the new first-Add position.
	require.NoError(t, x.Apply(addEvent(5, 0, docID(1), "passport v2")))

	docs := x.LiveDocuments()
	require.Len(t, docs, 2)
	assert.Equal(t, "diploma", docs[0].Description)
	assert.Equal(t, "passport v2", docs[1].Description)
	assert.Empty(t, docs[1].Keywords)
}

func TestIndex_KeywordSlots(t *testing.T) {
	x := NewIndex()

	require.NoError(t, x.Apply(addEvent(1, 0, docID(1), "passport")))
	require.NoError(t, x.Apply(keywordEvent(2, 0, docID(1), "a", 0)))
	require.NoError(t, x.Apply(keywordEvent(2, 1, docID(1), "b", 1)))

	// Last writer wins on slot 0; slot order survives.
	require.NoError(t, x.Apply(keywordEvent(3, 0, docID(1), "c", 0)))
	assert.Equal(t, []string{"c", "b"}, x.KeywordsOf(docID(1)))

	// Keywords for a dead document are dropped.
	require.NoError(t, x.Apply(removeEvent(4, 0, docID(1))))
	require.NoError(t, x.Apply(keywordEvent(5, 0, docID(1), "late", 2)))
	assert.Nil(t, x.KeywordsOf(docID(1)))
}

func TestIndex_KeywordEditsDoNotResort(t *testing.T) {
	x := NewIndex()

	require.NoError(t, x.Apply(addEvent(1, 0, docID(1), "first")))
	require.NoError(t, x.Apply(addEvent(2, 0, docID(2), "second")))
	require.NoError(t, x.Apply(keywordEvent(3, 0, docID(2), "tag", 0)))

	docs := x.LiveDocuments()
	require.Len(t, docs, 2)
	assert.Equal(t, "first", docs[0].Description)
	assert.Equal(t, "second", docs[1].Description)
}

func TestIndex_FirstLive(t *testing.T) {
	x := NewIndex()

	_, ok := x.FirstLive()
	assert.False(t, ok)

	require.NoError(t, x.Apply(addEvent(1, 0, docID(1), "identity")))
	require.NoError(t, x.Apply(addEvent(2, 0, docID(2), "diploma")))

	first, ok := x.FirstLive()
	require.True(t, ok)
	assert.Equal(t, docID(1), first)

	// When the oldest entry dies the next oldest becomes first.
	require.NoError(t, x.Apply(removeEvent(3, 0, docID(1))))
	first, ok = x.FirstLive()
	require.True(t, ok)
	assert.Equal(t, docID(2), first)
}
