package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJournal_Lifecycle(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()

	require.NoError(t, j.RecordSubmitted(ctx, "ref-1", KindAddDocument, "0xabc"))

	rec, err := j.Get(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, rec.Status)
	assert.Equal(t, KindAddDocument, rec.Kind)
	assert.Equal(t, "0xabc", rec.TxHash)

	require.NoError(t, j.MarkConfirmed(ctx, "ref-1", 42))
	rec, err = j.Get(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, rec.Status)
	assert.Equal(t, uint64(42), rec.Height)
}

func TestMemoryJournal_Failure(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()

	require.NoError(t, j.RecordSubmitted(ctx, "ref-1", KindRequestAccess, "0xabc"))
	require.NoError(t, j.MarkFailed(ctx, "ref-1", "execution reverted"))

	rec, err := j.Get(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "execution reverted", rec.Error)
}

func TestMemoryJournal_DuplicateRefRejected(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()

	require.NoError(t, j.RecordSubmitted(ctx, "ref-1", KindCreateVault, "0xabc"))
	require.Error(t, j.RecordSubmitted(ctx, "ref-1", KindCreateVault, "0xdef"))
}

func TestMemoryJournal_UnknownRef(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()

	_, err := j.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, j.MarkConfirmed(ctx, "missing", 1), ErrNotFound)
	require.ErrorIs(t, j.MarkFailed(ctx, "missing", "boom"), ErrNotFound)

	// Get returns a copy; mutating it does not touch the journal.
	require.NoError(t, j.RecordSubmitted(ctx, "ref-1", KindSetPrice, "0xabc"))
	rec, err := j.Get(ctx, "ref-1")
	require.NoError(t, err)
	rec.Status = StatusFailed
	rec2, err := j.Get(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, rec2.Status)
}
