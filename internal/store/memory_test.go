package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper.bot/internal/store"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(true)

	w := mustWhisper(t, 1001, 5, 9, "hi", true)
	require.NoError(t, s.Put(ctx, w))

	got, ok, err := s.Get(ctx, 1001)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, w, got)

	taken, ok, err := s.Take(ctx, 1001)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, w, taken)

	_, ok, err = s.Take(ctx, 1001)
	require.NoError(t, err)
	assert.False(t, ok, "a whisper can only be taken once")

	require.NoError(t, s.Delete(ctx, 1001))
}

func TestMemoryStore_SavedMessages(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(true)

	_, err := s.Slot(ctx, 7)
	require.NoError(t, err)
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Users, "reading a slot does not record it")

	_, err = s.SaveMessage(ctx, 5, "draft")
	require.NoError(t, err)
	slot, err := s.Slot(ctx, 5)
	require.NoError(t, err)
	require.True(t, slot.HasText())
	assert.Equal(t, "draft", *slot.Text)

	_, err = s.ClearMessage(ctx, 5)
	require.NoError(t, err)
	slot, err = s.Slot(ctx, 5)
	require.NoError(t, err)
	assert.False(t, slot.HasText())

	_, err = store.NewMemoryStore(false).Slot(ctx, 5)
	assert.ErrorIs(t, err, store.ErrSlotsDisabled)
}

func TestMemoryStore_UsableAfterClose(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(true)
	require.NoError(t, s.Put(ctx, mustWhisper(t, 1, 5, 9, "x", false)))

	require.NoError(t, s.Close())

	_, ok, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, mustWhisper(t, 2, 5, 9, "y", false)))
	_, err = s.SaveMessage(ctx, 5, "draft")
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{Whispers: 1, Users: 1, SavedMessages: 1}, st)
}
