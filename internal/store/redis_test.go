package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper.bot/internal/store"
)

func newRedisStore(t *testing.T, slots bool) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	s, err := store.NewRedisStore(&redis.Options{Addr: mr.Addr()}, slots)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, true)

	w := mustWhisper(t, 1001, 5, 9, "привет", false)
	require.NoError(t, s.Put(ctx, w))

	raw, err := mr.Get("whisper:1001")
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"привет","owner":5,"viewer":9,"once":false}`, raw)

	got, ok, err := s.Get(ctx, 1001)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, w, got)

	_, ok, err = s.Get(ctx, 404)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, 1001))
	require.NoError(t, s.Delete(ctx, 1001))
	_, ok, err = s.Get(ctx, 1001)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Take(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, true)

	w := mustWhisper(t, 2002, 5, 9, "secret", true)
	require.NoError(t, s.Put(ctx, w))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		texts []string
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok, err := s.Take(ctx, 2002)
			if err != nil || !ok {
				return
			}
			mu.Lock()
			wins++
			texts = append(texts, got.Text)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one caller takes a whisper")
	assert.Equal(t, []string{"secret"}, texts)
	assert.False(t, mr.Exists("whisper:2002"))
}

func TestRedisStore_MalformedRecord(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, true)

	require.NoError(t, mr.Set("whisper:1", `{"text":"x"}`))

	_, _, err := s.Get(ctx, 1)
	assert.Error(t, err)
}

func TestRedisStore_SavedMessages(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, true)

	slot, err := s.Slot(ctx, 5)
	require.NoError(t, err)
	assert.False(t, slot.HasText())
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Users, "reading a slot does not record it")

	_, err = s.SaveMessage(ctx, 5, "draft")
	require.NoError(t, err)
	slot, err = s.Slot(ctx, 5)
	require.NoError(t, err)
	require.True(t, slot.HasText())
	assert.Equal(t, "draft", *slot.Text)

	_, err = s.ClearMessage(ctx, 5)
	require.NoError(t, err)
	slot, err = s.Slot(ctx, 5)
	require.NoError(t, err)
	assert.False(t, slot.HasText())

	_, err = s.SaveMessage(ctx, 6, "other")
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, mustWhisper(t, 1, 5, 9, "x", false)))

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{Whispers: 1, Users: 2, SavedMessages: 1}, st)
}

func TestRedisStore_SavedMessagesDisabled(t *testing.T) {
	s, _ := newRedisStore(t, false)

	_, err := s.SaveMessage(context.Background(), 5, "x")
	assert.ErrorIs(t, err, store.ErrSlotsDisabled)
}
