package reveal

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper.bot/internal/models"
	"whisper.bot/internal/store"
)

// backends runs each test against a store without Take (file) and one with it (memory).
func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	fs, err := store.OpenFileStore(context.Background(), store.FileOptions{
		Path:   filepath.Join(t.TempDir(), "whispers.json"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	return map[string]store.Store{
		"file":   fs,
		"memory": store.NewMemoryStore(false),
	}
}

func put(t *testing.T, s store.Store, id, owner, viewer int64, text string, once bool) {
	t.Helper()
	w, err := models.NewWhisper(id, owner, viewer, text, once)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), w))
}

func reveal(t *testing.T, e *Engine, requester, id int64) Result {
	t.Helper()
	res, err := e.Reveal(context.Background(), requester, id)
	require.NoError(t, err)
	return res
}

func TestReveal_Reusable(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s, 1001, 5, 9, "hi", false)
			e := NewEngine(s, zerolog.Nop())

			for _, requester := range []int64{5, 9, 9, 5, 9} {
				res := reveal(t, e, requester, 1001)
				assert.Equal(t, Revealed, res.Outcome)
				assert.Equal(t, "hi", res.Whisper.Text)
				assert.False(t, res.Consumed)
			}
		})
	}
}

func TestReveal_OneTime(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s, 2002, 5, 9, "secret", true)
			e := NewEngine(s, zerolog.Nop())

			res := reveal(t, e, 9, 2002)
			assert.Equal(t, Revealed, res.Outcome)
			assert.Equal(t, "secret", res.Whisper.Text)
			assert.True(t, res.Whisper.Once)
			assert.True(t, res.Consumed)

			assert.Equal(t, NotFound, reveal(t, e, 9, 2002).Outcome)
			assert.Equal(t, NotFound, reveal(t, e, 5, 2002).Outcome)
		})
	}
}

func TestReveal_OwnerNeverConsumes(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s, 2002, 5, 9, "secret", true)
			e := NewEngine(s, zerolog.Nop())

			for i := 0; i < 3; i++ {
				res := reveal(t, e, 5, 2002)
				assert.Equal(t, Revealed, res.Outcome)
				assert.False(t, res.Consumed)
			}
			assert.True(t, reveal(t, e, 9, 2002).Consumed)
		})
	}
}

func TestReveal_Forbidden(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s, 3003, 5, 9, "hidden", false)
			put(t, s, 3004, 5, 9, "hidden once", true)
			e := NewEngine(s, zerolog.Nop())

			res := reveal(t, e, 7, 3003)
			assert.Equal(t, Forbidden, res.Outcome)
			assert.Empty(t, res.Whisper.Text)

			assert.Equal(t, Forbidden, reveal(t, e, 7, 3004).Outcome)
			assert.Equal(t, Revealed, reveal(t, e, 9, 3004).Outcome, "a forbidden read must not consume")
		})
	}
}

func TestReveal_NotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			e := NewEngine(s, zerolog.Nop())
			assert.Equal(t, NotFound, reveal(t, e, 5, 404).Outcome)

			put(t, s, 1, 5, 9, "x", false)
			require.NoError(t, s.Delete(context.Background(), 1))
			assert.Equal(t, NotFound, reveal(t, e, 5, 1).Outcome)
		})
	}
}

func TestReveal_SelfWhisperConsumes(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s, 4004, 5, 5, "note to self", true)
			e := NewEngine(s, zerolog.Nop())

			assert.True(t, reveal(t, e, 5, 4004).Consumed)
			assert.Equal(t, NotFound, reveal(t, e, 5, 4004).Outcome)
		})
	}
}

func TestReveal_ConcurrentViewersConsumeOnce(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s, 5005, 5, 9, "race", true)
			e := NewEngine(s, zerolog.Nop())

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				revealed int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := e.Reveal(context.Background(), 9, 5005)
					if err != nil || res.Outcome != Revealed {
						return
					}
					mu.Lock()
					revealed++
					mu.Unlock()
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, revealed)
		})
	}
}

func TestRetract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			put(t, s, 6006, 5, 9, "oops", false)
			e := NewEngine(s, zerolog.Nop())
			ctx := context.Background()

			res, err := e.Retract(ctx, 9, 6006)
			require.NoError(t, err)
			assert.Equal(t, Forbidden, res.Outcome, "only the owner may retract")

			res, err = e.Retract(ctx, 5, 6006)
			require.NoError(t, err)
			assert.Equal(t, Retracted, res.Outcome)
			assert.Equal(t, "oops", res.Whisper.Text)

			res, err = e.Retract(ctx, 5, 6006)
			require.NoError(t, err)
			assert.Equal(t, NotFound, res.Outcome)
			assert.Equal(t, NotFound, reveal(t, e, 9, 6006).Outcome)
		})
	}
}

type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Delete(ctx context.Context, id int64) error {
	return f.err
}

func TestReveal_DeleteFailureRevealsNothing(t *testing.T) {
	mem := store.NewMemoryStore(false)
	put(t, mem, 2002, 5, 9, "secret", true)

	// Wrapping hides MemoryStore.Take, forcing the Delete path.
	errDisk := errors.New("disk full")
	e := NewEngine(failingStore{Store: mem, err: errDisk}, zerolog.Nop())

	res, err := e.Reveal(context.Background(), 9, 2002)
	require.ErrorIs(t, err, errDisk)
	assert.Empty(t, res.Whisper.Text)

	_, ok, err := mem.Get(context.Background(), 2002)
	require.NoError(t, err)
	assert.True(t, ok, "whisper stays active when consumption fails")
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "forbidden", Forbidden.String())
	assert.Equal(t, "revealed", Revealed.String())
	assert.Equal(t, "retracted", Retracted.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}

func TestCreate_RejectsUsedIDs(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := NewEngine(s, zerolog.Nop())

			w, err := models.NewWhisper(1001, 5, 9, "hi", false)
			require.NoError(t, err)
			require.NoError(t, e.Create(ctx, w))

			forged, err := models.NewWhisper(1001, 7, 9, "forged", false)
			require.NoError(t, err)
			assert.ErrorIs(t, e.Create(ctx, forged), ErrExists)
			assert.Equal(t, "hi", reveal(t, e, 9, 1001).Whisper.Text)

			once, err := models.NewWhisper(2002, 5, 9, "secret", true)
			require.NoError(t, err)
			require.NoError(t, e.Create(ctx, once))
			require.True(t, reveal(t, e, 9, 2002).Consumed)
			assert.ErrorIs(t, e.Create(ctx, once), ErrExists, "consumed ids stay absent")
			assert.Equal(t, NotFound, reveal(t, e, 9, 2002).Outcome)

			res, err := e.Retract(ctx, 5, 1001)
			require.NoError(t, err)
			require.Equal(t, Retracted, res.Outcome)
			assert.ErrorIs(t, e.Create(ctx, w), ErrExists, "retracted ids stay absent")
		})
	}
}

// lostRaceStore finds the whisper on Get but loses it before Take.
type lostRaceStore struct {
	store.Store
}

func (lostRaceStore) Take(ctx context.Context, id int64) (models.Whisper, bool, error) {
	return models.Whisper{}, false, nil
}

func TestReveal_TakeLostRace(t *testing.T) {
	mem := store.NewMemoryStore(false)
	put(t, mem, 2002, 5, 9, "secret", true)
	e := NewEngine(lostRaceStore{Store: mem}, zerolog.Nop())

	res := reveal(t, e, 9, 2002)
	assert.Equal(t, NotFound, res.Outcome)
	assert.False(t, res.Consumed)
	assert.Empty(t, res.Whisper.Text)
}
