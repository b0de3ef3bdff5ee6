package store

import (
	"context"
	"errors"

	"whisper.bot/internal/models"
)

var (
	// ErrPersist wraps a failed write of the backing storage. The mutation
	// that caused it has not been applied.
	ErrPersist = errors.New("persisting whispers failed")

	ErrSlotsDisabled = errors.New("saved messages are disabled")
)

// Store keeps whispers keyed by carrier message id.
type Store interface {
	// Get reports absence with ok == false; err is reserved for backend failures.
	Get(ctx context.Context, id int64) (w models.Whisper, ok bool, err error)
	Put(ctx context.Context, w models.Whisper) error
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// SlotStore keeps at most one saved message per user. A slot is recorded
// by its first SaveMessage or ClearMessage; Stats.Users counts only those.
type SlotStore interface {
	// Slot returns the user's slot, or an empty one if none is recorded.
	Slot(ctx context.Context, userID int64) (models.SavedMessage, error)
	SaveMessage(ctx context.Context, userID int64, text string) (models.SavedMessage, error)
	ClearMessage(ctx context.Context, userID int64) (models.SavedMessage, error)
}

// Taker is implemented by stores that can read and remove a whisper in one
// atomic step.
type Taker interface {
	Take(ctx context.Context, id int64) (w models.Whisper, ok bool, err error)
}

type Backend interface {
	Store
	SlotStore
}

type Stats struct {
	Whispers      int `json:"whispers"`
	Users         int `json:"users"`
	SavedMessages int `json:"saved_messages"`
}
