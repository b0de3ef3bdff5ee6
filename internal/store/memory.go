package store

import (
	"context"
	"sync"

	"whisper.bot/internal/models"
)

// Compile-time interface check
var _ Backend = (*MemoryStore)(nil)

// MemoryStore has the FileStore semantics without durability.
type MemoryStore struct {
	whispers map[int64]models.Whisper
	users    map[int64]models.SavedMessage
	slots    bool
	mu       sync.RWMutex
}

func NewMemoryStore(savedMessages bool) *MemoryStore {
	return &MemoryStore{
		whispers: make(map[int64]models.Whisper),
		users:    make(map[int64]models.SavedMessage),
		slots:    savedMessages,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (models.Whisper, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.whispers[id]
	return w, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, w models.Whisper) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.whispers[w.ID] = w
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.whispers, id)
	return nil
}

// Take removes and returns the whisper at id.
func (s *MemoryStore) Take(ctx context.Context, id int64) (models.Whisper, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.whispers[id]
	if ok {
		delete(s.whispers, id)
	}
	return w, ok, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return countStats(s.whispers, s.users), nil
}

func (s *MemoryStore) Slot(ctx context.Context, userID int64) (models.SavedMessage, error) {
	if !s.slots {
		return models.SavedMessage{}, ErrSlotsDisabled
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.slot(userID), nil
}

func (s *MemoryStore) slot(userID int64) models.SavedMessage {
	if m, ok := s.users[userID]; ok {
		return m
	}
	return models.NewSavedMessage(userID)
}

func (s *MemoryStore) SaveMessage(ctx context.Context, userID int64, text string) (models.SavedMessage, error) {
	if !s.slots {
		return models.SavedMessage{}, ErrSlotsDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.slot(userID).WithText(text)
	s.users[userID] = m
	return m, nil
}

func (s *MemoryStore) ClearMessage(ctx context.Context, userID int64) (models.SavedMessage, error) {
	if !s.slots {
		return models.SavedMessage{}, ErrSlotsDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.slot(userID).Cleared()
	s.users[userID] = m
	return m, nil
}

// Close drops everything stored; the store stays usable and empty.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.whispers = make(map[int64]models.Whisper)
	s.users = make(map[int64]models.SavedMessage)
	return nil
}
