package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"whisper.bot/internal/metrics"
	"whisper.bot/internal/models"
)

// BackupSuffix is appended to a data file that could not be loaded.
const BackupSuffix = ".bak"

const fileMode = 0o600

// Compile-time interface checks
var (
	_ Backend = (*FileStore)(nil)
)

type FileOptions struct {
	Path          string
	SavedMessages bool
	Logger        zerolog.Logger
}

// FileStore keeps the whole index in memory and rewrites a single JSON file
// after every mutation. All methods are serialised on one mutex.
type FileStore struct {
	path   string
	slots  bool
	logger zerolog.Logger

	mu       sync.Mutex
	whispers map[int64]models.Whisper
	users    map[int64]models.SavedMessage
}

// OpenFileStore loads the data file at opts.Path, recovering to an empty
// store if it is missing or unreadable. The only error is a failed write.
func OpenFileStore(ctx context.Context, opts FileOptions) (*FileStore, error) {
	dir := filepath.Dir(opts.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	s := &FileStore{
		path:   opts.Path,
		slots:  opts.SavedMessages,
		logger: opts.Logger.With().Str("component", "store").Str("path", opts.Path).Logger(),
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the data file.
func (s *FileStore) Path() string {
	return s.path
}

// Load replaces the in-memory index with the contents of the data file.
func (s *FileStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.recover(err)
	}
	whispers, users, err := decodeDocument(data)
	if err != nil {
		return s.recover(err)
	}

	s.whispers = whispers
	s.users = users

	s.logger.Info().
		Int("whispers", len(whispers)).
		Int("users", len(users)).
		Msg("whispers loaded")

	// Rewrite in canonical form.
	return s.persist()
}

// Recover backs up the current data file and starts over with an empty
// store. reason is only logged.
func (s *FileStore) Recover(ctx context.Context, reason error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recover(reason)
}

func (s *FileStore) recover(reason error) error {
	metrics.StoreRecoveries.Inc()

	if exists(s.path) {
		backup := s.path + BackupSuffix
		if err := os.Rename(s.path, backup); err != nil {
			return fmt.Errorf("backing up %s: %w", s.path, err)
		}
		s.logger.Warn().
			Err(reason).
			Str("backup", backup).
			Msg("data file unreadable, backed up and reset")
	} else {
		s.logger.Warn().Err(reason).Msg("data file missing, starting empty")
	}

	s.whispers = make(map[int64]models.Whisper)
	s.users = make(map[int64]models.SavedMessage)

	return s.persist()
}

func (s *FileStore) persist() error {
	data, err := encodeDocument(s.whispers, s.users)
	if err == nil {
		err = replaceFile(s.path, data, fileMode)
	}
	if err != nil {
		metrics.StorePersistFailures.Inc()
		s.logger.Error().Err(err).Msg("failed to write data file")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, id int64) (models.Whisper, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.whispers[id]
	return w, ok, nil
}

func (s *FileStore) Put(ctx context.Context, w models.Whisper) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.whispers[w.ID]
	s.whispers[w.ID] = w

	if err := s.persist(); err != nil {
		if had {
			s.whispers[w.ID] = prev
		} else {
			delete(s.whispers, w.ID)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.whispers[id]
	if !ok {
		return nil
	}
	delete(s.whispers, id)

	if err := s.persist(); err != nil {
		s.whispers[id] = prev
		return err
	}
	return nil
}

func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return countStats(s.whispers, s.users), nil
}

func (s *FileStore) Slot(ctx context.Context, userID int64) (models.SavedMessage, error) {
	if !s.slots {
		return models.SavedMessage{}, ErrSlotsDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.slot(userID), nil
}

func (s *FileStore) slot(userID int64) models.SavedMessage {
	if m, ok := s.users[userID]; ok {
		return m
	}
	return models.NewSavedMessage(userID)
}

func (s *FileStore) SaveMessage(ctx context.Context, userID int64, text string) (models.SavedMessage, error) {
	return s.updateSlot(userID, func(m models.SavedMessage) models.SavedMessage {
		return m.WithText(text)
	})
}

func (s *FileStore) ClearMessage(ctx context.Context, userID int64) (models.SavedMessage, error) {
	return s.updateSlot(userID, models.SavedMessage.Cleared)
}

func (s *FileStore) updateSlot(userID int64, fn func(models.SavedMessage) models.SavedMessage) (models.SavedMessage, error) {
	if !s.slots {
		return models.SavedMessage{}, ErrSlotsDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.users[userID]
	next := fn(s.slot(userID))
	s.users[userID] = next

	if err := s.persist(); err != nil {
		if had {
			s.users[userID] = prev
		} else {
			delete(s.users, userID)
		}
		return models.SavedMessage{}, err
	}
	return next, nil
}

// Close is a no-op; every mutation is already on disk.
func (s *FileStore) Close() error {
	return nil
}

func countStats(whispers map[int64]models.Whisper, users map[int64]models.SavedMessage) Stats {
	st := Stats{Whispers: len(whispers), Users: len(users)}
	for _, m := range users {
		if m.HasText() {
			st.SavedMessages++
		}
	}
	return st
}
