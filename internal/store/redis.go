// redis.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"whisper.bot/internal/models"
)

const maxTxRetries = 3

var (
	_ Backend = (*RedisStore)(nil)
	_ Taker   = (*RedisStore)(nil)
)

// RedisStore keeps each whisper and each saved-message slot under its own
// key, encoded as the same JSON record the data file uses.
type RedisStore struct {
	client *redis.Client
	slots  bool
}

func NewRedisStore(options *redis.Options, savedMessages bool) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, slots: savedMessages}, nil
}

func (r *RedisStore) Get(ctx context.Context, id int64) (models.Whisper, bool, error) {
	data, err := r.client.Get(ctx, whisperKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Whisper{}, false, nil
		}
		return models.Whisper{}, false, err
	}

	w, err := decodeWhisper(id, data)
	if err != nil {
		return models.Whisper{}, false, err
	}
	return w, true, nil
}

func (r *RedisStore) Put(ctx context.Context, w models.Whisper) error {
	data, err := encode(newWhisperRecord(w))
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, whisperKey(w.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id int64) error {
	if err := r.client.Del(ctx, whisperKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// Take reads and deletes a whisper inside an optimistic transaction, so two
// processes racing for the same one-time whisper cannot both receive it.
func (r *RedisStore) Take(ctx context.Context, id int64) (models.Whisper, bool, error) {
	key := whisperKey(id)
	var (
		taken models.Whisper
		found bool
	)

	txf := func(tx *redis.Tx) error {
		found = false

		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}

		w, err := decodeWhisper(id, data)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}

		taken, found = w, true
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return taken, found, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return models.Whisper{}, false, err
	}

	return models.Whisper{}, false, redis.TxFailedErr
}

func (r *RedisStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	iter := r.client.Scan(ctx, 0, whisperKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		st.Whispers++
	}
	if err := iter.Err(); err != nil {
		return Stats{}, err
	}

	iter = r.client.Scan(ctx, 0, userKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		st.Users++

		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return Stats{}, err
		}
		var rec userRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return Stats{}, err
		}
		if rec.SavedMessage != nil {
			st.SavedMessages++
		}
	}
	if err := iter.Err(); err != nil {
		return Stats{}, err
	}

	return st, nil
}

// Slot does not write missing slots; they appear on the first save.
func (r *RedisStore) Slot(ctx context.Context, userID int64) (models.SavedMessage, error) {
	if !r.slots {
		return models.SavedMessage{}, ErrSlotsDisabled
	}

	data, err := r.client.Get(ctx, userKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.NewSavedMessage(userID), nil
		}
		return models.SavedMessage{}, err
	}

	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.SavedMessage{}, err
	}
	return rec.savedMessage(userID), nil
}

func (r *RedisStore) SaveMessage(ctx context.Context, userID int64, text string) (models.SavedMessage, error) {
	return r.setSlot(ctx, models.NewSavedMessage(userID).WithText(text))
}

func (r *RedisStore) ClearMessage(ctx context.Context, userID int64) (models.SavedMessage, error) {
	return r.setSlot(ctx, models.NewSavedMessage(userID))
}

func (r *RedisStore) setSlot(ctx context.Context, m models.SavedMessage) (models.SavedMessage, error) {
	if !r.slots {
		return models.SavedMessage{}, ErrSlotsDisabled
	}

	data, err := encode(newUserRecord(m))
	if err != nil {
		return models.SavedMessage{}, err
	}
	if err := r.client.Set(ctx, userKey(m.OwnerID), data, 0).Err(); err != nil {
		return models.SavedMessage{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return m, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Helpers

const (
	whisperKeyPrefix = "whisper:"
	userKeyPrefix    = "user:"
)

func whisperKey(id int64) string {
	return whisperKeyPrefix + strconv.FormatInt(id, 10)
}

func userKey(id int64) string {
	return userKeyPrefix + strconv.FormatInt(id, 10)
}

func decodeWhisper(id int64, data []byte) (models.Whisper, error) {
	var rec whisperRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Whisper{}, fmt.Errorf("%w: %w", errMalformed, err)
	}
	return rec.whisper(id)
}
