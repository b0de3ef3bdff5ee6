package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"whisper.bot/internal/models"
)

var errMalformed = errors.New("malformed whisper data")

// whisperRecord is the stored form of a whisper; the id is the map key.
// Pointer fields let decoding tell a missing field from a zero value.
type whisperRecord struct {
	Text   *string `json:"text"`
	Owner  *int64  `json:"owner"`
	Viewer *int64  `json:"viewer"`
	Once   *bool   `json:"once"`
}

type userRecord struct {
	SavedMessage *string `json:"saved_message"`
}

// document is the whole data file.
type document struct {
	Users    map[int64]userRecord    `json:"users,omitempty"`
	Whispers map[int64]whisperRecord `json:"whispers"`
}

func newWhisperRecord(w models.Whisper) whisperRecord {
	return whisperRecord{
		Text:   &w.Text,
		Owner:  &w.Owner,
		Viewer: &w.Viewer,
		Once:   &w.Once,
	}
}

func (r whisperRecord) whisper(id int64) (models.Whisper, error) {
	if r.Text == nil || r.Owner == nil || r.Viewer == nil || r.Once == nil {
		return models.Whisper{}, fmt.Errorf("%w: whisper %d is missing fields", errMalformed, id)
	}
	w, err := models.NewWhisper(id, *r.Owner, *r.Viewer, *r.Text, *r.Once)
	if err != nil {
		return models.Whisper{}, fmt.Errorf("%w: %w", errMalformed, err)
	}
	return w, nil
}

func newUserRecord(m models.SavedMessage) userRecord {
	return userRecord{SavedMessage: m.Text}
}

func (r userRecord) savedMessage(id int64) models.SavedMessage {
	return models.SavedMessage{OwnerID: id, Text: r.SavedMessage}
}

// encode marshals v without HTML escaping so whisper text is stored verbatim.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDocument(data []byte) (map[int64]models.Whisper, map[int64]models.SavedMessage, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	if doc.Whispers == nil {
		return nil, nil, fmt.Errorf("%w: no whispers field", errMalformed)
	}

	whispers := make(map[int64]models.Whisper, len(doc.Whispers))
	for id, rec := range doc.Whispers {
		w, err := rec.whisper(id)
		if err != nil {
			return nil, nil, err
		}
		whispers[id] = w
	}

	users := make(map[int64]models.SavedMessage, len(doc.Users))
	for id, rec := range doc.Users {
		users[id] = rec.savedMessage(id)
	}

	return whispers, users, nil
}

func encodeDocument(whispers map[int64]models.Whisper, users map[int64]models.SavedMessage) ([]byte, error) {
	doc := document{
		Whispers: make(map[int64]whisperRecord, len(whispers)),
	}
	for id, w := range whispers {
		doc.Whispers[id] = newWhisperRecord(w)
	}
	if len(users) > 0 {
		doc.Users = make(map[int64]userRecord, len(users))
		for id, m := range users {
			doc.Users[id] = newUserRecord(m)
		}
	}
	return encode(doc)
}
