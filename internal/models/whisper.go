package models

import (
	"errors"
	"fmt"
)

var ErrInvalidWhisper = errors.New("invalid whisper")

// Whisper is a secret text bound to a public carrier message. ID is the
// carrier message id assigned by the chat platform.
type Whisper struct {
	ID     int64  `json:"id"`
	Text   string `json:"text"`
	Owner  int64  `json:"owner"`
	Viewer int64  `json:"viewer"`
	Once   bool   `json:"once"` // deleted after the viewer's first read
}

// NewWhisper builds a whisper with every field set. Text length is the
// caller's concern.
func NewWhisper(id, owner, viewer int64, text string, once bool) (Whisper, error) {
	switch {
	case id <= 0:
		return Whisper{}, fmt.Errorf("%w: message id %d", ErrInvalidWhisper, id)
	case owner <= 0:
		return Whisper{}, fmt.Errorf("%w: owner %d", ErrInvalidWhisper, owner)
	case viewer <= 0:
		return Whisper{}, fmt.Errorf("%w: viewer %d", ErrInvalidWhisper, viewer)
	}

	return Whisper{
		ID:     id,
		Text:   text,
		Owner:  owner,
		Viewer: viewer,
		Once:   once,
	}, nil
}

func (w Whisper) CanRead(user int64) bool {
	return user == w.Owner || user == w.Viewer
}

// ConsumedBy reports whether a read by user destroys the whisper. When owner
// and viewer coincide the viewer rule wins.
func (w Whisper) ConsumedBy(user int64) bool {
	return w.Once && user == w.Viewer
}
