package models

// SavedMessage is a per-user draft slot. A nil Text means nothing is saved.
type SavedMessage struct {
	OwnerID int64   `json:"user_id"`
	Text    *string `json:"saved_message"`
}

func NewSavedMessage(ownerID int64) SavedMessage {
	return SavedMessage{OwnerID: ownerID}
}

func (m SavedMessage) HasText() bool {
	return m.Text != nil
}

// WithText returns a copy of m holding text.
func (m SavedMessage) WithText(text string) SavedMessage {
	m.Text = &text
	return m
}

// Cleared returns a copy of m with no saved text.
func (m SavedMessage) Cleared() SavedMessage {
	m.Text = nil
	return m
}
