package model

import "time"

// Sender values with special meaning in a chat history.
// Any other sender is the name of the character who spoke.
const (
	SenderUser     = "You"
	SenderNarrator = "Narrator"
)

// Session is one ongoing story between a player and the narrator.
// This is a pure domain model with no database-specific dependencies or tags.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single line of a session's history.
// Position orders messages within a session starting at zero.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Position  int       `json:"position"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Location  string    `json:"location,omitempty"`
	AudioPath string    `json:"audio_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FromUser reports whether the player wrote the message.
func (m Message) FromUser() bool {
	return m.Sender == SenderUser
}
