// Package domain contains the core conversation types shared by the relay,
// its stores and the backend client.
package domain

import "time"

// Role identifies who produced a turn.
type Role string

const (
	// RoleUser marks a turn sent by a relay client.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the backend.
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are never edited once
// appended to a transcript.
type Turn struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Transcript is the ordered list of turns for one session.
type Transcript struct {
	Turns []Turn `json:"turns" yaml:"turns"`
}

// Append returns a transcript with one more turn. The receiver is left
// untouched so a copy borrowed from a store never shares its backing array
// with the result.
func (t Transcript) Append(role Role, content string) Transcript {
	turns := make([]Turn, len(t.Turns), len(t.Turns)+1)
	copy(turns, t.Turns)
	turns = append(turns, Turn{Role: role, Content: content})
	return Transcript{Turns: turns}
}

// Len returns the number of turns.
func (t Transcript) Len() int {
	return len(t.Turns)
}

// Last returns the most recent turn and false when the transcript is empty.
func (t Transcript) Last() (Turn, bool) {
	if len(t.Turns) == 0 {
		return Turn{}, false
	}
	return t.Turns[len(t.Turns)-1], true
}

// SessionKey identifies a transcript. It is derived from the client address,
// port and topic and is safe to use as a file name.
type SessionKey string

func (k SessionKey) String() string {
	return string(k)
}

// TranscriptSummary describes a stored transcript for listings.
type TranscriptSummary struct {
	Key       SessionKey `json:"key" yaml:"key"`
	Turns     int        `json:"turns" yaml:"turns"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
}
