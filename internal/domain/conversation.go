package domain

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced a ConversationMessage.
type Speaker int

const (
	SpeakerUser Speaker = iota
	SpeakerAssistant
)

// String implements fmt.Stringer.
func (s Speaker) String() string {
	switch s {
	case SpeakerUser:
		return "user"
	case SpeakerAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// ConversationMessage is a single utterance, either transcribed from the
// user or emitted (as text_piece) by the engine.
type ConversationMessage struct {
	ID         uuid.UUID
	Timestamp  time.Time
	Speaker    Speaker
	Text       string
	Importance float32
}

// ConversationSession groups messages between two session boundaries.
// Exactly one session is ever "current"; closed sessions are kept in a
// bounded archive by the owning ConversationMemory.
type ConversationSession struct {
	SessionID uuid.UUID
	StartTime time.Time
	EndTime   *time.Time
	Messages  []ConversationMessage
}

// Closed reports whether the session has an end time.
func (s *ConversationSession) Closed() bool {
	return s.EndTime != nil
}

// MemorySnippet is the short conditioning text returned by a SemanticMemory
// query. It is additive conditioning only, never forced text.
type MemorySnippet struct {
	Text  string
	Score float32
}
