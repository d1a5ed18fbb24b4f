// Package memory implements ConversationMemory: a bounded, reader-writer
// guarded ring of ConversationMessage grouped into sessions, used only for
// short-horizon recency context injection. Long-term semantic memory is a
// separate, optional collaborator; the only implementation here is the
// keyword-overlap KeywordSemanticMemory in semantic.go, not a vector index.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mirror-labs/xswarm/internal/domain"
)

// DefaultMaxRecentMessages is the default bound on the current session's
// message deque.
const DefaultMaxRecentMessages = 50

// DefaultMaxArchivedSessions is the default bound on how many closed
// sessions are retained.
const DefaultMaxArchivedSessions = 10

// Store is the ConversationMemory component: exactly one current session
// at all times, RWMutex-guarded so writers (the processing task) and
// readers (the UI, ConditionBuilder) never observe a half-written message.
type Store struct {
	mu                 sync.RWMutex
	maxRecentMessages  int
	maxArchivedSess    int
	current            domain.ConversationSession
	archived           []domain.ConversationSession
}

// Option configures a Store at construction.
type Option func(*Store)

// WithMaxRecentMessages overrides DefaultMaxRecentMessages.
func WithMaxRecentMessages(n int) Option {
	return func(s *Store) { s.maxRecentMessages = n }
}

// WithMaxArchivedSessions overrides DefaultMaxArchivedSessions.
func WithMaxArchivedSessions(n int) Option {
	return func(s *Store) { s.maxArchivedSess = n }
}

// New creates a Store with a freshly opened current session.
func New(opts ...Option) *Store {
	s := &Store{
		maxRecentMessages: DefaultMaxRecentMessages,
		maxArchivedSess:   DefaultMaxArchivedSessions,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current = newSession()
	return s
}

func newSession() domain.ConversationSession {
	return domain.ConversationSession{
		SessionID: uuid.New(),
		StartTime: time.Now(),
	}
}

func (s *Store) add(speaker domain.Speaker, text string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := domain.ConversationMessage{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		Speaker:   speaker,
		Text:      text,
	}
	s.current.Messages = append(s.current.Messages, msg)
	if over := len(s.current.Messages) - s.maxRecentMessages; over > 0 {
		s.current.Messages = s.current.Messages[over:]
	}
	return msg.ID
}

// AddUserMessage appends a user utterance to the current session.
func (s *Store) AddUserMessage(text string) uuid.UUID {
	return s.add(domain.SpeakerUser, text)
}

// AddAssistantMessage appends an assistant utterance to the current session.
func (s *Store) AddAssistantMessage(text string) uuid.UUID {
	return s.add(domain.SpeakerAssistant, text)
}

// Recent returns the most recent n messages, chronological order. O(n),
// never observes a half-written message thanks to the read lock.
func (s *Store) Recent(n int) []domain.ConversationMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.current.Messages
	if n <= 0 || n >= len(msgs) {
		out := make([]domain.ConversationMessage, len(msgs))
		copy(out, msgs)
		return out
	}
	out := make([]domain.ConversationMessage, n)
	copy(out, msgs[len(msgs)-n:])
	return out
}

// ContextForPrompt formats the n most recent messages as a compact
// single line of "Speaker: text" entries separated by " / ", for injection
// into a ConditionBuilder prompt.
func (s *Store) ContextForPrompt(n int) string {
	msgs := s.Recent(n)
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString(" / ")
		}
		b.WriteString(capitalize(m.Speaker.String()))
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}

// StartNewSession archives the current session (if it has any messages)
// and opens a fresh one, returning the new session's id.
func (s *Store) StartNewSession() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.current.Messages) > 0 {
		now := time.Now()
		s.current.EndTime = &now
		s.archived = append(s.archived, s.current)
		if over := len(s.archived) - s.maxArchivedSess; over > 0 {
			s.archived = s.archived[over:]
		}
	}
	s.current = newSession()
	return s.current.SessionID
}

// SnapshotSummary returns a human-readable one-liner describing the
// current session, e.g. "session a1b2c3d4, 3 minutes, 12 messages".
func (s *Store) SnapshotSummary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mins := int(time.Since(s.current.StartTime).Minutes())
	return fmt.Sprintf("session %s, %d minutes, %d messages",
		shortID(s.current.SessionID), mins, len(s.current.Messages))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func shortID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Clear discards the current session's messages without archiving.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = newSession()
}

// CurrentSessionID returns the id of the current (always-exactly-one)
// session.
func (s *Store) CurrentSessionID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.SessionID
}
