package domain

import (
	"time"

	"github.com/google/uuid"
)

// Mode is the dashboard's top-level state-machine value.
type Mode int

const (
	ModeIdle Mode = iota
	ModeListening
	ModeSpeaking
	ModeThinking
	ModeError
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "Idle"
	case ModeListening:
		return "Listening"
	case ModeSpeaking:
		return "Speaking"
	case ModeThinking:
		return "Thinking"
	case ModeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// EventKind classifies an activity feed Event.
type EventKind int

const (
	EventInfo EventKind = iota
	EventUserUtterance
	EventAssistantUtterance
	EventWakeWord
	EventWarning
	EventErrorKind
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case EventInfo:
		return "info"
	case EventUserUtterance:
		return "user"
	case EventAssistantUtterance:
		return "assistant"
	case EventWakeWord:
		return "wake_word"
	case EventWarning:
		return "warning"
	case EventErrorKind:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single activity feed item, ring-buffered by the Supervisor.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Kind      EventKind
	Message   string
}

// StatusFields is the status widget's display data.
type StatusFields struct {
	DeviceLabel       string
	LastWakeWord      string
	LastWakeWordAt    time.Time
	InputFullDrops    uint64
	OutputUnderflows  uint64
	OverBudgetSteps   uint64
	Backpressure      bool
}

// DashboardState is the UI's reactive state, owned by the Supervisor and
// read-only from the renderer's perspective between posted updates.
type DashboardState struct {
	Mode              Mode
	InputAmplitude    float32
	OutputAmplitude   float32
	ActivityFeed      []Event
	Status            StatusFields
	ActivePersonaName string
}

// ActivityFeedCap is the ring buffer's total capacity; the renderer shows
// only the most recent ActivityFeedShown of these.
const ActivityFeedCap = 100

// ActivityFeedShown is the minimum number of recent events the dashboard's
// activity feed must display.
const ActivityFeedShown = 20

// WakeWordDebounce is how long the status widget keeps showing the last
// detected wake word before clearing it.
const WakeWordDebounce = 3 * time.Second
