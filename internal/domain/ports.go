package domain

import "context"

// PersonaLoader discovers and loads personas from wherever they live on
// disk. The core never hard-codes a persona name or format; it only
// depends on this interface.
type PersonaLoader interface {
	ListAvailable() ([]PersonaDescriptor, error)
	LoadByName(name string) (Persona, error)
}

// SemanticMemory is an optional long-horizon memory collaborator, queried
// by the Supervisor for the snippet it passes to the ConditionBuilder. If
// there is none (nil), conditions are built from the persona alone. A real
// implementation (embedding index, vector search) is out of scope; this
// interface exists so one can be dropped in later.
type SemanticMemory interface {
	Query(ctx context.Context, text string, k int) ([]MemorySnippet, error)
}

// AcceleratorBackend is the narrow interface a real streaming
// speech-to-speech model implements. NeuralEngine wraps one; how the
// backend is trained, quantized, or tokenized is out of scope.
type AcceleratorBackend interface {
	// StepFrame consumes one input frame under the given conditions and
	// returns exactly one output frame. forceText must be nil except for
	// the fixed-greeting path.
	StepFrame(ctx context.Context, cond Condition, input AudioFrame, forceText []string) (OutputFrame, *string, error)
}

// Notifier delivers messages to the user. Implementations can write to
// stdout, the dashboard banner, or a log sink.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	NotifyUrgent(ctx context.Context, message string) error
}
