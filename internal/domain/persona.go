package domain

// TraitVector is a closed, numeric personality record. Each axis lives in
// [0,1]. It is a sum type by construction — callers can't smuggle in
// arbitrary keys the way a map[string]float32 would allow.
type TraitVector struct {
	Formality        float32
	Enthusiasm       float32
	Extraversion     float32
	Agreeableness    float32
	Conscientiousness float32
	Neuroticism      float32
	Openness         float32
}

// VoiceParams shapes the synthesized voice.
type VoiceParams struct {
	Pitch   float32
	Speed   float32
	ToneTag string
	Quality string
}

// Persona is a named bundle of personality, voice, and wake-word settings
// that conditions the engine. Personas are loaded once from disk and
// replaced wholesale via PersonaRuntime.Swap — never mutated in place.
type Persona struct {
	Name         string
	WakeWords    map[string]struct{}
	SystemPrompt string
	Traits       TraitVector
	Voice        VoiceParams
}

// HasWakeWord reports whether word (already normalized by the caller) is
// configured for this persona.
func (p Persona) HasWakeWord(word string) bool {
	_, ok := p.WakeWords[word]
	return ok
}

// PersonaDescriptor is the lightweight summary returned by ListAvailable,
// before a persona's full text is loaded.
type PersonaDescriptor struct {
	Name        string
	Version     string
	Description string
}
