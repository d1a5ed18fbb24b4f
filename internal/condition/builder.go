// Package condition implements ConditionBuilder: a pure function turning a
// Persona plus an optional memory snippet into the opaque domain.Condition
// tensor NeuralEngine consumes, cached by (persona, snippet) pair.
package condition

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mirror-labs/xswarm/internal/domain"
)

// MaxSnippetChars is the memory-snippet contract: at most 512 characters
// are folded into conditioning, additively — never spoken verbatim.
const MaxSnippetChars = 512

// shapeDim is the fixed conditioning vector width for the reference
// implementation. A real AcceleratorBackend may interpret domain.Condition
// differently; this builder only promises a stable shape for its own
// values, not a specific tensor semantics.
const shapeDim = 32

// cacheLimit bounds the builder's cache so a long session with many
// distinct snippets can't grow it unbounded. Eviction is first-in,
// first-out; a cache hit does not refresh an entry.
const cacheLimit = 256

// Builder is the ConditionBuilder component. Safe for concurrent use.
type Builder struct {
	mu    sync.Mutex
	cache map[string]domain.Condition
	order []string // insertion order, for FIFO eviction
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{cache: make(map[string]domain.Condition)}
}

// Build turns persona plus an optional memory snippet into a Condition.
// It is a pure function of its inputs modulo the cache: calling it twice
// with the same (persona, snippet) returns byte-identical Condition
// values. snippet is truncated to MaxSnippetChars before hashing or use —
// per the spec, it nudges tone/topic additively and is never forced text.
func (b *Builder) Build(p domain.Persona, snippet *string) domain.Condition {
	trimmed := ""
	if snippet != nil {
		trimmed = truncate(*snippet, MaxSnippetChars)
	}

	key := cacheKey(p, trimmed)

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.cache[key]; ok {
		return c
	}

	c := build(p, trimmed)
	b.cache[key] = c
	b.order = append(b.order, key)
	if len(b.order) > cacheLimit {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.cache, oldest)
	}
	return c
}

func build(p domain.Persona, snippet string) domain.Condition {
	values := make([]float32, shapeDim)
	values[0] = p.Traits.Formality
	values[1] = p.Traits.Enthusiasm
	values[2] = p.Traits.Extraversion
	values[3] = p.Traits.Agreeableness
	values[4] = p.Traits.Conscientiousness
	values[5] = p.Traits.Neuroticism
	values[6] = p.Traits.Openness
	values[7] = p.Voice.Pitch
	values[8] = p.Voice.Speed

	// Fold the system prompt and additive snippet into the remaining
	// lanes via a cheap rolling hash — a stand-in for a real text encoder,
	// which is out of scope (the model's tokenizer/encoder isn't
	// specified). The values only need to be a deterministic function of
	// the inputs; their internal semantics belong to an AcceleratorBackend.
	fold(values[9:20], p.SystemPrompt)
	fold(values[20:], snippet)

	return domain.Condition{
		PersonaName:  p.Name,
		SystemPrompt: p.SystemPrompt,
		ToneTag:      p.Voice.ToneTag,
		Values:       values,
		Shape:        []int{shapeDim},
	}
}

func fold(dst []float32, text string) {
	if len(dst) == 0 {
		return
	}
	for i, r := range text {
		idx := i % len(dst)
		dst[idx] += float32(r%997) / 997.0
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// cacheKey derives a stable key from every Persona field (name, prompt,
// traits, voice, wake words) plus the snippet, so a persona swap always
// produces a fresh key. Personas that differ only in their wake words get
// separate entries even though those words are not part of the Condition.
func cacheKey(p domain.Persona, snippet string) string {
	h := sha256.New()
	fmt.Fprintf(h, "persona:%s\n", p.Name)
	fmt.Fprintf(h, "prompt:%s\n", p.SystemPrompt)
	fmt.Fprintf(h, "traits:%+v\n", p.Traits)
	fmt.Fprintf(h, "voice:%+v\n", p.Voice)
	fmt.Fprintf(h, "words:%s\n", sortedWords(p.WakeWords))
	fmt.Fprintf(h, "snippet:%s\n", snippet)
	return hex.EncodeToString(h.Sum(nil))
}

func sortedWords(words map[string]struct{}) string {
	out := make([]string, 0, len(words))
	for w := range words {
		out = append(out, w)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
