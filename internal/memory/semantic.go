package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/mirror-labs/xswarm/internal/domain"
)

// maxSnippetChars matches the ConditionBuilder's ≤512 character contract
// for a memory snippet.
const maxSnippetChars = 512

// KeywordSemanticMemory is a trivial, explicitly-not-a-vector-index
// SemanticMemory: it scores recent messages by raw token overlap with the
// query text. It exists only so the Supervisor always has a non-nil
// collaborator to query for the ConditionBuilder's snippet in the
// reference build; a real embedding index is
// out of scope per the spec.
type KeywordSemanticMemory struct {
	store *Store
}

// NewKeywordSemanticMemory wraps store as a SemanticMemory.
func NewKeywordSemanticMemory(store *Store) *KeywordSemanticMemory {
	return &KeywordSemanticMemory{store: store}
}

// Query returns up to k MemorySnippets built from recent messages, scored
// by the fraction of query tokens each message shares.
func (m *KeywordSemanticMemory) Query(_ context.Context, text string, k int) ([]domain.MemorySnippet, error) {
	queryTokens := tokenize(text)
	if len(queryTokens) == 0 || k <= 0 {
		return nil, nil
	}

	recent := m.store.Recent(0)
	type scored struct {
		msg   domain.ConversationMessage
		score float32
	}
	var candidates []scored
	for _, msg := range recent {
		score := overlapScore(queryTokens, tokenize(msg.Text))
		if score > 0 {
			candidates = append(candidates, scored{msg, score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]domain.MemorySnippet, 0, k)
	for _, c := range candidates[:k] {
		out = append(out, domain.MemorySnippet{Text: truncate(c.msg.Text, maxSnippetChars), Score: c.score})
	}
	return out, nil
}

func tokenize(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func overlapScore(a, b map[string]struct{}) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var shared int
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	return float32(shared) / float32(len(a))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

var _ domain.SemanticMemory = (*KeywordSemanticMemory)(nil)
