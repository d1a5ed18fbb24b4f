package condition

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mirror-labs/xswarm/internal/domain"
)

func persona(name string) domain.Persona {
	return domain.Persona{
		Name:         name,
		SystemPrompt: "Be helpful.",
		Traits:       domain.TraitVector{Formality: 0.5},
		Voice:        domain.VoiceParams{ToneTag: "warm"},
	}
}

func TestBuildIsPureAndCached(t *testing.T) {
	b := New()
	p := persona("demo")
	c1 := b.Build(p, nil)
	c2 := b.Build(p, nil)
	if diff := cmp.Diff(c1, c2); diff != "" {
		t.Errorf("Build not pure/cached (-first +second):\n%s", diff)
	}
}

func TestBuildDiffersByPersona(t *testing.T) {
	b := New()
	c1 := b.Build(persona("p1"), nil)
	c2 := b.Build(persona("p2"), nil)
	if cmp.Equal(c1, c2) {
		t.Fatal("distinct personas produced identical conditions")
	}
}

func TestBuildDiffersBySnippet(t *testing.T) {
	b := New()
	p := persona("demo")
	snip1 := "talking about cooking"
	snip2 := "talking about astronomy"
	c1 := b.Build(p, &snip1)
	c2 := b.Build(p, &snip2)
	if cmp.Equal(c1, c2) {
		t.Fatal("distinct snippets produced identical conditions")
	}
	if c1.PersonaName != "demo" || c2.PersonaName != "demo" {
		t.Fatal("PersonaName should be preserved regardless of snippet")
	}
}

func TestBuildTruncatesSnippet(t *testing.T) {
	b := New()
	p := persona("demo")
	long := strings.Repeat("a", MaxSnippetChars+100)
	short := strings.Repeat("a", MaxSnippetChars)
	c1 := b.Build(p, &long)
	c2 := b.Build(p, &short)
	if diff := cmp.Diff(c1, c2); diff != "" {
		t.Errorf("expected truncated-equivalent snippets to match (-long +short):\n%s", diff)
	}
}

func TestBuildNeverMixesPersonaFields(t *testing.T) {
	// Property 3: a condition built from p1 never contains p2's
	// system-prompt contribution, and vice versa.
	b := New()
	p1 := persona("p1")
	p1.SystemPrompt = "aggressively cheerful"
	p2 := persona("p2")
	p2.SystemPrompt = "quietly formal"

	c1 := b.Build(p1, nil)
	c2 := b.Build(p2, nil)

	b2 := New()
	c1Again := b2.Build(p1, nil)
	if diff := cmp.Diff(c1, c1Again); diff != "" {
		t.Errorf("rebuilding p1 in a fresh builder should be deterministic (-first +second):\n%s", diff)
	}
	if cmp.Equal(c1, c2) {
		t.Fatal("p1 and p2 conditions should not collide")
	}
}
