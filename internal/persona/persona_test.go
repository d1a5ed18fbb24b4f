package persona

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mirror-labs/xswarm/internal/domain"
)

func mkPersona(name string) domain.Persona {
	return domain.Persona{Name: name, WakeWords: map[string]struct{}{}}
}

func TestRuntimeSwapObservedAtomically(t *testing.T) {
	r := New(nil, nil, mkPersona("p1"))
	if got := r.Active().Name; got != "p1" {
		t.Fatalf("Active() = %q, want p1", got)
	}
	r.Swap(mkPersona("p2"))
	if got := r.Active().Name; got != "p2" {
		t.Fatalf("Active() after swap = %q, want p2", got)
	}
}

// TestRuntimeConcurrentSwapNeverTorn exercises property 3 from the spec:
// any reader observing Active() mid-swap sees a complete Persona value,
// never a zero-value/partial mix, because the swap is a single atomic
// pointer store.
func TestRuntimeConcurrentSwapNeverTorn(t *testing.T) {
	r := New(nil, nil, mkPersona("base"))
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		for {
			select {
			case <-stop:
				return
			default:
				i++
				name := "persona"
				p := mkPersona(name)
				p.Traits.Formality = float32(i % 2)
				r.Swap(p)
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		p := r.Active()
		if p.Name != "base" && p.Name != "persona" {
			t.Fatalf("observed torn/unexpected persona: %+v", p)
		}
	}
	close(stop)
	wg.Wait()
}

func TestRuntimeOnSwapObserversFire(t *testing.T) {
	r := New(nil, nil, mkPersona("p1"))
	var seen []string
	r.OnSwap(func(p domain.Persona) { seen = append(seen, p.Name) })
	r.Swap(mkPersona("p2"))
	r.Swap(mkPersona("p3"))
	if len(seen) != 2 || seen[0] != "p2" || seen[1] != "p3" {
		t.Fatalf("observers saw %v, want [p2 p3]", seen)
	}
}

func writePersonaDir(t *testing.T, root, name, theme, personalityMD, vocabYAML string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if theme != "" {
		if err := os.WriteFile(filepath.Join(dir, "theme.yaml"), []byte(theme), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if personalityMD != "" {
		if err := os.WriteFile(filepath.Join(dir, "personality.md"), []byte(personalityMD), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if vocabYAML != "" {
		if err := os.WriteFile(filepath.Join(dir, "vocabulary.yaml"), []byte(vocabYAML), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

const demoTheme = `
name: demo
description: a demo persona
version: "1.0"
system_prompt: "Greet the user once."
traits:
  formality: 0.5
  enthusiasm: 0.8
  extraversion: 0.6
  agreeableness: 0.7
  conscientiousness: 0.5
  neuroticism: 0.2
  openness: 0.9
voice:
  pitch: 1.0
  speed: 1.0
  tone: warm
  quality: bf16
wake_word: ["computer", "assistant"]
`

func TestDirLoaderListAvailable(t *testing.T) {
	root := t.TempDir()
	writePersonaDir(t, root, "demo", demoTheme, "", "")
	writePersonaDir(t, root, "not-a-persona", "", "", "") // no theme.yaml, skipped

	l := NewDirLoader(root)
	descs, err := l.ListAvailable()
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 || descs[0].Name != "demo" {
		t.Fatalf("ListAvailable() = %+v, want exactly [demo]", descs)
	}
}

func TestDirLoaderLoadByName(t *testing.T) {
	root := t.TempDir()
	writePersonaDir(t, root, "demo", demoTheme, "Always be concise.", `
preferred_phrases: ["got it"]
avoid_phrases: ["um"]
`)

	l := NewDirLoader(root)
	p, err := l.LoadByName("demo")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "demo" {
		t.Fatalf("Name = %q, want demo", p.Name)
	}
	if !p.HasWakeWord("computer") || !p.HasWakeWord("assistant") {
		t.Fatalf("wake words = %v, want computer+assistant", p.WakeWords)
	}
	if p.Voice.ToneTag != "warm" {
		t.Fatalf("ToneTag = %q, want warm", p.Voice.ToneTag)
	}
	for _, want := range []string{"Greet the user once.", "Always be concise.", "got it", "um"} {
		if !contains(p.SystemPrompt, want) {
			t.Errorf("SystemPrompt missing %q: %s", want, p.SystemPrompt)
		}
	}
}

func TestDirLoaderLoadByNameNotFound(t *testing.T) {
	root := t.TempDir()
	writePersonaDir(t, root, "demo", demoTheme, "", "")

	l := NewDirLoader(root)
	if _, err := l.LoadByName("nope"); err == nil {
		t.Fatal("expected error for unknown persona")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
