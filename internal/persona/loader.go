package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mirror-labs/xswarm/internal/domain"
)

// themeFile is the structured subset of theme.yaml, per §6.4.
type themeFile struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Version      string   `yaml:"version"`
	SystemPrompt string   `yaml:"system_prompt"`
	Traits       traits   `yaml:"traits"`
	Voice        voice    `yaml:"voice"`
	WakeWord     wakeWord `yaml:"wake_word"`
}

type traits struct {
	Formality         float32 `yaml:"formality"`
	Enthusiasm        float32 `yaml:"enthusiasm"`
	Extraversion      float32 `yaml:"extraversion"`
	Agreeableness     float32 `yaml:"agreeableness"`
	Conscientiousness float32 `yaml:"conscientiousness"`
	Neuroticism       float32 `yaml:"neuroticism"`
	Openness          float32 `yaml:"openness"`
}

type voice struct {
	Pitch   float32 `yaml:"pitch"`
	Speed   float32 `yaml:"speed"`
	Tone    string  `yaml:"tone"`
	Quality string  `yaml:"quality"`
}

// wakeWord accepts either a bare string or a YAML sequence of strings,
// matching §6.4's "string or list" contract.
type wakeWord struct {
	words []string
}

func (w *wakeWord) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		w.words = []string{s}
		return nil
	case yaml.SequenceNode:
		var s []string
		if err := value.Decode(&s); err != nil {
			return err
		}
		w.words = s
		return nil
	default:
		return fmt.Errorf("persona: wake_word: unsupported YAML node kind %v", value.Kind)
	}
}

type vocabularyFile struct {
	PreferredPhrases []string `yaml:"preferred_phrases"`
	AvoidPhrases     []string `yaml:"avoid_phrases"`
}

// DirLoader is the concrete, filesystem-backed domain.PersonaLoader: each
// persona is a directory under Root containing theme.yaml, an optional
// personality.md concatenated into the system prompt, and an optional
// vocabulary.yaml. The core never hard-codes a persona name; dropping a
// new directory in Root and calling ListAvailable/LoadByName again is
// discovery, no restart required.
type DirLoader struct {
	Root string
}

// NewDirLoader creates a loader rooted at root.
func NewDirLoader(root string) *DirLoader {
	return &DirLoader{Root: root}
}

// ListAvailable returns a descriptor per subdirectory of Root that
// contains a theme.yaml. Directories without one are silently skipped —
// that is how removal at the next discovery works.
func (l *DirLoader) ListAvailable() ([]domain.PersonaDescriptor, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, fmt.Errorf("persona: reading %s: %w", l.Root, err)
	}

	var out []domain.PersonaDescriptor
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		themePath := filepath.Join(l.Root, e.Name(), "theme.yaml")
		raw, err := os.ReadFile(themePath)
		if err != nil {
			continue
		}
		var tf themeFile
		if err := yaml.Unmarshal(raw, &tf); err != nil {
			continue
		}
		name := tf.Name
		if name == "" {
			name = e.Name()
		}
		out = append(out, domain.PersonaDescriptor{
			Name:        name,
			Version:     tf.Version,
			Description: tf.Description,
		})
	}
	return out, nil
}

// LoadByName loads the persona directory named name (matched against
// theme.yaml's name field, falling back to the directory name).
func (l *DirLoader) LoadByName(name string) (domain.Persona, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return domain.Persona{}, fmt.Errorf("persona: reading %s: %w", l.Root, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(l.Root, e.Name())
		themePath := filepath.Join(dir, "theme.yaml")
		raw, err := os.ReadFile(themePath)
		if err != nil {
			continue
		}
		var tf themeFile
		if err := yaml.Unmarshal(raw, &tf); err != nil {
			continue
		}
		candidate := tf.Name
		if candidate == "" {
			candidate = e.Name()
		}
		if candidate != name {
			continue
		}
		return buildPersona(dir, tf)
	}
	return domain.Persona{}, fmt.Errorf("persona %q: %w", name, domain.ErrNotFound)
}

func buildPersona(dir string, tf themeFile) (domain.Persona, error) {
	systemPrompt := tf.SystemPrompt
	if raw, err := os.ReadFile(filepath.Join(dir, "personality.md")); err == nil {
		systemPrompt = strings.TrimSpace(systemPrompt + "\n\n" + string(raw))
	}

	if raw, err := os.ReadFile(filepath.Join(dir, "vocabulary.yaml")); err == nil {
		var vf vocabularyFile
		if err := yaml.Unmarshal(raw, &vf); err == nil {
			systemPrompt = appendVocabulary(systemPrompt, vf)
		}
	}

	words := make(map[string]struct{}, len(tf.WakeWord.words))
	for _, w := range tf.WakeWord.words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			words[w] = struct{}{}
		}
	}

	name := tf.Name
	if name == "" {
		name = filepath.Base(dir)
	}

	return domain.Persona{
		Name:         name,
		WakeWords:    words,
		SystemPrompt: systemPrompt,
		Traits: domain.TraitVector{
			Formality:         tf.Traits.Formality,
			Enthusiasm:        tf.Traits.Enthusiasm,
			Extraversion:      tf.Traits.Extraversion,
			Agreeableness:     tf.Traits.Agreeableness,
			Conscientiousness: tf.Traits.Conscientiousness,
			Neuroticism:       tf.Traits.Neuroticism,
			Openness:          tf.Traits.Openness,
		},
		Voice: domain.VoiceParams{
			Pitch:   tf.Voice.Pitch,
			Speed:   tf.Voice.Speed,
			ToneTag: tf.Voice.Tone,
			Quality: tf.Voice.Quality,
		},
	}, nil
}

func appendVocabulary(prompt string, vf vocabularyFile) string {
	var b strings.Builder
	b.WriteString(prompt)
	if len(vf.PreferredPhrases) > 0 {
		b.WriteString("\n\nPrefer phrases like: " + strings.Join(vf.PreferredPhrases, ", ") + ".")
	}
	if len(vf.AvoidPhrases) > 0 {
		b.WriteString("\nAvoid phrases like: " + strings.Join(vf.AvoidPhrases, ", ") + ".")
	}
	return b.String()
}

var _ domain.PersonaLoader = (*DirLoader)(nil)
