package dashboard

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/mirror-labs/xswarm/internal/domain"
)

func testPersonas() []domain.PersonaDescriptor {
	return []domain.PersonaDescriptor{
		{Name: "default", Description: "the default persona"},
		{Name: "pirate", Description: "talks like a pirate"},
	}
}

func TestVisiblePanelsRespectsBreakpoints(t *testing.T) {
	cases := []struct {
		width int
		want  int
	}{
		{150, 6},
		{100, 4},
		{70, 3},
		{50, 2},
		{10, 1},
	}
	for _, c := range cases {
		got := visiblePanels(c.width)
		if len(got) != c.want {
			t.Errorf("visiblePanels(%d) = %v, want %d panels", c.width, got, c.want)
		}
	}
}

func TestSettingsKeyNavigationUsesLabelText(t *testing.T) {
	m := model{personas: testPersonas(), view: viewSettings}

	updated, _ := m.handleSettingsKey(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(model)
	if m.cursor != 1 {
		t.Fatalf("cursor = %d, want 1 after down", m.cursor)
	}

	var selected string
	c := &Controller{}
	c.OnPersonaSwap(func(name string) { selected = name })
	m.controller = c

	updated, _ = m.handleSettingsKey(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(model)

	if selected != "pirate" {
		t.Fatalf("selected persona = %q, want %q (label text, not index)", selected, "pirate")
	}
	if m.state.ActivePersonaName != "pirate" {
		t.Fatalf("state.ActivePersonaName = %q, want pirate", m.state.ActivePersonaName)
	}
	if m.view != viewMain {
		t.Fatalf("view = %v, want viewMain after selection", m.view)
	}
}

func TestAmplitudeSmoothingNeverExceedsInputRange(t *testing.T) {
	m := model{}
	for i := 0; i < 30; i++ {
		m.pushAmplitude(1.0, 0.0)
	}
	if m.smoothedAmp <= 0 || m.smoothedAmp > 1.0001 {
		t.Fatalf("smoothedAmp = %v, want in (0, 1]", m.smoothedAmp)
	}
}

func TestWakeWordClearsAfterDebounce(t *testing.T) {
	m := model{
		state: domain.DashboardState{
			Status: domain.StatusFields{LastWakeWord: "computer", LastWakeWordAt: time.Now().Add(-4 * time.Second)},
		},
		lastWakeWordAt: time.Now().Add(-4 * time.Second),
	}
	updated, _ := m.Update(tickMsg(time.Now()))
	m = updated.(model)
	if m.state.Status.LastWakeWord != "" {
		t.Fatalf("LastWakeWord = %q, want cleared after debounce window", m.state.Status.LastWakeWord)
	}
}

func TestWakeWordStaysWithinDebounceWindow(t *testing.T) {
	m := model{
		state: domain.DashboardState{
			Status: domain.StatusFields{LastWakeWord: "computer", LastWakeWordAt: time.Now()},
		},
		lastWakeWordAt: time.Now(),
	}
	updated, _ := m.Update(tickMsg(time.Now()))
	m = updated.(model)
	if m.state.Status.LastWakeWord != "computer" {
		t.Fatalf("LastWakeWord cleared too early")
	}
}

func TestStateDumpIncludesRecentEvents(t *testing.T) {
	m := model{
		state: domain.DashboardState{
			ActivePersonaName: "default",
			Mode:              domain.ModeListening,
			ActivityFeed: []domain.Event{
				{ID: uuid.New(), Timestamp: time.Now(), Kind: domain.EventWakeWord, Message: "computer"},
			},
		},
	}
	dump := m.formatStateDump()
	if !strings.Contains(dump, "default") || !strings.Contains(dump, "computer") {
		t.Fatalf("state dump missing expected content: %s", dump)
	}
}

func TestQuitKeysReturnTeaQuit(t *testing.T) {
	m := model{}
	keys := []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	}
	for _, key := range keys {
		_, cmd := m.handleKey(key)
		if cmd == nil {
			t.Errorf("key %q: expected a tea.Quit command", key.String())
		}
	}
}
