// Package dashboard renders the voice runtime's terminal UI using Bubble
// Tea, generalizing the donor's internal/display Bubble Tea
// model/Update/View machinery: the donor's single always-visible
// transcript view becomes the visualizer + activity_feed + status panels
// here, the donor's banner becomes the startup splash, and a settings
// mode is added for persona selection.
package dashboard

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xterm "github.com/charmbracelet/x/term"

	"github.com/mirror-labs/xswarm/internal/domain"
)

const refreshInterval = time.Second / 30 // 30 Hz, per §4.9

// ── Styles, one per Mode, matching the donor's soft-palette idiom ──

var modeStyles = map[domain.Mode]lipgloss.Style{
	domain.ModeIdle:      lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8")),
	domain.ModeListening: lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80")), // green
	domain.ModeSpeaking:  lipgloss.NewStyle().Foreground(lipgloss.Color("#fde68a")), // yellow
	domain.ModeThinking:  lipgloss.NewStyle().Foreground(lipgloss.Color("#e879f9")), // magenta
	domain.ModeError:     lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171")), // red
}

var (
	secondaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#71717a"))
	primaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#d4d4d8"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#a1a1aa"))
	borderStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#3f3f46")).Padding(0, 1)
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80")).Bold(true)
)

// panelName is one of the six declared panel slots; the grid layout hides
// panels from the end of this list as width drops below each breakpoint.
type panelName string

const (
	panelChat          panelName = "chat"
	panelDocuments     panelName = "documents"
	panelTodo          panelName = "todo"
	panelProjects      panelName = "projects"
	panelCalendar      panelName = "calendar"
	panelNotifications panelName = "notifications"
)

// breakpoints maps terminal width to the panels that remain visible,
// widest-first; panels not in the active set are simply omitted from
// the rendered grid.
var breakpoints = []struct {
	minWidth int
	panels   []panelName
}{
	{120, []panelName{panelChat, panelDocuments, panelTodo, panelProjects, panelCalendar, panelNotifications}},
	{80, []panelName{panelChat, panelDocuments, panelTodo, panelProjects}},
	{60, []panelName{panelChat, panelDocuments, panelTodo}},
	{40, []panelName{panelChat, panelDocuments}},
	{0, []panelName{panelChat}},
}

func visiblePanels(width int) []panelName {
	for _, bp := range breakpoints {
		if width >= bp.minWidth {
			return bp.panels
		}
	}
	return breakpoints[len(breakpoints)-1].panels
}

// ── Controller — the external, thread-safe handle ──────────────────

// Controller owns the Bubble Tea program and is the Supervisor's UI-task
// handle: background goroutines call Send to push state, and register
// callbacks for control-surface actions.
type Controller struct {
	program *tea.Program
	done    atomic.Bool
	quitCh  chan struct{}

	initial  domain.DashboardState
	personas []domain.PersonaDescriptor

	onModeCycle   func()
	onVoiceStart  func()
	onPersonaSwap func(name string)
	onStateDumped func(dump string)
}

// New constructs a Controller with the given initial state and the set of
// discovered personas for the settings view. Call Run to start rendering.
func New(initial domain.DashboardState, personas []domain.PersonaDescriptor) *Controller {
	return &Controller{
		quitCh:   make(chan struct{}),
		initial:  initial,
		personas: personas,
	}
}

// Run starts the Bubble Tea event loop. Blocks until the user quits.
func (c *Controller) Run() error {
	m := model{
		state:      c.initial,
		personas:   c.personas,
		controller: c,
		width:      80,
		height:     24,
	}
	c.program = tea.NewProgram(m, tea.WithAltScreen())
	_, err := c.program.Run()
	c.done.Store(true)
	close(c.quitCh)
	return err
}

// Send posts a fresh DashboardState snapshot to the renderer. Safe to call
// from any goroutine; a no-op once the program has exited.
func (c *Controller) Send(state domain.DashboardState) {
	if c.program != nil && !c.done.Load() {
		c.program.Send(stateMsg{state: state})
	}
}

// OnModeCycle registers the SPACE handler (dev mode-cycling).
func (c *Controller) OnModeCycle(fn func()) { c.onModeCycle = fn }

// OnVoiceStart registers the V handler (on-demand voice runtime startup).
func (c *Controller) OnVoiceStart(fn func()) { c.onVoiceStart = fn }

// OnPersonaSwap registers the settings-view persona-selection handler.
// name is read from the radio group's label text, never a boolean flag.
func (c *Controller) OnPersonaSwap(fn func(name string)) { c.onPersonaSwap = fn }

// OnStateDumped registers a callback fired after Shift-S formats the state
// dump and tries to copy it to the clipboard; it fires whether or not the
// clipboard write succeeded. Mostly useful for tests.
func (c *Controller) OnStateDumped(fn func(dump string)) { c.onStateDumped = fn }

// QuitChan is closed once Run returns, mirroring the donor's shutdown
// synchronization idiom.
func (c *Controller) QuitChan() <-chan struct{} { return c.quitCh }

// Quit requests a clean shutdown.
func (c *Controller) Quit() {
	if c.program != nil {
		c.program.Quit()
	}
}

// ── Bubble Tea model ─────────────────────────────────────────────

type viewMode int

const (
	viewMain viewMode = iota
	viewSettings
)

type model struct {
	controller *Controller
	state      domain.DashboardState
	personas   []domain.PersonaDescriptor

	view   viewMode
	cursor int // settings-view radio group cursor

	width, height int

	// amplitude smoothing: 10-sample moving average feeding a low-pass.
	ampHistory  [10]float32
	ampIdx      int
	smoothedAmp float32

	lastWakeWordAt time.Time
}

type stateMsg struct{ state domain.DashboardState }
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case stateMsg:
		m.state = msg.state
		if m.state.Status.LastWakeWord != "" {
			m.lastWakeWordAt = m.state.Status.LastWakeWordAt
		}
		return m, nil

	case tickMsg:
		m.pushAmplitude(m.state.InputAmplitude, m.state.OutputAmplitude)
		if m.state.Status.LastWakeWord != "" && !m.lastWakeWordAt.IsZero() &&
			time.Since(m.lastWakeWordAt) > domain.WakeWordDebounce {
			m.state.Status.LastWakeWord = ""
		}
		return m, tickCmd()
	}
	return m, nil
}

func (m *model) pushAmplitude(input, output float32) {
	amp := input
	if output > amp {
		amp = output
	}
	m.ampHistory[m.ampIdx%len(m.ampHistory)] = amp
	m.ampIdx++

	var sum float32
	for _, v := range m.ampHistory {
		sum += v
	}
	avg := sum / float32(len(m.ampHistory))

	// Low-pass to prevent visual jitter, alongside the moving average.
	const alpha = 0.3
	m.smoothedAmp = m.smoothedAmp + alpha*(avg-m.smoothedAmp)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.view == viewSettings {
		return m.handleSettingsKey(msg)
	}

	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case " ":
		if m.controller != nil && m.controller.onModeCycle != nil {
			m.controller.onModeCycle()
		}
		return m, nil
	case "v":
		if m.controller != nil && m.controller.onVoiceStart != nil {
			m.controller.onVoiceStart()
		}
		return m, nil
	case "s":
		m.view = viewSettings
		m.cursor = m.currentPersonaIndex()
		return m, nil
	case "S":
		dump := m.formatStateDump()
		_ = clipboard.WriteAll(dump)
		if m.controller != nil && m.controller.onStateDumped != nil {
			m.controller.onStateDumped(dump)
		}
		return m, nil
	}
	return m, nil
}

func (m model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = viewMain
		return m, nil
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.personas)-1 {
			m.cursor++
		}
		return m, nil
	case "enter":
		if m.cursor >= 0 && m.cursor < len(m.personas) {
			// Read the radio group's label text, never a selected flag.
			label := m.personas[m.cursor].Name
			if m.controller != nil && m.controller.onPersonaSwap != nil {
				m.controller.onPersonaSwap(label)
			}
			m.state.ActivePersonaName = label
		}
		m.view = viewMain
		return m, nil
	}
	return m, nil
}

func (m model) currentPersonaIndex() int {
	for i, p := range m.personas {
		if p.Name == m.state.ActivePersonaName {
			return i
		}
	}
	return 0
}

func (m model) formatStateDump() string {
	var b strings.Builder
	b.WriteString("xswarm state dump\n")
	fmt.Fprintf(&b, "persona: %s\n", m.state.ActivePersonaName)
	fmt.Fprintf(&b, "mode: %s\n", m.state.Mode)
	fmt.Fprintf(&b, "device: %s\n", m.state.Status.DeviceLabel)
	fmt.Fprintf(&b, "input_drops: %d  output_underflows: %d  over_budget_steps: %d  backpressure: %v\n",
		m.state.Status.InputFullDrops, m.state.Status.OutputUnderflows, m.state.Status.OverBudgetSteps, m.state.Status.Backpressure)
	b.WriteString("recent events:\n")
	for _, ev := range lastN(m.state.ActivityFeed, domain.ActivityFeedShown) {
		fmt.Fprintf(&b, "  [%s] %s: %s\n", ev.Timestamp.Format("15:04:05"), ev.Kind, ev.Message)
	}
	return b.String()
}

func lastN[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// View renders the current frame. If the terminal size hasn't been
// reported yet, it falls back to the size of the terminal on file
// descriptor 0 (stdin), or 80 columns if that cannot be read.
func (m model) View() string {
	width := m.width
	if width == 0 {
		if w, _, err := xterm.GetSize(0); err == nil && w > 0 {
			width = w
		} else {
			width = 80
		}
	}

	if m.view == viewSettings {
		return m.renderSettings(width)
	}
	return m.renderMain(width)
}

func (m model) renderMain(width int) string {
	style := modeStyles[m.state.Mode]
	header := style.Bold(true).Render(fmt.Sprintf(" %s ", m.state.Mode))

	panels := visiblePanels(width)
	var sections []string
	sections = append(sections, header)
	sections = append(sections, m.renderVisualizer())
	sections = append(sections, m.renderStatus())
	sections = append(sections, m.renderActivityFeed())

	for _, p := range panels {
		if p == panelChat {
			continue // chat content folds into the activity feed above
		}
		sections = append(sections, borderStyle.Render(labelStyle.Render(string(p))+" (empty)"))
	}

	sections = append(sections, secondaryStyle.Render("SPACE cycle · V voice · S settings · Q/Esc/Ctrl-C quit · Shift-S copy state"))
	return strings.Join(sections, "\n")
}

// renderVisualizer draws a circle whose radius responds to the smoothed
// amplitude while Speaking, per the radius formula in §4.9's ancestor
// section: base_radius * (0.6 + 0.8 * smooth_amplitude). Character aspect
// is compensated by sampling twice as many columns as rows and halving the
// horizontal distance.
func (m model) renderVisualizer() string {
	const baseRadius = 8
	radius := float64(baseRadius)
	if m.state.Mode == domain.ModeSpeaking {
		radius = float64(baseRadius) * (0.6 + 0.8*float64(m.smoothedAmp))
	}

	var b strings.Builder
	style := modeStyles[m.state.Mode]
	for y := -baseRadius; y <= baseRadius; y++ {
		for x := -baseRadius * 2; x <= baseRadius*2; x++ {
			dx := float64(x) / 2
			dy := float64(y)
			if dx*dx+dy*dy <= radius*radius {
				b.WriteString(style.Render("*"))
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) renderStatus() string {
	wake := m.state.Status.LastWakeWord
	if wake == "" {
		wake = "-"
	}
	return borderStyle.Render(fmt.Sprintf(
		"%s  %s  %s  wake:%s",
		labelStyle.Render(m.state.Status.DeviceLabel),
		modeStyles[m.state.Mode].Render(m.state.Mode.String()),
		primaryStyle.Render(m.state.ActivePersonaName),
		secondaryStyle.Render(wake),
	))
}

func (m model) renderActivityFeed() string {
	shown := lastN(m.state.ActivityFeed, domain.ActivityFeedShown)
	var lines []string
	for _, ev := range shown {
		ts := ev.Timestamp.Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s  %s  %s", secondaryStyle.Render(ts), labelStyle.Render(ev.Kind.String()), ev.Message))
	}
	if len(lines) == 0 {
		lines = append(lines, secondaryStyle.Render("(no activity yet)"))
	}
	return borderStyle.Render(strings.Join(lines, "\n"))
}

func (m model) renderSettings(width int) string {
	var b strings.Builder
	b.WriteString(primaryStyle.Bold(true).Render("Settings — select persona") + "\n\n")
	for i, p := range m.personas {
		marker := "  "
		style := labelStyle
		if i == m.cursor {
			marker = "> "
			style = selectedStyle
		}
		b.WriteString(marker + style.Render(p.Name))
		if p.Description != "" {
			b.WriteString("  " + secondaryStyle.Render(p.Description))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + secondaryStyle.Render("↑/↓ move · Enter select · Esc back · Q quit"))
	_ = width
	return borderStyle.Render(b.String())
}
