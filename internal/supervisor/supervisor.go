// Package supervisor owns the four cooperating tasks of the voice
// runtime — input forwarding, processing, output playback, and UI — and
// the lifecycle/concurrency policy binding them together. It generalizes
// the donor's internal/timer.Supervisor (ticker loop + functional options
// + start/stop-with-mutex pattern) from timer-escalation semantics to
// task-lifecycle coordination: the same New(...)/Option idiom, but
// Start/Stop now launch and drain the four named goroutines instead of a
// single tick loop.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mirror-labs/xswarm/internal/audiodevice"
	"github.com/mirror-labs/xswarm/internal/condition"
	"github.com/mirror-labs/xswarm/internal/dashboard"
	"github.com/mirror-labs/xswarm/internal/domain"
	"github.com/mirror-labs/xswarm/internal/frameq"
	"github.com/mirror-labs/xswarm/internal/logger"
	"github.com/mirror-labs/xswarm/internal/memory"
	"github.com/mirror-labs/xswarm/internal/neural"
	"github.com/mirror-labs/xswarm/internal/persona"
	"github.com/mirror-labs/xswarm/internal/resample"
	"github.com/mirror-labs/xswarm/internal/telemetry"
	"github.com/mirror-labs/xswarm/internal/wakeword"
)

// idleTimeout returns the dashboard to Idle after this much time without
// new engine activity; the engine session itself stays open.
const idleTimeout = 4 * time.Second

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithFrameSize overrides the engine-native frame size used when
// reframing resampled audio. Defaults to domain.FrameSize.
func WithFrameSize(n int) Option {
	return func(s *Supervisor) { s.frameSize = n }
}

// WithQueueCapacity overrides the input/output frame queue capacity.
// Defaults to frameq.DefaultCapacity.
func WithQueueCapacity(n int) Option {
	return func(s *Supervisor) { s.queueCapacity = n }
}

// WithShutdownTimeout bounds how long Stop waits for the tasks to exit
// after cancelling them, before it closes the queues.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.shutdownTimeout = d }
}

// WithNotifier installs a domain.Notifier the Supervisor uses for
// activity the dashboard alone wouldn't surface (e.g. headless runs).
func WithNotifier(n domain.Notifier) Option {
	return func(s *Supervisor) { s.notifier = n }
}

// WithDeviceAutoStart controls whether Start opens the audio device
// immediately (the default) or waits for the on-demand V handler — the
// `run --no-voice` mode from §6.1.
func WithDeviceAutoStart(auto bool) Option {
	return func(s *Supervisor) { s.deviceAutoStart = auto }
}

// Supervisor coordinates the device, engine, persona runtime, condition
// builder, memory, wake-word detector, and dashboard into the four-task
// pipeline described by the concurrency model: the engine is touched only
// from the processing goroutine; everything else communicates through
// queues and atomics.
type Supervisor struct {
	dev       *audiodevice.Device
	engine    *neural.Engine
	personas  *persona.Runtime
	conds     *condition.Builder
	mem       *memory.Store
	semantic  domain.SemanticMemory
	wake      *wakeword.Detector
	dash      *dashboard.Controller
	telemetry *telemetry.Recorder
	log       *logger.Logger
	notifier  domain.Notifier

	frameSize       int
	queueCapacity   int
	shutdownTimeout time.Duration
	deviceAutoStart bool

	inputQueue  *frameq.Queue[domain.AudioFrame]
	outputQueue *frameq.Queue[domain.OutputFrame]
	rawQueue    *frameq.Queue[[]float32]

	inResampler  *resample.Resampler
	outResampler *resample.Resampler

	outRing outputRing

	mu      sync.Mutex
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	state   domain.DashboardState
	stateMu sync.Mutex

	session   *conversationSession
	sessionMu sync.Mutex
}

type conversationSession struct {
	handle       neural.SessionHandle
	personaName  string
	lastActivity time.Time
}

// New constructs a Supervisor wiring every named component together.
// semantic and notifier may be nil.
func New(
	dev *audiodevice.Device,
	engine *neural.Engine,
	personas *persona.Runtime,
	conds *condition.Builder,
	mem *memory.Store,
	semantic domain.SemanticMemory,
	wake *wakeword.Detector,
	dash *dashboard.Controller,
	tel *telemetry.Recorder,
	log *logger.Logger,
	opts ...Option,
) *Supervisor {
	s := &Supervisor{
		dev:             dev,
		engine:          engine,
		personas:        personas,
		conds:           conds,
		mem:             mem,
		semantic:        semantic,
		wake:            wake,
		dash:            dash,
		telemetry:       tel,
		log:             log,
		frameSize:       domain.FrameSize,
		queueCapacity:   frameq.DefaultCapacity,
		shutdownTimeout: 3 * time.Second,
		deviceAutoStart: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.inputQueue = frameq.New[domain.AudioFrame](s.queueCapacity)
	s.outputQueue = frameq.New[domain.OutputFrame](s.queueCapacity)
	s.rawQueue = frameq.New[[]float32](s.queueCapacity)

	s.state.ActivePersonaName = personas.Active().Name
	s.state.Status.DeviceLabel = "default"

	if dash != nil {
		dash.OnModeCycle(s.handleModeCycle)
		dash.OnVoiceStart(s.handleVoiceStart)
		dash.OnPersonaSwap(s.handlePersonaSwap)
	}
	if wake != nil {
		wake.OnDetect = s.handleWakeWord
	}
	personas.OnSwap(func(p domain.Persona) {
		s.pushState(func(st *domain.DashboardState) { st.ActivePersonaName = p.Name })
	})

	return s
}

// Start starts the device (unless WithDeviceAutoStart(false)) and launches
// the four tasks: input forwarding, processing, output playback, and UI.
// Non-blocking; watch QuitChan to know when the UI task exits.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runCtx = childCtx
	s.running = true
	s.mu.Unlock()

	s.inResampler = resample.New(int(s.dev.SampleRate()), domain.EngineSampleRate, resample.DefaultConfig)
	s.outResampler = resample.New(domain.EngineSampleRate, int(s.dev.SampleRate()), resample.DefaultConfig)

	s.dev.SetInputSink(func(block []float32) {
		cp := make([]float32, len(block))
		copy(cp, block)
		// device callback never blocks; drop on full
		if err := s.rawQueue.TryPush(cp); errors.Is(err, domain.ErrOverflow) {
			s.dev.Drops.InputFull.Add(1)
		}
	})
	s.dev.SetOutputSource(s.pullOutput)

	if s.deviceAutoStart {
		if err := s.dev.Start(childCtx); err != nil {
			cancel()
			return fmt.Errorf("supervisor: starting device: %w", err)
		}
	}

	// Per §4.10: Start begins an engine session before starting the
	// tasks, unconditionally — not gated on a wake word — so the
	// processing task has something to step from frame one and the
	// full-duplex contract (exactly one output frame per input frame)
	// holds from the very first frame.
	s.beginSession(childCtx)

	s.wg.Add(3)
	go s.inputForwardingTask(childCtx)
	go s.processingTask(childCtx)
	go s.outputPlaybackTask(childCtx)

	if s.dash != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.dash.Run(); err != nil {
				s.log.Error("supervisor: dashboard exited: %v", err)
			}
		}()
	}

	s.log.Info("supervisor: started (frame_size=%d queue_capacity=%d)", s.frameSize, s.queueCapacity)
	return nil
}

// QuitChan reports when the UI task has exited (user pressed Q/Esc/
// Ctrl-C), the cue for the caller to call Stop.
func (s *Supervisor) QuitChan() <-chan struct{} {
	if s.dash == nil {
		ch := make(chan struct{})
		return ch
	}
	return s.dash.QuitChan()
}

// Stop cancels the tasks' shared context, waits for them to exit (bounded
// by the shutdown timeout and ctx), then closes the queues, ends the engine
// session and stops the device. Frames still queued at cancellation are
// discarded, not drained. Safe to call once; subsequent calls are no-ops.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if s.dash != nil {
		s.dash.Quit()
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		s.log.Warn("supervisor: shutdown timeout exceeded, forcing queue closure")
	case <-ctx.Done():
	}

	s.inputQueue.Close()
	s.outputQueue.Close()
	s.rawQueue.Close()

	s.sessionMu.Lock()
	sess := s.session
	s.sessionMu.Unlock()
	if sess != nil {
		s.endSession(sess)
	}

	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("supervisor: stopping device: %w", err)
	}
	s.log.Info("supervisor: stopped")
	return nil
}

// beginSession begins the one engine session that lives for the whole
// Start..Stop run, seeded with the active persona's conditions. It is
// not gated on a wake word: the engine must be stepped from the very
// first input frame onward for the full-duplex contract (exactly one
// output frame per input frame) to hold, so Start calls this
// unconditionally before launching the tasks. Wake-word detection only
// ever drives the dashboard's Listening transition afterward.
func (s *Supervisor) beginSession(ctx context.Context) {
	active := s.personas.Active()
	snippet := s.querySnippet(ctx, active)
	cond := s.conds.Build(active, snippet)
	handle := s.engine.BeginSession(cond)

	s.sessionMu.Lock()
	s.session = &conversationSession{handle: handle, personaName: active.Name, lastActivity: time.Now()}
	s.sessionMu.Unlock()
}

// ── Input forwarding task ────────────────────────────────────────

func (s *Supervisor) inputForwardingTask(ctx context.Context) {
	defer s.wg.Done()

	var accum []float32
	var seq uint64

	for {
		block, ok := s.rawQueue.Pop(ctx)
		if !ok {
			return
		}
		accum = append(accum, s.inResampler.Process(block)...)

		for len(accum) >= s.frameSize {
			var f domain.AudioFrame
			copy(f.Samples[:], accum[:s.frameSize])
			f.CaptureSeq = seq
			f.CaptureInstant = time.Now()
			seq++
			accum = accum[s.frameSize:]

			if err := s.inputQueue.TryPush(f); err != nil && !errors.Is(err, domain.ErrQueueClosed) {
				s.pushState(func(st *domain.DashboardState) { st.Status.InputFullDrops++ })
			}
		}
	}
}

// ── Processing task — the sole owner of the NeuralEngine ────────────

func (s *Supervisor) processingTask(ctx context.Context) {
	defer s.wg.Done()

	for {
		frame, ok := s.inputQueue.Pop(ctx)
		if !ok {
			return
		}

		// Observe any persona swap at the top of the step, per the
		// concurrency contract: a step in flight always finishes with the
		// persona it started with, and the very next step picks up any
		// swap that landed in between.
		active := s.personas.Active()

		s.pushState(func(st *domain.DashboardState) { st.InputAmplitude = frame.RMS() })

		if s.wake != nil {
			s.wake.Feed(&frame)
		}

		s.sessionMu.Lock()
		sess := s.session
		s.sessionMu.Unlock()
		if sess == nil {
			// Defensive only: beginSession runs synchronously in Start
			// before this task is launched, so this path is not expected
			// in normal operation. If it is ever hit, the frame is an
			// explicitly recorded drop rather than a silent one, per the
			// §3 invariant that every unprocessed frame has a recorded
			// drop_reason.
			s.pushState(func(st *domain.DashboardState) { st.Status.InputFullDrops++ })
			continue
		}

		if sess.personaName != active.Name {
			snippet := s.querySnippet(ctx, active)
			cond := s.conds.Build(active, snippet)
			s.engine.UpdateConditions(sess.handle, cond)
			sess.personaName = active.Name
		}

		overBudgetBefore := s.engine.Stats.OverBudgetSteps.Load()
		out, err := s.engine.StepFrame(ctx, sess.handle, &frame, nil)
		if err != nil {
			s.log.Error("supervisor: step failed: %v", err)
			s.pushState(func(st *domain.DashboardState) { st.Mode = domain.ModeError })
			continue
		}
		if s.telemetry != nil {
			s.telemetry.RecordStepTiming(out.Output.ProducedSeq, time.Since(frame.CaptureInstant), s.engine.Stats.OverBudgetSteps.Load() > overBudgetBefore)
		}

		if out.TextPiece != nil {
			s.mem.AddAssistantMessage(*out.TextPiece)
			s.recordEvent(domain.EventAssistantUtterance, *out.TextPiece)
			sess.lastActivity = time.Now()
			s.pushState(func(st *domain.DashboardState) {
				st.Mode = domain.ModeSpeaking
				st.OutputAmplitude = out.Output.RMS()
				st.Status.OverBudgetSteps = s.engine.Stats.OverBudgetSteps.Load()
			})
		}

		if err := s.outputQueue.Push(ctx, out.Output); err != nil && !errors.Is(err, domain.ErrQueueClosed) && !errors.Is(err, context.Canceled) {
			s.log.Warn("supervisor: pushing output frame: %v", err)
		}

		if time.Since(sess.lastActivity) > idleTimeout {
			// Only the dashboard mode returns to Idle; the engine session
			// itself stays live for the whole run so every subsequent
			// frame still gets stepped (constant-rate full-duplex).
			s.pushState(func(st *domain.DashboardState) {
				if st.Mode != domain.ModeError {
					st.Mode = domain.ModeIdle
				}
			})
		}
	}
}

func (s *Supervisor) querySnippet(ctx context.Context, p domain.Persona) *string {
	if s.semantic == nil {
		return nil
	}
	snippets, err := s.semantic.Query(ctx, p.SystemPrompt, 1)
	if err != nil || len(snippets) == 0 {
		return nil
	}
	return &snippets[0].Text
}

func (s *Supervisor) endSession(sess *conversationSession) {
	s.sessionMu.Lock()
	if s.session == sess {
		s.engine.EndSession(sess.handle)
		s.session = nil
	}
	s.sessionMu.Unlock()
	s.pushState(func(st *domain.DashboardState) { st.Mode = domain.ModeIdle })
}

// ── Output playback task ─────────────────────────────────────────

func (s *Supervisor) outputPlaybackTask(ctx context.Context) {
	defer s.wg.Done()
	for {
		frame, ok := s.outputQueue.Pop(ctx)
		if !ok {
			return
		}
		converted := s.outResampler.Process(frame.Samples[:])
		s.outRing.append(converted)
	}
}

// pullOutput is installed as the Device's OutputSource: it must never
// block, so it only drains the ring the output playback task fills.
func (s *Supervisor) pullOutput(out []float32) int {
	return s.outRing.pull(out)
}

// ── Wake word / dashboard control handlers ──────────────────────────

// handleWakeWord implements §4.9's "Idle → Listening on wake-word detect"
// transition. The engine session is already running (begun unconditionally
// in Start); a wake word only drives the dashboard mode and refreshes the
// session's activity clock, it never gates whether the engine is touched.
func (s *Supervisor) handleWakeWord(word string) {
	active := s.personas.Active()
	if !active.HasWakeWord(word) {
		return
	}

	now := time.Now()
	s.pushState(func(st *domain.DashboardState) {
		st.Mode = domain.ModeListening
		st.Status.LastWakeWord = word
		st.Status.LastWakeWordAt = now
	})
	s.recordEvent(domain.EventWakeWord, word)

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.session != nil {
		s.session.lastActivity = now
	}
}

func (s *Supervisor) handleModeCycle() {
	s.pushState(func(st *domain.DashboardState) { st.Mode = nextMode(st.Mode) })
}

// nextMode implements the dev-mode SPACE cycle: idle -> listening ->
// speaking -> thinking -> idle.
func nextMode(m domain.Mode) domain.Mode {
	switch m {
	case domain.ModeIdle:
		return domain.ModeListening
	case domain.ModeListening:
		return domain.ModeSpeaking
	case domain.ModeSpeaking:
		return domain.ModeThinking
	default:
		return domain.ModeIdle
	}
}

func (s *Supervisor) handleVoiceStart() {
	s.mu.Lock()
	running := s.running
	ctx := s.runCtx
	s.mu.Unlock()
	if !running {
		return
	}
	if err := s.dev.Start(ctx); err != nil {
		s.log.Error("supervisor: on-demand voice start failed: %v", err)
	}
}

func (s *Supervisor) handlePersonaSwap(name string) {
	p, err := s.personas.LoadByName(name)
	if err != nil {
		s.log.Error("supervisor: loading persona %q: %v", name, err)
		return
	}
	s.personas.Swap(p)
	if s.wake != nil {
		_ = s.wake.Configure(p.WakeWords, 0.5)
	}
}

// ── Dashboard state plumbing ─────────────────────────────────────────

func (s *Supervisor) pushState(mutate func(*domain.DashboardState)) {
	s.stateMu.Lock()
	mutate(&s.state)
	snapshot := s.state
	s.stateMu.Unlock()

	if s.dash != nil {
		s.dash.Send(snapshot)
	}
}

func (s *Supervisor) recordEvent(kind domain.EventKind, message string) {
	ev := domain.Event{ID: uuid.New(), Timestamp: time.Now(), Kind: kind, Message: message}
	s.pushState(func(st *domain.DashboardState) {
		st.ActivityFeed = append(st.ActivityFeed, ev)
		if len(st.ActivityFeed) > domain.ActivityFeedCap {
			st.ActivityFeed = st.ActivityFeed[len(st.ActivityFeed)-domain.ActivityFeedCap:]
		}
	})
	if s.telemetry != nil {
		s.telemetry.RecordEvent(ev)
	}
}
