// Package neural wraps the streaming speech-to-speech model behind a
// narrow, single-owner interface. How the model is trained, quantized, or
// tokenized is out of scope — Engine only knows how to step a frame given
// conditions and, optionally, delegate that step to an injected
// AcceleratorBackend. Engine itself is not thread-safe: exactly one
// goroutine (the Supervisor's processing task) may call StepFrame.
package neural

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mirror-labs/xswarm/internal/domain"
	"github.com/mirror-labs/xswarm/internal/logger"
)

// Quality is the weights quantization tag.
type Quality string

const (
	QualityBF16 Quality = "bf16"
	QualityQ8   Quality = "q8"
	QualityQ4   Quality = "q4"
)

// ModelDescriptor identifies which weights to load and at what quality.
type ModelDescriptor struct {
	Quality Quality
	Path    string
	Seed    int64
}

// LoadProgressFunc is invoked as loading advances so the dashboard can
// show a progress bar. phase is a short human label, percent in [0,100].
type LoadProgressFunc func(phase string, percent int)

// Stats accumulates non-fatal engine conditions.
type Stats struct {
	OverBudgetSteps atomic.Uint64
	TokensEmitted   atomic.Uint64
}

// SessionHandle identifies one begin_session..step_frame* lifetime.
type SessionHandle struct {
	id string
}

func newSessionHandle() SessionHandle {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return SessionHandle{id: hex.EncodeToString(b[:])}
}

// String implements fmt.Stringer.
func (h SessionHandle) String() string { return h.id }

// StepOutput is the result of one StepFrame call.
type StepOutput struct {
	Output        domain.OutputFrame
	TextPiece     *string
	TokensEmitted uint32
}

// FramePeriod is the nominal wall-clock budget for one StepFrame call
// (80 ms, matching the 1920-sample/24kHz frame).
const FramePeriod = 80 * time.Millisecond

// Option configures an Engine at Load time.
type Option func(*Engine)

// WithBackend installs a real AcceleratorBackend. Without one, Engine
// falls back to the deterministic CPU Reference behavior.
func WithBackend(b domain.AcceleratorBackend) Option {
	return func(e *Engine) { e.backend = b }
}

// Engine is the single-owner wrapper around the streaming model.
type Engine struct {
	descriptor ModelDescriptor
	log        *logger.Logger
	backend    domain.AcceleratorBackend

	Stats Stats

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	mu         sync.Mutex
	cond       domain.Condition
	pendingNew *domain.Condition // set by UpdateConditions, applied atomically at next step
	seq        uint64
	phase      float64 // oscillator phase for the reference tone generator
	words      []string
	wordIdx    int
	started    time.Time
}

// Load constructs an Engine for the given descriptor. Loading reports
// progress through onProgress (phases: "weights", "warmup", "ready").
// Loading itself is near-instant for the bundled Reference engine; a real
// AcceleratorBackend installed via WithBackend may take materially
// longer, which is why this is ctx-aware and progress-reporting.
func Load(ctx context.Context, descriptor ModelDescriptor, log *logger.Logger, onProgress LoadProgressFunc, opts ...Option) (*Engine, error) {
	if descriptor.Path == "" && descriptor.Quality == "" {
		descriptor.Quality = QualityQ8
	}

	e := &Engine{
		descriptor: descriptor,
		log:        log,
		sessions:   make(map[string]*sessionState),
	}
	for _, opt := range opts {
		opt(e)
	}

	phases := []string{"weights", "warmup", "ready"}
	for i, phase := range phases {
		select {
		case <-ctx.Done():
			return nil, errors.Join(domain.ErrLoadFailed, ctx.Err())
		default:
		}
		if onProgress != nil {
			onProgress(phase, (i+1)*100/len(phases))
		}
	}

	log.Info("neural: engine loaded (quality=%s, backend=%v)", descriptor.Quality, e.backend != nil)
	return e, nil
}

// BeginSession resets streaming state and seeds it with conditioning.
func (e *Engine) BeginSession(cond domain.Condition) SessionHandle {
	h := newSessionHandle()
	e.mu.Lock()
	e.sessions[h.id] = &sessionState{
		cond:    cond,
		words:   greetingWords(cond),
		started: time.Now(),
	}
	e.mu.Unlock()
	return h
}

// EndSession discards a session's state.
func (e *Engine) EndSession(h SessionHandle) {
	e.mu.Lock()
	delete(e.sessions, h.id)
	e.mu.Unlock()
}

// UpdateConditions applies new conditions starting with the next
// StepFrame call for this session. The swap itself is atomic from the
// caller's perspective: a step in flight always finishes with the
// conditions it started with.
func (e *Engine) UpdateConditions(h SessionHandle, cond domain.Condition) {
	e.mu.Lock()
	st, ok := e.sessions[h.id]
	e.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	c := cond
	st.pendingNew = &c
	st.mu.Unlock()
}

// StepFrame consumes exactly one input frame and produces exactly one
// output frame. forceText must be nil outside the fixed-greeting path;
// passing it during normal operation is a programming error the caller
// must not make (per the forced-text-vs-conditioning design note).
func (e *Engine) StepFrame(ctx context.Context, h SessionHandle, input *domain.AudioFrame, forceText []string) (StepOutput, error) {
	e.mu.Lock()
	st, ok := e.sessions[h.id]
	e.mu.Unlock()
	if !ok {
		return StepOutput{}, fmt.Errorf("neural: unknown session %s", h)
	}

	start := time.Now()

	st.mu.Lock()
	if st.pendingNew != nil {
		st.cond = *st.pendingNew
		st.pendingNew = nil
	}
	cond := st.cond
	st.mu.Unlock()

	var out StepOutput
	var err error
	if e.backend != nil {
		frame, text, berr := e.backend.StepFrame(ctx, cond, *input, forceText)
		if berr != nil {
			return StepOutput{}, errors.Join(domain.ErrStepFailed, berr)
		}
		st.mu.Lock()
		st.seq++
		seq := st.seq
		st.mu.Unlock()
		frame.ProducedSeq = seq
		out = StepOutput{Output: frame, TextPiece: text}
		if text != nil {
			out.TokensEmitted = 1
		}
	} else {
		out, err = e.stepReference(st, input, forceText)
		if err != nil {
			return StepOutput{}, err
		}
	}

	if time.Since(start) > FramePeriod {
		e.Stats.OverBudgetSteps.Add(1)
	}
	if out.TokensEmitted > 0 {
		e.Stats.TokensEmitted.Add(uint64(out.TokensEmitted))
	}
	return out, nil
}
