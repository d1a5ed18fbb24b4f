// Package audiodevice owns the platform microphone input and speaker
// output streams. Capture delivers fixed-size blocks to an injected sink
// on a dedicated real-time-ish goroutine that must never block; playback
// pulls blocks from an injected source on oto's own streaming goroutine.
// Device callbacks never touch the NeuralEngine directly — they only
// enqueue and return, per the concurrency policy this package exists to
// uphold.
package audiodevice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gordonklaus/portaudio"

	"github.com/mirror-labs/xswarm/internal/domain"
	"github.com/mirror-labs/xswarm/internal/logger"
)

// InputSink receives raw device-native blocks on the real-time input
// goroutine. It must enqueue-and-return; it must never block.
type InputSink func(block []float32)

// OutputSource is pulled on the real-time output goroutine for exact
// block sizes. It must fill out completely; if no data is available it
// should leave out unwritten (zeros) and the caller counts an underflow.
type OutputSource func(out []float32) (filled int)

// Drops counts the non-fatal conditions the device contract requires be
// counted rather than surfaced as errors.
type Drops struct {
	InputFull       atomic.Uint64
	OutputUnderflow atomic.Uint64
}

// Config configures stream parameters. Rates and block sizes are
// device-native; the Resampler adapts to/from the engine-native format.
type Config struct {
	SampleRate      float64
	FramesPerBuffer int
}

// DefaultConfig matches the common default device rate; actual devices
// may differ and Open reports the negotiated rate via SampleRate().
var DefaultConfig = Config{SampleRate: 48000, FramesPerBuffer: 960}

// Device owns one input stream and one output stream.
type Device struct {
	log *logger.Logger
	cfg Config

	mu        sync.Mutex
	inStream  *portaudio.Stream
	inBuf     []float32
	outStream *oto.Context
	outPlayer *oto.Player
	running   bool
	sink      atomic.Pointer[InputSink]
	source    atomic.Pointer[OutputSource]

	Drops Drops

	lossOnce sync.Once
	lossCh   chan struct{}
}

// Open opens the platform default input stream at the given
// configuration. It does not start streaming; call Start for that. The
// output stream is created by Start.
func Open(log *logger.Logger, cfg Config) (*Device, error) {
	if cfg.SampleRate <= 0 {
		cfg = DefaultConfig
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, errors.Join(domain.ErrNoDevice, err)
	}

	d := &Device{log: log, cfg: cfg, lossCh: make(chan struct{})}

	in := make([]float32, cfg.FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, cfg.SampleRate, cfg.FramesPerBuffer, in)
	if err != nil {
		portaudio.Terminate()
		return nil, classifyOpenError(err)
	}
	d.inStream = stream
	d.inBuf = in

	log.Info("audiodevice: opened input stream (rate=%.0f, block=%d)", cfg.SampleRate, cfg.FramesPerBuffer)
	return d, nil
}

func classifyOpenError(err error) error {
	msg := err.Error()
	switch {
	case contains(msg, "permission"), contains(msg, "denied"):
		return errors.Join(domain.ErrPermissionDenied, err)
	case contains(msg, "format"), contains(msg, "unsupported"):
		return errors.Join(domain.ErrUnsupportedFormat, err)
	default:
		return errors.Join(domain.ErrNoDevice, err)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// SetInputSink installs the sink invoked with each captured block. Install
// before Start; installing while running swaps it atomically.
func (d *Device) SetInputSink(sink InputSink) {
	d.sink.Store(&sink)
}

// SetOutputSource installs the source pulled for each playback block.
func (d *Device) SetOutputSource(src OutputSource) {
	d.source.Store(&src)
}

// SampleRate returns the negotiated device-native sample rate.
func (d *Device) SampleRate() float64 { return d.cfg.SampleRate }

// FramesPerBuffer returns the device-native block size.
func (d *Device) FramesPerBuffer() int { return d.cfg.FramesPerBuffer }

// LostCh is closed when the device detects a lost stream (unplug, format
// change). The Supervisor watches this to drive the retry policy.
func (d *Device) LostCh() <-chan struct{} { return d.lossCh }

// Start begins the capture and playback goroutines. Idempotent.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.mu.Unlock()

	if err := d.inStream.Start(); err != nil {
		return errors.Join(domain.ErrDeviceLost, err)
	}

	go d.captureLoop(ctx)

	ctxOut, err := newOtoContext(int(d.cfg.SampleRate))
	if err != nil {
		return errors.Join(domain.ErrNoDevice, err)
	}
	d.outStream = ctxOut
	d.outPlayer = ctxOut.NewPlayer(newSourceReader(d))
	d.outPlayer.Play()

	d.log.Info("audiodevice: started")
	return nil
}

// captureLoop is the "real-time input thread" in spirit: a tight loop
// blocked on the device's own buffer-ready signal, doing no blocking work
// on the sink call beyond one copy of each block.
func (d *Device) captureLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := d.inStream.Read(); err != nil {
			d.log.Warn("audiodevice: input read error: %v", err)
			d.lossOnce.Do(func() { close(d.lossCh) })
			return
		}

		if sinkPtr := d.sink.Load(); sinkPtr != nil {
			sink := *sinkPtr
			// Sink must enqueue-and-return. We pass a defensive copy so
			// the sink can hold onto it past this iteration without a
			// data race against the next Read.
			block := make([]float32, len(d.inBuf))
			copy(block, d.inBuf)
			sink(block)
		}
	}
}

// Stop halts both streams. Idempotent.
func (d *Device) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	var firstErr error
	if d.outPlayer != nil {
		if err := d.outPlayer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.inStream != nil {
		if err := d.inStream.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := d.inStream.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	portaudio.Terminate()
	d.log.Info("audiodevice: stopped")
	return firstErr
}

// RetryOpen implements the device-loss retry policy: at most 10 attempts,
// one per second. It returns the reopened Device on success.
func RetryOpen(ctx context.Context, log *logger.Logger, cfg Config) (*Device, error) {
	const maxAttempts = 10
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		dev, err := Open(log, cfg)
		if err == nil {
			return dev, nil
		}
		lastErr = err
		log.Warn("audiodevice: reopen attempt %d/%d failed: %v", attempt, maxAttempts, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, errors.Join(domain.ErrDeviceLost, lastErr)
}
