// Package telemetry provides a structured, newline-delimited-JSON activity
// log, layered alongside (not replacing) the donor-style bracketed
// internal/logger used for human-facing CLI/dashboard output. It is the
// concrete persistence mechanism for §6.6's activity log, and a place for
// the Supervisor's step-timing/over-budget-step metrics stream.
package telemetry

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mirror-labs/xswarm/internal/domain"
)

// Recorder appends structured events to a zerolog-backed sink.
type Recorder struct {
	logger zerolog.Logger
	closer io.Closer
}

// Open creates a Recorder writing newline-delimited JSON to
// dir/activity.log, creating dir if needed. If dir is empty, events are
// written to nothing (a discard sink) — useful for tests and for runs
// without XSWARM_PROJECT_DIR, which never touch disk.
func Open(dir string) (*Recorder, error) {
	if dir == "" {
		return &Recorder{logger: zerolog.New(io.Discard)}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "activity.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	logger := zerolog.New(f).With().Timestamp().Logger()
	return &Recorder{logger: logger, closer: f}, nil
}

// RecordEvent appends one activity feed Event as a structured log line.
func (r *Recorder) RecordEvent(ev domain.Event) {
	r.logger.Log().
		Str("id", ev.ID.String()).
		Time("timestamp", ev.Timestamp).
		Str("kind", ev.Kind.String()).
		Str("message", ev.Message).
		Msg("activity")
}

// RecordStepTiming appends an engine step-timing sample to the activity
// log; overBudget marks a step that exceeded the engine's time budget. The
// dashboard does not read these samples.
func (r *Recorder) RecordStepTiming(seq uint64, dur time.Duration, overBudget bool) {
	r.logger.Log().
		Uint64("seq", seq).
		Dur("duration", dur).
		Bool("over_budget", overBudget).
		Msg("step_timing")
}

// Close releases the underlying file, if any.
func (r *Recorder) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
