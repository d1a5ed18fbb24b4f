package wakeword

import (
	"math"
	"testing"
	"time"

	"github.com/mirror-labs/xswarm/internal/domain"
	"github.com/mirror-labs/xswarm/internal/logger"
)

func newTestDetector() *Detector {
	return New(Config{ModelDir: "testdata", Cooldown: 10 * time.Millisecond}, logger.New(logger.LevelError, nil))
}

func TestFeedIsNoOpBeforeInit(t *testing.T) {
	d := newTestDetector()
	fired := false
	d.OnDetect = func(string) { fired = true }

	var f domain.AudioFrame
	d.Feed(&f) // onnxReady is false; must not panic or fire

	if fired {
		t.Fatal("OnDetect fired before Init/Configure")
	}
}

func TestConfigureWithoutInitFailsCleanly(t *testing.T) {
	d := newTestDetector()
	if err := d.Configure(map[string]struct{}{"computer": {}}, 0.5); err == nil {
		t.Fatal("expected error configuring words without a loaded melspec/embedding pipeline")
	}
}

func TestThresholdTracksSensitivity(t *testing.T) {
	d := newTestDetector()

	cases := []struct {
		sensitivity float32
		want        float64
	}{
		{0, 0.8},
		{1, 0.2},
		{0.5, 0.5},
	}
	for _, c := range cases {
		// An empty word set loads no per-word model, so Configure runs
		// without an ONNX runtime.
		if err := d.Configure(map[string]struct{}{}, c.sensitivity); err != nil {
			t.Fatalf("Configure(sensitivity=%v) error = %v", c.sensitivity, err)
		}
		d.mu.Lock()
		got := d.threshold
		d.mu.Unlock()
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("sensitivity=%v threshold=%v, want %v", c.sensitivity, got, c.want)
		}
	}
}

func TestPauseResumeSuppressesFeed(t *testing.T) {
	d := newTestDetector()
	d.Pause()
	d.mu.Lock()
	paused := d.paused
	d.mu.Unlock()
	if !paused {
		t.Fatal("Pause did not set paused")
	}

	d.Resume()
	d.mu.Lock()
	paused = d.paused
	d.mu.Unlock()
	if paused {
		t.Fatal("Resume did not clear paused")
	}
}

func TestCloseIsIdempotentWhenNeverInitialized(t *testing.T) {
	d := newTestDetector()
	d.Close() // must not panic when no ONNX resources were ever allocated
	d.Close()
}

func TestKeysReturnsConfiguredWords(t *testing.T) {
	words := map[string]struct{}{"computer": {}, "assistant": {}}
	got := keys(words)
	if len(got) != 2 {
		t.Fatalf("keys() = %v, want 2 entries", got)
	}
}
