package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mirror-labs/xswarm/internal/domain"
)

func TestOpenDiscardSink(t *testing.T) {
	r, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	r.RecordEvent(domain.Event{ID: uuid.New(), Timestamp: time.Now(), Kind: domain.EventInfo, Message: "hi"})
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenWritesActivityLog(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	r.RecordEvent(domain.Event{ID: uuid.New(), Timestamp: time.Now(), Kind: domain.EventWakeWord, Message: "computer"})
	r.RecordStepTiming(42, 90*time.Millisecond, true)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "activity.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty activity.log")
	}
}
