package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"error": LevelError,
		"warn":  LevelWarn,
		"info":  LevelInfo,
		"debug": LevelDebug,
		"trace": LevelTrace,
		"bogus": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelWarn, &buf)

	l.Debug("should not appear")
	l.Info("should not appear either")
	l.Warn("warn line")
	l.Error("error line")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("lower-priority lines leaked into output: %q", out)
	}
	if !strings.Contains(out, "warn line") || !strings.Contains(out, "error line") {
		t.Errorf("expected warn/error lines in output, got %q", out)
	}
}

func TestSetLevelRuntime(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelError, &buf)
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output at LevelError, got %q", buf.String())
	}

	l.SetLevel(LevelTrace)
	l.Trace("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("expected trace output after SetLevel, got %q", buf.String())
	}
	if got := l.GetLevel(); got != LevelTrace {
		t.Errorf("GetLevel() = %v, want LevelTrace", got)
	}
}
