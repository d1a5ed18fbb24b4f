package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesSpecConstants(t *testing.T) {
	d := Default()
	if d.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", d.SampleRate)
	}
	if d.FrameSize != 1920 {
		t.Errorf("FrameSize = %d, want 1920", d.FrameSize)
	}
	if d.WakeWord.Sensitivity != 0.5 {
		t.Errorf("WakeWord.Sensitivity = %v, want 0.5", d.WakeWord.Sensitivity)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
device = "cpu"
quality = "q8"

[wake_word]
sensitivity = 0.8
common = ["hey otto"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device != "cpu" || cfg.Quality != "q8" {
		t.Fatalf("cfg = %+v, want device=cpu quality=q8", cfg)
	}
	if cfg.WakeWord.Sensitivity != 0.8 {
		t.Fatalf("WakeWord.Sensitivity = %v, want 0.8", cfg.WakeWord.Sensitivity)
	}
	// Fields absent from the TOML keep their defaults.
	if cfg.SampleRate != 24000 {
		t.Fatalf("SampleRate = %d, want default 24000", cfg.SampleRate)
	}
}

func TestLoadExplicitPathMissingIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
}

func TestLoadNoFilesFallsBackToDefaults(t *testing.T) {
	t.Setenv(EnvProjectDir, t.TempDir()) // has no config.toml
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device != "auto" {
		t.Fatalf("Device = %q, want auto default", cfg.Device)
	}
}

func TestLoadProjectDirTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`device = "accelerator"`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvProjectDir, dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device != "accelerator" {
		t.Fatalf("Device = %q, want accelerator", cfg.Device)
	}
}
