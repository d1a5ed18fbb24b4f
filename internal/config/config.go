// Package config loads the voice runtime's configuration file per §6.3:
// $XSWARM_PROJECT_DIR/config.toml, then ~/.config/xswarm/config.toml, then
// built-in defaults, with a .env load (via godotenv, already an indirect
// donor dependency) merged in first the same way the donor's
// cmd/ottocook/main.go calls godotenv.Load() before flag parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvProjectDir overrides the project directory auto-detection.
const EnvProjectDir = "XSWARM_PROJECT_DIR"

// WakeWord holds the configurable wake-word knobs from §6.3.
type WakeWord struct {
	Sensitivity float32  `toml:"sensitivity"`
	Common      []string `toml:"common"`

	// ModelDir and OnnxLib locate the openWakeWord ONNX pipeline's model
	// files and the onnxruntime shared library; not part of §6.3's
	// enumerated option table but required to construct a
	// wakeword.Detector.
	ModelDir string `toml:"model_dir"`
	OnnxLib  string `toml:"onnx_lib"`
}

// Layout holds the responsive dashboard layout knobs from §6.3/§4.9.
type Layout struct {
	EnabledPanels []string `toml:"enabled_panels"`
	LayoutMode    string   `toml:"layout_mode"`
	Breakpoints   []int    `toml:"breakpoints"`
}

// Memory holds the ConversationMemory bounds from §6.3.
type Memory struct {
	MaxRecentMessages  int `toml:"max_recent_messages"`
	MaxArchivedSessions int `toml:"max_archived_sessions"`
}

// Config is the effective, merged configuration. Field names mirror
// §6.3's enumerated option set exactly.
type Config struct {
	Device            string   `toml:"device"`
	Quality           string   `toml:"quality"`
	SampleRate        int      `toml:"sample_rate"`
	FrameSize         int      `toml:"frame_size"`
	InputQueueCap     int      `toml:"input_queue_capacity"`
	OutputQueueCap    int      `toml:"output_queue_capacity"`
	WakeWord          WakeWord `toml:"wake_word"`
	ThemeBaseColor    string   `toml:"theme_base_color"`
	Layout            Layout   `toml:"layout"`
	Memory            Memory   `toml:"memory"`

	// PersonasDir is not in §6.3's table but is needed to construct a
	// persona.DirLoader; it defaults relative to the project directory.
	PersonasDir string `toml:"personas_dir"`
}

// Default returns the built-in defaults, the bottom of the lookup chain.
func Default() Config {
	return Config{
		Device:         "auto",
		Quality:        "auto",
		SampleRate:     24000,
		FrameSize:      1920,
		InputQueueCap:  16,
		OutputQueueCap: 16,
		WakeWord: WakeWord{
			Sensitivity: 0.5,
			Common:      []string{"computer", "assistant"},
			ModelDir:    "models/wakeword",
			OnnxLib:     "libonnxruntime.so",
		},
		ThemeBaseColor: "cyan",
		Layout: Layout{
			EnabledPanels: []string{"chat", "status", "activity_feed", "visualizer"},
			LayoutMode:    "grid",
			Breakpoints:   []int{40, 60, 80, 120},
		},
		Memory: Memory{
			MaxRecentMessages:   50,
			MaxArchivedSessions: 10,
		},
		PersonasDir: "personas",
	}
}

// Load resolves the configuration per §6.3's lookup order. explicitPath,
// if non-empty (the --config flag), is tried first and any read/parse
// error is fatal rather than falling through, since the user asked for it
// by name.
func Load(explicitPath string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if explicitPath != "" {
		if err := mergeFile(&cfg, explicitPath); err != nil {
			return Config{}, fmt.Errorf("config: loading %s: %w", explicitPath, err)
		}
		return cfg, nil
	}

	for _, path := range searchPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
		}
		break
	}

	return cfg, nil
}

func searchPaths() []string {
	var paths []string
	if dir := os.Getenv(EnvProjectDir); dir != "" {
		paths = append(paths, filepath.Join(dir, "config.toml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "xswarm", "config.toml"))
	}
	return paths
}

func mergeFile(cfg *Config, path string) error {
	_, err := toml.DecodeFile(path, cfg)
	return err
}

// String renders the effective configuration for `config show`.
func (c Config) String() string {
	return fmt.Sprintf(
		"device=%s quality=%s sample_rate=%d frame_size=%d input_queue=%d output_queue=%d "+
			"wake_word.sensitivity=%.2f wake_word.common=%v theme_base_color=%s "+
			"layout.mode=%s layout.panels=%v layout.breakpoints=%v "+
			"memory.max_recent=%d memory.max_archived=%d personas_dir=%s",
		c.Device, c.Quality, c.SampleRate, c.FrameSize, c.InputQueueCap, c.OutputQueueCap,
		c.WakeWord.Sensitivity, c.WakeWord.Common, c.ThemeBaseColor,
		c.Layout.LayoutMode, c.Layout.EnabledPanels, c.Layout.Breakpoints,
		c.Memory.MaxRecentMessages, c.Memory.MaxArchivedSessions, c.PersonasDir,
	)
}
