// xswarm — a local, voice-first personal assistant.
//
// Usage:
//
//	xswarm [run [--dev] [--no-voice] | personas list | config show | version] [--config path] [--log-level level]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mirror-labs/xswarm/internal/audiodevice"
	"github.com/mirror-labs/xswarm/internal/condition"
	"github.com/mirror-labs/xswarm/internal/config"
	"github.com/mirror-labs/xswarm/internal/dashboard"
	"github.com/mirror-labs/xswarm/internal/domain"
	"github.com/mirror-labs/xswarm/internal/logger"
	"github.com/mirror-labs/xswarm/internal/memory"
	"github.com/mirror-labs/xswarm/internal/neural"
	"github.com/mirror-labs/xswarm/internal/persona"
	"github.com/mirror-labs/xswarm/internal/supervisor"
	"github.com/mirror-labs/xswarm/internal/telemetry"
	"github.com/mirror-labs/xswarm/internal/wakeword"
)

// version is the CLI's reported version string.
const version = "0.1.0"

// Exit codes from §6.1's subcommand table.
const (
	exitOK               = 0
	exitNoPersonasDir    = 1
	exitPermissionDenied = 2
	exitDeviceUnavailable = 3
	exitModelLoadFailed  = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	_ = godotenv.Load()

	if len(args) == 0 {
		args = []string{"run"}
	}

	switch args[0] {
	case "run":
		return runCmd(args[1:])
	case "personas":
		return personasCmd(args[1:])
	case "config":
		return configCmd(args[1:])
	case "version":
		fmt.Println("xswarm " + version)
		return exitOK
	case "-h", "--help", "help":
		printUsage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "xswarm: unknown command %q\n", args[0])
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Println("usage: xswarm [run [--dev] [--no-voice] | personas list | config show | version] [--config path] [--log-level level]")
}

// globalFlags registers the flags common to every subcommand.
func globalFlags(fs *flag.FlagSet) (configPath, logLevel *string) {
	configPath = fs.String("config", "", "path to config.toml (overrides the normal lookup order)")
	logLevel = fs.String("log-level", "info", "error|warn|info|debug|trace")
	return
}

func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath, logLevel := globalFlags(fs)
	dev := fs.Bool("dev", false, "dev mode: prompt for the admin email unless XSWARM_DEV_ADMIN_EMAIL is set (the dashboard is not marked as dev mode)")
	noVoice := fs.Bool("no-voice", false, "start the dashboard without the voice runtime; press V to start it later")
	_ = fs.Parse(args)

	log := logger.New(logger.ParseLevel(*logLevel), os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if *dev {
		runDevPreamble(log)
	}

	loader := persona.NewDirLoader(cfg.PersonasDir)
	initial, err := loadInitialPersona(loader)
	if err != nil {
		log.Warn("run: %v; starting with an empty default persona", err)
	}

	personaRuntime := persona.New(log, loader, initial)

	tel, err := telemetry.Open(os.Getenv(config.EnvProjectDir))
	if err != nil {
		fmt.Fprintln(os.Stderr, "xswarm: opening activity log:", err)
		return 1
	}
	defer tel.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	onProgress := func(phase string, percent int) {
		log.Info("neural: loading %s (%d%%)", phase, percent)
	}
	engine, err := neural.Load(ctx, neural.ModelDescriptor{Quality: neural.Quality(cfg.Quality)}, log, onProgress)
	if err != nil {
		fmt.Fprintln(os.Stderr, "xswarm: loading model:", err)
		return exitModelLoadFailed
	}

	wake := wakeword.New(wakeword.Config{
		ModelDir:       cfg.WakeWord.ModelDir,
		MelspecModel:   filepath.Join(cfg.WakeWord.ModelDir, "melspectrogram.onnx"),
		EmbeddingModel: filepath.Join(cfg.WakeWord.ModelDir, "embedding.onnx"),
		OnnxLib:        cfg.WakeWord.OnnxLib,
	}, log)
	if err := wake.Init(); err != nil {
		log.Error("wakeword: init failed, detection disabled: %v", err)
	} else {
		words := make(map[string]struct{}, len(cfg.WakeWord.Common))
		for _, w := range cfg.WakeWord.Common {
			words[strings.ToLower(w)] = struct{}{}
		}
		for w := range initial.WakeWords {
			words[w] = struct{}{}
		}
		if err := wake.Configure(words, cfg.WakeWord.Sensitivity); err != nil {
			log.Error("wakeword: configure failed: %v", err)
		}
	}
	defer wake.Close()

	dev2, err := audiodevice.Open(log, audiodevice.DefaultConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "xswarm: opening audio device:", err)
		switch {
		case errors.Is(err, domain.ErrPermissionDenied):
			return exitPermissionDenied
		default:
			return exitDeviceUnavailable
		}
	}

	personaDescs, _ := loader.ListAvailable()
	initialState := domain.DashboardState{
		Mode:              domain.ModeIdle,
		ActivePersonaName: initial.Name,
		Status:            domain.StatusFields{DeviceLabel: "default"},
	}
	dash := dashboard.New(initialState, personaDescs)

	mem := memory.New(
		memory.WithMaxRecentMessages(cfg.Memory.MaxRecentMessages),
		memory.WithMaxArchivedSessions(cfg.Memory.MaxArchivedSessions),
	)
	semantic := memory.NewKeywordSemanticMemory(mem)
	condBuilder := condition.New()

	sup := supervisor.New(dev2, engine, personaRuntime, condBuilder, mem, semantic, wake, dash, tel, log,
		supervisor.WithFrameSize(cfg.FrameSize),
		supervisor.WithQueueCapacity(cfg.InputQueueCap),
		supervisor.WithDeviceAutoStart(!*noVoice),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		dash.Quit()
	}()

	if err := sup.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "xswarm:", err)
		switch {
		case errors.Is(err, domain.ErrPermissionDenied):
			return exitPermissionDenied
		case errors.Is(err, domain.ErrNoDevice), errors.Is(err, domain.ErrDeviceLost):
			return exitDeviceUnavailable
		default:
			return exitDeviceUnavailable
		}
	}

	<-sup.QuitChan()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := sup.Stop(stopCtx); err != nil {
		log.Error("run: shutdown error: %v", err)
	}

	return exitOK
}

func runDevPreamble(log *logger.Logger) {
	email := os.Getenv("XSWARM_DEV_ADMIN_EMAIL")
	if email == "" {
		fmt.Print("DEV MODE admin email: ")
		email, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		email = strings.TrimSpace(email)
	}
	log.Info("dev mode: admin=%s", email)
}

func loadInitialPersona(loader *persona.DirLoader) (domain.Persona, error) {
	descs, err := loader.ListAvailable()
	if err != nil || len(descs) == 0 {
		return domain.Persona{Name: "default", WakeWords: map[string]struct{}{"computer": {}}}, fmt.Errorf("no personas found under %s", loader.Root)
	}
	return loader.LoadByName(descs[0].Name)
}

func personasCmd(args []string) int {
	fs := flag.NewFlagSet("personas", flag.ExitOnError)
	configPath, _ := globalFlags(fs)
	if len(args) == 0 || args[0] != "list" {
		fmt.Fprintln(os.Stderr, "usage: xswarm personas list")
		return 1
	}
	_ = fs.Parse(args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	loader := persona.NewDirLoader(cfg.PersonasDir)
	descs, err := loader.ListAvailable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "xswarm:", err)
		return exitNoPersonasDir
	}
	for _, d := range descs {
		fmt.Printf("%s\t%s\t%s\n", d.Name, d.Version, d.Description)
	}
	return exitOK
}

func configCmd(args []string) int {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath, _ := globalFlags(fs)
	if len(args) == 0 || args[0] != "show" {
		fmt.Fprintln(os.Stderr, "usage: xswarm config show")
		return 1
	}
	_ = fs.Parse(args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(cfg.String())
	return exitOK
}
