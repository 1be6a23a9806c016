// Package main provides the bgtunes entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/bgtunes/internal/app/tone"
	"github.com/osa030/bgtunes/internal/app/tunes"
	"github.com/osa030/bgtunes/internal/infra/audiodevice"
	"github.com/osa030/bgtunes/internal/infra/config"
	"github.com/osa030/bgtunes/internal/infra/logger"
	"github.com/osa030/bgtunes/internal/ui/console"
)

var (
	app        = kingpin.New("bgtunes", "Background music player that follows audio device changes")
	configPath = app.Flag("config", "Path to config file (default: built-in settings)").Envar("BGTUNES_CONFIG").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()

	// devices command
	devicesCmd = app.Command("devices", "List audio output devices and exit")

	// tone command
	toneCmd       = app.Command("tone", "Write the fallback tone to a WAV file and exit")
	toneOut       = toneCmd.Arg("output", "Destination WAV file").Required().String()
	toneFrequency = toneCmd.Flag("frequency", "Tone frequency in Hz").Float64()
	toneDuration  = toneCmd.Flag("duration", "Tone length").Duration()
)

func init() {
	// run command (default)
	app.Command("run", "Start the player (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stderr",
		Level:  "warn",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		if !*verbose {
			loggerConfig.Level = "info"
		}
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %q", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case devicesCmd.FullCommand():
		err = listDevices()
	case toneCmd.FullCommand():
		err = writeTone(cfg)
	default:
		err = run(cfg)
	}
	if err != nil {
		zlog.Error().Msgf("bgtunes error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closer.Close()
		os.Exit(1)
	}
}

// run executes the player. Using a separate function ensures defer
// statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	mgr, err := tunes.NewManager(cfg, tunes.Options{})
	if err != nil {
		return errors.Wrap(err, "failed to create player")
	}
	defer mgr.Close()

	ui, err := console.New(mgr.Controller(), mgr.Devices())
	if err != nil {
		return err
	}
	mgr.Subscribe(ui)
	mgr.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ui.Run(ctx); err != nil {
		return err
	}
	zlog.Info().Msg("Shutting down...")
	return nil
}

// listDevices prints the playback devices miniaudio reports.
func listDevices() error {
	enum, err := audiodevice.New()
	if err != nil {
		return err
	}
	defer enum.Close()

	devices, err := enum.Outputs()
	if err != nil {
		return err
	}
	fmt.Println(console.FormatDevices(devices))
	return nil
}

// writeTone writes the configured fallback tone to the output path.
func writeTone(cfg *config.Config) error {
	p := cfg.ToneParams()
	if *toneFrequency > 0 {
		p.Frequency = *toneFrequency
	}
	if *toneDuration > 0 {
		p.Duration = *toneDuration
	}

	f, err := os.Create(*toneOut)
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}
	if err := tone.WriteWAV(f, p); err != nil {
		f.Close()
		os.Remove(*toneOut)
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "failed to close output file")
	}
	fmt.Printf("Wrote %v of %.0f Hz tone to %s\n", p.Duration.Round(time.Millisecond), p.Frequency, *toneOut)
	return nil
}
