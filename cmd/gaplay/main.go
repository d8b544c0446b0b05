// Package main provides the player entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/api/control"
	"github.com/emacsmirror/gaplay/internal/app/backend"
	"github.com/emacsmirror/gaplay/internal/app/command"
	"github.com/emacsmirror/gaplay/internal/app/playback"
	"github.com/emacsmirror/gaplay/internal/app/playlist"
	"github.com/emacsmirror/gaplay/internal/app/recording"
	"github.com/emacsmirror/gaplay/internal/app/response"
	"github.com/emacsmirror/gaplay/internal/app/session"
	"github.com/emacsmirror/gaplay/internal/infra/config"
	"github.com/emacsmirror/gaplay/internal/infra/httpfetch"
	"github.com/emacsmirror/gaplay/internal/infra/logger"
)

const version = "0.8.0"

var (
	app         = kingpin.New("gaplay", "Line-oriented remote control for an audio player")
	configPath  = app.Flag("config", "Path to config file").Default("gaplay.yaml").Envar("GAPLAY_CONFIG").String()
	verbose     = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile     = app.Flag("logfile", "Path to log file (default: stderr)").String()
	backendName = app.Flag("backend", "Media backend (beep, sim)").String()

	// version command
	versionCmd = app.Command("version", "Print the version and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the player (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))
	if cmd == versionCmd.FullCommand() {
		fmt.Printf("%s %s\n", session.ProgramName, version)
		return
	}

	// Bootstrap logger until the config is known
	closer, err := logger.Init(loggerConfig(config.LogConfig{}))
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Debug().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if *backendName != "" {
		cfg.Playback.Backend = *backendName
		if err := cfg.Validate(); err != nil {
			zlog.Fatal().Msgf("Invalid backend: %v", err)
		}
	}

	_ = closer.Close()
	closer, err = logger.Init(loggerConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	if err := run(cfg, os.Stdin, os.Stdout); err != nil {
		zlog.Error().Msgf("gaplay error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

// loggerConfig applies the command-line flags over the configured values.
func loggerConfig(cfg config.LogConfig) logger.Config {
	lc := logger.Config{Output: cfg.Output, Level: cfg.Level}
	if *verbose {
		lc.Level = "debug"
	}
	if *logfile != "" {
		lc.Output = *logfile
	}
	return lc
}

// run wires the player and blocks until the session ends. Using a separate
// function ensures defer statements are executed even when returning with an
// error.
func run(cfg *config.Config, in io.Reader, out io.Writer) error {
	fetch := httpfetch.New(httpfetch.Config{
		Timeout:   cfg.Playlist.FetchTimeout(),
		UserAgent: cfg.Playlist.UserAgent,
		MaxBytes:  cfg.Playlist.MaxBytes,
	})

	pipe, err := backend.New(cfg.Playback, backend.Options{Streamer: fetch})
	if err != nil {
		return err
	}
	defer func() {
		if err := pipe.Close(); err != nil {
			zlog.Error().Msgf("Failed to close backend: %v", err)
		}
	}()

	tmpl, err := recording.NewFileTemplate(cfg.Recording.FileTemplate, cfg.Recording.DateConversion())
	if err != nil {
		return errors.Wrap(err, "invalid recording template")
	}
	router, err := recording.NewRouter(pipe, tmpl, cfg.Recording.BitDepth)
	if err != nil {
		return err
	}

	responses := response.NewBroadcaster(out)
	defer responses.Close()

	controller := playback.NewController(playback.Config{
		StateTimeout: cfg.Playback.StateTimeout(),
		SeekSettle:   cfg.Playback.SeekSettle(),
		FetchTimeout: cfg.Playlist.FetchTimeout(),
		Debug:        cfg.Playback.Debug,
	}, pipe, router, playlist.NewFetcher(fetch), responses)

	sessionMgr := session.NewManager(session.Config{
		PollInterval: cfg.Playback.PollInterval(),
		Version:      version,
	}, command.NewQueue(), controller, pipe, responses)

	ctx := context.Background()
	sessionMgr.WatchSignals(ctx)

	// Optional control surfaces
	if cfg.Control.SocketPath != "" {
		socket := control.NewSocketServer(cfg.Control.SocketPath, sessionMgr, responses)
		if err := socket.Start(); err != nil {
			return err
		}
		defer func() {
			if err := socket.Close(); err != nil {
				zlog.Error().Msgf("Failed to close control socket: %v", err)
			}
		}()
	}

	var serverErrCh <-chan error
	if cfg.Control.HTTPAddr != "" {
		server := control.NewHTTPServer(cfg.Control.HTTPAddr, sessionMgr, responses, cfg.Control.Token)
		if err := server.Start(); err != nil {
			return err
		}
		serverErrCh = server.Errors()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				zlog.Error().Msgf("Failed to shutdown server: %v", err)
			}
		}()
	}

	if err := sessionMgr.Start(ctx); err != nil {
		return err
	}
	executeHooks(cfg.Hooks.OnStarted, "on_started")
	go sessionMgr.ReadInput(in)

	// Wait for session end or server error
	select {
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session ended, shutting down...")
	case err := <-serverErrCh:
		sessionMgr.Close()
		return errors.Wrap(err, "server error")
	}

	executeHooks(cfg.Hooks.OnStopped, "on_stopped")
	return nil
}

// executeHooks runs a list of shell commands. Their output goes to stderr
// so it never mixes with the response stream.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Debug().Msgf("Executing hook: %s", hook)
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
