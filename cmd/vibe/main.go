package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jacobcy/VibeCopilot-sub000/internal/config"
	"github.com/jacobcy/VibeCopilot-sub000/internal/lockfile"
	"github.com/jacobcy/VibeCopilot-sub000/internal/logging"
	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/storage/sqlite"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/telemetry"
)

// Version is overridden at build time with -ldflags.
var Version = "0.1.0"

var (
	configFile  string
	dbPath      string
	jsonOutput  bool
	verboseFlag bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	store     storage.Store
	logger    = logging.Discard()
	logCloser io.Closer
)

// noDbAnnotation marks commands that run without opening the database.
const noDbAnnotation = "nodb"

var rootCmd = &cobra.Command{
	Use:           "vibe",
	Short:         "vibe - roadmap planning synced with GitHub Projects",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(configFile); err != nil {
			return err
		}
		if dbPath != "" {
			config.Set("db.path", dbPath)
		}
		setupSignalContext()
		setupLogger()
		setupTelemetry()

		if isNoDbCommand(cmd) {
			return nil
		}
		return openStore(rootCtx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: nearest .vibe/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: .vibe/vibe.db)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddGroup(&cobra.Group{ID: "plan", Title: "Planning:"})
	rootCmd.AddGroup(&cobra.Group{ID: "sync", Title: "GitHub Sync:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Configuration:"})
}

func isNoDbCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[noDbAnnotation] == "true" {
			return true
		}
	}
	return false
}

func setupSignalContext() {
	if rootCancel != nil {
		rootCancel()
	}
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func setupLogger() {
	level := config.GetString("log.level")
	if verboseFlag {
		level = "debug"
	}
	logger, logCloser = logging.New(logging.Options{
		Level:      level,
		Format:     config.GetString("log.format"),
		File:       config.GetString("log.file"),
		MaxSizeMB:  config.GetInt("log.max_size_mb"),
		MaxBackups: config.GetInt("log.max_backups"),
	})
	slog.SetDefault(logger)
}

// setupTelemetry enables OTel when either the environment or the config
// file asks for it. Failures only disable telemetry.
func setupTelemetry() {
	opts := telemetry.OptionsFromEnv("vibe", Version)
	opts.Enabled = opts.Enabled || config.GetBool("telemetry.enabled")
	opts.Stdout = opts.Stdout || config.GetBool("telemetry.stdout")
	if err := telemetry.Init(rootCtx, opts); err != nil {
		logger.Warn("telemetry disabled", "error", err)
		_ = telemetry.Init(rootCtx, telemetry.Options{})
	}
}

func openStore(ctx context.Context) error {
	path := config.DBPath()
	s, err := sqlite.New(ctx, path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", path, err)
	}
	logger.Debug("opened database", "path", s.Path())
	store = telemetry.WrapStore(s)
	return nil
}

// shutdown releases everything PersistentPreRunE set up. It is safe to call
// more than once.
func shutdown() {
	if store != nil {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: close database: %v\n", err)
		}
		store = nil
	}
	telemetry.Shutdown(context.Background())
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
	if rootCancel != nil {
		rootCancel()
		rootCancel = nil
	}
}

// exitCode maps an error to the process exit status: 2 for configuration
// problems, 3 when another sync holds the roadmap, 1 otherwise.
func exitCode(err error) int {
	switch {
	case syncerr.IsConfiguration(err):
		return 2
	case errors.Is(err, lockfile.ErrSyncInProgress):
		return 3
	default:
		return 1
	}
}

func main() {
	err := rootCmd.Execute()
	shutdown()
	if err != nil {
		if jsonOutput {
			writeJSONError(os.Stderr, err)
		} else {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorPrefix(), err)
		}
		os.Exit(exitCode(err))
	}
}
