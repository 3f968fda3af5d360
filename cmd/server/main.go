// Package main is the entry point for the journal API server.
//
// MAIN PACKAGE IN GO:
// main stays minimal. Its job is to:
//  1. Read configuration (file, .env, environment, flags)
//  2. Create the logger
//  3. Hand everything to internal/server
//
// COMMANDS:
//
//	journal [serve]   run the HTTP API (default)
//	journal migrate   apply pending schema migrations and exit
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/journal/internal/config"
	"github.com/sakif/journal/internal/server"
)

// flagValues holds the command-line overrides. They are applied on top of
// config.Load only when the flag was actually passed.
type flagValues struct {
	configFile  string
	envFile     string
	port        int
	databaseURL string
	logLevel    string
	logFormat   string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var flags flagValues

	root := &cobra.Command{
		Use:           "journal",
		Short:         "Personal journal API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "YAML config file")
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file (ignored if missing)")
	pf.IntVar(&flags.port, "port", 0, "HTTP port (overrides PORT)")
	pf.StringVar(&flags.databaseURL, "database-url", "", "sqlite path or postgres:// URL (overrides DATABASE_URL)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	pf.StringVar(&flags.logFormat, "log-format", "", "text or json (overrides LOG_FORMAT)")

	serve := serveCmd(&flags, out)
	root.RunE = serve.RunE
	root.AddCommand(serve)
	root.AddCommand(migrateCmd(&flags, out))

	return root
}

func serveCmd(flags *flagValues, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, flags, out)
			if err != nil {
				return err
			}

			srv, err := server.New(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("failed to create server", slog.String("error", err.Error()))
				return err
			}

			// Start blocks until SIGINT/SIGTERM
			if err := srv.Start(); err != nil {
				logger.Error("server error", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}
}

func migrateCmd(flags *flagValues, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, flags, out)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			// Opening a store applies its migrations.
			store, err := server.OpenStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("migrating %s store: %w", cfg.Backend(), err)
			}
			defer store.Close()

			version, err := store.SchemaVersion(ctx)
			if err != nil {
				return fmt.Errorf("reading schema version: %w", err)
			}
			logger.Info("schema up to date",
				slog.String("store", cfg.Backend()),
				slog.Int64("version", version),
			)
			return nil
		},
	}
}

// setup loads and validates configuration and builds the logger.
func setup(cmd *cobra.Command, flags *flagValues, out io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flags.configFile, flags.envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	applyFlags(cmd, flags, &cfg)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, newLogger(cfg, out), nil
}

func applyFlags(cmd *cobra.Command, flags *flagValues, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Port = flags.port
	}
	if changed("database-url") {
		cfg.DatabaseURL = flags.databaseURL
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
}

// newLogger builds the process-wide slog logger.
//
// Log levels (from least to most severe): Debug → Info → Warn → Error. text
// is easier to read in a terminal; json suits log shippers.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.ToLower(cfg.LogFormat) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}
