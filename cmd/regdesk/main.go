// regdesk accepts self-service account registration requests and lets
// administrators approve or reject them over HTTP, Telegram or this CLI.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"regdesk/internal/accounts"
	"regdesk/internal/config"
	"regdesk/internal/events"
	"regdesk/internal/onboarding"
	"regdesk/internal/registration"
)

var version = "dev" // set by the linker

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra has already printed the error
		os.Exit(1)
	}
}

// newRootCmd builds a fresh command tree so tests can run commands in isolation
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "regdesk",
		Short: "Registration desk for self-service account requests",
		Long: `regdesk queues account registration requests and materializes an
account for each request an administrator approves.

Running without a subcommand starts the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, cfgFile)
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml, ./configs/config.yaml or /etc/regdesk/config.yaml)")

	cmd.AddCommand(newServeCmd(&cfgFile))
	cmd.AddCommand(newPendingCmd(&cfgFile))
	cmd.AddCommand(newProcessCmd(&cfgFile, "approve"))
	cmd.AddCommand(newProcessCmd(&cfgFile, "reject"))

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newLogger builds the process logger from the logging section
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch cfg.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// app holds the components every command shares
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	directory *accounts.SQLiteStore
	store     *registration.Store
	service   *onboarding.Service
}

func newApp(cfg *config.Config, logger *slog.Logger, publisher events.Publisher) (*app, error) {
	directory, err := accounts.NewSQLiteStore(cfg.Accounts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open account directory: %w", err)
	}

	store, err := registration.NewStore(cfg.Storage.RequestsFile, directory, logger)
	if err != nil {
		directory.Close()
		return nil, fmt.Errorf("open registration store: %w", err)
	}

	service := onboarding.NewService(store, directory, onboarding.Defaults{
		RoleID:       cfg.Accounts.DefaultRole,
		StorageQuota: cfg.Accounts.DefaultQuota,
		Onboarding:   cfg.Accounts.Onboarding,
	}, publisher, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		directory: directory,
		store:     store,
		service:   service,
	}, nil
}

func (a *app) Close() error {
	return a.directory.Close()
}
