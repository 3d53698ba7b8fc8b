package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"regdesk/internal/api"
	"regdesk/internal/events"
	"regdesk/internal/limiter"
	"regdesk/internal/telegram"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live feed and optional Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *cfgFile)
		},
	}
}

func runServe(cmd *cobra.Command, cfgFile string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging, os.Stdout)

	// Create root context with cancellation
	rootCtx, rootCancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// WaitGroup for tracking active goroutines
	var wg sync.WaitGroup

	hub := events.NewHub(logger)
	publishers := events.Multi{hub}

	var bot *telegram.Bot
	if cfg.Telegram.Enabled {
		bot, err = telegram.NewBot(cfg.Telegram, logger)
		if err != nil {
			return err
		}
		publishers = append(publishers, bot.Notifier())
	}

	a, err := newApp(cfg, logger, publishers)
	if err != nil {
		return err
	}
	defer a.Close()

	if bot != nil {
		bot.SetRegistrar(a.service)

		// Start bot in goroutine
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("bot error", "error", err)
			}
		}()
	}

	if len(cfg.Admin.Tokens) == 0 {
		logger.Warn("no admin tokens configured, admin API is unreachable")
	}

	server := api.NewServer(a.service, cfg.Admin, logger, api.Options{
		Limiter: limiter.NewKeyedLimiter(cfg.Limiter.RPS, cfg.Limiter.Burst, cfg.Limiter.TTL),
		Events:  hub,
		Timeout: cfg.Server.WriteTimeout,
	})

	httpServer := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     server.Router(),
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout is left unset so the websocket feed stays open;
		// handlers are bounded by the router's timeout middleware.
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			"addr", cfg.Server.Addr,
			"requests_file", a.store.Path(),
			"telegram", cfg.Telegram.Enabled,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a fatal listener error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", "error", err)
			rootCancel()
			wg.Wait()
			return err
		}
	}

	// Cancel root context to signal all goroutines
	rootCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}

	// Wait for graceful shutdown with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("graceful shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}

	return nil
}
