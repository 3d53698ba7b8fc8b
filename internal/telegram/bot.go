package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"regdesk/internal/config"
)

const drainTimeout = 25 * time.Second

// Bot represents the Telegram bot
type Bot struct {
	api      *tgbotapi.BotAPI
	handler  *Handler
	notifier *Notifier
	cfg      config.TelegramConfig
	logger   *slog.Logger

	// Track active update processing
	activeRequests sync.WaitGroup
}

// NewBot creates a new Telegram bot. The registrar is attached later with
// SetRegistrar because the onboarding service publishes to the bot's notifier.
func NewBot(cfg config.TelegramConfig, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	gate := NewAdminGate(cfg.AdminUserID, logger)

	return &Bot{
		api:      api,
		handler:  NewHandler(api, nil, gate, cfg.AdminAccountID, logger),
		notifier: NewNotifier(api, cfg.AdminUserID, cfg.AdminAccountID, logger),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// SetRegistrar attaches the workflow that callback buttons drive.
// It must be called before Run.
func (b *Bot) SetRegistrar(r Registrar) {
	b.handler.registrar = r
}

// Notifier returns the event publisher that messages the admin
func (b *Bot) Notifier() *Notifier {
	return b.notifier
}

// Run starts the bot and blocks until context is cancelled
func (b *Bot) Run(ctx context.Context) error {
	if b.handler.registrar == nil {
		return fmt.Errorf("telegram bot has no registrar")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollingTimeout

	updates := b.api.GetUpdatesChan(u)

	notifyCtx, stopNotifier := context.WithCancel(context.Background())
	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		b.notifier.Run(notifyCtx)
	}()

	b.logger.Info("bot started", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("stopping bot, waiting for active requests")

			// Stop receiving updates
			b.api.StopReceivingUpdates()

			// Wait for active requests with timeout
			done := make(chan struct{})
			go func() {
				b.activeRequests.Wait()
				close(done)
			}()

			select {
			case <-done:
				b.logger.Info("all active requests completed")
			case <-time.After(drainTimeout):
				b.logger.Warn("some requests may not have completed")
			}

			stopNotifier()
			<-notifierDone
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				stopNotifier()
				<-notifierDone
				return nil
			}

			// Process update in goroutine
			b.activeRequests.Add(1)
			go func(upd tgbotapi.Update) {
				defer b.activeRequests.Done()

				// Create request context with timeout
				reqCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
				defer cancel()

				b.handler.HandleUpdate(reqCtx, upd)
			}(update)
		}
	}
}
