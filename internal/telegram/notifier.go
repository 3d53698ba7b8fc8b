package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"regdesk/internal/events"
)

const notifyBuffer = 64

// Notifier forwards registration events to the admin chat.
// Publish only queues; Run performs the sends.
type Notifier struct {
	bot            sender
	adminChatID    int64
	adminAccountID string
	logger         *slog.Logger

	queue chan events.Event
}

// NewNotifier creates a notifier for the admin's private chat
func NewNotifier(bot sender, adminChatID int64, adminAccountID string, logger *slog.Logger) *Notifier {
	return &Notifier{
		bot:            bot,
		adminChatID:    adminChatID,
		adminAccountID: adminAccountID,
		logger:         logger,
		queue:          make(chan events.Event, notifyBuffer),
	}
}

// Publish queues ev for delivery, dropping it if the queue is full
func (n *Notifier) Publish(ev events.Event) {
	select {
	case n.queue <- ev:
	default:
		n.logger.Warn("telegram notification dropped", "type", ev.Type, "request_id", ev.RequestID)
	}
}

// Run delivers queued events until ctx is cancelled
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.queue:
			n.deliver(ev)
		}
	}
}

func (n *Notifier) deliver(ev events.Event) {
	var msg tgbotapi.MessageConfig

	switch ev.Type {
	case events.TypeCreated:
		msg = tgbotapi.NewMessage(n.adminChatID, formatRequest(ev.Username, ev.Email, ev.RequestID))
		msg.ReplyMarkup = reviewKeyboard(ev.RequestID)

	case events.TypeApproved, events.TypeRejected:
		// Actions taken from this chat are already reflected in the edited message
		if ev.By == n.adminAccountID {
			return
		}
		msg = tgbotapi.NewMessage(n.adminChatID,
			fmt.Sprintf("Request for %s was %s by %s.", ev.Username, outcome(ev.Type), ev.By))

	default:
		return
	}

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("failed to send notification", "error", err, "type", ev.Type, "request_id", ev.RequestID)
	}
}

func outcome(eventType string) string {
	if eventType == events.TypeApproved {
		return "approved"
	}
	return "rejected"
}
