package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	apperrors "regdesk/internal/errors"
	"regdesk/internal/registration"
)

// Callback data prefixes carried by the inline keyboard
const (
	actionApprove = "approve"
	actionReject  = "reject"
)

// maxListed caps the number of requests /pending prints
const maxListed = 20

// sender is the part of the Bot API the handler talks to
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Registrar is the registration workflow driven from Telegram
type Registrar interface {
	Pending() ([]registration.Request, error)
	Approve(id, adminID string) (*registration.Request, string, error)
	Reject(id, adminID string) (*registration.Request, error)
}

// Handler processes Telegram updates
type Handler struct {
	bot            sender
	registrar      Registrar
	gate           *AdminGate
	adminAccountID string
	logger         *slog.Logger
}

// NewHandler creates a new update handler
func NewHandler(
	bot sender,
	registrar Registrar,
	gate *AdminGate,
	adminAccountID string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		bot:            bot,
		registrar:      registrar,
		gate:           gate,
		adminAccountID: adminAccountID,
		logger:         logger,
	}
}

// HandleUpdate processes a single update
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	_, chatID, allowed := h.gate.CheckAccess(update)
	if !allowed {
		if update.CallbackQuery != nil {
			h.answer(update.CallbackQuery.ID, apperrors.ErrUnauthorized.UserMsg)
		} else if update.Message != nil {
			h.sendText(chatID, apperrors.ErrUnauthorized.UserMsg)
		}
		return
	}

	if update.CallbackQuery != nil {
		h.handleCallback(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil {
		return
	}

	if update.Message.IsCommand() {
		h.handleCommand(ctx, update.Message)
		return
	}

	h.sendText(chatID, "Use /pending to review registration requests.")
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		h.sendText(msg.Chat.ID,
			"Registration desk.\n\n"+
				"You will be notified here when someone asks for an account.\n\n"+
				"Commands:\n"+
				"/pending - List requests awaiting review\n"+
				"/help - Show this help message")

	case "help":
		h.sendText(msg.Chat.ID,
			"Every new registration request arrives with Approve and Reject buttons.\n\n"+
				"Approving creates the account immediately. "+
				"Use /pending to see requests you have not processed yet.")

	case "pending":
		h.handlePending(ctx, msg.Chat.ID)

	default:
		h.sendText(msg.Chat.ID, "Unknown command. Use /help for available commands.")
	}
}

func (h *Handler) handlePending(_ context.Context, chatID int64) {
	pending, err := h.registrar.Pending()
	if err != nil {
		h.logger.Error("failed to list pending requests", "error", err)
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}

	if len(pending) == 0 {
		h.sendText(chatID, "No pending registration requests.")
		return
	}

	for i := range pending {
		if i == maxListed {
			h.sendText(chatID, fmt.Sprintf("...and %d more.", len(pending)-maxListed))
			break
		}
		h.sendRequest(chatID, &pending[i])
	}
}

func (h *Handler) handleCallback(_ context.Context, cb *tgbotapi.CallbackQuery) {
	action, id, ok := strings.Cut(cb.Data, ":")
	if !ok || id == "" {
		h.answer(cb.ID, "Unknown action.")
		return
	}

	var (
		result string
		err    error
	)

	switch action {
	case actionApprove:
		var req *registration.Request
		var accountID string
		req, accountID, err = h.registrar.Approve(id, h.adminAccountID)
		if err == nil {
			h.logger.Info("request approved via telegram", "request_id", id, "account_id", accountID)
			result = fmt.Sprintf("Approved %s. Account %s created.", req.Username, accountID)
		}

	case actionReject:
		var req *registration.Request
		req, err = h.registrar.Reject(id, h.adminAccountID)
		if err == nil {
			h.logger.Info("request rejected via telegram", "request_id", id)
			result = fmt.Sprintf("Rejected %s.", req.Username)
		}

	default:
		h.answer(cb.ID, "Unknown action.")
		return
	}

	if err != nil {
		h.logger.Warn("callback action failed", "error", err, "action", action, "request_id", id)
		result = apperrors.GetUserMessage(err)
	}

	h.answer(cb.ID, result)

	// Replace the buttons with the outcome so the request cannot be clicked twice
	if cb.Message != nil && cb.Message.Chat != nil {
		edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, result)
		if _, err := h.bot.Request(edit); err != nil {
			h.logger.Error("failed to edit message", "error", err)
		}
	}
}

func (h *Handler) sendRequest(chatID int64, req *registration.Request) {
	msg := tgbotapi.NewMessage(chatID, formatRequest(req.Username, req.Email, req.ID))
	msg.ReplyMarkup = reviewKeyboard(req.ID)
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Error("failed to send message", "error", err, "chat_id", chatID)
	}
}

func (h *Handler) answer(callbackID, text string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(callbackID, truncate(text, 200))); err != nil {
		h.logger.Error("failed to answer callback", "error", err)
	}
}

func (h *Handler) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Error("failed to send message", "error", err, "chat_id", chatID)
	}
}

func formatRequest(username, email, id string) string {
	return fmt.Sprintf("Registration request\n\nUsername: %s\nEmail: %s\nID: %s", username, email, id)
}

func reviewKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", actionApprove+":"+id),
			tgbotapi.NewInlineKeyboardButtonData("Reject", actionReject+":"+id),
		),
	)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
