package telegram

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AdminGate admits only the configured admin user
type AdminGate struct {
	adminUserID int64
	logger      *slog.Logger
}

// NewAdminGate creates a gate for the given Telegram user ID
func NewAdminGate(adminUserID int64, logger *slog.Logger) *AdminGate {
	return &AdminGate{
		adminUserID: adminUserID,
		logger:      logger,
	}
}

// IsAdmin checks if a user is the admin
func (g *AdminGate) IsAdmin(userID int64) bool {
	return g.adminUserID != 0 && userID == g.adminUserID
}

// CheckAccess extracts the sender of an update and reports whether it is the admin.
// Group chats are never allowed; approval actions happen in the admin's private chat.
func (g *AdminGate) CheckAccess(update tgbotapi.Update) (userID int64, chatID int64, allowed bool) {
	var username string
	var isGroup bool

	if update.Message != nil {
		if update.Message.From != nil {
			userID = update.Message.From.ID
			username = update.Message.From.UserName
		}
		if update.Message.Chat != nil {
			chatID = update.Message.Chat.ID
			isGroup = !update.Message.Chat.IsPrivate()
		}
	} else if update.CallbackQuery != nil && update.CallbackQuery.From != nil {
		userID = update.CallbackQuery.From.ID
		username = update.CallbackQuery.From.UserName
		if update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
			isGroup = !update.CallbackQuery.Message.Chat.IsPrivate()
		}
	} else {
		return 0, 0, false
	}

	if isGroup || !g.IsAdmin(userID) {
		g.logger.Warn("unauthorized access attempt",
			"user_id", userID,
			"username", username,
			"chat_id", chatID,
		)
		return userID, chatID, false
	}

	return userID, chatID, true
}
