package handlers

import (
	"context"
	"log"
	"strings"

	"listingrelay/internal/locales"
	telegoapi "listingrelay/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// sendSuccess sends a reply to the user. Send failures are only logged.
func (h *MessageHandler) sendSuccess(ctx context.Context, bot telegoapi.BotAPI, chatID int64, text string) error {
	_, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		log.Printf("Error sending reply to chat %d: %v", chatID, err)
	}
	return nil
}

// sendError sends a generic localized error message to the user and
// returns the original error so the update loop can report it.
func (h *MessageHandler) sendError(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, originalErr error) error {
	log.Printf("Error for user in chat %d: %v", message.Chat.ID, originalErr)

	errMsg := locales.GetMessage(h.getLocalizer(message.From), "MsgErrorGeneral", nil)
	if _, sendErr := bot.SendMessage(ctx, tu.Message(tu.ID(message.Chat.ID), errMsg)); sendErr != nil {
		log.Printf("Error sending generic error message to chat %d: %v", message.Chat.ID, sendErr)
	}
	return originalErr
}

// getLocalizer picks the user's language, falling back to the default one.
func (h *MessageHandler) getLocalizer(user *telego.User) *i18n.Localizer {
	if user != nil && user.LanguageCode != "" {
		return locales.NewLocalizer(user.LanguageCode)
	}
	return locales.NewLocalizer()
}

// RecordUserActivity combines updating operator info and logging the action.
func (h *MessageHandler) RecordUserActivity(ctx context.Context, user *telego.User, action string, isAdmin bool, details map[string]interface{}) {
	if user == nil {
		log.Printf("Attempted to record activity for nil user, action: %s", action)
		return
	}

	if err := h.operatorRepo.UpdateOperator(ctx, user.ID, user.Username, user.FirstName, user.LastName, isAdmin, action); err != nil {
		log.Printf("Error updating operator %d (%s) during action %s: %v", user.ID, user.Username, action, err)
		// Continue to log the action even if the update fails
	}

	if err := h.actionLogger.LogUserAction(user.ID, action, details); err != nil {
		log.Printf("Error logging action %s for user %d (%s): %v", action, user.ID, user.Username, err)
	}
}

// ParseCommand splits "/boost@relay_bot 42" into "boost" and ["42"].
// It returns an empty name for text that is not a command.
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") || len(fields[0]) < 2 {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), fields[1:]
}
