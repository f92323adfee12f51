package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"listingrelay/internal/control"
	"listingrelay/internal/database"
	"listingrelay/internal/locales"
	telegoapi "listingrelay/pkg/telegoapi"

	"github.com/mymmrac/telego"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// HandleCommand authorizes the sender and dispatches a command message.
// Every command is restricted to the configured admins.
func (h *MessageHandler) HandleCommand(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	name, _ := ParseCommand(message.Text)
	if message.From == nil {
		log.Printf("[Cmd:%s] Ignoring command without sender in chat %d", name, message.Chat.ID)
		return nil
	}
	userID := message.From.ID
	localizer := h.getLocalizer(message.From)

	handler := h.GetCommandHandler(name)
	if handler == nil {
		log.Printf("[Cmd:%s User:%d] No handler found", name, userID)
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgErrorUnknownCommand", nil))
	}

	isAdmin, err := h.adminChecker.IsAdmin(ctx, userID)
	if err != nil {
		log.Printf("[Cmd:%s User:%d] Error during admin check: %v. Assuming non-admin.", name, userID, err)
		isAdmin = false
	}
	if !isAdmin {
		log.Printf("[Cmd:%s User:%d] Non-admin user attempted to use /%s.", name, userID, name)
		h.RecordUserActivity(ctx, message.From, ActionCommandDenied, false, map[string]interface{}{
			"chat_id": message.Chat.ID,
			"command": name,
		})
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgErrorRequiresAdmin", nil))
	}

	return handler(ctx, bot, message)
}

// HandleStart replies with the queue statistics, like /stats.
func (h *MessageHandler) HandleStart(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.replyStats(ctx, bot, message, ActionCommandStart)
}

// HandleStats replies with listing counts and the scheduler state.
func (h *MessageHandler) HandleStats(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.replyStats(ctx, bot, message, ActionCommandStats)
}

func (h *MessageHandler) replyStats(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, action string) error {
	stats, err := h.control.Stats(ctx)
	if err != nil {
		return h.sendError(ctx, bot, message, fmt.Errorf("[Cmd:stats User:%d] %w", message.From.ID, err))
	}
	localizer := h.getLocalizer(message.From)

	sending := locales.GetMessage(localizer, "MsgStateOff", nil)
	if stats.SendingEnabled {
		sending = locales.GetMessage(localizer, "MsgStateOn", nil)
	}
	text := locales.GetMessage(localizer, "MsgStats", map[string]interface{}{
		"Active":    stats.Active,
		"Sent":      stats.Sent,
		"Error":     stats.Error,
		"Deleted":   stats.Deleted,
		"Boosted":   stats.Boosted,
		"Sending":   sending,
		"Forwarded": stats.Forwarded,
	})

	h.RecordUserActivity(ctx, message.From, action, true, map[string]interface{}{
		"chat_id": message.Chat.ID,
	})
	return h.sendSuccess(ctx, bot, message.Chat.ID, text)
}

// HandleHelp lists the available commands with localized descriptions.
func (h *MessageHandler) HandleHelp(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	localizer := h.getLocalizer(message.From)

	var helpText strings.Builder
	helpText.WriteString(locales.GetMessage(localizer, "MsgHelpHeader", nil) + "\n")
	for _, cmd := range h.commands {
		helpText.WriteString(fmt.Sprintf("/%s - %s\n", cmd.Command, locales.GetMessage(localizer, cmd.Description, nil)))
	}
	helpText.WriteString(locales.GetMessage(localizer, "MsgHelpFooter", nil))

	h.RecordUserActivity(ctx, message.From, ActionCommandHelp, true, map[string]interface{}{
		"chat_id": message.Chat.ID,
	})
	return h.sendSuccess(ctx, bot, message.Chat.ID, helpText.String())
}

// HandleBoost marks a listing for boost replays.
func (h *MessageHandler) HandleBoost(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.withListingID(ctx, bot, message, ActionCommandBoost, func(id int64) (string, map[string]interface{}, error) {
		_, err := h.control.SetBoost(ctx, id, true)
		return "MsgBoosted", nil, err
	})
}

// HandleUnboost removes a listing from boost replays.
func (h *MessageHandler) HandleUnboost(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.withListingID(ctx, bot, message, ActionCommandUnboost, func(id int64) (string, map[string]interface{}, error) {
		_, err := h.control.SetBoost(ctx, id, false)
		return "MsgUnboosted", nil, err
	})
}

// HandleDelete removes a listing's forwarded copies and origin messages and
// marks it deleted.
func (h *MessageHandler) HandleDelete(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.withListingID(ctx, bot, message, ActionCommandDelete, func(id int64) (string, map[string]interface{}, error) {
		result, err := h.control.DeleteListing(ctx, id)
		return "MsgDeleted", map[string]interface{}{
			"Deleted": result.Purge.Deleted,
			"Failed":  result.Purge.Failed,
		}, err
	})
}

// HandleRetry returns a listing in the error state to the queue.
func (h *MessageHandler) HandleRetry(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.withListingID(ctx, bot, message, ActionCommandRetry, func(id int64) (string, map[string]interface{}, error) {
		_, err := h.control.Requeue(ctx, id)
		return "MsgRequeued", nil, err
	})
}

// HandleOn resumes sending.
func (h *MessageHandler) HandleOn(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.setSending(ctx, bot, message, true)
}

// HandleOff pauses sending.
func (h *MessageHandler) HandleOff(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	return h.setSending(ctx, bot, message, false)
}

func (h *MessageHandler) setSending(ctx context.Context, bot telegoapi.BotAPI, message telego.Message, enabled bool) error {
	changed := h.control.SetSendingEnabled(enabled)

	action, msgID := ActionCommandOff, "MsgSendingDisabled"
	if enabled {
		action, msgID = ActionCommandOn, "MsgSendingEnabled"
	}
	if !changed {
		msgID = "MsgSendingAlreadyDisabled"
		if enabled {
			msgID = "MsgSendingAlreadyEnabled"
		}
	}

	h.RecordUserActivity(ctx, message.From, action, true, map[string]interface{}{
		"chat_id": message.Chat.ID,
		"changed": changed,
	})
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(h.getLocalizer(message.From), msgID, nil))
}

// HandleRefresh asks the scheduler to pause before its next pass.
func (h *MessageHandler) HandleRefresh(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	h.control.RequestRefresh()
	h.RecordUserActivity(ctx, message.From, ActionCommandRefresh, true, map[string]interface{}{
		"chat_id": message.Chat.ID,
	})
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(h.getLocalizer(message.From), "MsgRefreshRequested", nil))
}

// withListingID parses the listing id argument, runs op and replies with its
// success message or the user-facing form of its error.
func (h *MessageHandler) withListingID(
	ctx context.Context,
	bot telegoapi.BotAPI,
	message telego.Message,
	action string,
	op func(id int64) (string, map[string]interface{}, error),
) error {
	name, args := ParseCommand(message.Text)
	logPrefix := fmt.Sprintf("[Cmd:%s User:%d]", name, message.From.ID)
	localizer := h.getLocalizer(message.From)

	if len(args) == 0 {
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgErrorUsage", map[string]interface{}{"Command": name}))
	}
	id, err := control.ParseListingID(args[0])
	if err != nil {
		log.Printf("%s %v", logPrefix, err)
		return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, "MsgErrorInvalidID", map[string]interface{}{"Arg": args[0]}))
	}

	msgID, data, err := op(id)
	details := map[string]interface{}{
		"chat_id":    message.Chat.ID,
		"listing_id": id,
	}
	if err != nil {
		if reply, ok := userFacingError(localizer, err, id); ok {
			log.Printf("%s Rejected: %v", logPrefix, err)
			return h.sendSuccess(ctx, bot, message.Chat.ID, reply)
		}
		return h.sendError(ctx, bot, message, fmt.Errorf("%s listing %d: %w", logPrefix, id, err))
	}

	h.RecordUserActivity(ctx, message.From, action, true, details)
	if data == nil {
		data = map[string]interface{}{}
	}
	data["ID"] = id
	log.Printf("%s Done for listing %d", logPrefix, id)
	return h.sendSuccess(ctx, bot, message.Chat.ID, locales.GetMessage(localizer, msgID, data))
}

// userFacingError maps expected domain errors to a localized reply.
func userFacingError(localizer *i18n.Localizer, err error, id int64) (string, bool) {
	var msgID string
	switch {
	case errors.Is(err, database.ErrListingNotFound):
		msgID = "MsgErrorListingNotFound"
	case errors.Is(err, control.ErrNotBoosted):
		msgID = "MsgNotBoosted"
	case errors.Is(err, control.ErrAlreadyBoosted):
		msgID = "MsgAlreadyBoosted"
	case errors.Is(err, control.ErrListingDeleted):
		msgID = "MsgListingDeleted"
	case errors.Is(err, control.ErrNotInError):
		msgID = "MsgNotInError"
	default:
		return "", false
	}
	return locales.GetMessage(localizer, msgID, map[string]interface{}{"ID": id}), true
}

// SetupCommands registers the command list with Telegram using the default language.
func (h *MessageHandler) SetupCommands(ctx context.Context, bot telegoapi.BotAPI) error {
	localizer := locales.NewLocalizer()
	commands := make([]telego.BotCommand, 0, len(h.commands))
	for _, cmd := range h.commands {
		commands = append(commands, telego.BotCommand{
			Command:     cmd.Command,
			Description: locales.GetMessage(localizer, cmd.Description, nil),
		})
	}
	if err := bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	log.Printf("Successfully set %d bot commands.", len(commands))
	return nil
}
