package handlers

import (
	"context"
	"fmt"

	"listingrelay/internal/auth"
	"listingrelay/internal/database"
	telegoapi "listingrelay/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// Command represents a bot command, mapping the command string to its description and handler function.
type Command struct {
	Command     string // The command string (e.g., "boost").
	Description string // Localization key of the description shown in /help.
	Handler     func(context.Context, telegoapi.BotAPI, telego.Message) error
}

// MessageHandler handles admin commands sent to the bot.
type MessageHandler struct {
	control      ListingControl
	actionLogger database.UserActionLogger
	operatorRepo database.OperatorRepository
	adminChecker auth.AdminCheckerInterface

	commands []Command
}

// NewMessageHandler creates and initializes a new MessageHandler instance.
// It sets up dependencies and defines the available bot commands.
func NewMessageHandler(
	control ListingControl,
	actionLogger database.UserActionLogger,
	operatorRepo database.OperatorRepository,
	adminChecker auth.AdminCheckerInterface,
) (*MessageHandler, error) {
	if control == nil {
		return nil, fmt.Errorf("listing control cannot be nil")
	}
	if adminChecker == nil {
		return nil, fmt.Errorf("admin checker cannot be nil")
	}
	if actionLogger == nil {
		actionLogger = database.LogOnlyLogger{}
	}
	if operatorRepo == nil {
		operatorRepo = database.LogOnlyLogger{}
	}
	h := &MessageHandler{
		control:      control,
		actionLogger: actionLogger,
		operatorRepo: operatorRepo,
		adminChecker: adminChecker,
	}
	// Descriptions are localization keys, resolved on demand.
	h.commands = []Command{
		{Command: "start", Description: "CmdStartDesc", Handler: h.HandleStart},
		{Command: "stats", Description: "CmdStatsDesc", Handler: h.HandleStats},
		{Command: "help", Description: "CmdHelpDesc", Handler: h.HandleHelp},
		{Command: "boost", Description: "CmdBoostDesc", Handler: h.HandleBoost},
		{Command: "unboost", Description: "CmdUnboostDesc", Handler: h.HandleUnboost},
		{Command: "del", Description: "CmdDelDesc", Handler: h.HandleDelete},
		{Command: "retry", Description: "CmdRetryDesc", Handler: h.HandleRetry},
		{Command: "on", Description: "CmdOnDesc", Handler: h.HandleOn},
		{Command: "off", Description: "CmdOffDesc", Handler: h.HandleOff},
		{Command: "refresh", Description: "CmdRefreshDesc", Handler: h.HandleRefresh},
	}
	return h, nil
}

// GetCommandHandler retrieves the handler function associated with a specific command string (e.g., "boost").
// It returns nil if the command is not found.
func (h *MessageHandler) GetCommandHandler(command string) func(context.Context, telegoapi.BotAPI, telego.Message) error {
	for _, cmd := range h.commands {
		if cmd.Command == command {
			return cmd.Handler
		}
	}
	return nil
}

// Commands returns the registered commands in display order.
func (h *MessageHandler) Commands() []Command {
	return append([]Command(nil), h.commands...)
}
