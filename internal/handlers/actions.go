package handlers

// Action types for logging and operator updates
const (
	ActionCommandStart   = "command_start"
	ActionCommandStats   = "command_stats"
	ActionCommandHelp    = "command_help"
	ActionCommandBoost   = "command_boost"
	ActionCommandUnboost = "command_unboost"
	ActionCommandDelete  = "command_del"
	ActionCommandRetry   = "command_retry"
	ActionCommandOn      = "command_on"
	ActionCommandOff     = "command_off"
	ActionCommandRefresh = "command_refresh"
	ActionCommandDenied  = "command_denied"
)
