package models

import "time"

// Operator is a Telegram user who has issued admin commands to the bot.
type Operator struct {
	UserID       int64     `bson:"user_id"`
	Username     string    `bson:"username,omitempty"`
	FirstName    string    `bson:"first_name,omitempty"`
	LastName     string    `bson:"last_name,omitempty"`
	IsAdmin      bool      `bson:"is_admin"`
	FirstSeen    time.Time `bson:"first_seen"`
	LastSeen     time.Time `bson:"last_seen"`
	CommandCount int       `bson:"command_count"`
	LastCommand  string    `bson:"last_command"`
}
