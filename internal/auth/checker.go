package auth

import (
	"context"
	"fmt"
	"log"
)

// AdminCheckerInterface is what command handlers need to authorize a caller.
type AdminCheckerInterface interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// AdminChecker authorizes users against the configured admin id list.
type AdminChecker struct {
	admins map[int64]struct{}
}

// NewAdminChecker creates a new AdminChecker.
// With an empty list every command is denied.
func NewAdminChecker(adminIDs []int64) (*AdminChecker, error) {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id == 0 {
			return nil, fmt.Errorf("admin id cannot be zero")
		}
		admins[id] = struct{}{}
	}
	log.Printf("[AdminCheck] %d admin(s) configured", len(admins))
	return &AdminChecker{admins: admins}, nil
}

// IsAdmin reports whether userID is in the admin list.
func (ac *AdminChecker) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	_, ok := ac.admins[userID]
	return ok, nil
}
