package handlers

import (
	"context"

	"listingrelay/internal/control"
	"listingrelay/internal/database/models"
)

// ListingControl is the lifecycle control surface used by the admin commands.
type ListingControl interface {
	SetBoost(ctx context.Context, id int64, boosted bool) (*models.Listing, error)
	DeleteListing(ctx context.Context, id int64) (control.DeleteResult, error)
	Requeue(ctx context.Context, id int64) (*models.Listing, error)
	SetSendingEnabled(enabled bool) bool
	RequestRefresh()
	Stats(ctx context.Context) (control.Stats, error)
}

var _ ListingControl = (*control.Service)(nil)
