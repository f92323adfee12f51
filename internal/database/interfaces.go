package database

import (
	"context"

	"listingrelay/internal/database/models"
)

// ListingRepository is the durable store of listings and their lifecycle state.
// UpdateListing is a compare-and-swap on Listing.Revision; callers that need a
// read-modify-write should go through Mutate.
type ListingRepository interface {
	// CreateListing inserts a new listing. Returns ErrDuplicateListing when the
	// id, source or media group key is already taken.
	CreateListing(ctx context.Context, listing *models.Listing) error
	// GetByID returns the listing with the given external id or ErrListingNotFound.
	GetByID(ctx context.Context, id int64) (*models.Listing, error)
	// FindBySource returns the non-grouped listing for an origin message or ErrListingNotFound.
	FindBySource(ctx context.Context, chatID int64, messageID int) (*models.Listing, error)
	// FindByMediaGroup returns the grouped listing for a media group or ErrListingNotFound.
	FindByMediaGroup(ctx context.Context, chatID int64, groupID string) (*models.Listing, error)
	// UpdateListing replaces the stored listing if its revision still matches
	// listing.Revision, then bumps listing.Revision. Returns ErrRevisionConflict
	// on a stale revision.
	UpdateListing(ctx context.Context, listing *models.Listing) error
	// FindActive returns active listings from the given source chats ordered by
	// numeric id ascending.
	FindActive(ctx context.Context, sourceChatIDs []int64) ([]*models.Listing, error)
	// CountActive counts active listings from the given source chats.
	CountActive(ctx context.Context, sourceChatIDs []int64) (int64, error)
	// FindBoosted returns every boosted listing that is not deleted, ordered by id.
	FindBoosted(ctx context.Context) ([]*models.Listing, error)
	// TransitionAll moves every listing in status from to status to, clearing
	// last_error, and returns how many changed.
	TransitionAll(ctx context.Context, from, to models.ListingStatus) (int64, error)
	// CountByStatus returns listing counts per status and the number of boosted listings.
	CountByStatus(ctx context.Context) (map[models.ListingStatus]int64, int64, error)
}

// DeliveryLogger records individual delivery attempts.
type DeliveryLogger interface {
	LogDelivery(entry models.DeliveryLog) error
}

// UserActionLogger defines the interface for logging admin actions.
type UserActionLogger interface {
	// LogUserAction logs an action performed by a user.
	LogUserAction(userID int64, action string, details interface{}) error
}

// OperatorRepository tracks users who issue commands to the bot.
type OperatorRepository interface {
	// UpdateOperator updates or creates an operator record.
	UpdateOperator(ctx context.Context, userID int64, username, firstName, lastName string, isAdmin bool, command string) error
}
