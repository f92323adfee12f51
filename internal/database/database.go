package database

import (
	"context"
	"errors"
	"fmt"
	"log"

	"listingrelay/internal/database/models"
)

var (
	// ErrListingNotFound is returned when no listing matches a lookup.
	ErrListingNotFound = errors.New("listing not found")
	// ErrDuplicateListing is returned when a listing with the same id or submission key exists.
	ErrDuplicateListing = errors.New("listing already exists")
	// ErrRevisionConflict is returned when a listing changed since it was read.
	ErrRevisionConflict = errors.New("listing revision conflict")
	// ErrSkipUpdate can be returned from a Mutate callback to leave the listing untouched.
	ErrSkipUpdate = errors.New("skip listing update")
)

// maxMutateAttempts bounds the optimistic retry loop in Mutate.
const maxMutateAttempts = 5

// Mutate performs a read-modify-persist step on one listing with optimistic
// versioning: the listing is re-read and fn re-applied whenever another writer
// got in first. If fn returns ErrSkipUpdate the current listing is returned
// unchanged and nothing is written.
func Mutate(ctx context.Context, repo ListingRepository, id int64, fn func(l *models.Listing) error) (*models.Listing, error) {
	var lastErr error
	for attempt := 1; attempt <= maxMutateAttempts; attempt++ {
		listing, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(listing); err != nil {
			if errors.Is(err, ErrSkipUpdate) {
				return listing, nil
			}
			return nil, err
		}
		err = repo.UpdateListing(ctx, listing)
		if err == nil {
			return listing, nil
		}
		if !errors.Is(err, ErrRevisionConflict) {
			return nil, err
		}
		lastErr = err
		log.Printf("[Store Listing:%d] Revision conflict (attempt %d/%d), retrying", id, attempt, maxMutateAttempts)
	}
	return nil, fmt.Errorf("listing %d: giving up after %d attempts: %w", id, maxMutateAttempts, lastErr)
}
