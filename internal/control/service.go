// Package control implements the administrative lifecycle operations on
// listings and the scheduler flags.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"listingrelay/internal/database"
	"listingrelay/internal/database/models"
	"listingrelay/internal/delivery"
	telegoapi "listingrelay/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

var (
	// ErrNotBoosted is returned when unboosting a listing that is not boosted.
	ErrNotBoosted = errors.New("listing is not boosted")
	// ErrAlreadyBoosted is returned when boosting a listing that is already boosted.
	ErrAlreadyBoosted = errors.New("listing is already boosted")
	// ErrListingDeleted is returned when boosting or requeueing a deleted listing.
	ErrListingDeleted = errors.New("listing is deleted")
	// ErrNotInError is returned when requeueing a listing that is not in the error state.
	ErrNotInError = errors.New("listing is not in error state")
	// ErrInvalidListingID is returned for an argument that is not a listing id.
	ErrInvalidListingID = errors.New("invalid listing id")
)

// Flags is the scheduler state the control surface can flip.
type Flags interface {
	SetSendingEnabled(enabled bool) bool
	SendingEnabled() bool
	RequestRefresh()
	ForwardCount() int64
}

// PurgeResult summarizes a best-effort deletion of forwarded copies.
type PurgeResult struct {
	Deleted int
	Failed  int
}

// DeleteResult summarizes a listing deletion.
type DeleteResult struct {
	Purge          PurgeResult
	OriginsDeleted int
	OriginsFailed  int
}

// Stats is a snapshot of the listing store and the scheduler flags.
type Stats struct {
	Active         int64
	Sent           int64
	Error          int64
	Deleted        int64
	Boosted        int64
	SendingEnabled bool
	Forwarded      int64
}

// Service performs one atomic state transition per call.
type Service struct {
	bot   telegoapi.BotAPI
	repo  database.ListingRepository
	flags Flags
}

// NewService creates the control service.
func NewService(bot telegoapi.BotAPI, repo database.ListingRepository, flags Flags) (*Service, error) {
	if bot == nil {
		return nil, fmt.Errorf("bot API instance cannot be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("listing repository cannot be nil")
	}
	if flags == nil {
		return nil, fmt.Errorf("scheduler flags cannot be nil")
	}
	return &Service{bot: bot, repo: repo, flags: flags}, nil
}

// ParseListingID parses an admin-supplied listing id. Leading zeros are
// accepted and ignored.
func ParseListingID(arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, ErrInvalidListingID
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidListingID, arg)
	}
	return id, nil
}

// SetBoost marks or unmarks a listing for boost replays.
func (s *Service) SetBoost(ctx context.Context, id int64, boosted bool) (*models.Listing, error) {
	return database.Mutate(ctx, s.repo, id, func(l *models.Listing) error {
		switch {
		case boosted && l.Status == models.StatusDeleted:
			return ErrListingDeleted
		case boosted && l.IsBoosted():
			return ErrAlreadyBoosted
		case !boosted && !l.IsBoosted():
			return ErrNotBoosted
		}
		if boosted {
			l.Boost = models.BoostEnabled
		} else {
			l.Boost = models.BoostNone
		}
		return nil
	})
}

// PurgeDelivery deletes every forwarded copy of the listing and clears its
// delivery record. Individual deletion failures are logged and counted.
func (s *Service) PurgeDelivery(ctx context.Context, id int64) (PurgeResult, error) {
	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return PurgeResult{}, err
	}
	return s.purge(ctx, listing)
}

func (s *Service) purge(ctx context.Context, listing *models.Listing) (PurgeResult, error) {
	var result PurgeResult
	result.Deleted, result.Failed = delivery.DeleteRecorded(ctx, s.bot, listing.ListingID, listing.DeliveryRecord)

	// Only the targets that were purged are removed; copies recorded by a
	// concurrent delivery stay for the next purge.
	purged := listing.DeliveryRecord
	_, err := database.Mutate(ctx, s.repo, listing.ListingID, func(l *models.Listing) error {
		if len(l.DeliveryRecord) == 0 {
			return database.ErrSkipUpdate
		}
		l.DeliveryRecord = subtractRecord(l.DeliveryRecord, purged)
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("clear delivery record of listing %d: %w", listing.ListingID, err)
	}
	log.Printf("[Control Listing:%d] Purged forwarded copies: %d deleted, %d failed", listing.ListingID, result.Deleted, result.Failed)
	return result, nil
}

// DeleteListing purges the forwarded copies, deletes the origin messages and
// marks the listing deleted. Message deletion is best-effort; the status
// transition always happens.
func (s *Service) DeleteListing(ctx context.Context, id int64) (DeleteResult, error) {
	var result DeleteResult
	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return result, err
	}

	purge, err := s.purge(ctx, listing)
	result.Purge = purge
	if err != nil {
		log.Printf("[Control Listing:%d] %v", id, err)
	}

	for _, messageID := range listing.OriginMessageIDs() {
		err := s.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
			ChatID:    tu.ID(listing.Source.ChatID),
			MessageID: messageID,
		})
		if err != nil {
			log.Printf("[Control Listing:%d] Failed to delete origin message %d: %v", id, messageID, err)
			result.OriginsFailed++
			continue
		}
		result.OriginsDeleted++
	}

	// Copies recorded after the purge are still in the record here. Once the
	// status is deleted, later deliveries clean up after themselves.
	var leftover models.DeliveryRecord
	_, err = database.Mutate(ctx, s.repo, id, func(l *models.Listing) error {
		leftover = l.DeliveryRecord
		l.Status = models.StatusDeleted
		l.LastError = ""
		l.DeliveryRecord = nil
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("mark listing %d deleted: %w", id, err)
	}
	if len(leftover) > 0 {
		deleted, failed := delivery.DeleteRecorded(ctx, s.bot, id, leftover)
		result.Purge.Deleted += deleted
		result.Purge.Failed += failed
		log.Printf("[Control Listing:%d] Removed %d late copies (%d failed)", id, deleted, failed)
	}
	log.Printf("[Control Listing:%d] Deleted (origins: %d deleted, %d failed)", id, result.OriginsDeleted, result.OriginsFailed)
	return result, nil
}

// Requeue returns a listing in the error state to the active pool.
func (s *Service) Requeue(ctx context.Context, id int64) (*models.Listing, error) {
	return database.Mutate(ctx, s.repo, id, func(l *models.Listing) error {
		switch l.Status {
		case models.StatusError:
		case models.StatusDeleted:
			return ErrListingDeleted
		default:
			return ErrNotInError
		}
		l.Status = models.StatusActive
		l.LastError = ""
		return nil
	})
}

// SetSendingEnabled pauses or resumes the forwarding loop and reports
// whether the flag changed.
func (s *Service) SetSendingEnabled(enabled bool) bool {
	changed := s.flags.SetSendingEnabled(enabled)
	log.Printf("[Control] Sending enabled set to %t (changed: %t)", enabled, changed)
	return changed
}

// RequestRefresh asks the loop to pause briefly before its next iteration.
func (s *Service) RequestRefresh() {
	s.flags.RequestRefresh()
	log.Println("[Control] Refresh requested")
}

// Stats returns listing counts and the scheduler state.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, boosted, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count listings: %w", err)
	}
	return Stats{
		Active:         counts[models.StatusActive],
		Sent:           counts[models.StatusSent],
		Error:          counts[models.StatusError],
		Deleted:        counts[models.StatusDeleted],
		Boosted:        boosted,
		SendingEnabled: s.flags.SendingEnabled(),
		Forwarded:      s.flags.ForwardCount(),
	}, nil
}

// subtractRecord removes the purged message ids from current.
func subtractRecord(current, purged models.DeliveryRecord) models.DeliveryRecord {
	out := make(models.DeliveryRecord)
	for target, ids := range current {
		gone := make(map[int]struct{}, len(purged[target]))
		for _, id := range purged[target] {
			gone[id] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := gone[id]; !ok {
				out[target] = append(out[target], id)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
