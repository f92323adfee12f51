package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"listingrelay/internal/database"
	"listingrelay/internal/database/models"
	"listingrelay/internal/mediagroups"
	"listingrelay/internal/metrics"
)

var (
	// ErrUnsupportedKind is returned for events whose content cannot be relayed.
	ErrUnsupportedKind = errors.New("unsupported content kind")
	// ErrNoListingID is returned when a new submission carries no listing id.
	ErrNoListingID = errors.New("no listing id in submission")
	// ErrUnknownSource is returned for events from chats that are not configured sources.
	ErrUnknownSource = errors.New("chat is not a configured source")
)

// Ingest outcomes, also used as metric labels.
const (
	OutcomeCreated   = "created"
	OutcomeAppended  = "appended"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Aggregator turns source events into listing records. Parts of one media
// group are merged into a single listing keyed by (source chat, group id).
type Aggregator struct {
	repo    database.ListingRepository
	sources map[int64]struct{}
	locks   *mediagroups.KeyedLocker
	debug   bool
}

// NewAggregator creates an aggregator accepting events from the given source chats.
func NewAggregator(repo database.ListingRepository, sourceChatIDs []int64, debug bool) (*Aggregator, error) {
	if repo == nil {
		return nil, fmt.Errorf("listing repository cannot be nil")
	}
	sources := make(map[int64]struct{}, len(sourceChatIDs))
	for _, id := range sourceChatIDs {
		sources[id] = struct{}{}
	}
	return &Aggregator{
		repo:    repo,
		sources: sources,
		locks:   mediagroups.NewKeyedLocker(),
		debug:   debug,
	}, nil
}

// IsSource reports whether chatID is a configured source chat.
func (a *Aggregator) IsSource(chatID int64) bool {
	_, ok := a.sources[chatID]
	return ok
}

// Ingest records one submission event. It returns the created or updated
// listing, or (nil, nil) when the event was a duplicate.
func (a *Aggregator) Ingest(ctx context.Context, sub Submission) (*models.Listing, error) {
	logPrefix := fmt.Sprintf("[Ingest Chat:%d Msg:%d]", sub.ChatID, sub.MessageID)

	if !a.IsSource(sub.ChatID) {
		return nil, a.reject(logPrefix, ErrUnknownSource)
	}
	if sub.MediaGroupID != "" {
		return a.ingestGroupPart(ctx, logPrefix, sub)
	}
	return a.ingestSingle(ctx, logPrefix, sub)
}

// IngestGroup records the parts of one album in message order. The listing id
// is taken from the first part that carries one, so a caption on a later
// part still identifies the whole album.
func (a *Aggregator) IngestGroup(ctx context.Context, parts []Submission) (*models.Listing, error) {
	idText := ""
	for _, part := range parts {
		if _, ok := ExtractListingID(part.idText()); ok {
			idText = part.idText()
			break
		}
	}

	var (
		last     *models.Listing
		firstErr error
	)
	for _, part := range parts {
		if part.IDText == "" {
			part.IDText = idText
		}
		listing, err := a.Ingest(ctx, part)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if listing != nil {
			last = listing
		}
	}
	return last, firstErr
}

func (a *Aggregator) ingestGroupPart(ctx context.Context, logPrefix string, sub Submission) (*models.Listing, error) {
	kind, ok := sub.mediaKind()
	if !ok {
		return nil, a.reject(logPrefix, fmt.Errorf("%w: %s in media group", ErrUnsupportedKind, sub.Kind))
	}
	item := models.MediaItem{Kind: kind, FileID: sub.FileID, MessageID: sub.MessageID}

	unlock := a.locks.Lock(models.GroupKeyFor(sub.ChatID, sub.MediaGroupID))
	defer unlock()

	existing, err := a.repo.FindByMediaGroup(ctx, sub.ChatID, sub.MediaGroupID)
	switch {
	case err == nil:
		if existing.HasMediaMessage(sub.MessageID) {
			metrics.ListingsIngested.WithLabelValues(OutcomeDuplicate).Inc()
			return nil, nil
		}
		updated, err := database.Mutate(ctx, a.repo, existing.ListingID, func(l *models.Listing) error {
			if l.HasMediaMessage(sub.MessageID) {
				return database.ErrSkipUpdate
			}
			l.MediaItems = append(l.MediaItems, item)
			if l.Caption == "" && sub.Caption != "" {
				l.Caption = sub.Caption
				l.CaptionEntities = sub.Entities
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s append to listing %d: %w", logPrefix, existing.ListingID, err)
		}
		metrics.ListingsIngested.WithLabelValues(OutcomeAppended).Inc()
		if a.debug {
			log.Printf("%s Appended %s to listing %d (%d items)", logPrefix, kind, updated.ListingID, len(updated.MediaItems))
		}
		return updated, nil
	case errors.Is(err, database.ErrListingNotFound):
	default:
		return nil, fmt.Errorf("%s lookup media group %s: %w", logPrefix, sub.MediaGroupID, err)
	}

	id, ok := ExtractListingID(sub.idText())
	if !ok {
		return nil, a.reject(logPrefix, ErrNoListingID)
	}
	listing := models.NewListing(id, models.SourceRef{ChatID: sub.ChatID, MessageID: sub.MessageID})
	listing.GroupKey = models.GroupKeyFor(sub.ChatID, sub.MediaGroupID)
	listing.MediaGroupID = sub.MediaGroupID
	listing.MediaItems = []models.MediaItem{item}
	listing.Caption = sub.Caption
	listing.CaptionEntities = sub.Entities
	return a.create(ctx, logPrefix, listing)
}

func (a *Aggregator) ingestSingle(ctx context.Context, logPrefix string, sub Submission) (*models.Listing, error) {
	switch sub.Kind {
	case KindText, KindPhoto, KindVideo:
	default:
		return nil, a.reject(logPrefix, fmt.Errorf("%w: %s", ErrUnsupportedKind, sub.Kind))
	}

	_, err := a.repo.FindBySource(ctx, sub.ChatID, sub.MessageID)
	if err == nil {
		metrics.ListingsIngested.WithLabelValues(OutcomeDuplicate).Inc()
		return nil, nil
	}
	if !errors.Is(err, database.ErrListingNotFound) {
		return nil, fmt.Errorf("%s lookup source message: %w", logPrefix, err)
	}

	id, ok := ExtractListingID(sub.idText())
	if !ok {
		return nil, a.reject(logPrefix, ErrNoListingID)
	}
	listing := models.NewListing(id, models.SourceRef{ChatID: sub.ChatID, MessageID: sub.MessageID})
	listing.SourceKey = models.SourceKeyFor(sub.ChatID, sub.MessageID)
	listing.Caption = sub.Caption
	listing.CaptionEntities = sub.Entities
	return a.create(ctx, logPrefix, listing)
}

func (a *Aggregator) create(ctx context.Context, logPrefix string, listing *models.Listing) (*models.Listing, error) {
	if err := a.repo.CreateListing(ctx, listing); err != nil {
		if errors.Is(err, database.ErrDuplicateListing) {
			// Either a redelivered event or another submission reusing the id.
			log.Printf("%s Listing %d already exists, ignoring", logPrefix, listing.ListingID)
			metrics.ListingsIngested.WithLabelValues(OutcomeDuplicate).Inc()
			return nil, nil
		}
		return nil, fmt.Errorf("%s create listing %d: %w", logPrefix, listing.ListingID, err)
	}
	metrics.ListingsIngested.WithLabelValues(OutcomeCreated).Inc()
	log.Printf("%s Created listing %d", logPrefix, listing.ListingID)
	return listing, nil
}

func (a *Aggregator) reject(logPrefix string, err error) error {
	metrics.ListingsIngested.WithLabelValues(OutcomeRejected).Inc()
	log.Printf("%s Dropped: %v", logPrefix, err)
	return err
}
