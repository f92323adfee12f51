package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"listingrelay/internal/database/models"
)

// MemoryListingRepository is a process-local ListingRepository. It backs the
// "memory" storage driver and the tests; state is lost on restart.
type MemoryListingRepository struct {
	mu       sync.RWMutex
	listings map[int64]*models.Listing
	sources  map[string]int64 // source_key -> listing id
	groups   map[string]int64 // group_key -> listing id
}

// NewMemoryListingRepository creates an empty in-memory repository.
func NewMemoryListingRepository() *MemoryListingRepository {
	return &MemoryListingRepository{
		listings: make(map[int64]*models.Listing),
		sources:  make(map[string]int64),
		groups:   make(map[string]int64),
	}
}

// CreateListing stores a copy of listing.
func (r *MemoryListingRepository) CreateListing(ctx context.Context, listing *models.Listing) error {
	if err := listing.Validate(); err != nil {
		return fmt.Errorf("invalid listing %d: %w", listing.ListingID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.listings[listing.ListingID]; exists {
		return ErrDuplicateListing
	}
	if listing.SourceKey != "" {
		if _, exists := r.sources[listing.SourceKey]; exists {
			return ErrDuplicateListing
		}
	}
	if listing.GroupKey != "" {
		if _, exists := r.groups[listing.GroupKey]; exists {
			return ErrDuplicateListing
		}
	}

	stored := listing.Clone()
	stored.Revision = 1
	listing.Revision = 1
	r.listings[listing.ListingID] = stored
	if listing.SourceKey != "" {
		r.sources[listing.SourceKey] = listing.ListingID
	}
	if listing.GroupKey != "" {
		r.groups[listing.GroupKey] = listing.ListingID
	}
	return nil
}

// GetByID returns a copy of the listing with the given id.
func (r *MemoryListingRepository) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.listings[id]; ok {
		return l.Clone(), nil
	}
	return nil, ErrListingNotFound
}

// FindBySource looks a non-grouped listing up by its origin message.
func (r *MemoryListingRepository) FindBySource(ctx context.Context, chatID int64, messageID int) (*models.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.sources[models.SourceKeyFor(chatID, messageID)]; ok {
		return r.listings[id].Clone(), nil
	}
	return nil, ErrListingNotFound
}

// FindByMediaGroup looks a grouped listing up by its media group.
func (r *MemoryListingRepository) FindByMediaGroup(ctx context.Context, chatID int64, groupID string) (*models.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.groups[models.GroupKeyFor(chatID, groupID)]; ok {
		return r.listings[id].Clone(), nil
	}
	return nil, ErrListingNotFound
}

// UpdateListing replaces the stored listing if the revision matches.
func (r *MemoryListingRepository) UpdateListing(ctx context.Context, listing *models.Listing) error {
	if err := listing.Validate(); err != nil {
		return fmt.Errorf("invalid listing %d: %w", listing.ListingID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.listings[listing.ListingID]
	if !ok {
		return ErrListingNotFound
	}
	if current.Revision != listing.Revision {
		return ErrRevisionConflict
	}
	listing.Revision++
	listing.UpdatedAt = time.Now()
	r.listings[listing.ListingID] = listing.Clone()
	return nil
}

// FindActive returns active listings of the given sources by ascending id.
func (r *MemoryListingRepository) FindActive(ctx context.Context, sourceChatIDs []int64) ([]*models.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(l *models.Listing) bool {
		return l.Status == models.StatusActive && containsChat(sourceChatIDs, l.Source.ChatID)
	}), nil
}

// CountActive counts active listings of the given sources.
func (r *MemoryListingRepository) CountActive(ctx context.Context, sourceChatIDs []int64) (int64, error) {
	active, _ := r.FindActive(ctx, sourceChatIDs)
	return int64(len(active)), nil
}

// FindBoosted returns boosted, non-deleted listings by ascending id.
func (r *MemoryListingRepository) FindBoosted(ctx context.Context) ([]*models.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(l *models.Listing) bool {
		return l.IsBoosted() && l.Status != models.StatusDeleted
	}), nil
}

// TransitionAll moves every listing in status from to status to.
func (r *MemoryListingRepository) TransitionAll(ctx context.Context, from, to models.ListingStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed int64
	now := time.Now()
	for _, l := range r.listings {
		if l.Status != from {
			continue
		}
		l.Status = to
		l.LastError = ""
		l.Revision++
		l.UpdatedAt = now
		changed++
	}
	return changed, nil
}

// CountByStatus returns per-status counts and the boosted count.
func (r *MemoryListingRepository) CountByStatus(ctx context.Context) (map[models.ListingStatus]int64, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[models.ListingStatus]int64)
	var boosted int64
	for _, l := range r.listings {
		counts[l.Status]++
		if l.IsBoosted() {
			boosted++
		}
	}
	return counts, boosted, nil
}

func (r *MemoryListingRepository) collect(keep func(*models.Listing) bool) []*models.Listing {
	out := make([]*models.Listing, 0)
	for _, l := range r.listings {
		if keep(l) {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ListingID < out[j].ListingID })
	return out
}

func containsChat(chats []int64, chatID int64) bool {
	for _, c := range chats {
		if c == chatID {
			return true
		}
	}
	return false
}
