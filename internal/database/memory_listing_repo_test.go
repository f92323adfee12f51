package database

import (
	"context"
	"testing"

	"listingrelay/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGroupListing(id int64, chatID int64, groupID string) *models.Listing {
	l := models.NewListing(id, models.SourceRef{ChatID: chatID, MessageID: int(id)})
	l.GroupKey = models.GroupKeyFor(chatID, groupID)
	l.MediaGroupID = groupID
	l.MediaItems = []models.MediaItem{{Kind: models.MediaPhoto, FileID: "f", MessageID: int(id)}}
	return l
}

func TestMemoryCreateListing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryListingRepository()

	first := newListing(1, -100, 10)
	require.NoError(t, repo.CreateListing(ctx, first))
	assert.Equal(t, int64(1), first.Revision)
	require.NoError(t, repo.CreateListing(ctx, newGroupListing(2, -100, "g")))

	tests := []struct {
		name    string
		listing *models.Listing
	}{
		{name: "SameID", listing: newListing(1, -100, 99)},
		{name: "SameSourceKey", listing: newListing(3, -100, 10)},
		{name: "SameGroupKey", listing: newGroupListing(4, -100, "g")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, repo.CreateListing(ctx, tt.listing), ErrDuplicateListing)
		})
	}

	t.Run("SameGroupInOtherChat", func(t *testing.T) {
		assert.NoError(t, repo.CreateListing(ctx, newGroupListing(5, -200, "g")))
	})

	t.Run("Invalid", func(t *testing.T) {
		bad := newListing(6, -100, 60)
		bad.Status = "archived"
		assert.Error(t, repo.CreateListing(ctx, bad))
		_, err := repo.GetByID(ctx, 6)
		assert.ErrorIs(t, err, ErrListingNotFound)
	})
}

func TestMemoryUpdateListingCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryListingRepository()
	require.NoError(t, repo.CreateListing(ctx, newListing(1, -100, 10)))

	mine, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	theirs, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)

	mine.Boost = models.BoostEnabled
	require.NoError(t, repo.UpdateListing(ctx, mine))
	assert.Equal(t, int64(2), mine.Revision)

	theirs.Status = models.StatusSent
	assert.ErrorIs(t, repo.UpdateListing(ctx, theirs), ErrRevisionConflict)
	assert.Equal(t, int64(1), theirs.Revision, "a rejected update leaves the revision alone")

	stored, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, stored.IsBoosted())
	assert.Equal(t, models.StatusActive, stored.Status)

	missing := newListing(2, -100, 20)
	assert.ErrorIs(t, repo.UpdateListing(ctx, missing), ErrListingNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryListingRepository()
	l := newListing(1, -100, 10)
	l.DeliveryRecord = models.DeliveryRecord{"-5": {1}}
	require.NoError(t, repo.CreateListing(ctx, l))

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	got.DeliveryRecord["-5"][0] = 999
	got.Status = models.StatusDeleted

	stored, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryRecord{"-5": {1}}, stored.DeliveryRecord)
	assert.Equal(t, models.StatusActive, stored.Status)
}

func TestMemoryTransitionAll(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryListingRepository()
	failed := newListing(1, -100, 10)
	failed.MarkError("chat not found")
	require.NoError(t, repo.CreateListing(ctx, failed))
	require.NoError(t, repo.CreateListing(ctx, newListing(2, -100, 20)))

	changed, err := repo.TransitionAll(ctx, models.StatusError, models.StatusActive)

	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	requeued, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, requeued.Status)
	assert.Empty(t, requeued.LastError)
	assert.Equal(t, int64(2), requeued.Revision)
	assert.NoError(t, requeued.Validate())

	untouched, err := repo.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), untouched.Revision)
}

func TestMemoryFindActive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryListingRepository()
	for _, l := range []*models.Listing{
		newListing(30, -100, 30),
		newListing(4, -100, 4),
		newListing(12, -200, 12),
		newListing(7, -300, 7),
	} {
		require.NoError(t, repo.CreateListing(ctx, l))
	}
	sent := newListing(1, -100, 1)
	sent.Status = models.StatusSent
	require.NoError(t, repo.CreateListing(ctx, sent))

	active, err := repo.FindActive(ctx, []int64{-100, -200})
	require.NoError(t, err)
	ids := make([]int64, 0, len(active))
	for _, l := range active {
		ids = append(ids, l.ListingID)
	}
	assert.Equal(t, []int64{4, 12, 30}, ids)

	count, err := repo.CountActive(ctx, []int64{-100, -200})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	none, err := repo.FindActive(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	counts, boosted, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[models.StatusActive])
	assert.Equal(t, int64(1), counts[models.StatusSent])
	assert.Zero(t, boosted)
}

func TestActiveFilter(t *testing.T) {
	_, ok := activeFilter(nil)
	assert.False(t, ok)
	_, ok = activeFilter([]int64{})
	assert.False(t, ok)

	filter, ok := activeFilter([]int64{-100})
	require.True(t, ok)
	assert.Equal(t, models.StatusActive, filter["status"])
}
