package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"listingrelay/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// racingRepo lets another writer update the listing right before each of
// the first interleave updates, so the caller's revision is stale.
type racingRepo struct {
	*MemoryListingRepository
	interleave int
	updates    int
}

func (r *racingRepo) UpdateListing(ctx context.Context, listing *models.Listing) error {
	r.updates++
	if r.interleave > 0 {
		r.interleave--
		other, err := r.MemoryListingRepository.GetByID(ctx, listing.ListingID)
		if err != nil {
			return err
		}
		other.Caption = fmt.Sprintf("concurrent %d", r.interleave)
		if err := r.MemoryListingRepository.UpdateListing(ctx, other); err != nil {
			return err
		}
	}
	return r.MemoryListingRepository.UpdateListing(ctx, listing)
}

func newListing(id int64, chatID int64, messageID int) *models.Listing {
	l := models.NewListing(id, models.SourceRef{ChatID: chatID, MessageID: messageID})
	l.SourceKey = models.SourceKeyFor(chatID, messageID)
	return l
}

func boost(l *models.Listing) error {
	l.Boost = models.BoostEnabled
	return nil
}

func TestMutate(t *testing.T) {
	ctx := context.Background()

	t.Run("RetriesOnConflict", func(t *testing.T) {
		repo := &racingRepo{MemoryListingRepository: NewMemoryListingRepository(), interleave: 2}
		require.NoError(t, repo.CreateListing(ctx, newListing(1, -100, 10)))

		updated, err := Mutate(ctx, repo, 1, boost)

		require.NoError(t, err)
		assert.Equal(t, 3, repo.updates)
		assert.True(t, updated.IsBoosted())

		stored, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.True(t, stored.IsBoosted())
		assert.Equal(t, "concurrent 0", stored.Caption, "the concurrent write is kept")
		assert.Equal(t, int64(4), stored.Revision)
	})

	t.Run("GivesUpAfterMaxAttempts", func(t *testing.T) {
		repo := &racingRepo{MemoryListingRepository: NewMemoryListingRepository(), interleave: 100}
		require.NoError(t, repo.CreateListing(ctx, newListing(1, -100, 10)))

		_, err := Mutate(ctx, repo, 1, boost)

		assert.ErrorIs(t, err, ErrRevisionConflict)
		assert.Equal(t, maxMutateAttempts, repo.updates)
		stored, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.False(t, stored.IsBoosted())
	})

	t.Run("SkipUpdate", func(t *testing.T) {
		repo := &racingRepo{MemoryListingRepository: NewMemoryListingRepository()}
		require.NoError(t, repo.CreateListing(ctx, newListing(1, -100, 10)))

		current, err := Mutate(ctx, repo, 1, func(l *models.Listing) error {
			l.Boost = models.BoostEnabled
			return ErrSkipUpdate
		})

		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Zero(t, repo.updates)
		stored, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.Revision)
		assert.False(t, stored.IsBoosted())
	})

	t.Run("CallbackError", func(t *testing.T) {
		repo := NewMemoryListingRepository()
		require.NoError(t, repo.CreateListing(ctx, newListing(1, -100, 10)))
		refused := errors.New("refused")

		_, err := Mutate(ctx, repo, 1, func(l *models.Listing) error { return refused })

		assert.ErrorIs(t, err, refused)
	})

	t.Run("UnknownListing", func(t *testing.T) {
		_, err := Mutate(ctx, NewMemoryListingRepository(), 404, boost)
		assert.ErrorIs(t, err, ErrListingNotFound)
	})
}
