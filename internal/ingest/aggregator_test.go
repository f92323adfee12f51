package ingest

import (
	"context"
	"sync"
	"testing"

	"listingrelay/internal/database"
	"listingrelay/internal/database/models"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourceChat = int64(-1001)

func newTestAggregator(t *testing.T) (*Aggregator, *database.MemoryListingRepository) {
	t.Helper()
	repo := database.NewMemoryListingRepository()
	agg, err := NewAggregator(repo, []int64{sourceChat}, false)
	require.NoError(t, err)
	return agg, repo
}

func TestIngestMediaGroupMerge(t *testing.T) {
	ctx := context.Background()
	agg, repo := newTestAggregator(t)

	first := Submission{ChatID: sourceChat, MessageID: 10, MediaGroupID: "g1", Kind: KindPhoto, FileID: "p10", IDText: "ID 42"}
	second := Submission{ChatID: sourceChat, MessageID: 11, MediaGroupID: "g1", Kind: KindVideo, FileID: "v11", Caption: "Flat for rent, ID 42"}

	created, err := agg.Ingest(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, int64(42), created.ListingID)
	assert.Empty(t, created.Caption)

	updated, err := agg.Ingest(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, updated)

	stored, err := repo.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []models.MediaItem{
		{Kind: models.MediaPhoto, FileID: "p10", MessageID: 10},
		{Kind: models.MediaVideo, FileID: "v11", MessageID: 11},
	}, stored.MediaItems)
	assert.Equal(t, "Flat for rent, ID 42", stored.Caption, "empty caption is backfilled")
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Equal(t, models.BoostNone, stored.Boost)
	assert.Equal(t, "g1", stored.MediaGroupID)

	// A later caption never overwrites an existing one.
	third := Submission{ChatID: sourceChat, MessageID: 12, MediaGroupID: "g1", Kind: KindPhoto, FileID: "p12", Caption: "other"}
	_, err = agg.Ingest(ctx, third)
	require.NoError(t, err)
	stored, err = repo.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, stored.MediaItems, 3)
	assert.Equal(t, "Flat for rent, ID 42", stored.Caption)
}

func TestIngestDuplicateSuppression(t *testing.T) {
	ctx := context.Background()

	t.Run("NonGrouped", func(t *testing.T) {
		agg, repo := newTestAggregator(t)
		sub := Submission{ChatID: sourceChat, MessageID: 5, Kind: KindText, Caption: "ID: 5 two rooms"}

		created, err := agg.Ingest(ctx, sub)
		require.NoError(t, err)
		require.NotNil(t, created)

		again, err := agg.Ingest(ctx, sub)
		require.NoError(t, err)
		assert.Nil(t, again)

		counts, _, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[models.StatusActive])
	})

	t.Run("GroupedPartRedelivered", func(t *testing.T) {
		agg, repo := newTestAggregator(t)
		part := Submission{ChatID: sourceChat, MessageID: 20, MediaGroupID: "g2", Kind: KindPhoto, FileID: "p20", Caption: "ID 7"}
		other := Submission{ChatID: sourceChat, MessageID: 21, MediaGroupID: "g2", Kind: KindPhoto, FileID: "p21"}

		_, err := agg.Ingest(ctx, part)
		require.NoError(t, err)
		_, err = agg.Ingest(ctx, other)
		require.NoError(t, err)
		dup, err := agg.Ingest(ctx, other)
		require.NoError(t, err)
		assert.Nil(t, dup)

		stored, err := repo.GetByID(ctx, 7)
		require.NoError(t, err)
		assert.Len(t, stored.MediaItems, 2)
	})

	t.Run("IDReusedBySecondPost", func(t *testing.T) {
		agg, _ := newTestAggregator(t)
		_, err := agg.Ingest(ctx, Submission{ChatID: sourceChat, MessageID: 1, Kind: KindText, Caption: "ID 3"})
		require.NoError(t, err)

		listing, err := agg.Ingest(ctx, Submission{ChatID: sourceChat, MessageID: 2, Kind: KindText, Caption: "ID 3 again"})
		require.NoError(t, err)
		assert.Nil(t, listing)
	})
}

func TestIngestRejects(t *testing.T) {
	ctx := context.Background()
	agg, repo := newTestAggregator(t)

	_, err := agg.Ingest(ctx, Submission{ChatID: sourceChat, MessageID: 1, Kind: KindUnknown, Caption: "ID 1"})
	assert.ErrorIs(t, err, ErrUnsupportedKind)

	_, err = agg.Ingest(ctx, Submission{ChatID: sourceChat, MessageID: 2, MediaGroupID: "g", Kind: KindText, Caption: "ID 2"})
	assert.ErrorIs(t, err, ErrUnsupportedKind, "text is not a valid album part")

	_, err = agg.Ingest(ctx, Submission{ChatID: sourceChat, MessageID: 3, Kind: KindPhoto, FileID: "f", Caption: "no number here"})
	assert.ErrorIs(t, err, ErrNoListingID)

	_, err = agg.Ingest(ctx, Submission{ChatID: -999, MessageID: 4, Kind: KindText, Caption: "ID 4"})
	assert.ErrorIs(t, err, ErrUnknownSource)

	counts, _, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts[models.StatusActive])
}

func TestIngestGroupTakesIDFromLaterPart(t *testing.T) {
	ctx := context.Background()
	agg, repo := newTestAggregator(t)

	listing, err := agg.IngestGroup(ctx, []Submission{
		{ChatID: sourceChat, MessageID: 30, MediaGroupID: "g3", Kind: KindPhoto, FileID: "a"},
		{ChatID: sourceChat, MessageID: 31, MediaGroupID: "g3", Kind: KindPhoto, FileID: "b", Caption: "House #ID-0099",
			Entities: []models.TextEntity{{Type: "bold", Offset: 0, Length: 5}}},
	})
	require.NoError(t, err)
	require.NotNil(t, listing)

	stored, err := repo.GetByID(ctx, 99)
	require.NoError(t, err)
	assert.Len(t, stored.MediaItems, 2)
	assert.Equal(t, 30, stored.Source.MessageID)
	assert.Equal(t, "House #ID-0099", stored.Caption)
	assert.Equal(t, []models.TextEntity{{Type: "bold", Offset: 0, Length: 5}}, stored.CaptionEntities)
	assert.Equal(t, []int{30, 31}, stored.OriginMessageIDs())
}

func TestIngestConcurrentPartsCreateOneListing(t *testing.T) {
	ctx := context.Background()
	agg, repo := newTestAggregator(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = agg.Ingest(ctx, Submission{
				ChatID: sourceChat, MessageID: 100 + n, MediaGroupID: "g4",
				Kind: KindPhoto, FileID: "f", IDText: "ID 500",
			})
		}(i)
	}
	wg.Wait()

	stored, err := repo.GetByID(ctx, 500)
	require.NoError(t, err)
	assert.Len(t, stored.MediaItems, 8)
}

func TestExtractListingID(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   int64
		wantOK bool
	}{
		{name: "Plain", text: "ID 123", want: 123, wantOK: true},
		{name: "Colon", text: "id:45", want: 45, wantOK: true},
		{name: "Hash", text: "Apartment ID#7 near park", want: 7, wantOK: true},
		{name: "NumeroSign", text: "ID № 12", want: 12, wantOK: true},
		{name: "Dash", text: "ID - 8", want: 8, wantOK: true},
		{name: "Equals", text: "ID=9", want: 9, wantOK: true},
		{name: "LeadingZeros", text: "ID: 007", want: 7, wantOK: true},
		{name: "AllZeros", text: "ID 000", want: 0, wantOK: true},
		{name: "FirstWins", text: "ID 1 and ID 2", want: 1, wantOK: true},
		{name: "MidWordIgnored", text: "paid 300", wantOK: false},
		{name: "NoDigits", text: "ID unknown", wantOK: false},
		{name: "Empty", text: "", wantOK: false},
		{name: "OverflowRejected", text: "ID 99999999999999999999 ID 5", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractListingID(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSubmissionFromMessage(t *testing.T) {
	chat := telego.Chat{ID: sourceChat}

	photo := SubmissionFromMessage(telego.Message{
		Chat:         chat,
		MessageID:    1,
		MediaGroupID: "g",
		Caption:      "ID 1 <cheap> & cosy",
		CaptionEntities: []telego.MessageEntity{
			{Type: "italic", Offset: 5, Length: 7},
			{Type: "text_mention", Offset: 15, Length: 4, User: &telego.User{ID: 42, FirstName: "Agent"}},
		},
		Photo: []telego.PhotoSize{
			{FileID: "small", FileSize: 100, Width: 90, Height: 90},
			{FileID: "large", FileSize: 900, Width: 800, Height: 800},
		},
	})
	assert.Equal(t, KindPhoto, photo.Kind)
	assert.Equal(t, "large", photo.FileID)
	assert.Equal(t, "g", photo.MediaGroupID)
	assert.Equal(t, "ID 1 <cheap> & cosy", photo.Caption, "caption text is kept raw")
	assert.Equal(t, []models.TextEntity{
		{Type: "italic", Offset: 5, Length: 7},
		{Type: "text_mention", Offset: 15, Length: 4, UserID: 42},
	}, photo.Entities)

	video := SubmissionFromMessage(telego.Message{Chat: chat, MessageID: 2, Video: &telego.Video{FileID: "v"}})
	assert.Equal(t, KindVideo, video.Kind)
	assert.Equal(t, "v", video.FileID)

	text := SubmissionFromMessage(telego.Message{Chat: chat, MessageID: 3, Text: "ID 3",
		Entities: []telego.MessageEntity{{Type: "url", Offset: 0, Length: 2, URL: "https://example.com"}}})
	assert.Equal(t, KindText, text.Kind)
	assert.Equal(t, "ID 3", text.Caption)
	assert.Equal(t, []models.TextEntity{{Type: "url", Offset: 0, Length: 2, URL: "https://example.com"}}, text.Entities)

	sticker := SubmissionFromMessage(telego.Message{Chat: chat, MessageID: 4, Sticker: &telego.Sticker{FileID: "s"}})
	assert.Equal(t, KindUnknown, sticker.Kind)
}
