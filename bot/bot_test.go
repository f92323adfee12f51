package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"listingrelay/internal/database"
	"listingrelay/internal/ingest"
	telegoapi "listingrelay/pkg/telegoapi"
	"listingrelay/pkg/telegoapi/telegoapitest"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourceChat = int64(-1001)

type recordingHandler struct {
	mu       sync.Mutex
	commands []string
	setup    int
}

func (h *recordingHandler) HandleCommand(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, message.Text)
	return nil
}

func (h *recordingHandler) SetupCommands(ctx context.Context, bot telegoapi.BotAPI) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setup++
	return nil
}

func newTestBot(t *testing.T, updates chan telego.Update) (*Bot, *database.MemoryListingRepository, *recordingHandler) {
	t.Helper()
	repo := database.NewMemoryListingRepository()
	agg, err := ingest.NewAggregator(repo, []int64{sourceChat}, false)
	require.NoError(t, err)
	handler := &recordingHandler{}
	b, err := New(BotDeps{
		Bot:         new(telegoapitest.MockBot),
		UpdatesChan: updates,
		Ingester:    agg,
		Handler:     handler,
		SettleDelay: time.Hour, // Albums are flushed by shutdown
	})
	require.NoError(t, err)
	return b, repo, handler
}

func TestStartRoutesUpdates(t *testing.T) {
	updates := make(chan telego.Update, 10)
	b, repo, handler := newTestBot(t, updates)
	source := telego.Chat{ID: sourceChat, Type: telego.ChatTypeChannel}

	updates <- telego.Update{UpdateID: 1, ChannelPost: &telego.Message{
		MessageID: 10, Chat: source, Text: "2 rooms, ID: 15",
	}}
	updates <- telego.Update{UpdateID: 2, ChannelPost: &telego.Message{
		MessageID: 20, Chat: source, MediaGroupID: "album",
		Photo: []telego.PhotoSize{{FileID: "p20", FileSize: 10}},
	}}
	updates <- telego.Update{UpdateID: 3, ChannelPost: &telego.Message{
		MessageID: 21, Chat: source, MediaGroupID: "album", Caption: "ID 16",
		Video: &telego.Video{FileID: "v21"},
	}}
	updates <- telego.Update{UpdateID: 4, Message: &telego.Message{
		MessageID: 1, Chat: telego.Chat{ID: 777}, From: &telego.User{ID: 777}, Text: "/stats",
	}}
	updates <- telego.Update{UpdateID: 5, Message: &telego.Message{
		MessageID: 2, Chat: telego.Chat{ID: 777}, From: &telego.User{ID: 777}, Text: "just chatting",
	}}
	close(updates)

	b.Start(context.Background())

	ctx := context.Background()
	plain, err := repo.GetByID(ctx, 15)
	require.NoError(t, err)
	assert.Equal(t, 10, plain.Source.MessageID)
	assert.False(t, plain.HasMedia())

	album, err := repo.GetByID(ctx, 16)
	require.NoError(t, err)
	require.Len(t, album.MediaItems, 2)
	assert.Equal(t, "p20", album.MediaItems[0].FileID)
	assert.Equal(t, "v21", album.MediaItems[1].FileID)
	assert.Equal(t, "ID 16", album.Caption)

	assert.Equal(t, []string{"/stats"}, handler.commands)
	assert.Equal(t, 1, handler.setup)
}

func TestStartStopsOnContext(t *testing.T) {
	updates := make(chan telego.Update)
	b, _, _ := newTestBot(t, updates)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestNewValidatesDeps(t *testing.T) {
	_, err := New(BotDeps{})
	assert.Error(t, err)
}
