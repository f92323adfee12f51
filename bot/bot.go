package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"listingrelay/internal/database/models"
	"listingrelay/internal/ingest"
	"listingrelay/internal/mediagroups"
	telegoapi "listingrelay/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"go.uber.org/ratelimit"
)

// Ingester records source posts as listings.
type Ingester interface {
	IsSource(chatID int64) bool
	Ingest(ctx context.Context, sub ingest.Submission) (*models.Listing, error)
	IngestGroup(ctx context.Context, parts []ingest.Submission) (*models.Listing, error)
}

// CommandHandler executes admin commands.
type CommandHandler interface {
	HandleCommand(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error
	SetupCommands(ctx context.Context, bot telegoapi.BotAPI) error
}

// Bot runs the update loop: posts from source chats go to the ingester,
// commands go to the command handler.
type Bot struct {
	bot         telegoapi.BotAPI
	updatesChan <-chan telego.Update
	debug       bool
	ingester    Ingester
	handler     CommandHandler
	settleDelay time.Duration
	albums      *mediagroups.Manager
	ratelimiter ratelimit.Limiter
}

// BotDeps holds the dependencies required by the Bot.
type BotDeps struct {
	Bot         telegoapi.BotAPI
	UpdatesChan <-chan telego.Update
	Debug       bool
	Ingester    Ingester
	Handler     CommandHandler
	SettleDelay time.Duration // How long album parts are collected; zero uses the default
}

// New creates a new Bot instance from its dependencies.
func New(deps BotDeps) (*Bot, error) {
	if deps.Bot == nil {
		return nil, fmt.Errorf("telego bot (BotAPI) instance cannot be nil")
	}
	if deps.UpdatesChan == nil {
		return nil, fmt.Errorf("updates channel cannot be nil")
	}
	if deps.Ingester == nil {
		return nil, fmt.Errorf("ingester cannot be nil")
	}
	if deps.Handler == nil {
		return nil, fmt.Errorf("command handler cannot be nil")
	}
	return &Bot{
		bot:         deps.Bot,
		updatesChan: deps.UpdatesChan,
		debug:       deps.Debug,
		ingester:    deps.Ingester,
		handler:     deps.Handler,
		settleDelay: deps.SettleDelay,
		ratelimiter: ratelimit.New(20),
	}, nil
}

// handleCommandUpdate runs an admin command.
func (b *Bot) handleCommandUpdate(ctx context.Context, message telego.Message) {
	command := strings.Fields(message.Text)[0]
	logPrefix := fmt.Sprintf("[Cmd:%s Chat:%d]", command, message.Chat.ID)
	if b.debug {
		log.Printf("%s Executing handler", logPrefix)
	}
	if err := b.handler.HandleCommand(ctx, b.bot, message); err != nil {
		log.Printf("%s Handler error: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s handler error: %w", logPrefix, err))
	}
}

// handleSourcePost ingests a single post from a source chat. Album parts
// are buffered and ingested together once the album settles.
func (b *Bot) handleSourcePost(ctx context.Context, message telego.Message) {
	if message.MediaGroupID != "" {
		b.albums.Add(message)
		return
	}
	listing, err := b.ingester.Ingest(ctx, ingest.SubmissionFromMessage(message))
	b.reportIngest(fmt.Sprintf("[Source Chat:%d Msg:%d]", message.Chat.ID, message.MessageID), listing, err)
}

// handleAlbum is the handler passed to the media group manager.
func (b *Bot) handleAlbum(ctx context.Context, groupKey string, messages []telego.Message) error {
	if len(messages) == 0 {
		return errors.New("received empty media group")
	}
	parts := make([]ingest.Submission, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, ingest.SubmissionFromMessage(msg))
	}
	if b.debug {
		log.Printf("[Album Group:%s] Ingesting %d part(s)", groupKey, len(parts))
	}
	listing, err := b.ingester.IngestGroup(ctx, parts)
	b.reportIngest(fmt.Sprintf("[Album Group:%s]", groupKey), listing, err)
	return nil
}

func (b *Bot) reportIngest(logPrefix string, listing *models.Listing, err error) {
	switch {
	case err == nil:
		if listing != nil && b.debug {
			log.Printf("%s Stored listing %d", logPrefix, listing.ListingID)
		}
	case errors.Is(err, ingest.ErrUnsupportedKind), errors.Is(err, ingest.ErrNoListingID), errors.Is(err, ingest.ErrUnknownSource):
		// Expected drops, already logged by the aggregator.
	default:
		log.Printf("%s Ingest error: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s ingest error: %w", logPrefix, err))
	}
}

// processUpdate routes incoming updates to the appropriate handlers.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	b.ratelimiter.Take()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in processUpdate: %v\n%s", r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(time.Second * 2)
		}
	}()

	processingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var message *telego.Message
	switch {
	case update.ChannelPost != nil:
		message = update.ChannelPost
	case update.Message != nil:
		message = update.Message
	default:
		if b.debug {
			log.Printf("Ignoring unhandled update %d", update.UpdateID)
		}
		return
	}

	switch {
	case b.ingester.IsSource(message.Chat.ID):
		b.handleSourcePost(processingCtx, *message)
	case update.Message != nil && strings.HasPrefix(message.Text, "/"):
		b.handleCommandUpdate(processingCtx, *message)
	default:
		if b.debug {
			log.Printf("Ignoring message %d from chat %d", message.MessageID, message.Chat.ID)
		}
	}
}

// Start registers the bot commands and processes updates until ctx is done
// or the updates channel closes. Pending albums are flushed before returning.
func (b *Bot) Start(ctx context.Context) {
	b.albums = mediagroups.NewManager(ctx, b.handleAlbum, b.settleDelay, mediagroups.DefaultMaxGroupSize)

	if err := b.handler.SetupCommands(ctx, b.bot); err != nil {
		log.Printf("Failed to set up bot commands: %v", err)
		sentry.CaptureException(err)
	}
	log.Println("Listening for updates...")

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		b.albums.Shutdown(shutdownCtx)
		log.Println("All update processing finished.")
	}()

	for {
		select {
		case <-ctx.Done():
			log.Println("Context done, stopping update processing...")
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				log.Println("Updates channel closed.")
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}
