package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"listingrelay/internal/database"
	"listingrelay/internal/database/models"
	"listingrelay/internal/metrics"
	telegoapi "listingrelay/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"
)

// errEmptyAlbum is reported for a media listing whose items all failed to convert.
var errEmptyAlbum = errors.New("listing has no deliverable media items")

// Executor fans a listing out to every target, one target at a time.
// A failing target never stops the remaining ones.
type Executor struct {
	bot         telegoapi.BotAPI
	repo        database.ListingRepository
	deliveryLog database.DeliveryLogger
	pacer       ratelimit.Limiter
	debug       bool
}

// NewExecutor creates a delivery executor. targetDelay is the minimum gap
// between two consecutive sends; zero disables pacing.
func NewExecutor(bot telegoapi.BotAPI, repo database.ListingRepository, deliveryLog database.DeliveryLogger, targetDelay time.Duration, debug bool) (*Executor, error) {
	if bot == nil {
		return nil, fmt.Errorf("bot API instance cannot be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("listing repository cannot be nil")
	}
	if deliveryLog == nil {
		deliveryLog = database.LogOnlyLogger{}
	}
	pacer := ratelimit.NewUnlimited()
	if targetDelay > 0 {
		pacer = ratelimit.New(1, ratelimit.Per(targetDelay), ratelimit.WithoutSlack)
	}
	return &Executor{
		bot:         bot,
		repo:        repo,
		deliveryLog: deliveryLog,
		pacer:       pacer,
		debug:       debug,
	}, nil
}

// Deliver sends the listing to every target as a scheduled forward.
func (e *Executor) Deliver(ctx context.Context, listing *models.Listing, targets []int64) Report {
	return e.deliver(ctx, listing, targets, false)
}

// Replay sends a boosted listing to every target again. Produced messages
// are recorded like Deliver, but a failed target leaves the status alone.
func (e *Executor) Replay(ctx context.Context, listing *models.Listing, targets []int64) Report {
	return e.deliver(ctx, listing, targets, true)
}

func (e *Executor) deliver(ctx context.Context, listing *models.Listing, targets []int64, replay bool) Report {
	report := Report{ListingID: listing.ListingID, Replay: replay, Outcomes: make([]Outcome, 0, len(targets))}

	for _, target := range targets {
		e.pacer.Take()

		messageIDs, err := e.sendOne(ctx, listing, target)
		outcome := Outcome{TargetID: target, MessageIDs: messageIDs, Err: err}
		report.Outcomes = append(report.Outcomes, outcome)
		e.logOutcome(listing, outcome, replay)

		if err != nil {
			metrics.DeliveriesTotal.WithLabelValues(metrics.ResultFailure).Inc()
			log.Printf("[Delivery Listing:%d Target:%d] Failed: %v", listing.ListingID, target, err)
			if !replay {
				e.recordFailure(ctx, listing.ListingID, err)
			}
			continue
		}
		metrics.DeliveriesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		if e.debug {
			log.Printf("[Delivery Listing:%d Target:%d] Delivered messages %v", listing.ListingID, target, messageIDs)
		}
	}

	if report.Delivered() {
		e.recordDelivery(ctx, listing.ListingID, report.Record())
	}
	return report
}

// sendOne delivers the listing to a single target and returns the produced message ids.
func (e *Executor) sendOne(ctx context.Context, listing *models.Listing, target int64) ([]int, error) {
	if listing.HasMedia() {
		media := buildInputMedia(listing)
		if len(media) == 0 {
			return nil, errEmptyAlbum
		}
		sent, err := e.bot.SendMediaGroup(ctx, tu.MediaGroup(tu.ID(target), media...))
		if err != nil {
			return nil, fmt.Errorf("send media group to %d: %w", target, err)
		}
		ids := make([]int, 0, len(sent))
		for _, msg := range sent {
			ids = append(ids, msg.MessageID)
		}
		return ids, nil
	}

	msg, err := e.bot.ForwardMessage(ctx, &telego.ForwardMessageParams{
		ChatID:     tu.ID(target),
		FromChatID: tu.ID(listing.Source.ChatID),
		MessageID:  listing.Source.MessageID,
	})
	if err != nil {
		return nil, fmt.Errorf("forward message to %d: %w", target, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("forward message to %d: empty response", target)
	}
	return []int{msg.MessageID}, nil
}

// recordFailure persists status=error with the diagnostic right away.
func (e *Executor) recordFailure(ctx context.Context, id int64, cause error) {
	_, err := database.Mutate(ctx, e.repo, id, func(l *models.Listing) error {
		if l.Status == models.StatusDeleted {
			return database.ErrSkipUpdate
		}
		l.MarkError(cause.Error())
		return nil
	})
	if err != nil {
		wrapped := fmt.Errorf("[Delivery Listing:%d] failed to persist delivery error: %w", id, err)
		log.Println(wrapped)
		sentry.CaptureException(wrapped)
	}
}

// recordDelivery merges the produced messages into the stored delivery record.
// Copies produced for a listing deleted in the meantime are removed instead.
func (e *Executor) recordDelivery(ctx context.Context, id int64, record models.DeliveryRecord) {
	deleted := false
	_, err := database.Mutate(ctx, e.repo, id, func(l *models.Listing) error {
		if l.Status == models.StatusDeleted {
			deleted = true
			return database.ErrSkipUpdate
		}
		deleted = false
		if l.DeliveryRecord == nil {
			l.DeliveryRecord = make(models.DeliveryRecord, len(record))
		}
		l.DeliveryRecord.Merge(record)
		return nil
	})
	if err != nil {
		wrapped := fmt.Errorf("[Delivery Listing:%d] failed to persist delivery record: %w", id, err)
		log.Println(wrapped)
		sentry.CaptureException(wrapped)
		return
	}
	if deleted {
		log.Printf("[Delivery Listing:%d] Listing was deleted during delivery, removing %d fresh copies", id, countMessages(record))
		DeleteRecorded(ctx, e.bot, id, record)
	}
}

func (e *Executor) logOutcome(listing *models.Listing, outcome Outcome, replay bool) {
	entry := models.DeliveryLog{
		ListingID:   listing.ListingID,
		TargetID:    outcome.TargetID,
		MessageType: "forward",
		MessageIDs:  outcome.MessageIDs,
		Replay:      replay,
		DeliveredAt: time.Now(),
	}
	if listing.HasMedia() {
		entry.MessageType = "media_group"
	}
	if outcome.Err != nil {
		entry.Error = outcome.Err.Error()
	}
	if err := e.deliveryLog.LogDelivery(entry); err != nil {
		log.Printf("[Delivery Listing:%d Target:%d] Failed to write delivery log: %v", listing.ListingID, outcome.TargetID, err)
	}
}

// DeleteRecorded deletes every message in record, one by one. Failures are
// logged and do not stop the remaining deletions. It returns the number of
// messages deleted and the number that failed.
func DeleteRecorded(ctx context.Context, bot telegoapi.BotAPI, listingID int64, record models.DeliveryRecord) (deleted, failed int) {
	for targetKey, messageIDs := range record {
		chatID, err := parseTargetKey(targetKey)
		if err != nil {
			log.Printf("[Purge Listing:%d] Skipping malformed target %q: %v", listingID, targetKey, err)
			failed += len(messageIDs)
			continue
		}
		for _, messageID := range messageIDs {
			err := bot.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: tu.ID(chatID), MessageID: messageID})
			if err != nil {
				log.Printf("[Purge Listing:%d] Failed to delete message %d in %d: %v", listingID, messageID, chatID, err)
				failed++
				continue
			}
			deleted++
		}
	}
	return deleted, failed
}

func countMessages(record models.DeliveryRecord) int {
	n := 0
	for _, ids := range record {
		n += len(ids)
	}
	return n
}
