package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"listingrelay/internal/database"
	"listingrelay/internal/database/models"
	"listingrelay/internal/delivery"
	"listingrelay/internal/metrics"

	"github.com/getsentry/sentry-go"
)

// Deliverer fans one listing out to a set of targets.
type Deliverer interface {
	Deliver(ctx context.Context, listing *models.Listing, targets []int64) delivery.Report
	Replay(ctx context.Context, listing *models.Listing, targets []int64) delivery.Report
}

// Options configures the forwarding loop.
type Options struct {
	Sources       []int64
	Targets       []int64
	Interval      time.Duration // Wait between listings and between passes
	RefreshPause  time.Duration
	BoostEvery    int  // Replay boosted listings every N forwards; <= 0 disables
	RequeueErrors bool // Return error listings to the pool when recycling
	Debug         bool
}

// Scheduler is the single forwarding loop: it delivers active listings in
// ascending id order, injects boost replays and recycles the queue when it
// runs dry.
type Scheduler struct {
	repo      database.ListingRepository
	deliverer Deliverer
	controls  *Controls
	opts      Options
	wait      func(ctx context.Context, d time.Duration) error
}

// New creates a scheduler.
func New(repo database.ListingRepository, deliverer Deliverer, controls *Controls, opts Options) (*Scheduler, error) {
	if repo == nil {
		return nil, fmt.Errorf("listing repository cannot be nil")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer cannot be nil")
	}
	if controls == nil {
		return nil, fmt.Errorf("controls cannot be nil")
	}
	return &Scheduler{
		repo:      repo,
		deliverer: deliverer,
		controls:  controls,
		opts:      opts,
		wait:      sleepContext,
	}, nil
}

// Run drives the loop until ctx is cancelled. Failures inside a pass are
// logged and followed by one interval wait.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("[Scheduler] Started: %d source(s), %d target(s), interval %v, boost every %d",
		len(s.opts.Sources), len(s.opts.Targets), s.opts.Interval, s.opts.BoostEvery)

	for {
		if ctx.Err() != nil {
			log.Println("[Scheduler] Stopped.")
			return
		}

		if s.controls.consumeRefresh() {
			log.Printf("[Scheduler] Refresh requested, pausing for %v", s.opts.RefreshPause)
			_ = s.wait(ctx, s.opts.RefreshPause)
			continue
		}

		if !s.controls.SendingEnabled() {
			_ = s.wait(ctx, s.opts.Interval)
			continue
		}

		if err := s.RunPass(ctx); err != nil && !errors.Is(err, context.Canceled) {
			metrics.PassErrorsTotal.Inc()
			log.Printf("[Scheduler] Pass failed: %v", err)
			sentry.CaptureException(err)
		}
		_ = s.wait(ctx, s.opts.Interval)
	}
}

// RunPass performs one selection pass over the active queue, followed by
// recycling when the queue is empty. A panic is converted into an error.
func (s *Scheduler) RunPass(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in scheduler pass: %v", r)
		}
	}()

	listings, err := s.repo.FindActive(ctx, s.opts.Sources)
	if err != nil {
		return fmt.Errorf("select active listings: %w", err)
	}
	if s.opts.Debug {
		log.Printf("[Scheduler] Pass started with %d active listing(s)", len(listings))
	}

	for i, listing := range listings {
		if i > 0 {
			if err := s.wait(ctx, s.opts.Interval); err != nil {
				return err
			}
		}
		if !s.controls.SendingEnabled() {
			log.Printf("[Scheduler] Sending disabled, pass aborted before listing %d", listing.ListingID)
			return nil
		}
		if err := s.forward(ctx, listing.ListingID); err != nil {
			return err
		}
	}

	return s.recycleIfDrained(ctx)
}

// forward delivers one listing and records the result.
func (s *Scheduler) forward(ctx context.Context, id int64) error {
	// The listing may have been deleted or changed since selection.
	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("reload listing %d: %w", id, err)
	}
	if listing.Status != models.StatusActive {
		log.Printf("[Scheduler Listing:%d] Skipped, status is now %s", id, listing.Status)
		return nil
	}

	report := s.deliverer.Deliver(ctx, listing, s.opts.Targets)

	if report.Failed() == 0 {
		_, err := database.Mutate(ctx, s.repo, id, func(l *models.Listing) error {
			if l.Status != models.StatusActive {
				return database.ErrSkipUpdate
			}
			l.Status = models.StatusSent
			return nil
		})
		if err != nil {
			return fmt.Errorf("mark listing %d sent: %w", id, err)
		}
	}

	if !report.Delivered() {
		log.Printf("[Scheduler Listing:%d] Not delivered to any target", id)
		return nil
	}

	count := s.controls.recordForward()
	metrics.ForwardsTotal.Inc()
	log.Printf("[Scheduler Listing:%d] Forwarded to %d/%d target(s) (forward #%d)",
		id, len(report.Outcomes)-report.Failed(), len(report.Outcomes), count)

	if s.opts.BoostEvery > 0 && count%int64(s.opts.BoostEvery) == 0 {
		return s.replayBoosted(ctx)
	}
	return nil
}

// replayBoosted re-delivers every boosted listing without touching its
// status or the forward counter.
func (s *Scheduler) replayBoosted(ctx context.Context) error {
	boosted, err := s.repo.FindBoosted(ctx)
	if err != nil {
		return fmt.Errorf("select boosted listings: %w", err)
	}
	if len(boosted) == 0 {
		return nil
	}
	metrics.BoostReplaysTotal.Inc()
	log.Printf("[Scheduler] Replaying %d boosted listing(s)", len(boosted))

	for _, listing := range boosted {
		if err := ctx.Err(); err != nil {
			return err
		}
		report := s.deliverer.Replay(ctx, listing, s.opts.Targets)
		if s.opts.Debug {
			log.Printf("[Scheduler Listing:%d] Boost replay: %d failure(s)", listing.ListingID, report.Failed())
		}
	}
	return nil
}

// recycleIfDrained returns sent listings (and error listings under the
// requeue policy) to the active pool once no active listing remains.
func (s *Scheduler) recycleIfDrained(ctx context.Context) error {
	remaining, err := s.repo.CountActive(ctx, s.opts.Sources)
	if err != nil {
		return fmt.Errorf("count active listings: %w", err)
	}
	if remaining > 0 {
		return nil
	}

	recycled, err := s.repo.TransitionAll(ctx, models.StatusSent, models.StatusActive)
	if err != nil {
		return fmt.Errorf("recycle sent listings: %w", err)
	}
	if s.opts.RequeueErrors {
		requeued, err := s.repo.TransitionAll(ctx, models.StatusError, models.StatusActive)
		if err != nil {
			return fmt.Errorf("requeue error listings: %w", err)
		}
		recycled += requeued
	}
	if recycled > 0 {
		metrics.RecycledTotal.Add(float64(recycled))
		log.Printf("[Scheduler] Queue drained, %d listing(s) returned to active", recycled)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
