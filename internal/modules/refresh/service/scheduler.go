package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bundleDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	bundleRepo "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/repository"
	messageDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/message/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/refresh/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/robfig/cron/v3"
	"github.com/samber/oops"
)

// DefaultTick is the scheduling cadence when none is configured
const DefaultTick = 60 * time.Second

// Renderer produces the desired bundle text for a channel
type Renderer interface {
	RenderBundle(ctx context.Context, channelID string) (string, error)
}

// Converger brings a live message to its desired state
type Converger interface {
	Converge(ctx context.Context, desired messageDomain.Desired) (*messageDomain.Result, error)
}

// Scheduler refreshes due bundles on a fixed cadence and on demand
type Scheduler struct {
	store    bundleRepo.Repository
	renderer Renderer
	messages Converger
	state    *domain.State
	tick     time.Duration
	now      func() time.Time
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a new scheduler. A zero tick uses DefaultTick.
func New(store bundleRepo.Repository, renderer Renderer, messages Converger, state *domain.State, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:    store,
		renderer: renderer,
		messages: messages,
		state:    state,
		tick:     tick,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetClock replaces the time source
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// State exposes the shared refresh bookkeeping
func (s *Scheduler) State() *domain.State {
	return s.state
}

// Start runs one tick immediately and then one per cadence
func (s *Scheduler) Start() error {
	logger := cronLogger{logger: slog.Default().With("component", "scheduler")}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	schedule := fmt.Sprintf("@every %s", s.tick)
	if _, err := s.cron.AddFunc(schedule, func() { s.Tick(s.ctx) }); err != nil {
		return oops.With("schedule", schedule, "context", "failed to schedule refresh tick").Wrap(err)
	}

	s.Tick(s.ctx)
	s.cron.Start()
	slog.Info("Refresh scheduler started", "tick", s.tick)
	return nil
}

// Stop halts the cadence and waits for in-flight refreshes to finish
func (s *Scheduler) Stop() {
	s.cancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
}

// Wait blocks until every refresh dispatched so far has finished
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Due reports whether a bundle's interval has elapsed
func (s *Scheduler) Due(bundle *bundleDomain.Bundle) bool {
	return s.state.IsDue(bundle.ChannelID, bundle.IntervalMinutes, s.now())
}

// Tick dispatches a refresh for every due bundle. Each channel runs on its own
// goroutine; a busy channel is skipped and a failing one does not affect others.
func (s *Scheduler) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	bundles, err := s.store.ListBundles(ctx)
	if err != nil {
		slog.Error("Failed to list bundles", "error", err)
		return
	}

	for _, bundle := range bundles {
		if !s.Due(bundle) {
			continue
		}
		if !s.state.TryAcquire(bundle.ChannelID) {
			slog.Debug("Refresh already in flight", "channel_id", bundle.ChannelID)
			continue
		}

		s.wg.Add(1)
		go func(channelID string) {
			defer s.wg.Done()
			defer s.state.Release(channelID)

			if err := s.refreshIfDue(context.WithoutCancel(ctx), channelID); err != nil {
				slog.Error("Failed to refresh bundle", "channel_id", channelID, "error", err)
			}
		}(bundle.ChannelID)
	}
}

// RefreshNow refreshes one channel regardless of its interval, waiting for
// a refresh already in flight to finish first
func (s *Scheduler) RefreshNow(ctx context.Context, channelID string) error {
	s.state.Acquire(channelID)
	defer s.state.Release(channelID)

	if _, err := s.store.GetBundle(ctx, channelID); err != nil {
		return err
	}
	return s.refresh(context.WithoutCancel(ctx), channelID)
}

// refreshIfDue rechecks the stored bundle under the channel guard, since the
// listing may predate a write that finished before the guard was taken
func (s *Scheduler) refreshIfDue(ctx context.Context, channelID string) error {
	bundle, err := s.store.GetBundle(ctx, channelID)
	if errors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !s.Due(bundle) {
		return nil
	}
	return s.refresh(ctx, channelID)
}

// refresh renders and converges one bundle. The caller holds the channel guard.
// Settings are read after rendering so the message follows the latest ones.
func (s *Scheduler) refresh(ctx context.Context, channelID string) error {
	gen := s.state.Generation(channelID)

	content, err := s.renderer.RenderBundle(ctx, channelID)
	if err != nil {
		return oops.With("channel_id", channelID, "context", "failed to render bundle").Wrap(err)
	}

	bundle, err := s.store.GetBundle(ctx, channelID)
	if err != nil {
		return err
	}

	result, err := s.messages.Converge(ctx, messageDomain.Desired{
		ChannelID: bundle.ChannelID,
		MessageID: bundle.MessageID,
		Content:   content,
		Pin:       bundle.Pin,
		Suppress:  bundle.Suppress,
	})
	if result != nil && result.Recreated {
		if perr := s.persistMessageID(ctx, bundle, result.MessageID); perr != nil {
			return perr
		}
	}
	if err != nil {
		return oops.With("channel_id", channelID, "message_id", bundle.MessageID, "context", "failed to converge bundle message").Wrap(err)
	}

	if !s.state.MarkRefreshedSince(channelID, gen, s.now()) {
		slog.Debug("Bundle changed during refresh, keeping it due", "channel_id", channelID)
		return nil
	}
	slog.Debug("Bundle refreshed", "channel_id", channelID, "message_id", result.MessageID)
	return nil
}

// persistMessageID stores a replacement message id unless the bundle was
// rebound to another message meanwhile
func (s *Scheduler) persistMessageID(ctx context.Context, bundle *bundleDomain.Bundle, messageID int) error {
	swapped, err := s.store.SwapMessageID(ctx, bundle.ChannelID, bundle.MessageID, messageID)
	if err != nil {
		return oops.With("channel_id", bundle.ChannelID, "message_id", messageID, "context", "failed to store new message id").Wrap(err)
	}
	if !swapped {
		slog.Warn("Bundle rebound during refresh, replacement message left unbound", "channel_id", bundle.ChannelID, "message_id", messageID)
		return nil
	}
	slog.Info("Bundle message replaced", "channel_id", bundle.ChannelID, "old_message_id", bundle.MessageID, "message_id", messageID)
	bundle.MessageID = messageID
	return nil
}

// cronLogger routes cron's logr-style output to slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
