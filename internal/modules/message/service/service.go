package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/message/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/samber/oops"
)

// Service converges live bundle messages to their desired state
type Service struct {
	sink domain.Sink

	mu sync.Mutex
	// messages already warned about for suppression that cannot be lifted
	stuck map[messageKey]struct{}
}

type messageKey struct {
	channelID string
	messageID int
}

// New creates a new message service
func New(sink domain.Sink) *Service {
	return &Service{
		sink:  sink,
		stuck: make(map[messageKey]struct{}),
	}
}

// Converge edits the live message, or sends a new one when it is missing,
// and applies the desired pin and link preview state. Pin and suppress
// calls are only made when the observed state differs.
func (s *Service) Converge(ctx context.Context, desired domain.Desired) (*domain.Result, error) {
	if desired.MessageID == 0 {
		return s.recreate(ctx, desired)
	}

	msg, err := s.sink.Fetch(ctx, desired.ChannelID, desired.MessageID)
	if errors.Is(err, errors.ErrMessageNotFound) {
		slog.Info("Bundle message missing, sending a new one", "channel_id", desired.ChannelID, "message_id", desired.MessageID)
		return s.recreate(ctx, desired)
	}
	if err != nil {
		return nil, err
	}

	if err := s.sink.Edit(ctx, desired.ChannelID, msg.ID, desired.Content); err != nil {
		if errors.Is(err, errors.ErrMessageNotFound) {
			return s.recreate(ctx, desired)
		}
		return nil, err
	}

	if err := s.applyState(ctx, desired, msg); err != nil {
		return nil, err
	}
	return &domain.Result{MessageID: msg.ID}, nil
}

// ApplyState converges pin and link preview state without touching the content
func (s *Service) ApplyState(ctx context.Context, desired domain.Desired) error {
	if desired.MessageID == 0 {
		return nil
	}
	msg, err := s.sink.Fetch(ctx, desired.ChannelID, desired.MessageID)
	if err != nil {
		return err
	}
	return s.applyState(ctx, desired, msg)
}

func (s *Service) applyState(ctx context.Context, desired domain.Desired, msg *domain.Message) error {
	switch {
	case desired.Suppress && !msg.Suppressed:
		if err := s.sink.SuppressLinkPreview(ctx, desired.ChannelID, msg.ID, true); err != nil {
			return oops.With("channel_id", desired.ChannelID, "message_id", msg.ID, "context", "failed to suppress link preview").Wrap(err)
		}
	case !desired.Suppress && msg.Suppressed:
		// there is no way back once previews are hidden
		if s.firstStuck(desired.ChannelID, msg.ID) {
			slog.Warn("Link preview suppression cannot be lifted", "channel_id", desired.ChannelID, "message_id", msg.ID)
		}
	}

	switch {
	case desired.Pin && !msg.Pinned:
		if err := s.sink.Pin(ctx, desired.ChannelID, msg.ID); err != nil {
			return oops.With("channel_id", desired.ChannelID, "message_id", msg.ID, "context", "failed to pin message").Wrap(err)
		}
	case !desired.Pin && msg.Pinned:
		if err := s.sink.Unpin(ctx, desired.ChannelID, msg.ID); err != nil {
			return oops.With("channel_id", desired.ChannelID, "message_id", msg.ID, "context", "failed to unpin message").Wrap(err)
		}
	}
	return nil
}

// firstStuck records a message whose suppression cannot be lifted,
// reporting whether it was not recorded before
func (s *Service) firstStuck(channelID string, messageID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := messageKey{channelID: channelID, messageID: messageID}
	if _, ok := s.stuck[key]; ok {
		return false
	}
	s.stuck[key] = struct{}{}
	return true
}

func (s *Service) recreate(ctx context.Context, desired domain.Desired) (*domain.Result, error) {
	msg, err := s.sink.Send(ctx, desired.ChannelID, desired.Content)
	if err != nil {
		return nil, oops.With("channel_id", desired.ChannelID, "context", "failed to send bundle message").Wrap(err)
	}
	// a fresh message is never pinned or suppressed
	fresh := &domain.Message{ID: msg.ID, ChannelID: desired.ChannelID}
	if err := s.applyState(ctx, desired, fresh); err != nil {
		return &domain.Result{MessageID: msg.ID, Recreated: true}, err
	}
	return &domain.Result{MessageID: msg.ID, Recreated: true}, nil
}
