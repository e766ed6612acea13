package telegram

import (
	"context"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	messageDomain "github.com/reshetovitsme/tracker-bundle-bot/internal/modules/message/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/samber/oops"
)

const service = "telegram"

// API is the subset of *bot.Bot the sink calls
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	EditMessageReplyMarkup(ctx context.Context, params *bot.EditMessageReplyMarkupParams) (*models.Message, error)
	PinChatMessage(ctx context.Context, params *bot.PinChatMessageParams) (bool, error)
	UnpinChatMessage(ctx context.Context, params *bot.UnpinChatMessageParams) (bool, error)
	GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error)
}

type messageKey struct {
	channelID string
	messageID int
}

// Sink applies bundle message operations through the Telegram Bot API.
// Telegram only disables link previews as part of an edit, so the sink
// remembers which messages are suppressed and the last text it sent.
type Sink struct {
	api        API
	mu         sync.Mutex
	suppressed map[messageKey]bool
	lastText   map[messageKey]string
}

// NewSink creates a new Telegram message sink
func NewSink(api API) *Sink {
	return &Sink{
		api:        api,
		suppressed: make(map[messageKey]bool),
		lastText:   make(map[messageKey]string),
	}
}

// Fetch checks the message still exists and reads its pinned state
func (s *Sink) Fetch(ctx context.Context, channelID string, messageID int) (*messageDomain.Message, error) {
	// an edit without changes is the cheapest existence probe the Bot API offers
	_, err := s.api.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:    channelID,
		MessageID: messageID,
	})
	if err != nil && !isNotModified(err) {
		return nil, classify(err, channelID, messageID)
	}

	chat, err := s.api.GetChat(ctx, &bot.GetChatParams{ChatID: channelID})
	if err != nil {
		return nil, errors.External(service, err, "channel_id", channelID, "context", "failed to get chat")
	}

	key := messageKey{channelID, messageID}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &messageDomain.Message{
		ID:         messageID,
		ChannelID:  channelID,
		Pinned:     chat.PinnedMessage != nil && chat.PinnedMessage.ID == messageID,
		Suppressed: s.suppressed[key],
	}, nil
}

func (s *Sink) Send(ctx context.Context, channelID, content string) (*messageDomain.Message, error) {
	text, entities := FormatEntities(content)
	msg, err := s.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:   channelID,
		Text:     text,
		Entities: entities,
	})
	if err != nil {
		return nil, errors.External(service, err, "channel_id", channelID, "context", "failed to send message")
	}

	s.mu.Lock()
	s.lastText[messageKey{channelID, msg.ID}] = content
	s.mu.Unlock()
	return &messageDomain.Message{ID: msg.ID, ChannelID: channelID}, nil
}

func (s *Sink) Edit(ctx context.Context, channelID string, messageID int, content string) error {
	key := messageKey{channelID, messageID}
	s.mu.Lock()
	suppressed := s.suppressed[key]
	s.mu.Unlock()

	if err := s.editText(ctx, key, content, suppressed); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastText[key] = content
	s.mu.Unlock()
	return nil
}

func (s *Sink) Pin(ctx context.Context, channelID string, messageID int) error {
	_, err := s.api.PinChatMessage(ctx, &bot.PinChatMessageParams{
		ChatID:              channelID,
		MessageID:           messageID,
		DisableNotification: true,
	})
	if err != nil {
		return classify(err, channelID, messageID)
	}
	return nil
}

func (s *Sink) Unpin(ctx context.Context, channelID string, messageID int) error {
	_, err := s.api.UnpinChatMessage(ctx, &bot.UnpinChatMessageParams{
		ChatID:    channelID,
		MessageID: messageID,
	})
	if err != nil {
		return classify(err, channelID, messageID)
	}
	return nil
}

// SuppressLinkPreview re-edits the message with the last known text and the
// requested preview setting. Without a known text the setting is applied on the next edit.
func (s *Sink) SuppressLinkPreview(ctx context.Context, channelID string, messageID int, suppress bool) error {
	key := messageKey{channelID, messageID}
	s.mu.Lock()
	s.suppressed[key] = suppress
	text, ok := s.lastText[key]
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return s.editText(ctx, key, text, suppress)
}

func (s *Sink) editText(ctx context.Context, key messageKey, content string, suppress bool) error {
	text, entities := FormatEntities(content)
	params := &bot.EditMessageTextParams{
		ChatID:    key.channelID,
		MessageID: key.messageID,
		Text:      text,
		Entities:  entities,
	}
	if suppress {
		params.LinkPreviewOptions = &models.LinkPreviewOptions{IsDisabled: bot.True()}
	}

	_, err := s.api.EditMessageText(ctx, params)
	if err != nil && !isNotModified(err) {
		return classify(err, key.channelID, key.messageID)
	}
	return nil
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

// classify maps a deleted message to ErrMessageNotFound and wraps anything else
func classify(err error, channelID string, messageID int) error {
	msg := err.Error()
	if strings.Contains(msg, "message to edit not found") ||
		strings.Contains(msg, "message to pin not found") ||
		strings.Contains(msg, "message to unpin not found") ||
		strings.Contains(msg, "MESSAGE_ID_INVALID") {
		return oops.With("channel_id", channelID, "message_id", messageID).Wrap(errors.ErrMessageNotFound)
	}
	return errors.External(service, err, "channel_id", channelID, "message_id", messageID)
}
