package domain

import "context"

// Message is the observed state of a live destination message
type Message struct {
	ID         int    `json:"id"`
	ChannelID  string `json:"channel_id"`
	Pinned     bool   `json:"pinned"`
	Suppressed bool   `json:"suppressed"`
}

// Desired is the state a bundle message should converge to.
// MessageID 0 means no message has been sent yet.
type Desired struct {
	ChannelID string
	MessageID int
	Content   string
	Pin       bool
	Suppress  bool
}

// Result reports where the message ended up after convergence
type Result struct {
	MessageID int
	Recreated bool
}

// Sink applies message operations on the chat platform.
// Fetch and Edit return errors.ErrMessageNotFound when the message is gone.
type Sink interface {
	Fetch(ctx context.Context, channelID string, messageID int) (*Message, error)
	Send(ctx context.Context, channelID, content string) (*Message, error)
	Edit(ctx context.Context, channelID string, messageID int, content string) error
	Pin(ctx context.Context, channelID string, messageID int) error
	Unpin(ctx context.Context, channelID string, messageID int) error
	SuppressLinkPreview(ctx context.Context, channelID string, messageID int, suppress bool) error
}
