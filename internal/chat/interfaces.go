package chat

import "context"

// Messenger posts and edits messages directly on the chat platform. The
// workflow engine uses it to anchor reply threads.
type Messenger interface {
	// PostMessage posts text to a channel, optionally inside a thread, and
	// returns the new message's reference.
	PostMessage(ctx context.Context, channel, text, threadRef string) (string, error)

	// UpdateMessage replaces the text of an existing message.
	UpdateMessage(ctx context.Context, channel, messageRef, text string) error
}

// SendOptions carries delivery modifiers for a reply.
type SendOptions struct {
	Ephemeral bool
	Username  string
	Policy    string
}

// ReplySender delivers a finished reply to its target. The adapter decides
// rendering and transport.
type ReplySender interface {
	Send(ctx context.Context, target ReplyTarget, text string, opts SendOptions) error
}

// GenerateRequest is one call into the natural-language engine.
type GenerateRequest struct {
	Mode    NLMode
	Text    string
	Style   string
	Context map[string]string
}

// Generator produces natural-language replies.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ChannelPolicy gates which channels may use the bot at all, and which
// plugins are enabled within a channel.
type ChannelPolicy interface {
	IsChannelAllowed(channel string) bool
	IsPluginEnabled(channel, pluginName string) bool
}
