// Package chat defines the normalized event and result types the core
// exchanges with the platform adapter, plus the collaborator interfaces the
// adapter, NL engine, and policy layer implement.
package chat

// ReplyTarget identifies where a reply should be delivered. Selection order
// is fixed for every event kind: an explicit response callback reference
// wins, then a thread reference, then the channel itself.
type ReplyTarget struct {
	Channel     string
	ThreadRef   string
	ResponseRef string
}

// CommandEvent is a normalized slash-command invocation.
type CommandEvent struct {
	Adapter       string
	TeamID        string
	ChannelID     string
	UserID        string
	Command       string
	RawText       string
	ResponseRef   string
	CorrelationID string
}

// Target returns the reply target for this command.
func (e CommandEvent) Target() ReplyTarget {
	return ReplyTarget{Channel: e.ChannelID, ResponseRef: e.ResponseRef}
}

// MessageEvent is a normalized free-text message.
type MessageEvent struct {
	Adapter       string
	TeamID        string
	ChannelID     string
	UserID        string
	Text          string
	ThreadRef     string
	MessageRef    string
	ResponseRef   string
	IsDirect      bool
	CorrelationID string
}

// Target returns the reply target for this message.
func (e MessageEvent) Target() ReplyTarget {
	return ReplyTarget{Channel: e.ChannelID, ThreadRef: e.ThreadRef, ResponseRef: e.ResponseRef}
}

// ButtonActionEvent is a normalized interactive button click.
type ButtonActionEvent struct {
	Adapter       string
	TeamID        string
	ChannelID     string
	UserID        string
	ActionID      string
	Value         string
	BlockID       string
	ResponseRef   string
	TriggerRef    string
	MessageRef    string
	CorrelationID string
}

// Target returns the reply target for this button click.
func (e ButtonActionEvent) Target() ReplyTarget {
	return ReplyTarget{Channel: e.ChannelID, ResponseRef: e.ResponseRef}
}
