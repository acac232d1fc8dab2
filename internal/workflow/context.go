package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/nextlevelbuilder/switchboard/internal/chat"
)

// Body is the long-running unit of work a workflow executes.
type Body func(ctx context.Context, wf *Context) error

// Context is a running workflow's handle to the engine: identity, binding,
// state, messaging, and cancellation. It is created by Start, mutated only
// by the executing body and engine-internal resume/cancel operations, and
// evicted a grace period after reaching a terminal status.
type Context struct {
	id     string
	name   string
	userID string
	engine *Engine

	mu           sync.Mutex
	channelID    string
	threadRef    string // thread anchor, set by the first successful Send
	status       Status
	state        map[string]any
	startedAt    time.Time
	completedAt  time.Time
	errMessage   string
	waiting      bool
	input        chan string // one-shot resume signal, buffered

	cancel       chan struct{}
	cancelOnce   sync.Once
	cancelReason string
}

// ID returns the workflow id.
func (w *Context) ID() string { return w.id }

// Name returns the workflow kind name.
func (w *Context) Name() string { return w.name }

// UserID returns the user the workflow is bound to.
func (w *Context) UserID() string { return w.userID }

// ChannelID returns the channel the workflow is bound to.
func (w *Context) ChannelID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.channelID
}

// Status returns the current lifecycle status.
func (w *Context) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Get reads a key from the workflow's state map.
func (w *Context) Get(key string) (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.state[key]
	return v, ok
}

// Set writes a key into the workflow's state map.
func (w *Context) Set(key string, value any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state[key] = value
}

// ActionID produces an opaque button action id bound to this workflow.
func (w *Context) ActionID(action string) string {
	return ActionID(w.id, action)
}

// Send posts text to the workflow's conversation. The first successful post
// creates a new top-level message and captures its reference as the thread
// anchor; later sends reply within that thread. If the initial post fails,
// the text is delivered through the plain reply channel instead and no
// anchor is established.
func (w *Context) Send(ctx context.Context, text string) error {
	w.mu.Lock()
	channel, anchor := w.channelID, w.threadRef
	w.mu.Unlock()

	ref, err := w.engine.messenger.PostMessage(ctx, channel, text, anchor)
	if err != nil {
		if anchor == "" {
			return w.engine.replies.Send(ctx, chat.ReplyTarget{Channel: channel}, text, chat.SendOptions{})
		}
		return err
	}

	if anchor == "" && ref != "" {
		w.mu.Lock()
		w.threadRef = ref
		w.mu.Unlock()
	}
	return nil
}

// setStatus transitions the status unless the workflow is already terminal.
func (w *Context) setStatus(s Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.status.Terminal() {
		w.status = s
	}
}

// resume satisfies the one-shot input signal. Exactly one resume can
// succeed per wait; anything else reports ErrNotWaiting.
func (w *Context) resume(value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != StatusWaitingForInput || !w.waiting {
		return ErrNotWaiting
	}
	w.waiting = false
	w.input <- value // buffered; never blocks
	return nil
}

// location is the waiting-index key for this workflow's conversation.
func (w *Context) location() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return locationKey(w.channelID, w.threadRef)
}
