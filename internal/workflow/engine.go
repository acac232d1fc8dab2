package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/switchboard/internal/bus"
	"github.com/nextlevelbuilder/switchboard/internal/chat"
)

// failureNotice is the generic message sent when a workflow body fails.
const failureNotice = "Something went wrong and the workflow had to stop."

// Config tunes the engine's timing behavior.
type Config struct {
	PromptTimeout time.Duration
	EvictionGrace time.Duration
	PollFloor     time.Duration
	SweepInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.PromptTimeout == 0 {
		c.PromptTimeout = 5 * time.Minute
	}
	if c.EvictionGrace == 0 {
		c.EvictionGrace = 5 * time.Minute
	}
	if c.PollFloor == 0 {
		c.PollFloor = time.Second
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 30 * time.Second
	}
}

// Engine runs workflows as detached tasks, routes interactive input back to
// the workflow waiting for it, and reaps terminal entries after a grace
// period.
type Engine struct {
	messenger chat.Messenger
	replies   chat.ReplySender
	events    *bus.Bus // optional; lifecycle announcements
	cfg       Config

	mu      sync.RWMutex
	active  map[string]*Context
	waiting map[string]string // location key → workflow id

	done      chan struct{}
	closeOnce sync.Once
}

// NewEngine creates an engine and starts its reaper. events may be nil.
func NewEngine(messenger chat.Messenger, replies chat.ReplySender, events *bus.Bus, cfg Config) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		messenger: messenger,
		replies:   replies,
		events:    events,
		cfg:       cfg,
		active:    make(map[string]*Context),
		waiting:   make(map[string]string),
		done:      make(chan struct{}),
	}
	go e.reap()
	return e
}

// Close stops the reaper. Running workflows are not interrupted.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

// Start registers a new workflow and launches body as a detached task,
// returning the fresh workflow id immediately.
func (e *Engine) Start(name string, binding Binding, initialState map[string]any, body Body) string {
	state := make(map[string]any, len(initialState))
	for k, v := range initialState {
		state[k] = v
	}

	wf := &Context{
		id:        uuid.NewString(),
		name:      name,
		userID:    binding.UserID,
		channelID: binding.ChannelID,
		threadRef: binding.ThreadRef,
		engine:    e,
		status:    StatusRunning,
		state:     state,
		startedAt: time.Now(),
		cancel:    make(chan struct{}),
	}

	e.mu.Lock()
	e.active[wf.id] = wf
	e.mu.Unlock()

	slog.Info("workflow started", "workflow", name, "id", wf.id, "channel", binding.ChannelID, "user", binding.UserID)
	e.announce(wf)

	go e.run(wf, body)
	return wf.id
}

// run executes the body and records the terminal status. Failures send a
// generic notice to the user; the engine never lets a workflow error escape.
func (e *Engine) run(wf *Context, body Body) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-wf.cancel:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := e.invoke(ctx, wf, body)

	wf.mu.Lock()
	cancelled := wf.status == StatusCancelled
	if !cancelled {
		if err != nil {
			wf.status = StatusFailed
			wf.errMessage = err.Error()
		} else {
			wf.status = StatusCompleted
		}
	}
	wf.completedAt = time.Now()
	wf.mu.Unlock()

	switch {
	case cancelled || errors.Is(err, ErrCancelled):
		slog.Info("workflow cancelled", "workflow", wf.name, "id", wf.id)
	case err != nil:
		slog.Error("workflow failed", "workflow", wf.name, "id", wf.id, "error", err)
		_ = wf.Send(context.Background(), failureNotice)
	default:
		slog.Info("workflow completed", "workflow", wf.name, "id", wf.id)
	}
	e.announce(wf)
}

func (e *Engine) invoke(ctx context.Context, wf *Context, body Body) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow panic: %v", r)
		}
	}()
	return body(ctx, wf)
}

// ResumeWithInput satisfies the one-shot input wait of the given workflow.
// Resuming a workflow that is not waiting returns ErrNotWaiting.
func (e *Engine) ResumeWithInput(workflowID, value string) error {
	e.mu.RLock()
	wf, ok := e.active[workflowID]
	e.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return wf.resume(value)
}

// ResumeWaitingAt routes an interactive reply at a conversation location to
// the workflow waiting there, if any.
func (e *Engine) ResumeWaitingAt(channelID, threadRef, value string) error {
	loc := locationKey(channelID, threadRef)
	e.mu.RLock()
	id, ok := e.waiting[loc]
	e.mu.RUnlock()
	if !ok {
		return ErrNotWaiting
	}
	return e.ResumeWithInput(id, value)
}

// ResumeFromAction parses a button action id and resumes the workflow it
// names, using the action label as the input value.
func (e *Engine) ResumeFromAction(actionID string) error {
	workflowID, action, ok := ParseActionID(actionID)
	if !ok {
		return fmt.Errorf("workflow: malformed action id %q", actionID)
	}
	return e.ResumeWithInput(workflowID, action)
}

// Cancel transitions the workflow to Cancelled and signals its cancellation
// channel, unblocking any pending prompt or wait with ErrCancelled.
func (e *Engine) Cancel(workflowID, reason string) error {
	e.mu.RLock()
	wf, ok := e.active[workflowID]
	e.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	wf.mu.Lock()
	if wf.status.Terminal() {
		wf.mu.Unlock()
		return nil
	}
	wf.status = StatusCancelled
	wf.cancelReason = reason
	wf.mu.Unlock()

	wf.cancelOnce.Do(func() { close(wf.cancel) })
	slog.Info("workflow cancel requested", "id", workflowID, "reason", reason)
	return nil
}

// Snapshot returns a read-only view of an active workflow.
func (e *Engine) Snapshot(workflowID string) (Snapshot, bool) {
	e.mu.RLock()
	wf, ok := e.active[workflowID]
	e.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	wf.mu.Lock()
	defer wf.mu.Unlock()
	return Snapshot{
		ID:           wf.id,
		Name:         wf.name,
		Status:       wf.status,
		StartedAt:    wf.startedAt,
		CompletedAt:  wf.completedAt,
		ErrorMessage: wf.errMessage,
	}, true
}

// registerWaiting records the waiting workflow for a location. At most one
// workflow waits per location; a collision is resolved last-writer-wins.
func (e *Engine) registerWaiting(loc, workflowID string) {
	e.mu.Lock()
	if prev, ok := e.waiting[loc]; ok && prev != workflowID {
		slog.Warn("workflow waiting slot displaced", "location", loc, "previous", prev, "workflow", workflowID)
	}
	e.waiting[loc] = workflowID
	e.mu.Unlock()
}

func (e *Engine) unregisterWaiting(loc, workflowID string) {
	e.mu.Lock()
	if e.waiting[loc] == workflowID {
		delete(e.waiting, loc)
	}
	e.mu.Unlock()
}

// reap periodically evicts terminal workflows whose grace period elapsed
// from the active set and the waiting index.
func (e *Engine) reap() {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sweep()
		case <-e.done:
			return
		}
	}
}

func (e *Engine) sweep() {
	cutoff := time.Now().Add(-e.cfg.EvictionGrace)

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, wf := range e.active {
		wf.mu.Lock()
		evict := wf.status.Terminal() && !wf.completedAt.IsZero() && wf.completedAt.Before(cutoff)
		wf.mu.Unlock()
		if !evict {
			continue
		}
		delete(e.active, id)
		for loc, wid := range e.waiting {
			if wid == id {
				delete(e.waiting, loc)
			}
		}
		slog.Debug("workflow evicted", "id", id)
	}
}

// announce publishes a lifecycle event for subscribers; nothing in the core
// depends on it.
func (e *Engine) announce(wf *Context) {
	if e.events == nil {
		return
	}
	wf.mu.Lock()
	ev := bus.WorkflowEvent{WorkflowID: wf.id, Workflow: wf.name, Status: string(wf.status)}
	wf.mu.Unlock()
	bus.Publish(e.events, ev)
}

// locationKey joins a channel and optional thread into a waiting-index key.
func locationKey(channelID, threadRef string) string {
	if threadRef == "" {
		return channelID
	}
	return channelID + "/" + threadRef
}
