package workflow

import (
	"context"
	"strings"
	"time"
)

type promptConfig struct {
	timeout time.Duration
	options []string
}

// PromptOption customizes a Prompt call.
type PromptOption func(*promptConfig)

// WithTimeout overrides the engine's default prompt timeout.
func WithTimeout(d time.Duration) PromptOption {
	return func(c *promptConfig) { c.timeout = d }
}

// WithOptions lists the choices appended to the prompt text.
func WithOptions(options ...string) PromptOption {
	return func(c *promptConfig) { c.options = options }
}

// Prompt sends promptText, suspends the workflow in WaitingForInput, and
// returns the value from the single ResumeWithInput call that satisfies it.
// The wait ends in exactly one of three ways: a resume value, ErrPromptTimeout
// when the timeout elapses, or ErrCancelled when the workflow is cancelled.
func (w *Context) Prompt(ctx context.Context, promptText string, opts ...PromptOption) (string, error) {
	cfg := promptConfig{timeout: w.engine.cfg.PromptTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	text := promptText
	if len(cfg.options) > 0 {
		text += " (" + strings.Join(cfg.options, "/") + ")"
	}
	if err := w.Send(ctx, text); err != nil {
		return "", err
	}

	w.mu.Lock()
	if w.status.Terminal() {
		w.mu.Unlock()
		return "", ErrCancelled
	}
	w.status = StatusWaitingForInput
	w.waiting = true
	w.input = make(chan string, 1)
	ch := w.input
	w.mu.Unlock()

	loc := w.location()
	w.engine.registerWaiting(loc, w.id)
	defer w.engine.unregisterWaiting(loc, w.id)

	timer := time.NewTimer(cfg.timeout)
	defer timer.Stop()

	select {
	case value := <-ch:
		w.setStatus(StatusRunning)
		return value, nil

	case <-timer.C:
		// A resume may have landed just as the timer fired; prefer it.
		select {
		case value := <-ch:
			w.setStatus(StatusRunning)
			return value, nil
		default:
		}
		w.mu.Lock()
		w.waiting = false
		if !w.status.Terminal() {
			w.status = StatusRunning
		}
		w.mu.Unlock()
		return "", ErrPromptTimeout

	case <-w.cancel:
		w.mu.Lock()
		w.waiting = false
		w.mu.Unlock()
		return "", ErrCancelled

	case <-ctx.Done():
		w.mu.Lock()
		w.waiting = false
		w.mu.Unlock()
		return "", ctx.Err()
	}
}

// Confirm prompts with a fixed yes/no option set and reports whether the
// user agreed. "yes" and "y" are accepted case-insensitively.
func (w *Context) Confirm(ctx context.Context, promptText string, opts ...PromptOption) (bool, error) {
	reply, err := w.Prompt(ctx, promptText, append(opts, WithOptions("yes", "no"))...)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "yes", "y":
		return true, nil
	}
	return false, nil
}

// Delay suspends the workflow in WaitingForEvent for d, posting an optional
// progress message first. Cancellation interrupts the wait promptly.
func (w *Context) Delay(ctx context.Context, d time.Duration, progressMessage string) error {
	if progressMessage != "" {
		_ = w.Send(ctx, progressMessage)
	}

	w.setStatus(StatusWaitingForEvent)
	defer w.setStatus(StatusRunning)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-w.cancel:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitUntil polls pred on the interval until it returns true, the timeout
// elapses, or the workflow is cancelled. A timeout returns false without an
// error; cancellation returns ErrCancelled.
func (w *Context) WaitUntil(ctx context.Context, pred func(context.Context) bool, interval, timeout time.Duration, progressMessage string) (bool, error) {
	if progressMessage != "" {
		_ = w.Send(ctx, progressMessage)
	}
	if floor := w.engine.cfg.PollFloor; interval < floor {
		interval = floor
	}

	w.setStatus(StatusWaitingForEvent)
	defer w.setStatus(StatusRunning)

	if pred(ctx) {
		return true, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if pred(ctx) {
				return true, nil
			}
		case <-deadline.C:
			return false, nil
		case <-w.cancel:
			return false, ErrCancelled
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
