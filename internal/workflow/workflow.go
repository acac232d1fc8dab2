// Package workflow manages long-running, interactively-suspendable
// executions. A workflow runs as a detached task with a context through
// which it can message the user, prompt for input, wait for conditions, and
// be cancelled, while the request that started it has long since returned.
package workflow

import (
	"errors"
	"time"
)

// Status tracks a workflow's lifecycle.
type Status string

const (
	StatusRunning         Status = "running"
	StatusWaitingForInput Status = "waiting_for_input"
	StatusWaitingForEvent Status = "waiting_for_event"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Distinguished workflow outcomes. Timeout and cancellation are separate
// conditions; callers must be able to tell them apart.
var (
	// ErrPromptTimeout is returned when a prompt's wait elapses.
	ErrPromptTimeout = errors.New("workflow: prompt timed out")

	// ErrCancelled is returned from waits interrupted by Cancel.
	ErrCancelled = errors.New("workflow: cancelled")

	// ErrNotWaiting is returned when a resume targets a workflow that is
	// not waiting for input (or already consumed its one resume).
	ErrNotWaiting = errors.New("workflow: not waiting for input")

	// ErrNotFound is returned when no active workflow has the given id.
	ErrNotFound = errors.New("workflow: not found")
)

// Binding ties a workflow to the conversation that triggered it.
type Binding struct {
	UserID    string
	ChannelID string
	ThreadRef string
}

// Snapshot is a read-only view of a workflow's lifecycle fields.
type Snapshot struct {
	ID           string
	Name         string
	Status       Status
	StartedAt    time.Time
	CompletedAt  time.Time
	ErrorMessage string
}
