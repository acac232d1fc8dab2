// Package hooks provides a general-purpose middleware pipeline around named
// actions. Hooks register against a lifecycle point with a pattern and a
// priority; the pipeline runs them in order around the wrapped handler.
package hooks

import (
	"context"

	"github.com/nextlevelbuilder/switchboard/internal/chat"
)

// Point is a lifecycle stage at which middleware can intercept an action.
type Point int

const (
	// Validate runs first and can reject the action outright.
	Validate Point = iota

	// BeforeExecute runs after validation, immediately before the handler.
	BeforeExecute

	// AfterExecute runs after the handler and may override its result.
	AfterExecute

	// OnError runs only when the handler returns an error or panics.
	OnError
)

// String returns the point's registration name.
func (p Point) String() string {
	switch p {
	case Validate:
		return "validate"
	case BeforeExecute:
		return "before_execute"
	case AfterExecute:
		return "after_execute"
	case OnError:
		return "on_error"
	default:
		return "unknown"
	}
}

// Context is the mutable bag scoped to one action invocation. It lives for
// exactly one pipeline execution.
type Context struct {
	Plugin    string
	Command   string
	Action    string
	Resource  string
	Arguments map[string]any
	Event     any

	// Result is set once the handler has produced one.
	Result *chat.PluginResult

	// Err is set when the handler failed; OnError hooks can inspect it.
	Err error
}

// Key builds the colon-separated action key hooks match against:
// command:action, with an optional trailing resource segment.
func (c *Context) Key() string {
	key := c.Command + ":" + c.Action
	if c.Resource != "" {
		key += ":" + c.Resource
	}
	return key
}

// Result is the outcome of one hook. A hook either lets the pipeline
// continue, short-circuits with a plain error message, or short-circuits
// with a fully custom response.
type Result struct {
	Continue     bool
	ErrorMessage string
	Response     *chat.PluginResult
}

// ContinueResult lets the pipeline proceed.
func ContinueResult() Result {
	return Result{Continue: true}
}

// Reject stops the pipeline with a user-facing reason.
func Reject(message string) Result {
	return Result{ErrorMessage: message}
}

// Respond stops the pipeline with a custom response.
func Respond(res chat.PluginResult) Result {
	return Result{Response: &res}
}

// Handler is one registered hook. A returned error means the hook itself
// failed; failed hooks are logged and skipped, they never decide the action.
type Handler interface {
	Run(ctx context.Context, hctx *Context) (Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, hctx *Context) (Result, error)

// Run calls f.
func (f HandlerFunc) Run(ctx context.Context, hctx *Context) (Result, error) {
	return f(ctx, hctx)
}

// Registration describes one hook: where it runs, what it matches, and its
// order. Within a point, hooks execute in ascending priority; ties execute
// in registration order.
type Registration struct {
	Point    Point
	Pattern  string
	Priority int
	Handler  Handler
}
