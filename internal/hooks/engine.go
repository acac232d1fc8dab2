package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/switchboard/internal/chat"
)

// Action is the caller-supplied handler the pipeline wraps.
type Action func(ctx context.Context, hctx *Context) (chat.PluginResult, error)

// Pipeline holds hook registrations and executes actions through them.
type Pipeline struct {
	mu    sync.RWMutex
	seq   int
	hooks map[Point][]entry
}

type entry struct {
	Registration
	seq int
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{hooks: make(map[Point][]entry)}
}

// Register adds a hook. Execution order within a point is ascending
// priority, ties broken by registration order.
func (p *Pipeline) Register(reg Registration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	list := append(p.hooks[reg.Point], entry{Registration: reg, seq: p.seq})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return list[i].seq < list[j].seq
	})
	p.hooks[reg.Point] = list
}

// matching returns the hooks at point whose pattern matches key, in order.
func (p *Pipeline) matching(point Point, key string) []entry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []entry
	for _, e := range p.hooks[point] {
		if Match(e.Pattern, key) {
			out = append(out, e)
		}
	}
	return out
}

// Run executes action through the four lifecycle stages. A Validate or
// BeforeExecute rejection stops before the handler runs: with a custom
// response the response is returned verbatim, otherwise a plain-text error
// result is synthesized from the rejection reason. On handler error the
// OnError hooks run (their own failures are logged and swallowed) and the
// original error is returned. AfterExecute hooks may override the result
// with a custom response; an after-rejection without a response leaves the
// handler's result untouched.
func (p *Pipeline) Run(ctx context.Context, hctx *Context, action Action) (chat.PluginResult, error) {
	key := hctx.Key()

	for _, point := range []Point{Validate, BeforeExecute} {
		for _, e := range p.matching(point, key) {
			res, err := e.Handler.Run(ctx, hctx)
			if err != nil {
				slog.Warn("hooks: hook failed, skipping",
					"point", point.String(), "pattern", e.Pattern, "key", key, "error", err)
				continue
			}
			if res.Continue {
				continue
			}
			if res.Response != nil {
				return *res.Response, nil
			}
			return rejection(res.ErrorMessage), nil
		}
	}

	out, err := p.invoke(ctx, hctx, action)
	if err != nil {
		hctx.Err = err
		p.runOnError(ctx, hctx, key)
		return chat.PluginResult{}, err
	}

	hctx.Result = &out
	for _, e := range p.matching(AfterExecute, key) {
		res, herr := e.Handler.Run(ctx, hctx)
		if herr != nil {
			slog.Warn("hooks: after hook failed, skipping",
				"pattern", e.Pattern, "key", key, "error", herr)
			continue
		}
		if res.Response != nil {
			out = *res.Response
			hctx.Result = &out
		}
		// A rejection without a response never swallows a completed
		// handler's output.
	}
	return out, nil
}

// invoke runs the action with panic recovery so a crashing handler surfaces
// as an error at the orchestrator boundary.
func (p *Pipeline) invoke(ctx context.Context, hctx *Context, action Action) (out chat.PluginResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return action(ctx, hctx)
}

// runOnError executes OnError hooks; their failures and panics are swallowed
// and logged, never propagated.
func (p *Pipeline) runOnError(ctx context.Context, hctx *Context, key string) {
	for _, e := range p.matching(OnError, key) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("hooks: on-error hook panicked", "pattern", e.Pattern, "key", key, "panic", r)
				}
			}()
			if _, err := e.Handler.Run(ctx, hctx); err != nil {
				slog.Warn("hooks: on-error hook failed", "pattern", e.Pattern, "key", key, "error", err)
			}
		}()
	}
}

// rejection synthesizes the plain-text error result for a rejecting hook.
func rejection(reason string) chat.PluginResult {
	if reason == "" {
		reason = "The request was rejected."
	}
	return chat.PassThrough(reason)
}
