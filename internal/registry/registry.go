// Package registry holds the local command and subcommand routing tables.
// Local registrations are owner-controlled, so re-registering a key
// overwrites it (unlike the remote plugin registry, where the first
// registrant wins).
package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/switchboard/internal/chat"
)

// Invocation is what a matched local handler receives.
type Invocation struct {
	Plugin  string
	Command string
	Action  string
	Args    []string
	Event   any
}

// Handler executes a matched local command.
type Handler interface {
	Handle(ctx context.Context, inv Invocation) (chat.PluginResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, inv Invocation) (chat.PluginResult, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, inv Invocation) (chat.PluginResult, error) {
	return f(ctx, inv)
}

// Registration binds a handler to the plugin name used for hook patterns.
type Registration struct {
	Plugin  string
	Handler Handler
}

// CommandRegistry is the exact-match table for slash commands and first-word
// message triggers.
type CommandRegistry struct {
	mu       sync.RWMutex
	slash    map[string]Registration
	triggers map[string]Registration
}

// NewCommandRegistry creates an empty command registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		slash:    make(map[string]Registration),
		triggers: make(map[string]Registration),
	}
}

// RegisterSlash registers a slash command, keyed case-insensitively with the
// leading "/" trimmed. Last writer wins.
func (r *CommandRegistry) RegisterSlash(name string, reg Registration) {
	key := NormalizeCommand(name)
	if key == "" {
		return
	}
	r.mu.Lock()
	r.slash[key] = reg
	r.mu.Unlock()
}

// RegisterMessage registers a first-word message trigger together with any
// aliases; every alias maps to the same handler. Last writer wins.
func (r *CommandRegistry) RegisterMessage(trigger string, aliases []string, reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range append([]string{trigger}, aliases...) {
		key := Normalize(name)
		if key == "" {
			continue
		}
		r.triggers[key] = reg
	}
}

// MatchCommand looks up a slash command by its normalized name.
func (r *CommandRegistry) MatchCommand(ev chat.CommandEvent) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.slash[NormalizeCommand(ev.Command)]
	return reg, ok
}

// MatchMessage matches only the first whitespace-delimited token of the
// message, case-insensitively. A message not starting with a known trigger
// never matches.
func (r *CommandRegistry) MatchMessage(ev chat.MessageEvent) (Registration, bool) {
	first := FirstToken(ev.Text)
	if first == "" {
		return Registration{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.triggers[first]
	return reg, ok
}

// SubcommandRegistry is a two-level lookup: parent command → subcommand →
// handler. Registration never fails; conflicts overwrite.
type SubcommandRegistry struct {
	mu   sync.RWMutex
	subs map[string]map[string]Registration
}

// NewSubcommandRegistry creates an empty subcommand registry.
func NewSubcommandRegistry() *SubcommandRegistry {
	return &SubcommandRegistry{subs: make(map[string]map[string]Registration)}
}

// Register binds a handler under parent/sub, both normalized.
func (r *SubcommandRegistry) Register(parent, sub string, reg Registration) {
	p, s := NormalizeCommand(parent), Normalize(sub)
	if p == "" || s == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[p] == nil {
		r.subs[p] = make(map[string]Registration)
	}
	r.subs[p][s] = reg
}

// Match looks up a handler under parent/sub.
func (r *SubcommandRegistry) Match(parent, sub string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.subs[NormalizeCommand(parent)][Normalize(sub)]
	return reg, ok
}

// Normalize lowercases and trims a routing key.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeCommand normalizes a command name, trimming any leading "/".
func NormalizeCommand(s string) string {
	return Normalize(strings.TrimPrefix(strings.TrimSpace(s), "/"))
}

// FirstToken returns the normalized first whitespace-delimited token of s.
func FirstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return Normalize(fields[0])
}
