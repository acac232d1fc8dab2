package plugins

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/switchboard/pkg/protocol"
)

// Entry is one discovered plugin service.
type Entry struct {
	ServiceName string
	BaseURL     string
	Manifest    *protocol.Manifest
}

// Registry indexes discovered plugin services by the commands they declare.
// Claims are first-wins: once a subcommand or slash command is taken, later
// manifests declaring the same name are logged and ignored.
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]*Entry // plugin name → entry
	subcommands map[string]string // subcommand → plugin name
	slash       map[string]string // slash command → plugin name
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:     make(map[string]*Entry),
		subcommands: make(map[string]string),
		slash:       make(map[string]string),
	}
}

// Replace swaps the entire registry contents for a freshly discovered set.
// Command claims are rebuilt in the order given, first-wins.
func (r *Registry) Replace(entries []*Entry) {
	subcommands := make(map[string]string)
	slash := make(map[string]string)
	byName := make(map[string]*Entry, len(entries))

	for _, e := range entries {
		name := e.Manifest.Name
		if prev, taken := byName[name]; taken {
			slog.Warn("duplicate plugin name ignored",
				"plugin", name, "kept", prev.ServiceName, "ignored", e.ServiceName)
			continue
		}
		byName[name] = e

		for _, sub := range e.Manifest.Subcommands {
			key := strings.ToLower(sub.Name)
			if owner, taken := subcommands[key]; taken {
				slog.Warn("subcommand already claimed",
					"subcommand", key, "owner", owner, "ignored", name)
				continue
			}
			subcommands[key] = name
		}
		for _, sc := range e.Manifest.SlashCommands {
			key := strings.ToLower(strings.TrimPrefix(sc.Command, "/"))
			if owner, taken := slash[key]; taken {
				slog.Warn("slash command already claimed",
					"command", key, "owner", owner, "ignored", name)
				continue
			}
			slash[key] = name
		}
	}

	r.mu.Lock()
	r.entries = byName
	r.subcommands = subcommands
	r.slash = slash
	r.mu.Unlock()
}

// Entry returns the registry entry for a plugin name.
func (r *Registry) Entry(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// MatchSubcommand resolves a first-word subcommand to its owning service.
func (r *Registry) MatchSubcommand(word string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.subcommands[strings.ToLower(word)]
	if !ok {
		return nil, false
	}
	e, ok := r.entries[name]
	return e, ok
}

// MatchSlash resolves a slash command (with or without the leading "/") to
// its owning service.
func (r *Registry) MatchSlash(command string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.slash[strings.ToLower(strings.TrimPrefix(command, "/"))]
	if !ok {
		return nil, false
	}
	e, ok := r.entries[name]
	return e, ok
}

// ScanTargets lists every service that declared scan support.
func (r *Registry) ScanTargets() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Entry
	for _, e := range r.entries {
		if e.Manifest.SupportsScan {
			out = append(out, e)
		}
	}
	return out
}

// Plugins lists every discovered entry.
func (r *Registry) Plugins() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}
