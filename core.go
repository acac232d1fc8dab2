// Package switchboard assembles the chat-automation core: the typed event
// bus, local command registries, hook pipeline, workflow engine, remote
// plugin subsystem, and the orchestrator that routes between them. Platform
// adapters feed normalized events in through Core and implement the
// collaborator interfaces for everything going out.
package switchboard

import (
	"context"

	"github.com/nextlevelbuilder/switchboard/internal/bus"
	"github.com/nextlevelbuilder/switchboard/internal/chat"
	"github.com/nextlevelbuilder/switchboard/internal/config"
	"github.com/nextlevelbuilder/switchboard/internal/hooks"
	"github.com/nextlevelbuilder/switchboard/internal/orchestrator"
	"github.com/nextlevelbuilder/switchboard/internal/plugins"
	"github.com/nextlevelbuilder/switchboard/internal/registry"
	"github.com/nextlevelbuilder/switchboard/internal/workflow"
)

// Collaborators are the adapter-provided implementations the core routes
// through. Messenger and Replies are required; Generator and Policy are
// optional and disable their feature when nil.
type Collaborators struct {
	Messenger chat.Messenger
	Replies   chat.ReplySender
	Generator chat.Generator
	Policy    chat.ChannelPolicy
}

// Core is the assembled orchestration engine.
type Core struct {
	Events       *bus.Bus
	Commands     *registry.CommandRegistry
	Subcommands  *registry.SubcommandRegistry
	Hooks        *hooks.Pipeline
	Workflows    *workflow.Engine
	Plugins      *plugins.Registry
	Orchestrator *orchestrator.Orchestrator

	discovery *plugins.Discovery
}

// New wires a core from configuration and adapter collaborators. Remote
// plugin discovery does not run until Start.
func New(cfg *config.Config, collab Collaborators) *Core {
	events := bus.New()

	engine := workflow.NewEngine(collab.Messenger, collab.Replies, events, workflow.Config{
		PromptTimeout: cfg.Workflows.PromptTimeout,
		EvictionGrace: cfg.Workflows.EvictionGrace,
		PollFloor:     cfg.Workflows.PollFloor,
		SweepInterval: cfg.Workflows.SweepInterval,
	})

	client := plugins.NewClient(cfg.Plugins.RequestTimeout)
	remoteRegistry := plugins.NewRegistry()
	discovery := plugins.NewDiscovery(cfg.Plugins, client, remoteRegistry)
	dispatcher := plugins.NewDispatcher(client, remoteRegistry, collab.Policy,
		cfg.Plugins.ScanRatePerChannel, cfg.Plugins.ScanBurst)

	commands := registry.NewCommandRegistry()
	subcommands := registry.NewSubcommandRegistry()
	pipeline := hooks.NewPipeline()

	orch := orchestrator.New(orchestrator.Deps{
		Commands:    commands,
		Subcommands: subcommands,
		Hooks:       pipeline,
		Remote:      dispatcher,
		Workflows:   engine,
		Replies:     collab.Replies,
		Generator:   collab.Generator,
		Policy:      collab.Policy,
		Events:      events,
		Addressing: chat.Addressing{
			BotName:     cfg.Bot.DisplayName,
			Aliases:     cfg.Bot.Aliases,
			ReplyToDMs:  cfg.Bot.ReplyToDMs,
			ReplyToTags: cfg.Bot.ReplyToTags,
		},
	})

	return &Core{
		Events:       events,
		Commands:     commands,
		Subcommands:  subcommands,
		Hooks:        pipeline,
		Workflows:    engine,
		Plugins:      remoteRegistry,
		Orchestrator: orch,
		discovery:    discovery,
	}
}

// Start runs the initial plugin discovery pass and begins periodic refresh
// when configured. It returns once discovery has settled enough to serve.
func (c *Core) Start(ctx context.Context) {
	c.discovery.Run(ctx)
}

// Close shuts down discovery, the workflow reaper, and the event bus.
// In-flight workflows are not interrupted.
func (c *Core) Close() {
	c.discovery.Close()
	c.Workflows.Close()
	c.Events.Close()
}

// HandleCommand routes a normalized slash-command event.
func (c *Core) HandleCommand(ctx context.Context, ev chat.CommandEvent) {
	c.Orchestrator.HandleCommand(ctx, ev)
}

// HandleMessage routes a normalized free-text message event.
func (c *Core) HandleMessage(ctx context.Context, ev chat.MessageEvent) {
	c.Orchestrator.HandleMessage(ctx, ev)
}

// HandleButton routes a normalized button click event.
func (c *Core) HandleButton(ctx context.Context, ev chat.ButtonActionEvent) {
	c.Orchestrator.HandleButton(ctx, ev)
}
