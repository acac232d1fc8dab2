// Package orchestrator ties the routing layers together: every inbound
// command, message, and button click enters here and leaves as a delivered
// reply, a reaction, or a resumed workflow.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/nextlevelbuilder/switchboard/internal/bus"
	"github.com/nextlevelbuilder/switchboard/internal/chat"
	"github.com/nextlevelbuilder/switchboard/internal/hooks"
	"github.com/nextlevelbuilder/switchboard/internal/plugins"
	"github.com/nextlevelbuilder/switchboard/internal/registry"
	"github.com/nextlevelbuilder/switchboard/internal/workflow"
)

const failureReply = "Sorry, something went wrong handling that."

const (
	dedupeTTL  = 20 * time.Minute
	dedupeSize = 5000
)

// RemoteDispatcher is the remote plugin surface the orchestrator needs.
type RemoteDispatcher interface {
	DispatchCommand(ctx context.Context, ev chat.CommandEvent) (chat.PluginResult, bool)
	DispatchMessage(ctx context.Context, ev chat.MessageEvent) (chat.PluginResult, bool)
	BroadcastScan(ctx context.Context, ev chat.MessageEvent) []plugins.ScanHit
}

// Deps are the collaborators an orchestrator routes between. Remote,
// Generator, Policy, and Events may be nil; the corresponding step is
// skipped.
type Deps struct {
	Commands    *registry.CommandRegistry
	Subcommands *registry.SubcommandRegistry
	Hooks       *hooks.Pipeline
	Remote      RemoteDispatcher
	Workflows   *workflow.Engine
	Replies     chat.ReplySender
	Generator   chat.Generator
	Policy      chat.ChannelPolicy
	Events      *bus.Bus
	Addressing  chat.Addressing
}

// Orchestrator routes normalized chat events through local registries, the
// hook pipeline, remote plugins, workflows, and the natural-language
// fallback, in that order.
type Orchestrator struct {
	deps   Deps
	dedupe *bus.DedupeCache
}

// New creates an orchestrator with its own dedupe cache.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		dedupe: bus.NewDedupeCache(dedupeTTL, dedupeSize),
	}
}

// HandleCommand routes a slash-command invocation. Resolution order: local
// slash command, local subcommand on the first word, remote plugin, and
// finally the natural-language fallback.
func (o *Orchestrator) HandleCommand(ctx context.Context, ev chat.CommandEvent) {
	if !o.channelAllowed(ev.ChannelID) {
		return
	}
	if o.dedupe.IsDuplicate(commandKey(ev)) {
		slog.Debug("duplicate command dropped", "command", ev.Command, "correlation_id", ev.CorrelationID)
		return
	}

	command := registry.NormalizeCommand(ev.Command)
	first := registry.FirstToken(ev.RawText)

	if reg, ok := o.deps.Commands.MatchCommand(ev); ok {
		o.runLocal(ctx, ev.Target(), reg, hooks.Context{
			Plugin:  reg.Plugin,
			Command: command,
			Action:  "execute",
			Event:   ev,
		}, registry.Invocation{
			Plugin:  reg.Plugin,
			Command: command,
			Args:    tokenize(ev.RawText),
			Event:   ev,
		})
		return
	}

	if first != "" {
		if reg, ok := o.deps.Subcommands.Match(command, first); ok {
			o.runLocal(ctx, ev.Target(), reg, hooks.Context{
				Plugin:  reg.Plugin,
				Command: command,
				Action:  first,
				Event:   ev,
			}, registry.Invocation{
				Plugin:  reg.Plugin,
				Command: command,
				Action:  first,
				Args:    tokenize(restAfterFirstToken(ev.RawText)),
				Event:   ev,
			})
			return
		}
	}

	if o.deps.Remote != nil {
		if result, ok := o.deps.Remote.DispatchCommand(ctx, ev); ok {
			o.deliver(ctx, ev.Target(), result)
			return
		}
	}

	o.naturalReply(ctx, ev.Target(), ev.RawText)
}

// HandleMessage routes a free-text message. A workflow waiting at the
// message's location consumes it before anything else; then the message is
// scanned by remote plugins, matched against local triggers, and finally
// handed to the natural-language fallback when the bot is addressed.
func (o *Orchestrator) HandleMessage(ctx context.Context, ev chat.MessageEvent) {
	if !o.channelAllowed(ev.ChannelID) {
		return
	}
	if o.dedupe.IsDuplicate(messageKey(ev)) {
		slog.Debug("duplicate message dropped", "channel", ev.ChannelID, "message_ref", ev.MessageRef)
		return
	}

	if o.deps.Workflows != nil {
		err := o.deps.Workflows.ResumeWaitingAt(ev.ChannelID, ev.ThreadRef, ev.Text)
		if err == nil {
			return
		}
		if !errors.Is(err, workflow.ErrNotWaiting) {
			slog.Warn("workflow resume failed", "channel", ev.ChannelID, "error", err)
		}
	}

	suppressMention := false
	if o.deps.Remote != nil {
		for _, hit := range o.deps.Remote.BroadcastScan(ctx, ev) {
			if hit.Result.SuppressMention {
				suppressMention = true
			}
			o.deliver(ctx, scanTarget(ev), hitWithReactionAnchor(hit.Result, ev.MessageRef))
		}
	}

	if reg, ok := o.deps.Commands.MatchMessage(ev); ok {
		first := registry.FirstToken(ev.Text)
		o.runLocal(ctx, ev.Target(), reg, hooks.Context{
			Plugin:  reg.Plugin,
			Command: first,
			Action:  "message",
			Event:   ev,
		}, registry.Invocation{
			Plugin:  reg.Plugin,
			Command: first,
			Args:    tokenize(restAfterFirstToken(ev.Text)),
			Event:   ev,
		})
		return
	}

	if o.deps.Remote != nil {
		if result, ok := o.deps.Remote.DispatchMessage(ctx, ev); ok {
			o.deliver(ctx, ev.Target(), result)
			return
		}
	}

	if suppressMention {
		return
	}
	if o.deps.Addressing.ShouldRespond(ev) {
		o.naturalReply(ctx, ev.Target(), ev.Text)
	}
}

// HandleButton routes an interactive button click to the workflow its
// action id names. A stale click gets an ephemeral notice.
func (o *Orchestrator) HandleButton(ctx context.Context, ev chat.ButtonActionEvent) {
	if !o.channelAllowed(ev.ChannelID) {
		return
	}
	if o.dedupe.IsDuplicate(buttonKey(ev)) {
		return
	}
	if o.deps.Workflows == nil {
		return
	}

	err := o.deps.Workflows.ResumeFromAction(ev.ActionID)
	if err == nil {
		return
	}
	if errors.Is(err, workflow.ErrNotWaiting) || errors.Is(err, workflow.ErrNotFound) {
		o.send(ctx, ev.Target(), "This workflow is no longer active.", chat.SendOptions{Ephemeral: true})
		return
	}
	slog.Error("button action failed", "action_id", ev.ActionID, "error", err)
	o.send(ctx, ev.Target(), failureReply, chat.SendOptions{Ephemeral: true})
}

// runLocal executes a matched local handler through the hook pipeline and
// delivers whatever comes out. Handler errors stop at this boundary.
func (o *Orchestrator) runLocal(ctx context.Context, target chat.ReplyTarget, reg registry.Registration, hctx hooks.Context, inv registry.Invocation) {
	action := func(ctx context.Context, _ *hooks.Context) (chat.PluginResult, error) {
		return reg.Handler.Handle(ctx, inv)
	}

	var result chat.PluginResult
	var err error
	if o.deps.Hooks != nil {
		result, err = o.deps.Hooks.Run(ctx, &hctx, action)
	} else {
		result, err = action(ctx, &hctx)
	}
	if err != nil {
		slog.Error("local handler failed",
			"plugin", inv.Plugin, "command", inv.Command, "action", inv.Action, "error", err)
		o.send(ctx, target, failureReply, chat.SendOptions{})
		return
	}
	o.deliver(ctx, target, result)
}

// deliver turns a handler result into outbound traffic: reactions onto the
// bus, text through the reply sender, natural-language text through the
// generator first.
func (o *Orchestrator) deliver(ctx context.Context, target chat.ReplyTarget, result chat.PluginResult) {
	if result.TargetOverride != nil {
		target = *result.TargetOverride
	}

	if o.deps.Events != nil && len(result.Reactions) > 0 && result.ReactToMessage != "" {
		for _, reaction := range result.Reactions {
			bus.Publish(o.deps.Events, bus.ReactionEvent{
				Channel:    target.Channel,
				MessageRef: result.ReactToMessage,
				Reaction:   reaction,
			})
		}
	}

	opts := chat.SendOptions{
		Ephemeral: result.Ephemeral,
		Username:  result.Username,
		Policy:    result.PolicyOverride,
	}

	switch result.Mode {
	case chat.ModeEmpty:
		return

	case chat.ModeAskNaturalLanguage:
		if o.deps.Generator == nil {
			return
		}
		text, err := o.deps.Generator.Generate(ctx, chat.GenerateRequest{
			Mode:  result.NLMode,
			Text:  result.NLText,
			Style: result.NLStyle,
		})
		if err != nil {
			slog.Error("natural-language generation failed", "error", err)
			o.send(ctx, target, failureReply, opts)
			return
		}
		o.send(ctx, target, text, opts)

	default:
		if result.Reply != "" {
			o.send(ctx, target, result.Reply, opts)
		}
	}
}

// naturalReply answers unmatched input through the generator, when one is
// configured.
func (o *Orchestrator) naturalReply(ctx context.Context, target chat.ReplyTarget, text string) {
	if o.deps.Generator == nil || strings.TrimSpace(text) == "" {
		return
	}
	reply, err := o.deps.Generator.Generate(ctx, chat.GenerateRequest{Mode: chat.NLFree, Text: text})
	if err != nil {
		slog.Error("natural-language fallback failed", "error", err)
		return
	}
	o.send(ctx, target, reply, chat.SendOptions{})
}

func (o *Orchestrator) send(ctx context.Context, target chat.ReplyTarget, text string, opts chat.SendOptions) {
	if text == "" {
		return
	}
	if err := o.deps.Replies.Send(ctx, target, text, opts); err != nil {
		slog.Error("reply delivery failed", "channel", target.Channel, "error", err)
	}
}

func (o *Orchestrator) channelAllowed(channel string) bool {
	return o.deps.Policy == nil || o.deps.Policy.IsChannelAllowed(channel)
}

// scanTarget anchors scan hits to the scanned message's thread so the
// response lands next to what triggered it.
func scanTarget(ev chat.MessageEvent) chat.ReplyTarget {
	target := ev.Target()
	if target.ThreadRef == "" {
		target.ThreadRef = ev.MessageRef
	}
	return target
}

// hitWithReactionAnchor defaults a scan hit's reaction anchor to the scanned
// message.
func hitWithReactionAnchor(result chat.PluginResult, messageRef string) chat.PluginResult {
	if len(result.Reactions) > 0 && result.ReactToMessage == "" {
		result.ReactToMessage = messageRef
	}
	return result
}

func commandKey(ev chat.CommandEvent) string {
	if ev.CorrelationID != "" {
		return "cmd:" + ev.CorrelationID
	}
	return fmt.Sprintf("cmd:%s:%s:%s:%s", ev.ChannelID, ev.UserID, ev.Command, ev.RawText)
}

func messageKey(ev chat.MessageEvent) string {
	if ev.CorrelationID != "" {
		return "msg:" + ev.CorrelationID
	}
	if ev.MessageRef != "" {
		return "msg:" + ev.ChannelID + ":" + ev.MessageRef
	}
	return fmt.Sprintf("msg:%s:%s:%s", ev.ChannelID, ev.UserID, ev.Text)
}

func buttonKey(ev chat.ButtonActionEvent) string {
	if ev.CorrelationID != "" {
		return "btn:" + ev.CorrelationID
	}
	return fmt.Sprintf("btn:%s:%s:%s", ev.ChannelID, ev.UserID, ev.ActionID)
}

// restAfterFirstToken strips the first whitespace-delimited token and the
// whitespace after it.
func restAfterFirstToken(text string) string {
	trimmed := strings.TrimSpace(text)
	if i := strings.IndexFunc(trimmed, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }); i >= 0 {
		return strings.TrimSpace(trimmed[i:])
	}
	return ""
}

// tokenize splits argument text shell-style, preserving quoted phrases, and
// falls back to whitespace splitting when quoting is unbalanced.
func tokenize(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}
	args, err := shellwords.Parse(text)
	if err != nil {
		return strings.Fields(text)
	}
	return args
}
