package plugins

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mattn/go-shellwords"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/switchboard/internal/chat"
	"github.com/nextlevelbuilder/switchboard/pkg/protocol"
)

// ScanHit is one scan response worth delivering.
type ScanHit struct {
	Plugin string
	Result chat.PluginResult
}

// Dispatcher routes command invocations and message scans to remote plugin
// services. Scan broadcasts are rate-limited per channel.
type Dispatcher struct {
	client   *Client
	registry *Registry
	policy   chat.ChannelPolicy

	scanRate  rate.Limit
	scanBurst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // channel → limiter
}

// NewDispatcher builds a dispatcher. policy may be nil, disabling the
// per-channel plugin gate.
func NewDispatcher(client *Client, registry *Registry, policy chat.ChannelPolicy, scanRatePerChannel float64, scanBurst int) *Dispatcher {
	return &Dispatcher{
		client:    client,
		registry:  registry,
		policy:    policy,
		scanRate:  rate.Limit(scanRatePerChannel),
		scanBurst: scanBurst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// DispatchCommand routes a slash-command invocation to the remote service
// that claimed it. The first word of the command text is tried as a
// subcommand claim before the slash command itself. ok reports whether any
// remote service owned the invocation; a remote failure still reports
// ok=true with an apologetic result so the caller stops searching.
func (d *Dispatcher) DispatchCommand(ctx context.Context, ev chat.CommandEvent) (chat.PluginResult, bool) {
	command := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ev.Command)), "/")
	firstWord := ""
	if fields := strings.Fields(ev.RawText); len(fields) > 0 {
		firstWord = fields[0]
	}

	var entry *Entry
	var subcommand string
	if firstWord != "" {
		if e, ok := d.registry.MatchSubcommand(firstWord); ok {
			entry, subcommand = e, strings.ToLower(firstWord)
		}
	}
	if entry == nil {
		e, ok := d.registry.MatchSlash(command)
		if !ok {
			return chat.PluginResult{}, false
		}
		entry = e
	}

	if d.policy != nil && !d.policy.IsPluginEnabled(ev.ChannelID, entry.Manifest.Name) {
		slog.Debug("plugin disabled in channel", "plugin", entry.Manifest.Name, "channel", ev.ChannelID)
		return chat.PluginResult{}, false
	}

	rawArgs := ev.RawText
	if subcommand != "" {
		rawArgs = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ev.RawText), firstWord))
	}
	args := tokenize(rawArgs)

	traceID := uuid.NewString()
	req := protocol.ExecuteRequest{
		Command:    command,
		Subcommand: subcommand,
		Args:       args,
		RawText:    ev.RawText,
		UserID:     ev.UserID,
		ChannelID:  ev.ChannelID,
		TeamID:     ev.TeamID,
		TraceID:    traceID,
	}

	return d.execute(ctx, entry, req), true
}

// DispatchMessage routes a free-text message whose first word matches a
// remote subcommand claim. Unlike DispatchCommand there is no slash-command
// leg; a message either starts with a claimed subcommand or it is a miss.
func (d *Dispatcher) DispatchMessage(ctx context.Context, ev chat.MessageEvent) (chat.PluginResult, bool) {
	fields := strings.Fields(ev.Text)
	if len(fields) == 0 {
		return chat.PluginResult{}, false
	}
	firstWord := fields[0]

	entry, ok := d.registry.MatchSubcommand(firstWord)
	if !ok {
		return chat.PluginResult{}, false
	}
	if d.policy != nil && !d.policy.IsPluginEnabled(ev.ChannelID, entry.Manifest.Name) {
		slog.Debug("plugin disabled in channel", "plugin", entry.Manifest.Name, "channel", ev.ChannelID)
		return chat.PluginResult{}, false
	}

	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ev.Text), firstWord))
	req := protocol.ExecuteRequest{
		Subcommand: strings.ToLower(firstWord),
		Args:       tokenize(rest),
		RawText:    ev.Text,
		UserID:     ev.UserID,
		ChannelID:  ev.ChannelID,
		TeamID:     ev.TeamID,
		ThreadRef:  ev.ThreadRef,
		TraceID:    uuid.NewString(),
	}
	return d.execute(ctx, entry, req), true
}

// execute performs the HTTP call and translates the outcome. Remote failures
// degrade to an apologetic pass-through, never an error.
func (d *Dispatcher) execute(ctx context.Context, entry *Entry, req protocol.ExecuteRequest) chat.PluginResult {
	resp, err := d.client.Execute(ctx, entry.BaseURL, req)
	if err != nil {
		slog.Error("remote execute failed",
			"plugin", entry.Manifest.Name, "command", req.Command, "subcommand", req.Subcommand,
			"trace_id", req.TraceID, "error", err)
		return chat.Errorf("Sorry, the %s plugin is not responding right now.", entry.Manifest.Name)
	}

	slog.Info("remote command dispatched",
		"plugin", entry.Manifest.Name, "command", req.Command, "subcommand", req.Subcommand,
		"trace_id", req.TraceID, "success", resp.Success)
	return translate(resp)
}

// BroadcastScan fans one message out to every scan-capable service in
// parallel and collects the hits. The per-channel rate limiter drops the
// whole broadcast when the channel is over budget.
func (d *Dispatcher) BroadcastScan(ctx context.Context, ev chat.MessageEvent) []ScanHit {
	targets := d.registry.ScanTargets()
	if len(targets) == 0 {
		return nil
	}
	if !d.limiter(ev.ChannelID).Allow() {
		slog.Debug("scan broadcast rate-limited", "channel", ev.ChannelID)
		return nil
	}

	req := protocol.ScanRequest{
		Text:      ev.Text,
		UserID:    ev.UserID,
		ChannelID: ev.ChannelID,
		TeamID:    ev.TeamID,
		ThreadRef: ev.ThreadRef,
		TraceID:   uuid.NewString(),
	}

	var mu sync.Mutex
	var hits []ScanHit

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range targets {
		entry := entry
		if d.policy != nil && !d.policy.IsPluginEnabled(ev.ChannelID, entry.Manifest.Name) {
			continue
		}
		g.Go(func() error {
			resp, err := d.client.Scan(gctx, entry.BaseURL, req)
			if err != nil {
				slog.Warn("scan failed", "plugin", entry.Manifest.Name, "error", err)
				return nil
			}
			if resp == nil || !isHit(resp) {
				return nil
			}
			mu.Lock()
			hits = append(hits, ScanHit{Plugin: entry.Manifest.Name, Result: translate(resp)})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // goroutines swallow their own errors

	return hits
}

func (d *Dispatcher) limiter(channel string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[channel]
	if !ok {
		l = rate.NewLimiter(d.scanRate, d.scanBurst)
		d.limiters[channel] = l
	}
	return l
}

// isHit reports whether a scan response carries anything worth delivering.
func isHit(resp *protocol.ExecuteResponse) bool {
	return resp.Text != "" || resp.SuppressMention || len(resp.Reactions) > 0
}

// translate converts a wire response into the internal result form. The
// orthogonal flags carry over regardless of which mode is selected.
func translate(resp *protocol.ExecuteResponse) chat.PluginResult {
	out := chat.PluginResult{
		SuppressMention: resp.SuppressMention,
		Reactions:       resp.Reactions,
		Username:        resp.Username,
		Ephemeral:       resp.Ephemeral,
	}

	switch {
	case !resp.Success:
		out.Mode = chat.ModePassThrough
		out.Reply = resp.Error
		if out.Reply == "" {
			out.Reply = "The plugin reported an error."
		}

	case resp.UseNaturalLanguage:
		out.Mode = chat.ModeAskNaturalLanguage
		out.NLText = resp.Text
		if resp.NaturalLanguageStyle != "" {
			out.NLMode = chat.NLRewrite
			out.NLStyle = resp.NaturalLanguageStyle
		} else {
			out.NLMode = chat.NLFree
		}

	case resp.Text == "":
		out.Mode = chat.ModeEmpty

	default:
		out.Mode = chat.ModePassThrough
		out.Reply = resp.Text
	}
	return out
}

// tokenize splits command text shell-style, falling back to whitespace
// splitting when quoting is unbalanced.
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
