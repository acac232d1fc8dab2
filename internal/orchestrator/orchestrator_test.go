package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/switchboard/internal/bus"
	"github.com/nextlevelbuilder/switchboard/internal/chat"
	"github.com/nextlevelbuilder/switchboard/internal/hooks"
	"github.com/nextlevelbuilder/switchboard/internal/plugins"
	"github.com/nextlevelbuilder/switchboard/internal/registry"
	"github.com/nextlevelbuilder/switchboard/internal/workflow"
	"github.com/nextlevelbuilder/switchboard/pkg/protocol"
)

type sentReply struct {
	target chat.ReplyTarget
	text   string
	opts   chat.SendOptions
}

type captureSender struct {
	mu   sync.Mutex
	sent []sentReply
}

func (c *captureSender) Send(_ context.Context, target chat.ReplyTarget, text string, opts chat.SendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentReply{target, text, opts})
	return nil
}

func (c *captureSender) all() []sentReply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentReply(nil), c.sent...)
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, req chat.GenerateRequest) (string, error) {
	return "nl:" + req.Text, nil
}

type remoteStub struct {
	result     chat.PluginResult
	ok         bool
	hits       []plugins.ScanHit
	commands   []chat.CommandEvent
	broadcasts []chat.MessageEvent
}

func (r *remoteStub) DispatchCommand(_ context.Context, ev chat.CommandEvent) (chat.PluginResult, bool) {
	r.commands = append(r.commands, ev)
	return r.result, r.ok
}

func (r *remoteStub) DispatchMessage(_ context.Context, ev chat.MessageEvent) (chat.PluginResult, bool) {
	return r.result, r.ok
}

func (r *remoteStub) BroadcastScan(_ context.Context, ev chat.MessageEvent) []plugins.ScanHit {
	r.broadcasts = append(r.broadcasts, ev)
	return r.hits
}

func newOrchestrator(t *testing.T, mutate func(*Deps)) (*Orchestrator, *captureSender) {
	t.Helper()
	sender := &captureSender{}
	deps := Deps{
		Commands:    registry.NewCommandRegistry(),
		Subcommands: registry.NewSubcommandRegistry(),
		Hooks:       hooks.NewPipeline(),
		Replies:     sender,
		Generator:   echoGenerator{},
		Addressing:  chat.Addressing{BotName: "switchboard", ReplyToDMs: true, ReplyToTags: true},
	}
	if mutate != nil {
		mutate(&deps)
	}
	return New(deps), sender
}

func TestHandleCommandLocalSlash(t *testing.T) {
	remote := &remoteStub{}
	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Remote = remote
		d.Commands.RegisterSlash("/ping", registry.Registration{
			Plugin: "ping",
			Handler: registry.HandlerFunc(func(_ context.Context, inv registry.Invocation) (chat.PluginResult, error) {
				return chat.PassThrough("pong"), nil
			}),
		})
	})

	o.HandleCommand(context.Background(), chat.CommandEvent{
		Command: "/ping", ChannelID: "C1", UserID: "U1", CorrelationID: "c1",
	})

	sent := sender.all()
	if len(sent) != 1 || sent[0].text != "pong" {
		t.Fatalf("sent = %+v", sent)
	}
	if len(remote.commands) != 0 {
		t.Fatal("local match must not reach remote dispatch")
	}
}

func TestHandleCommandSubcommand(t *testing.T) {
	var got registry.Invocation
	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Subcommands.Register("/bot", "status", registry.Registration{
			Plugin: "ops",
			Handler: registry.HandlerFunc(func(_ context.Context, inv registry.Invocation) (chat.PluginResult, error) {
				got = inv
				return chat.PassThrough("all green"), nil
			}),
		})
	})

	o.HandleCommand(context.Background(), chat.CommandEvent{
		Command: "/bot", RawText: `status prod "us east"`, ChannelID: "C1", UserID: "U1", CorrelationID: "c2",
	})

	sent := sender.all()
	if len(sent) != 1 || sent[0].text != "all green" {
		t.Fatalf("sent = %+v", sent)
	}
	if got.Command != "bot" || got.Action != "status" {
		t.Fatalf("invocation = %+v", got)
	}
	if len(got.Args) != 2 || got.Args[0] != "prod" || got.Args[1] != "us east" {
		t.Fatalf("args = %v", got.Args)
	}
}

func TestHandleCommandHookRejection(t *testing.T) {
	handled := false
	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Commands.RegisterSlash("/deploy", registry.Registration{
			Plugin: "deployer",
			Handler: registry.HandlerFunc(func(_ context.Context, _ registry.Invocation) (chat.PluginResult, error) {
				handled = true
				return chat.PassThrough("deployed"), nil
			}),
		})
		d.Hooks.Register(hooks.Registration{
			Point:   hooks.Validate,
			Pattern: "deploy:**",
			Handler: hooks.HandlerFunc(func(_ context.Context, _ *hooks.Context) (hooks.Result, error) {
				return hooks.Reject("deploys are frozen"), nil
			}),
		})
	})

	o.HandleCommand(context.Background(), chat.CommandEvent{
		Command: "/deploy", ChannelID: "C1", UserID: "U1", CorrelationID: "c3",
	})

	if handled {
		t.Fatal("rejected handler must not run")
	}
	sent := sender.all()
	if len(sent) != 1 || !strings.Contains(sent[0].text, "frozen") {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestHandleCommandRemoteEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(protocol.ManifestPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(protocol.Manifest{
			Name:        "deployer",
			Subcommands: []protocol.SubcommandDecl{{Name: "deploy"}},
		})
	})
	mux.HandleFunc(protocol.ExecutePath, func(w http.ResponseWriter, r *http.Request) {
		var req protocol.ExecuteRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(protocol.ExecuteResponse{
			Success: true,
			Text:    "deploying " + strings.Join(req.Args, " "),
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := plugins.NewClient(time.Second)
	reg := plugins.NewRegistry()
	manifest, err := client.FetchManifest(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	reg.Replace([]*plugins.Entry{{ServiceName: "deployer", BaseURL: srv.URL, Manifest: manifest}})
	dispatcher := plugins.NewDispatcher(client, reg, nil, 100, 100)

	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Remote = dispatcher
	})

	o.HandleCommand(context.Background(), chat.CommandEvent{
		Command: "/bot", RawText: "deploy staging", ChannelID: "C1", UserID: "U1", CorrelationID: "c4",
	})

	sent := sender.all()
	if len(sent) != 1 || sent[0].text != "deploying staging" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestHandleMessageRemoteSubcommandEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(protocol.ManifestPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(protocol.Manifest{
			Name:        "deployer",
			Subcommands: []protocol.SubcommandDecl{{Name: "deploy"}},
			// Execute-enabled, scan-disabled.
			SupportsScan: false,
		})
	})
	mux.HandleFunc(protocol.ExecutePath, func(w http.ResponseWriter, r *http.Request) {
		var req protocol.ExecuteRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(protocol.ExecuteResponse{
			Success: true,
			Text:    req.Subcommand + " -> " + strings.Join(req.Args, " "),
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := plugins.NewClient(time.Second)
	reg := plugins.NewRegistry()
	manifest, err := client.FetchManifest(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	reg.Replace([]*plugins.Entry{{ServiceName: "deployer", BaseURL: srv.URL, Manifest: manifest}})
	dispatcher := plugins.NewDispatcher(client, reg, nil, 100, 100)

	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Remote = dispatcher
	})

	o.HandleMessage(context.Background(), chat.MessageEvent{
		ChannelID: "C1", UserID: "U1", Text: "deploy staging", MessageRef: "m1",
	})

	sent := sender.all()
	if len(sent) != 1 || sent[0].text != "deploy -> staging" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestHandleCommandNaturalFallback(t *testing.T) {
	o, sender := newOrchestrator(t, nil)

	o.HandleCommand(context.Background(), chat.CommandEvent{
		Command: "/bot", RawText: "what is the weather", ChannelID: "C1", UserID: "U1", CorrelationID: "c5",
	})

	sent := sender.all()
	if len(sent) != 1 || sent[0].text != "nl:what is the weather" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestHandleCommandDeduped(t *testing.T) {
	o, sender := newOrchestrator(t, nil)

	ev := chat.CommandEvent{Command: "/bot", RawText: "hello", ChannelID: "C1", UserID: "U1", CorrelationID: "same"}
	o.HandleCommand(context.Background(), ev)
	o.HandleCommand(context.Background(), ev)

	if got := len(sender.all()); got != 1 {
		t.Fatalf("sent %d replies, want 1", got)
	}
}

type blockPolicy struct{ blockedChannel string }

func (p blockPolicy) IsChannelAllowed(channel string) bool { return channel != p.blockedChannel }
func (p blockPolicy) IsPluginEnabled(string, string) bool  { return true }

func TestHandleCommandChannelPolicy(t *testing.T) {
	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Policy = blockPolicy{blockedChannel: "C-private"}
	})

	o.HandleCommand(context.Background(), chat.CommandEvent{
		Command: "/bot", RawText: "hello", ChannelID: "C-private", UserID: "U1", CorrelationID: "c6",
	})

	if got := len(sender.all()); got != 0 {
		t.Fatalf("blocked channel produced %d replies", got)
	}
}

func TestHandleMessageLocalTrigger(t *testing.T) {
	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Commands.RegisterMessage("weather", []string{"forecast"}, registry.Registration{
			Plugin: "weather",
			Handler: registry.HandlerFunc(func(_ context.Context, inv registry.Invocation) (chat.PluginResult, error) {
				return chat.PassThrough("sunny"), nil
			}),
		})
	})

	o.HandleMessage(context.Background(), chat.MessageEvent{
		ChannelID: "C1", UserID: "U1", Text: "Forecast tomorrow", MessageRef: "m1",
	})

	sent := sender.all()
	if len(sent) != 1 || sent[0].text != "sunny" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestHandleMessageScanHitsAnchorToMessage(t *testing.T) {
	events := bus.New()
	defer events.Close()

	reactions := make(chan bus.ReactionEvent, 4)
	bus.Subscribe(events, func(ev bus.ReactionEvent) { reactions <- ev })

	remote := &remoteStub{hits: []plugins.ScanHit{
		{Plugin: "linkbot", Result: chat.PluginResult{Mode: chat.ModePassThrough, Reply: "that link is stale"}},
		{Plugin: "mood", Result: chat.PluginResult{Mode: chat.ModeEmpty, Reactions: []string{"eyes"}}},
	}}

	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Remote = remote
		d.Events = events
		// No addressing fallback noise.
		d.Addressing = chat.Addressing{}
	})

	o.HandleMessage(context.Background(), chat.MessageEvent{
		ChannelID: "C1", UserID: "U1", Text: "check http://old.example", MessageRef: "m42",
	})

	sent := sender.all()
	if len(sent) != 1 || sent[0].text != "that link is stale" {
		t.Fatalf("sent = %+v", sent)
	}
	if sent[0].target.ThreadRef != "m42" {
		t.Fatalf("scan hit not anchored to message thread: %+v", sent[0].target)
	}

	select {
	case r := <-reactions:
		if r.Reaction != "eyes" || r.MessageRef != "m42" || r.Channel != "C1" {
			t.Fatalf("reaction = %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("reaction never published")
	}
}

func TestHandleMessageSuppressMentionSkipsFallback(t *testing.T) {
	remote := &remoteStub{hits: []plugins.ScanHit{
		{Plugin: "quiet", Result: chat.PluginResult{Mode: chat.ModeEmpty, SuppressMention: true}},
	}}
	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Remote = remote
	})

	o.HandleMessage(context.Background(), chat.MessageEvent{
		ChannelID: "D1", UserID: "U1", Text: "hey switchboard", MessageRef: "m1", IsDirect: true,
	})

	if got := len(sender.all()); got != 0 {
		t.Fatalf("suppressed mention still produced %d replies", got)
	}
}

func TestHandleMessageNaturalFallbackInDM(t *testing.T) {
	o, sender := newOrchestrator(t, nil)

	o.HandleMessage(context.Background(), chat.MessageEvent{
		ChannelID: "D1", UserID: "U1", Text: "hello there", MessageRef: "m1", IsDirect: true,
	})

	sent := sender.all()
	if len(sent) != 1 || sent[0].text != "nl:hello there" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestHandleMessageResumesWaitingWorkflow(t *testing.T) {
	messenger := &threadMessenger{}
	engine := workflow.NewEngine(messenger, &captureSender{}, nil, workflow.Config{PollFloor: time.Millisecond})
	defer engine.Close()

	got := make(chan string, 1)
	engine.Start("confirm-release", workflow.Binding{ChannelID: "C1"}, nil, func(ctx context.Context, wf *workflow.Context) error {
		value, err := wf.Prompt(ctx, "ship it?")
		if err != nil {
			return err
		}
		got <- value
		return nil
	})

	waitForWaiting(t, messenger)

	remote := &remoteStub{}
	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Workflows = engine
		d.Remote = remote
	})

	o.HandleMessage(context.Background(), chat.MessageEvent{
		ChannelID: "C1", UserID: "U1", Text: "yes please", ThreadRef: "t1", MessageRef: "m9",
	})

	select {
	case v := <-got:
		if v != "yes please" {
			t.Fatalf("workflow input = %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("waiting workflow did not consume the message")
	}
	if len(remote.broadcasts) != 0 {
		t.Fatal("consumed message must not be scanned")
	}
	if got := len(sender.all()); got != 0 {
		t.Fatalf("consumed message produced %d replies", got)
	}
}

// threadMessenger posts into a fixed thread so the waiting-index location is
// predictable for the test.
type threadMessenger struct {
	mu    sync.Mutex
	posts int
}

func (m *threadMessenger) PostMessage(_ context.Context, _, _, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts++
	return "t1", nil
}

func (m *threadMessenger) UpdateMessage(context.Context, string, string, string) error { return nil }

func (m *threadMessenger) posted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posts
}

func waitForWaiting(t *testing.T, m *threadMessenger) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.posted() > 0 {
			// The prompt has been sent; give the register a beat.
			time.Sleep(10 * time.Millisecond)
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("workflow never prompted")
}

func TestHandleButtonResumesWorkflow(t *testing.T) {
	messenger := &threadMessenger{}
	engine := workflow.NewEngine(messenger, &captureSender{}, nil, workflow.Config{PollFloor: time.Millisecond})
	defer engine.Close()

	got := make(chan string, 1)
	id := engine.Start("approver", workflow.Binding{ChannelID: "C1"}, nil, func(ctx context.Context, wf *workflow.Context) error {
		value, err := wf.Prompt(ctx, "approve?")
		if err != nil {
			return err
		}
		got <- value
		return nil
	})

	waitForWaiting(t, messenger)

	o, _ := newOrchestrator(t, func(d *Deps) {
		d.Workflows = engine
	})

	o.HandleButton(context.Background(), chat.ButtonActionEvent{
		ChannelID: "C1", UserID: "U1", ActionID: workflow.ActionID(id, "approve"), CorrelationID: "b1",
	})

	select {
	case v := <-got:
		if v != "approve" {
			t.Fatalf("button value = %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("button click did not resume the workflow")
	}
}

func TestHandleButtonStaleClick(t *testing.T) {
	engine := workflow.NewEngine(&threadMessenger{}, &captureSender{}, nil, workflow.Config{PollFloor: time.Millisecond})
	defer engine.Close()

	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Workflows = engine
	})

	o.HandleButton(context.Background(), chat.ButtonActionEvent{
		ChannelID: "C1", UserID: "U1", ActionID: workflow.ActionID("gone", "approve"), CorrelationID: "b2",
	})

	sent := sender.all()
	if len(sent) != 1 || !strings.Contains(sent[0].text, "no longer active") {
		t.Fatalf("sent = %+v", sent)
	}
	if !sent[0].opts.Ephemeral {
		t.Fatal("stale-click notice should be ephemeral")
	}
}

func TestDeliverTargetOverride(t *testing.T) {
	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Commands.RegisterSlash("/report", registry.Registration{
			Plugin: "reporter",
			Handler: registry.HandlerFunc(func(_ context.Context, _ registry.Invocation) (chat.PluginResult, error) {
				return chat.PluginResult{
					Mode:           chat.ModePassThrough,
					Reply:          "weekly numbers",
					TargetOverride: &chat.ReplyTarget{Channel: "C-reports"},
				}, nil
			}),
		})
	})

	o.HandleCommand(context.Background(), chat.CommandEvent{
		Command: "/report", ChannelID: "C1", UserID: "U1", CorrelationID: "c7",
	})

	sent := sender.all()
	if len(sent) != 1 || sent[0].target.Channel != "C-reports" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestDeliverNaturalLanguageMode(t *testing.T) {
	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Commands.RegisterSlash("/summary", registry.Registration{
			Plugin: "summarizer",
			Handler: registry.HandlerFunc(func(_ context.Context, _ registry.Invocation) (chat.PluginResult, error) {
				return chat.PluginResult{
					Mode:   chat.ModeAskNaturalLanguage,
					NLMode: chat.NLRewrite,
					NLText: "5 deploys, 0 failures",
				}, nil
			}),
		})
	})

	o.HandleCommand(context.Background(), chat.CommandEvent{
		Command: "/summary", ChannelID: "C1", UserID: "U1", CorrelationID: "c8",
	})

	sent := sender.all()
	if len(sent) != 1 || sent[0].text != "nl:5 deploys, 0 failures" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestLocalHandlerErrorIsContained(t *testing.T) {
	o, sender := newOrchestrator(t, func(d *Deps) {
		d.Commands.RegisterSlash("/broken", registry.Registration{
			Plugin: "broken",
			Handler: registry.HandlerFunc(func(_ context.Context, _ registry.Invocation) (chat.PluginResult, error) {
				panic("boom")
			}),
		})
	})

	o.HandleCommand(context.Background(), chat.CommandEvent{
		Command: "/broken", ChannelID: "C1", UserID: "U1", CorrelationID: "c9",
	})

	sent := sender.all()
	if len(sent) != 1 || sent[0].text != failureReply {
		t.Fatalf("sent = %+v", sent)
	}
}
