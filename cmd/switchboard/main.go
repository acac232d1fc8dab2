// Command switchboard runs the orchestration core against stdin/stdout for
// local development. Each line typed is handled as a message; lines starting
// with "/" are handled as slash commands. Real deployments embed the core
// behind a platform adapter instead.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nextlevelbuilder/switchboard"
	"github.com/nextlevelbuilder/switchboard/internal/bus"
	"github.com/nextlevelbuilder/switchboard/internal/chat"
	"github.com/nextlevelbuilder/switchboard/internal/config"
	"github.com/nextlevelbuilder/switchboard/internal/registry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("config load failed", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	console := &consoleAdapter{}
	core := switchboard.New(cfg, switchboard.Collaborators{
		Messenger: console,
		Replies:   console,
	})
	defer core.Close()

	core.Commands.RegisterSlash("/ping", registry.Registration{
		Plugin: "builtin",
		Handler: registry.HandlerFunc(func(_ context.Context, _ registry.Invocation) (chat.PluginResult, error) {
			return chat.PassThrough("pong"), nil
		}),
	})
	core.Commands.RegisterSlash("/plugins", registry.Registration{
		Plugin:  "builtin",
		Handler: registry.HandlerFunc(listPlugins(core)),
	})

	bus.Subscribe(core.Events, func(ev bus.ReactionEvent) {
		fmt.Printf("[reaction] %s on %s\n", ev.Reaction, ev.MessageRef)
	})
	bus.Subscribe(core.Events, func(ev bus.WorkflowEvent) {
		slog.Debug("workflow transition", "workflow", ev.Workflow, "id", ev.WorkflowID, "status", ev.Status)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core.Start(ctx)
	slog.Info("switchboard ready", "plugins", len(core.Plugins.Plugins()))

	scanner := bufio.NewScanner(os.Stdin)
	seq := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		seq++
		if strings.HasPrefix(line, "/") {
			command, rest, _ := strings.Cut(line, " ")
			core.HandleCommand(ctx, chat.CommandEvent{
				Adapter:       "console",
				ChannelID:     "D-console",
				UserID:        "local",
				Command:       command,
				RawText:       rest,
				CorrelationID: fmt.Sprintf("console-%d", seq),
			})
			continue
		}
		core.HandleMessage(ctx, chat.MessageEvent{
			Adapter:       "console",
			ChannelID:     "D-console",
			UserID:        "local",
			Text:          line,
			MessageRef:    fmt.Sprintf("console-msg-%d", seq),
			IsDirect:      true,
			CorrelationID: fmt.Sprintf("console-%d", seq),
		})
	}
}

func listPlugins(core *switchboard.Core) func(context.Context, registry.Invocation) (chat.PluginResult, error) {
	return func(_ context.Context, _ registry.Invocation) (chat.PluginResult, error) {
		entries := core.Plugins.Plugins()
		if len(entries) == 0 {
			return chat.PassThrough("No remote plugins discovered."), nil
		}
		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "%s (%s) scan=%v\n", e.Manifest.Name, e.ServiceName, e.Manifest.SupportsScan)
		}
		return chat.PassThrough(strings.TrimRight(b.String(), "\n")), nil
	}
}

// consoleAdapter prints everything to stdout and fabricates message refs.
type consoleAdapter struct{ seq int }

func (c *consoleAdapter) PostMessage(_ context.Context, _, text, threadRef string) (string, error) {
	if threadRef != "" {
		fmt.Printf("  [thread %s] %s\n", threadRef, text)
	} else {
		fmt.Println(text)
	}
	c.seq++
	return fmt.Sprintf("console-post-%d", c.seq), nil
}

func (c *consoleAdapter) UpdateMessage(_ context.Context, _, messageRef, text string) error {
	fmt.Printf("  [edit %s] %s\n", messageRef, text)
	return nil
}

func (c *consoleAdapter) Send(_ context.Context, target chat.ReplyTarget, text string, opts chat.SendOptions) error {
	prefix := ""
	if opts.Ephemeral {
		prefix = "(only you) "
	}
	if target.ThreadRef != "" {
		fmt.Printf("  [thread %s] %s%s\n", target.ThreadRef, prefix, text)
		return nil
	}
	fmt.Println(prefix + text)
	return nil
}
