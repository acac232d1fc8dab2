package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nextlevelbuilder/switchboard/internal/config"
	"github.com/nextlevelbuilder/switchboard/pkg/protocol"
)

// Discovery resolves configured service names to base URLs, fetches their
// manifests with retry, and keeps the registry populated. A service that
// stays unreachable is skipped; it does not block the rest.
type Discovery struct {
	cfg      config.PluginsConfig
	client   *Client
	registry *Registry

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewDiscovery wires discovery to a client and registry.
func NewDiscovery(cfg config.PluginsConfig, client *Client, registry *Registry) *Discovery {
	return &Discovery{
		cfg:      cfg,
		client:   client,
		registry: registry,
		done:     make(chan struct{}),
	}
}

// BaseURL resolves a service name to its base URL, preferring an explicit
// override and falling back to the naming-convention pattern.
func (d *Discovery) BaseURL(service string) string {
	if url, ok := d.cfg.BaseURLOverrides[service]; ok {
		return url
	}
	return fmt.Sprintf(d.cfg.BaseURLPattern, service)
}

// Run performs the initial discovery pass and, when a refresh interval is
// configured, starts the periodic refresh loop. It returns after the initial
// pass so the caller can begin serving traffic.
func (d *Discovery) Run(ctx context.Context) {
	d.registry.Replace(d.discoverAll(ctx))

	if d.cfg.RefreshInterval > 0 {
		d.wg.Add(1)
		go d.refreshLoop(ctx)
	}
}

// Close stops the refresh loop and waits for it to exit.
func (d *Discovery) Close() {
	d.closeOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}

// discoverAll fetches every configured service's manifest, retrying each
// with exponential backoff. Failures are logged and the service is left out.
func (d *Discovery) discoverAll(ctx context.Context) []*Entry {
	entries := make([]*Entry, 0, len(d.cfg.Services))
	for _, service := range d.cfg.Services {
		entry, err := d.discoverOne(ctx, service)
		if err != nil {
			slog.Error("plugin discovery failed", "service", service, "error", err)
			continue
		}
		slog.Info("plugin discovered",
			"service", service, "plugin", entry.Manifest.Name,
			"subcommands", len(entry.Manifest.Subcommands),
			"slash_commands", len(entry.Manifest.SlashCommands),
			"scan", entry.Manifest.SupportsScan)
		entries = append(entries, entry)
	}
	return entries
}

func (d *Discovery) discoverOne(ctx context.Context, service string) (*Entry, error) {
	baseURL := d.BaseURL(service)

	var manifest *protocol.Manifest
	operation := func() error {
		m, err := d.client.FetchManifest(ctx, baseURL)
		if err != nil {
			return err
		}
		manifest = m
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(d.cfg.DiscoveryMaxRetries)),
		ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return &Entry{ServiceName: service, BaseURL: baseURL, Manifest: manifest}, nil
}

// refreshLoop re-runs discovery on the configured interval. A service whose
// re-fetch fails keeps its cached entry; losing a manifest temporarily must
// not unregister a working plugin.
func (d *Discovery) refreshLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.refresh(ctx)
		case <-d.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Discovery) refresh(ctx context.Context) {
	cached := make(map[string]*Entry)
	for _, e := range d.registry.Plugins() {
		cached[e.ServiceName] = e
	}

	entries := make([]*Entry, 0, len(d.cfg.Services))
	for _, service := range d.cfg.Services {
		baseURL := d.BaseURL(service)
		manifest, err := d.client.FetchManifest(ctx, baseURL)
		if err != nil {
			if prev, ok := cached[service]; ok {
				slog.Warn("plugin refresh failed, keeping cached manifest", "service", service, "error", err)
				entries = append(entries, prev)
			} else {
				slog.Warn("plugin refresh failed", "service", service, "error", err)
			}
			continue
		}
		entries = append(entries, &Entry{ServiceName: service, BaseURL: baseURL, Manifest: manifest})
	}
	d.registry.Replace(entries)
}
