// Package plugins discovers remote plugin services over HTTP, keeps a
// registry of their manifests, and dispatches command and scan traffic to
// them.
package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nextlevelbuilder/switchboard/pkg/protocol"
)

// Client talks to plugin services over their well-known HTTP endpoints.
type Client struct {
	http *resty.Client
}

// NewClient builds a client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// FetchManifest retrieves and validates a service's manifest.
func (c *Client) FetchManifest(ctx context.Context, baseURL string) (*protocol.Manifest, error) {
	var manifest protocol.Manifest
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&manifest).
		Get(baseURL + protocol.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest from %s: %w", baseURL, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch manifest from %s: status %d", baseURL, resp.StatusCode())
	}
	if manifest.Name == "" {
		return nil, fmt.Errorf("manifest from %s has no name", baseURL)
	}
	return &manifest, nil
}

// Execute invokes a service's execute endpoint.
func (c *Client) Execute(ctx context.Context, baseURL string, req protocol.ExecuteRequest) (*protocol.ExecuteResponse, error) {
	var out protocol.ExecuteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(baseURL + protocol.ExecutePath)
	if err != nil {
		return nil, fmt.Errorf("execute on %s: %w", baseURL, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("execute on %s: status %d", baseURL, resp.StatusCode())
	}
	return &out, nil
}

// Scan invokes a service's scan endpoint. A 204 or any non-2xx status means
// the service has nothing to say about the message; both return (nil, nil)
// so one misbehaving scanner never blocks the others.
func (c *Client) Scan(ctx context.Context, baseURL string, req protocol.ScanRequest) (*protocol.ExecuteResponse, error) {
	var out protocol.ExecuteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(baseURL + protocol.ScanPath)
	if err != nil {
		return nil, fmt.Errorf("scan on %s: %w", baseURL, err)
	}
	if resp.StatusCode() == 204 || !resp.IsSuccess() {
		return nil, nil
	}
	return &out, nil
}
