// Package protocol defines the wire types exchanged with plugin services
// over HTTP. Plugin services are deployed independently; the core only knows
// what their manifest declares.
package protocol

import "encoding/json"

// Well-known paths served by every plugin service.
const (
	ManifestPath = "/plugin/manifest"
	ExecutePath  = "/plugin/execute"
	ScanPath     = "/plugin/scan"
)

// Manifest is a plugin service's self-description, fetched at discovery time.
type Manifest struct {
	Name          string             `json:"name"`
	Version       string             `json:"version,omitempty"`
	Description   string             `json:"description,omitempty"`
	Subcommands   []SubcommandDecl   `json:"subcommands"`
	SlashCommands []SlashCommandDecl `json:"slashCommands"`
	SupportsScan  bool               `json:"supportsScan"`
}

// SubcommandDecl declares a first-word subcommand the service handles.
type SubcommandDecl struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SlashCommandDecl declares a slash command the service handles.
type SlashCommandDecl struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
}

// ExecuteRequest is POSTed to a service when one of its commands is invoked.
type ExecuteRequest struct {
	Command    string   `json:"command"`
	Subcommand string   `json:"subcommand,omitempty"`
	Args       []string `json:"args"`
	RawText    string   `json:"rawText,omitempty"`
	UserID     string   `json:"userId"`
	ChannelID  string   `json:"channelId"`
	TeamID     string   `json:"teamId,omitempty"`
	ThreadRef  string   `json:"threadRef,omitempty"`
	TraceID    string   `json:"traceId,omitempty"`
}

// ScanRequest is POSTed to every scan-capable service for each inbound
// message. A 204 or non-2xx response counts as "no hit".
type ScanRequest struct {
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
	TeamID    string `json:"teamId,omitempty"`
	ThreadRef string `json:"threadRef,omitempty"`
	TraceID   string `json:"traceId,omitempty"`
}

// ExecuteResponse is the JSON body returned by both execute and scan calls.
type ExecuteResponse struct {
	Success              bool            `json:"success"`
	Text                 string          `json:"text,omitempty"`
	Markdown             bool            `json:"markdown"`
	Blocks               json.RawMessage `json:"blocks,omitempty"`
	Ephemeral            bool            `json:"ephemeral"`
	UseNaturalLanguage   bool            `json:"useNaturalLanguage"`
	NaturalLanguageStyle string          `json:"naturalLanguageStyle,omitempty"`
	SuppressMention      bool            `json:"suppressMention"`
	Reactions            []string        `json:"reactions,omitempty"`
	Username             string          `json:"username,omitempty"`
	Error                string          `json:"error,omitempty"`
}
