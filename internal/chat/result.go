package chat

import "fmt"

// ResultMode selects how a handler's answer is delivered. Modes are mutually
// exclusive; the orthogonal flags on PluginResult combine with any mode.
type ResultMode int

const (
	// ModePassThrough delivers the reply text as-is.
	ModePassThrough ResultMode = iota

	// ModeAskNaturalLanguage hands the text to the NL engine before delivery.
	ModeAskNaturalLanguage

	// ModeEmpty delivers nothing; reactions and flags still apply.
	ModeEmpty
)

// NLMode selects how the natural-language engine treats the text.
type NLMode string

const (
	// NLFree generates a reply from scratch using the text as the prompt.
	NLFree NLMode = "free"

	// NLRewrite rewrites the given text in the bot's voice.
	NLRewrite NLMode = "rewrite"
)

// PluginResult is what every command, subcommand, and scan handler produces,
// local or remote. The orchestrator consumes it to decide delivery.
type PluginResult struct {
	Mode ResultMode

	// Pass-through fields.
	Reply          string
	TargetOverride *ReplyTarget
	PolicyOverride string
	Ephemeral      bool

	// Natural-language fields.
	NLMode  NLMode
	NLText  string
	NLStyle string

	// Orthogonal flags, honored regardless of mode.
	SuppressMention bool
	Reactions       []string
	ReactToMessage  string
	Username        string
}

// PassThrough builds a plain text result.
func PassThrough(text string) PluginResult {
	return PluginResult{Mode: ModePassThrough, Reply: text}
}

// Errorf builds an error pass-through result.
func Errorf(format string, args ...any) PluginResult {
	return PluginResult{Mode: ModePassThrough, Reply: fmt.Sprintf(format, args...)}
}

// Empty builds a result that delivers nothing.
func Empty() PluginResult {
	return PluginResult{Mode: ModeEmpty}
}
