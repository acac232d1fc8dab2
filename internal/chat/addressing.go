package chat

import "strings"

// Addressing decides whether an unmatched free-text message should be
// treated as directed at the bot. It is a cheap pre-filter run only after
// command and trigger matching have missed.
type Addressing struct {
	BotName     string
	Aliases     []string
	ReplyToDMs  bool
	ReplyToTags bool
}

// ShouldRespond reports whether the bot should answer msg.
func (a Addressing) ShouldRespond(msg MessageEvent) bool {
	if a.ReplyToDMs && isDirectChannel(msg) {
		return true
	}
	if !a.ReplyToTags {
		return false
	}

	text := strings.ToLower(msg.Text)
	if a.BotName != "" && strings.Contains(text, strings.ToLower(a.BotName)) {
		return true
	}
	for _, alias := range a.Aliases {
		if alias != "" && strings.Contains(text, strings.ToLower(alias)) {
			return true
		}
	}
	return false
}

// isDirectChannel combines the adapter's DM flag with the platform channel
// id convention (DM channel ids start with "D").
func isDirectChannel(msg MessageEvent) bool {
	return msg.IsDirect || strings.HasPrefix(msg.ChannelID, "D")
}
