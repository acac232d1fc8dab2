package chat

import "testing"

func TestShouldRespondDM(t *testing.T) {
	a := Addressing{BotName: "opsbot", ReplyToDMs: true}

	if !a.ShouldRespond(MessageEvent{ChannelID: "D123", Text: "hello"}) {
		t.Fatal("expected response in a DM channel")
	}
	if !a.ShouldRespond(MessageEvent{ChannelID: "G99", IsDirect: true, Text: "hello"}) {
		t.Fatal("expected response when adapter flags a DM")
	}

	a.ReplyToDMs = false
	if a.ShouldRespond(MessageEvent{ChannelID: "D123", Text: "hello"}) {
		t.Fatal("DM replies disabled, should not respond")
	}
}

func TestShouldRespondMention(t *testing.T) {
	a := Addressing{BotName: "OpsBot", Aliases: []string{"ops"}, ReplyToTags: true}

	cases := []struct {
		text string
		want bool
	}{
		{"hey opsbot can you help", true},
		{"hey OPSBOT", true},
		{"ops please deploy", true},
		{"nothing to see here", false},
	}
	for _, tc := range cases {
		got := a.ShouldRespond(MessageEvent{ChannelID: "C1", Text: tc.text})
		if got != tc.want {
			t.Fatalf("ShouldRespond(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestShouldRespondTagsDisabled(t *testing.T) {
	a := Addressing{BotName: "opsbot", ReplyToTags: false}
	if a.ShouldRespond(MessageEvent{ChannelID: "C1", Text: "opsbot hello"}) {
		t.Fatal("tag replies disabled, should not respond")
	}
}

func TestTargetSelection(t *testing.T) {
	ev := MessageEvent{ChannelID: "C1", ThreadRef: "t1", ResponseRef: "r1"}
	target := ev.Target()
	if target.ResponseRef != "r1" || target.ThreadRef != "t1" || target.Channel != "C1" {
		t.Fatalf("unexpected target %+v", target)
	}

	cmd := CommandEvent{ChannelID: "C2"}
	if got := cmd.Target(); got.Channel != "C2" || got.ResponseRef != "" {
		t.Fatalf("unexpected command target %+v", got)
	}
}
