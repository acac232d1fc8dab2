package bus

// ReplyEvent is published when the core has a reply the egress adapter
// should render and deliver.
type ReplyEvent struct {
	Channel     string
	ThreadRef   string
	ResponseRef string
	Text        string
	Ephemeral   bool
	Username    string
}

// ReactionEvent asks the egress adapter to add a reaction to a message.
type ReactionEvent struct {
	Channel    string
	MessageRef string
	Reaction   string
}

// WorkflowEvent announces a workflow lifecycle transition. Adapters and
// diagnostics can subscribe; nothing in the core depends on it.
type WorkflowEvent struct {
	WorkflowID string
	Workflow   string
	Status     string
}
