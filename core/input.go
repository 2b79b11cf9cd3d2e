package core

// BaseInput provides common fields for all tool inputs.
// Tools embed this struct to automatically include ReAct thought support.
type BaseInput struct {
	// Thought contains the agent's reasoning about why it's using this tool.
	Thought string `json:"thought,omitempty"`
}

// SearchInput is the tool input for a similarity search over past conversations.
type SearchInput struct {
	BaseInput
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// RecentInput is the tool input for listing the most recent conversations.
type RecentInput struct {
	BaseInput
	Limit int `json:"limit,omitempty"`
}
