package protocol

// ProtocolVersion is bumped on breaking changes to the frame format.
const ProtocolVersion = 1

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one entry in a session's conversation history.
// Immutable once created; system messages carry compaction summaries and
// always sit at the head of history.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"` // "user", "assistant", "system"
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

// ToolCall is the model's request to invoke a named capability.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`

	// ThoughtSignature is an opaque provider token attached to some
	// function-call parts. Preserved verbatim on the model turn that
	// introduced it.
	ThoughtSignature string `json:"thoughtSignature,omitempty"`
}

// ToolResultContent is a single typed fragment of a tool result.
// Content[0].Text carries a JSON payload when the result is structured.
type ToolResultContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// ToolResult is a capability's reply to one tool call.
type ToolResult struct {
	ToolCallID string              `json:"toolCallId"`
	Content    []ToolResultContent `json:"content"`
	Error      string              `json:"error,omitempty"`
}

// TextResult wraps plain text into the single-text-part result shape.
func TextResult(callID, text string) ToolResult {
	return ToolResult{
		ToolCallID: callID,
		Content:    []ToolResultContent{{Type: "text", Text: text}},
	}
}

// ErrorResult builds a result carrying an error marker.
func ErrorResult(callID, message string) ToolResult {
	return ToolResult{
		ToolCallID: callID,
		Content:    []ToolResultContent{{Type: "text", Text: message}},
		Error:      message,
	}
}

// Text returns the concatenated text content of the result.
func (r ToolResult) Text() string {
	var out string
	for _, c := range r.Content {
		out += c.Text
	}
	return out
}
