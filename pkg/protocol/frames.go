package protocol

// Inbound frame kinds (client → gateway).
const (
	KindSend   = "send"
	KindCancel = "cancel"
	KindReset  = "reset"
	KindResume = "resume"
)

// Outbound event types (gateway → client).
const (
	EventTextDelta      = "text_delta"
	EventToolStart      = "tool_start"
	EventToolEnd        = "tool_end"
	EventCompacting     = "compacting"
	EventDone           = "done"
	EventError          = "error"
	EventQueued         = "queued"
	EventSessionResumed = "session_resumed"
)

// Compaction phases carried by EventCompacting frames.
const (
	CompactingStart = "start"
	CompactingDone  = "done"
)

// InboundFrame is a client request. Kind selects which fields are read.
type InboundFrame struct {
	Kind string `json:"kind"`

	// send
	Text           string `json:"text,omitempty"`
	CharacterState string `json:"characterState,omitempty"`

	// resume
	SessionID string `json:"sessionId,omitempty"`
}

// StreamEvent is one outbound frame. Type selects which fields are set.
// Within one generation events are delivered in emission order; a
// tool_start for a given callId always precedes its tool_end.
type StreamEvent struct {
	Type string `json:"type"`

	// text_delta
	Delta string `json:"delta,omitempty"`

	// tool_start / tool_end
	CallID           string                 `json:"callId,omitempty"`
	Name             string                 `json:"name,omitempty"`
	Arguments        map[string]interface{} `json:"arguments,omitempty"`
	ThoughtSignature string                 `json:"thoughtSignature,omitempty"`
	Result           *ToolResult            `json:"result,omitempty"`

	// compacting
	Phase             string `json:"phase,omitempty"`
	MessagesCompacted int    `json:"messagesCompacted,omitempty"`

	// done
	Message   *ChatMessage `json:"message,omitempty"`
	ToolCalls []ToolCall   `json:"toolCalls,omitempty"`

	// error / queued / session_resumed
	ErrorMessage string        `json:"error,omitempty"`
	Count        int           `json:"count,omitempty"`
	Messages     []ChatMessage `json:"messages,omitempty"`
}

// TextDelta builds a text_delta event.
func TextDelta(delta string) StreamEvent {
	return StreamEvent{Type: EventTextDelta, Delta: delta}
}

// ToolStart builds a tool_start event for a pending call.
func ToolStart(call ToolCall) StreamEvent {
	return StreamEvent{
		Type:             EventToolStart,
		CallID:           call.ID,
		Name:             call.Name,
		Arguments:        call.Arguments,
		ThoughtSignature: call.ThoughtSignature,
	}
}

// ToolEnd builds a tool_end event carrying the execution result.
func ToolEnd(callID, name string, result ToolResult) StreamEvent {
	return StreamEvent{Type: EventToolEnd, CallID: callID, Name: name, Result: &result}
}

// Compacting builds a compacting progress event.
func Compacting(phase string, messagesCompacted int) StreamEvent {
	return StreamEvent{Type: EventCompacting, Phase: phase, MessagesCompacted: messagesCompacted}
}

// Done builds the terminal event of a generation.
func Done(msg ChatMessage, toolCalls []ToolCall) StreamEvent {
	return StreamEvent{Type: EventDone, Message: &msg, ToolCalls: toolCalls}
}

// Queued tells the client its message is parked behind an active
// generation, with its 1-based queue position.
func Queued(position int) StreamEvent {
	return StreamEvent{Type: EventQueued, Count: position}
}

// ErrorEvent builds an error frame.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, ErrorMessage: message}
}

// SessionResumed acknowledges a resume with the current history, so a
// reconnecting client can rebuild its conversation view.
func SessionResumed(history []ChatMessage) StreamEvent {
	return StreamEvent{Type: EventSessionResumed, Count: len(history), Messages: history}
}
