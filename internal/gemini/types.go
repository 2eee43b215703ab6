// Package gemini implements the provider client for the Gemini
// generateContent and streamGenerateContent APIs: request construction,
// SSE decoding, history adaptation, and error classification.
package gemini

// Content is one element of the provider's message array.
type Content struct {
	Role  string `json:"role"` // "user" or "model"
	Parts []Part `json:"parts"`
}

// Part is a typed fragment inside a Content entry. Exactly one of Text,
// FunctionCall, or FunctionResponse is set. ThoughtSignature rides along
// on function-call parts when the model supplied one.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
}

// FunctionCall is the model's request to invoke a named capability.
type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// FunctionResponse carries a tool result back to the model.
type FunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

// TextContent builds a single-text-part content entry.
func TextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// ToolDeclaration describes one callable tool to the provider. Parameters
// are sanitized to the provider dialect at request-build time.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Tool-calling modes accepted by Request.ToolConfig.
const (
	ToolConfigAuto = "auto"
	ToolConfigAny  = "any"
	ToolConfigNone = "none"
)

// Request is one provider call, streaming or not.
type Request struct {
	APIKey            string
	Model             string
	Contents          []Content
	SystemInstruction string
	Tools             []ToolDeclaration
	ToolConfig        string // auto|any|none; default auto when tools are set
	MaxOutputTokens   int
	Temperature       *float64
	ThinkingBudget    *int
}

// Usage is the provider's terminal token accounting.
type Usage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Response is a non-streaming result projected from the wire shape.
type Response struct {
	Text  string
	Calls []CallPart
	Usage *Usage
}

// CallPart is a function call plus its part-level thought signature.
type CallPart struct {
	FunctionCall
	ThoughtSignature string
}

// GenEvent types produced by Stream.
const (
	EventTextDelta    = "text_delta"
	EventFunctionCall = "function_call"
	EventDone         = "done"
)

// GenEvent is one demultiplexed streaming event.
type GenEvent struct {
	Type             string
	Text             string        // text_delta
	Call             *FunctionCall // function_call
	ThoughtSignature string        // function_call
	Usage            *Usage        // done
}

// --- Wire response types ---

type genResponse struct {
	Candidates []struct {
		Content struct {
			Parts []genPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *Usage `json:"usageMetadata"`
}

type genPart struct {
	Text             string        `json:"text"`
	FunctionCall     *FunctionCall `json:"functionCall"`
	ThoughtSignature string        `json:"thoughtSignature"`
	Thought          bool          `json:"thought"`
}
