// Package tools holds the capability registry, the timeout/abort
// execution wrappers, and tool-result compaction.
package tools

import (
	"context"

	"github.com/lumenworks/gemgate/pkg/protocol"
)

// Tool is one pluggable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the raw object-schema; it is sanitized to the
	// provider dialect at request-build time.
	Parameters() map[string]interface{}
	Execute(ctx context.Context, callID string, args map[string]interface{}) (protocol.ToolResult, error)
}

// Definition is the registry's provider-facing view of a tool.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// FuncTool adapts a plain function into a Tool.
type FuncTool struct {
	name        string
	description string
	params      map[string]interface{}
	fn          func(ctx context.Context, callID string, args map[string]interface{}) (protocol.ToolResult, error)
}

func NewFuncTool(name, description string, params map[string]interface{},
	fn func(ctx context.Context, callID string, args map[string]interface{}) (protocol.ToolResult, error)) *FuncTool {
	return &FuncTool{name: name, description: description, params: params, fn: fn}
}

func (t *FuncTool) Name() string                       { return t.name }
func (t *FuncTool) Description() string                { return t.description }
func (t *FuncTool) Parameters() map[string]interface{} { return t.params }

func (t *FuncTool) Execute(ctx context.Context, callID string, args map[string]interface{}) (protocol.ToolResult, error) {
	return t.fn(ctx, callID, args)
}
