package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenworks/gemgate/pkg/protocol"
)

// Error markers carried in ToolResult.Error by the wrappers.
const (
	ErrorTimeout   = "timeout"
	ErrorCancelled = "cancelled"
)

// ExecConfig bounds tool execution fan-out and duration.
type ExecConfig struct {
	// Concurrency is the maximum number of tools running at once.
	Concurrency int
	// PerToolTimeout aborts a single execution. Default 30s.
	PerToolTimeout time.Duration
}

func DefaultExecConfig() ExecConfig {
	return ExecConfig{Concurrency: 4, PerToolTimeout: 30 * time.Second}
}

// Executor runs tool calls through the timeout and abort wrappers.
// Failures never escape as errors; they become error-carrying results.
type Executor struct {
	registry *Registry
	config   ExecConfig
}

func NewExecutor(registry *Registry, config ExecConfig) *Executor {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	return &Executor{registry: registry, config: config}
}

// ExecResult is one finished call with timing.
type ExecResult struct {
	Index    int
	Call     protocol.ToolCall
	Result   protocol.ToolResult
	Duration time.Duration
	TimedOut bool
}

// ExecuteAll runs the calls concurrently under the fan-out limit.
// Results come back in input order regardless of completion order.
func (e *Executor) ExecuteAll(ctx context.Context, calls []protocol.ToolCall) []ExecResult {
	results := make([]ExecResult, len(calls))

	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call protocol.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = ExecResult{
					Index:  idx,
					Call:   call,
					Result: protocol.ErrorResult(call.ID, ErrorCancelled),
				}
				return
			}

			start := time.Now()
			result, timedOut := e.executeOne(ctx, call)
			results[idx] = ExecResult{
				Index:    idx,
				Call:     call,
				Result:   result,
				Duration: time.Since(start),
				TimedOut: timedOut,
			}
		}(i, call)
	}

	wg.Wait()
	return results
}

// executeOne applies the timeout wrapper then the abort wrapper to a
// single call. The second return reports a per-tool timeout.
func (e *Executor) executeOne(ctx context.Context, call protocol.ToolCall) (protocol.ToolResult, bool) {
	tool, ok := e.registry.Lookup(call.Name)
	if !ok {
		return protocol.ErrorResult(call.ID, fmt.Sprintf("unknown tool: %s", call.Name)), false
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
	defer cancel()

	type execResult struct {
		result protocol.ToolResult
		err    error
	}
	resultChan := make(chan execResult, 1)

	go func() {
		result, err := tool.Execute(toolCtx, call.ID, call.Arguments)
		// Non-blocking send; if the wrapper already gave up, drop the
		// late result rather than leaking this goroutine.
		select {
		case resultChan <- execResult{result: result, err: err}:
		default:
			slog.Warn("tool result discarded after deadline",
				"tool", call.Name, "tool_call_id", call.ID)
		}
	}()

	select {
	case <-toolCtx.Done():
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return protocol.ErrorResult(call.ID, ErrorTimeout), true
		}
		return protocol.ErrorResult(call.ID, ErrorCancelled), false
	case res := <-resultChan:
		if res.err != nil {
			switch {
			case errors.Is(res.err, context.DeadlineExceeded):
				return protocol.ErrorResult(call.ID, ErrorTimeout), true
			case errors.Is(res.err, context.Canceled):
				return protocol.ErrorResult(call.ID, ErrorCancelled), false
			}
			return protocol.ErrorResult(call.ID, res.err.Error()), false
		}
		if res.result.ToolCallID == "" {
			res.result.ToolCallID = call.ID
		}
		return res.result, false
	}
}
