package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumenworks/gemgate/internal/gemini"
	"github.com/lumenworks/gemgate/internal/tools"
	"github.com/lumenworks/gemgate/pkg/protocol"
)

// Loop defaults; overridable per run.
const (
	DefaultMaxIterations = 8
	DefaultSoftLimit     = 6
)

const finalSynthesisPrompt = `No tool rounds remain. Synthesize your final answer for the user from the information gathered so far. Do not request any more tools.`

// Streamer is the provider surface the orchestrator needs. *gemini.Client
// satisfies it.
type Streamer interface {
	Stream(ctx context.Context, req gemini.Request, onEvent func(gemini.GenEvent)) error
}

// RunConfig parameterizes one generation.
type RunConfig struct {
	APIKey            string
	Model             string
	ThinkingBudget    *int
	SystemInstruction string
	InitialContents   []gemini.Content
	AgentID           string
	MaxIterations     int
	SoftLimit         int
	EnableTools       bool
}

// Orchestrator drives the bounded model-call / tool-execution loop for
// one generation, pushing StreamEvents to the caller as they happen.
type Orchestrator struct {
	client    Streamer
	registry  *tools.Registry
	executor  *tools.Executor
	compactor *tools.Compactor
	tracer    trace.Tracer
}

func NewOrchestrator(client Streamer, registry *tools.Registry, executor *tools.Executor, compactor *tools.Compactor) *Orchestrator {
	return &Orchestrator{
		client:    client,
		registry:  registry,
		executor:  executor,
		compactor: compactor,
		tracer:    otel.Tracer("gemgate/agent"),
	}
}

// Run executes the loop until the model stops calling tools, the
// iteration budget runs out, or the context is cancelled. Events are
// delivered in emission order; exactly one done event ends a successful
// run. The returned error is nil on normal termination, ctx.Err() on
// cancellation, and the provider error otherwise.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig, emit func(protocol.StreamEvent)) error {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.SoftLimit <= 0 {
		cfg.SoftLimit = DefaultSoftLimit
	}

	ctx, span := o.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(
			attribute.String("agent.id", cfg.AgentID),
			attribute.String("model", cfg.Model),
		))
	defer span.End()

	contents := append([]gemini.Content(nil), cfg.InitialContents...)
	var allToolCalls []protocol.ToolCall
	var fullContent strings.Builder
	metrics := newToolMetrics()

	for iteration := 0; ; iteration++ {
		if iteration >= cfg.MaxIterations {
			if fullContent.Len() == 0 && len(allToolCalls) > 0 {
				if err := o.finalSynthesis(ctx, cfg, contents, &fullContent, emit); err != nil {
					return err
				}
			}
			break
		}

		sysInstr := cfg.SystemInstruction
		if iteration >= cfg.SoftLimit {
			remaining := cfg.MaxIterations - iteration
			sysInstr += fmt.Sprintf("\n\nTool Budget: %d rounds remaining. Favor synthesizing an answer over further tool calls.", remaining)
			if usage := metrics.summary(); usage != "" {
				sysInstr += "\nTool usage so far: " + usage
			}
		}

		req := gemini.Request{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			Contents:          contents,
			SystemInstruction: sysInstr,
			ThinkingBudget:    cfg.ThinkingBudget,
		}
		if cfg.EnableTools && o.registry.Len() > 0 {
			req.Tools = declarations(o.registry)
			req.ToolConfig = gemini.ToolConfigAuto
		}

		pending, err := o.streamTurn(ctx, req, iteration, &fullContent, emit)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c := gemini.Classify(err)
			if c.Reason == gemini.ReasonContextOverflow {
				// Pre-generation compaction should have prevented this;
				// terminate with whatever text accumulated.
				slog.Warn("context overflow mid-generation, terminating early",
					"iteration", iteration, "agent", cfg.AgentID)
				break
			}
			return err
		}

		if len(pending) == 0 {
			break
		}

		contents = append(contents, modelTurn(pending))

		results := o.runTools(ctx, pending, metrics, emit)
		allToolCalls = append(allToolCalls, pending...)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		contents = append(contents, o.responseTurn(pending, results))
	}

	msg := protocol.ChatMessage{
		ID:        uuid.NewString(),
		Role:      protocol.RoleAssistant,
		Content:   SanitizeAssistantContent(fullContent.String()),
		Timestamp: time.Now().UnixMilli(),
	}
	emit(protocol.Done(msg, allToolCalls))
	return nil
}

// streamTurn runs one provider call, forwarding text deltas and
// buffering function calls as pending work.
func (o *Orchestrator) streamTurn(ctx context.Context, req gemini.Request, iteration int, fullContent *strings.Builder, emit func(protocol.StreamEvent)) ([]protocol.ToolCall, error) {
	ctx, span := o.tracer.Start(ctx, "provider.stream",
		trace.WithAttributes(attribute.Int("iteration", iteration)))
	defer span.End()

	var pending []protocol.ToolCall
	err := o.client.Stream(ctx, req, func(ev gemini.GenEvent) {
		switch ev.Type {
		case gemini.EventTextDelta:
			fullContent.WriteString(ev.Text)
			emit(protocol.TextDelta(ev.Text))
		case gemini.EventFunctionCall:
			call := protocol.ToolCall{
				ID:               "call_" + uuid.NewString(),
				Name:             ev.Call.Name,
				Arguments:        ev.Call.Args,
				ThoughtSignature: ev.ThoughtSignature,
			}
			pending = append(pending, call)
			emit(protocol.ToolStart(call))
		}
	})
	return pending, err
}

// runTools executes the pending calls concurrently and emits one
// tool_end per call, in call order.
func (o *Orchestrator) runTools(ctx context.Context, pending []protocol.ToolCall, metrics *toolMetrics, emit func(protocol.StreamEvent)) []tools.ExecResult {
	ctx, span := o.tracer.Start(ctx, "tools.execute",
		trace.WithAttributes(attribute.Int("count", len(pending))))
	defer span.End()

	results := o.executor.ExecuteAll(ctx, pending)
	for _, res := range results {
		metrics.record(res.Call.Name, res.Duration)
		emit(protocol.ToolEnd(res.Call.ID, res.Call.Name, res.Result))
	}
	return results
}

// responseTurn compacts each result and packs them into one user turn of
// functionResponse parts.
func (o *Orchestrator) responseTurn(pending []protocol.ToolCall, results []tools.ExecResult) gemini.Content {
	parts := make([]gemini.Part, 0, len(results))
	for _, res := range results {
		text := res.Result.Text()
		if res.Result.Error == "" && o.compactor != nil {
			text = o.compactor.Compact(res.Call.Name, text)
		}
		response := map[string]interface{}{"result": text}
		if res.Result.Error != "" {
			response["error"] = res.Result.Error
		}
		parts = append(parts, gemini.Part{
			FunctionResponse: &gemini.FunctionResponse{
				Name:     res.Call.Name,
				Response: response,
			},
		})
	}
	return gemini.Content{Role: "user", Parts: parts}
}

// finalSynthesis is the budget-exhausted path: one more streaming call
// with tools disabled so the model can only produce text.
func (o *Orchestrator) finalSynthesis(ctx context.Context, cfg RunConfig, contents []gemini.Content, fullContent *strings.Builder, emit func(protocol.StreamEvent)) error {
	req := gemini.Request{
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		Contents:          contents,
		SystemInstruction: cfg.SystemInstruction + "\n\n" + finalSynthesisPrompt,
		ThinkingBudget:    cfg.ThinkingBudget,
	}

	err := o.client.Stream(ctx, req, func(ev gemini.GenEvent) {
		if ev.Type == gemini.EventTextDelta {
			fullContent.WriteString(ev.Text)
			emit(protocol.TextDelta(ev.Text))
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if gemini.Classify(err).Reason == gemini.ReasonContextOverflow {
			return nil
		}
		return err
	}
	return nil
}

// modelTurn preserves the thought signature on the model turn that
// introduced each call; it is not re-attached to later references.
func modelTurn(pending []protocol.ToolCall) gemini.Content {
	parts := make([]gemini.Part, 0, len(pending))
	for _, call := range pending {
		parts = append(parts, gemini.Part{
			FunctionCall: &gemini.FunctionCall{
				Name: call.Name,
				Args: call.Arguments,
			},
			ThoughtSignature: call.ThoughtSignature,
		})
	}
	return gemini.Content{Role: "model", Parts: parts}
}

func declarations(registry *tools.Registry) []gemini.ToolDeclaration {
	defs := registry.Definitions()
	out := make([]gemini.ToolDeclaration, 0, len(defs))
	for _, d := range defs {
		out = append(out, gemini.ToolDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return out
}
