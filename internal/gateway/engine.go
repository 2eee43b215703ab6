package gateway

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/lumenworks/gemgate/internal/agent"
	"github.com/lumenworks/gemgate/internal/config"
	"github.com/lumenworks/gemgate/internal/gemini"
	"github.com/lumenworks/gemgate/internal/memory"
	"github.com/lumenworks/gemgate/internal/sessions"
	"github.com/lumenworks/gemgate/internal/tools"
	"github.com/lumenworks/gemgate/pkg/protocol"
)

// Generator runs one generation for a session, emitting stream events
// as they happen. Implemented by Engine; faked in tests.
type Generator interface {
	Generate(ctx context.Context, sessionID, text, characterState string, emit func(protocol.StreamEvent)) error
}

// Engine is the full generation pipeline: persist the user message,
// compact history when near the context limit, build the system
// prompt, and drive the tool loop.
type Engine struct {
	cfg       *config.Config
	sessions  *sessions.Manager
	orch      *agent.Orchestrator
	compactor *memory.Compactor
	registry  *tools.Registry
}

func NewEngine(cfg *config.Config, sess *sessions.Manager, orch *agent.Orchestrator, compactor *memory.Compactor, registry *tools.Registry) *Engine {
	return &Engine{
		cfg:       cfg,
		sessions:  sess,
		orch:      orch,
		compactor: compactor,
		registry:  registry,
	}
}

func (e *Engine) Generate(ctx context.Context, sessionID, text, characterState string, emit func(protocol.StreamEvent)) error {
	snap := e.cfg.Snapshot()

	e.sessions.Append(sessionID, protocol.ChatMessage{
		ID:        uuid.NewString(),
		Role:      protocol.RoleUser,
		Content:   text,
		Timestamp: time.Now().UnixMilli(),
	})
	history := e.sessions.History(sessionID)

	systemPrompt := e.buildPrompt(snap, characterState)
	systemTokens := memory.EstimateTokens(systemPrompt)

	// Compacting frames only go out when the pass will touch something;
	// an over-threshold history with too few eligible turns stays silent.
	if e.compactor != nil && e.compactor.NeedsCompaction(systemTokens, history) {
		emit(protocol.Compacting(protocol.CompactingStart, 0))
		res := e.compactor.CompactIfNeeded(ctx, history, systemTokens, snap.APIKey, snap.Agent.Model)
		emit(protocol.Compacting(protocol.CompactingDone, res.MessagesCompacted))
		if res.Compacted {
			e.sessions.Replace(sessionID, res.Messages)
			history = res.Messages
		}
	}

	runCfg := agent.RunConfig{
		APIKey:            snap.APIKey,
		Model:             snap.Agent.Model,
		ThinkingBudget:    snap.Agent.ThinkingBudget,
		SystemInstruction: systemPrompt,
		InitialContents:   gemini.ToContents(history),
		AgentID:           sessionID,
		MaxIterations:     snap.Agent.MaxToolIterations,
		SoftLimit:         snap.Agent.SoftToolLimit,
		EnableTools:       true,
	}

	// The done message is persisted before it reaches the client, so a
	// resume right after sees the full history.
	return e.orch.Run(ctx, runCfg, func(ev protocol.StreamEvent) {
		if ev.Type == protocol.EventDone && ev.Message != nil {
			e.sessions.Append(sessionID, *ev.Message)
		}
		emit(ev)
	})
}

func (e *Engine) buildPrompt(snap config.Config, characterState string) string {
	hostname, _ := os.Hostname()
	return agent.BuildPrompt(agent.PromptOptions{
		AgentName:      snap.Agent.Name,
		Identity:       snap.Agent.Identity,
		Registry:       e.registry,
		WorkspaceDir:   config.ExpandHome(snap.Agent.Workspace),
		CharacterState: characterState,
		Mode:           promptMode(snap.Agent.PromptMode),
		Runtime: agent.RuntimeInfo{
			Agent:        snap.Agent.Name,
			Host:         hostname,
			OS:           runtime.GOOS,
			Model:        snap.Agent.Model,
			DefaultModel: snap.Agent.Model,
			Channel:      "websocket",
			Thinking:     thinkingLabel(snap.Agent.ThinkingBudget),
		},
	})
}

func promptMode(s string) agent.PromptMode {
	switch s {
	case "minimal":
		return agent.PromptModeMinimal
	case "none":
		return agent.PromptModeNone
	default:
		return agent.PromptModeFull
	}
}

func thinkingLabel(budget *int) string {
	switch {
	case budget == nil:
		return "default"
	case *budget == 0:
		return "off"
	default:
		return "on"
	}
}
