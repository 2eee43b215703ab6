package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lumenworks/gemgate/internal/tools"
	"github.com/lumenworks/gemgate/pkg/protocol"
)

func promptRegistry(t *testing.T, names ...string) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	for _, n := range names {
		err := r.Register(tools.NewFuncTool(n, "does "+n, nil,
			func(ctx context.Context, callID string, args map[string]interface{}) (protocol.ToolResult, error) {
				return protocol.TextResult(callID, "ok"), nil
			}))
		if err != nil {
			t.Fatalf("Register(%s): %v", n, err)
		}
	}
	return r
}

func TestBuildPromptModeNone(t *testing.T) {
	got := BuildPrompt(PromptOptions{AgentName: "Iris", Mode: PromptModeNone})
	if strings.Count(got, "\n") != 0 {
		t.Errorf("mode none produced multiple lines: %q", got)
	}
	if !strings.Contains(got, "Iris") {
		t.Errorf("identity line missing agent name: %q", got)
	}
}

func TestBuildPromptFullSections(t *testing.T) {
	opts := PromptOptions{
		AgentName: "Iris",
		Identity:  "Warm, direct, curious.",
		Registry:  promptRegistry(t, "web_search", "memory_search", "read_file"),
		ContextFiles: map[string]string{
			"PERSONA.md": "persona body",
			"NOTES.md":   "notes body",
		},
		WorkspaceDir:     "/data/workspace",
		Timezone:         "UTC",
		CharacterState:   "idle, smiling",
		ReactionGuidance: "React sparingly.",
		ReasoningTags:    true,
		Mode:             PromptModeFull,
		Runtime: RuntimeInfo{
			Agent: "iris", Host: "box", OS: "linux",
			Model: "gemini-test", DefaultModel: "gemini-test",
			Channel: "websocket", Thinking: "low",
		},
		Now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	got := BuildPrompt(opts)

	for _, want := range []string{
		"You are Iris",
		"## Identity\nWarm, direct, curious.",
		"## Tools",
		"- web_search: does web_search",
		"## Fresh data",
		"## Safety",
		"## Session memory",
		"Working directory: /data/workspace",
		"Context files available: NOTES.md, PERSONA.md",
		"## Time",
		"## Reactions\nReact sparingly.",
		"## Reasoning format",
		"## NOTES.md\nnotes body",
		"## PERSONA.md\npersona body",
		"capabilities=none, thinking=low",
		"## Avatar state\nidle, smiling",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	// Sections land in declaration order.
	if strings.Index(got, "## Tools") > strings.Index(got, "## Safety") {
		t.Error("tools section after safety section")
	}
	if strings.Index(got, "## Time") > strings.Index(got, "Runtime:") {
		t.Error("time section after runtime line")
	}
}

func TestBuildPromptMinimalOmissions(t *testing.T) {
	opts := PromptOptions{
		AgentName:        "Iris",
		Registry:         promptRegistry(t, "memory_search"),
		ContextFiles:     map[string]string{"PERSONA.md": "persona body"},
		WorkspaceDir:     "/data/workspace",
		ReactionGuidance: "React sparingly.",
		ReasoningTags:    true,
		Mode:             PromptModeMinimal,
	}

	got := BuildPrompt(opts)

	for _, absent := range []string{
		"## Session memory",
		"## Reactions",
		"## Reasoning format",
		"persona body",
		"Context files available",
	} {
		if strings.Contains(got, absent) {
			t.Errorf("minimal prompt contains %q", absent)
		}
	}
	if !strings.Contains(got, "## Safety") {
		t.Error("safety block missing from minimal prompt")
	}
	if !strings.Contains(got, "Working directory: /data/workspace") {
		t.Error("workspace line missing from minimal prompt")
	}
}

func TestRuntimeLineCapabilities(t *testing.T) {
	line := runtimeLine(RuntimeInfo{
		Agent: "a", Host: "h", OS: "linux", Model: "m", DefaultModel: "m",
		Channel: "websocket", Capabilities: []string{"vision", "audio"}, Thinking: "off",
	})
	if !strings.Contains(line, "capabilities=vision+audio") {
		t.Errorf("runtime line = %q, want joined capabilities", line)
	}
}

func TestToolMetricsSummary(t *testing.T) {
	m := newToolMetrics()
	m.record("fetch", 100*time.Millisecond)
	m.record("fetch", 300*time.Millisecond)
	m.record("web_search", 50*time.Millisecond)

	got := m.summary()
	want := "tool=fetch count=2 avg=200ms; tool=web_search count=1 avg=50ms"
	if got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}
