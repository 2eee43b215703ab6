package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lumenworks/gemgate/internal/gemini"
	"github.com/lumenworks/gemgate/pkg/protocol"
)

// SummaryHeader marks compaction summaries in session history.
const SummaryHeader = "[Conversation Summary]"

const (
	// Chunks above 40% of the window are summarized piecewise.
	chunkFraction = 0.4

	summaryTemperature = 0.3
	summaryMaxTokens   = 4096

	// Per-message content cap before transcript formatting.
	transcriptCharCap = 8000

	// Fallback keeps this many user turns when summarization fails.
	fallbackTurnsToKeep = RecentTurnsToKeep + 2
)

const summarizationPrompt = `Produce a concise summary of the conversation transcript. Preserve key facts the user shared, topics discussed, decisions made, and any ongoing context. Write in third person. Organize by topic, not chronologically. Target roughly 20% of the original length. If a previous summary is provided, merge its contents into the new summary.`

const mergePrompt = `Merge the following partial conversation summaries into one coherent summary. Keep all distinct facts and decisions. Organize by topic.`

// Generator is the provider surface the compactor needs. *gemini.Client
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, req gemini.Request) (*gemini.Response, error)
}

// Result describes one compaction pass.
type Result struct {
	Compacted         bool
	Messages          []protocol.ChatMessage
	TokensBefore      int
	TokensAfter       int
	MessagesCompacted int
}

// Compactor replaces an old history prefix with a single summary message
// produced by the model itself.
type Compactor struct {
	client Generator
	limit  int
}

func NewCompactor(client Generator, contextLimit int) *Compactor {
	if contextLimit <= 0 {
		contextLimit = DefaultContextLimit
	}
	return &Compactor{client: client, limit: contextLimit}
}

// NeedsCompaction reports whether a pass over these messages would
// actually compact anything: the usage threshold is crossed and a
// non-empty prefix is eligible. Callers gate progress reporting on it.
func (c *Compactor) NeedsCompaction(systemTokens int, messages []protocol.ChatMessage) bool {
	if !ShouldCompact(systemTokens, messages, c.limit) {
		return false
	}
	toCompact, _ := SplitForCompaction(messages)
	return len(toCompact) > 0
}

// CompactIfNeeded returns the input untouched when under threshold.
// Provider failures degrade to a turn-limit fallback; the pass itself
// never fails.
func (c *Compactor) CompactIfNeeded(ctx context.Context, messages []protocol.ChatMessage, systemTokens int, apiKey, model string) Result {
	before := EstimateMessagesTokens(messages)
	untouched := Result{Messages: messages, TokensBefore: before, TokensAfter: before}

	if !ShouldCompact(systemTokens, messages, c.limit) {
		return untouched
	}

	toCompact, toKeep := SplitForCompaction(messages)
	if len(toCompact) == 0 {
		return untouched
	}

	previousSummary, toSummarize := extractPreviousSummary(toCompact)

	summary, err := c.summarize(ctx, toSummarize, previousSummary, apiKey, model)
	if err != nil {
		slog.Warn("summarization failed, falling back to turn limit", "error", err)
		fallback := keepRecentTurns(messages, fallbackTurnsToKeep)
		return Result{
			Compacted:         true,
			Messages:          fallback,
			TokensBefore:      before,
			TokensAfter:       EstimateMessagesTokens(fallback),
			MessagesCompacted: len(messages) - len(fallback),
		}
	}

	summaryMsg := protocol.ChatMessage{
		ID:        fmt.Sprintf("summary_%d", time.Now().UnixMilli()),
		Role:      protocol.RoleSystem,
		Content:   SummaryHeader + "\n" + summary,
		Timestamp: time.Now().UnixMilli(),
	}
	result := append([]protocol.ChatMessage{summaryMsg}, toKeep...)

	return Result{
		Compacted:         true,
		Messages:          result,
		TokensBefore:      before,
		TokensAfter:       EstimateMessagesTokens(result),
		MessagesCompacted: len(toCompact),
	}
}

// summarize runs one provider call when the set fits in a chunk, or a
// chunked map-merge pass otherwise.
func (c *Compactor) summarize(ctx context.Context, messages []protocol.ChatMessage, previousSummary, apiKey, model string) (string, error) {
	chunkMax := int(float64(c.limit) * chunkFraction)

	if EstimateMessagesTokens(messages) <= chunkMax {
		return c.summarizeOnce(ctx, messages, previousSummary, apiKey, model)
	}

	var partials []string
	for _, chunk := range ChunkByTokens(messages, chunkMax) {
		// The previous summary rides with the first chunk only.
		prev := ""
		if len(partials) == 0 {
			prev = previousSummary
		}
		partial, err := c.summarizeOnce(ctx, chunk, prev, apiKey, model)
		if err != nil {
			return "", err
		}
		partials = append(partials, partial)
	}
	if len(partials) == 1 {
		return partials[0], nil
	}

	merged, err := c.merge(ctx, partials, apiKey, model)
	if err != nil {
		slog.Warn("summary merge failed, concatenating partials", "error", err)
		return strings.Join(partials, "\n\n"), nil
	}
	return merged, nil
}

func (c *Compactor) summarizeOnce(ctx context.Context, messages []protocol.ChatMessage, previousSummary, apiKey, model string) (string, error) {
	var sb strings.Builder
	if previousSummary != "" {
		sb.WriteString("Previous summary:\n")
		sb.WriteString(previousSummary)
		sb.WriteString("\n\nTranscript:\n")
	}
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(truncateContent(m.Content, transcriptCharCap))
		sb.WriteString("\n")
	}

	return c.callModel(ctx, summarizationPrompt, sb.String(), apiKey, model)
}

func (c *Compactor) merge(ctx context.Context, partials []string, apiKey, model string) (string, error) {
	var sb strings.Builder
	for i, p := range partials {
		fmt.Fprintf(&sb, "Part %d:\n%s\n\n", i+1, p)
	}
	return c.callModel(ctx, mergePrompt, sb.String(), apiKey, model)
}

func (c *Compactor) callModel(ctx context.Context, system, text, apiKey, model string) (string, error) {
	temp := summaryTemperature
	resp, err := c.client.Generate(ctx, gemini.Request{
		APIKey:            apiKey,
		Model:             model,
		SystemInstruction: system,
		Contents:          []gemini.Content{gemini.TextContent("user", text)},
		Temperature:       &temp,
		MaxOutputTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", fmt.Errorf("memory: empty summary from model")
	}
	return summary, nil
}

// extractPreviousSummary pulls an existing summary system message out of
// the set to summarize, so it merges instead of nesting.
func extractPreviousSummary(messages []protocol.ChatMessage) (string, []protocol.ChatMessage) {
	previous := ""
	rest := make([]protocol.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == protocol.RoleSystem && strings.HasPrefix(m.Content, SummaryHeader) {
			previous = strings.TrimSpace(strings.TrimPrefix(m.Content, SummaryHeader))
			continue
		}
		rest = append(rest, m)
	}
	return previous, rest
}

// keepRecentTurns returns the suffix starting at the n-th user message
// from the end, dropping everything before it.
func keepRecentTurns(messages []protocol.ChatMessage, n int) []protocol.ChatMessage {
	seen := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != protocol.RoleUser {
			continue
		}
		seen++
		if seen == n {
			return messages[i:]
		}
	}
	return messages
}

func truncateContent(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[...truncated]"
}
