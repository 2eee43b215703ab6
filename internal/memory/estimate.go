// Package memory keeps conversations inside the provider context window:
// token estimation, compaction thresholds, history splitting, and
// model-assisted summarization.
package memory

import (
	"math"

	"github.com/lumenworks/gemgate/pkg/protocol"
)

const (
	// DefaultContextLimit is the assumed provider window in tokens.
	DefaultContextLimit = 128_000

	// RecentTurnsToKeep user turns survive compaction untouched.
	RecentTurnsToKeep = 4

	// Estimation is chars/3.5 plus a flat per-message overhead.
	charsPerToken      = 3.5
	perMessageOverhead = 10

	// Compaction triggers above 75% of the window, with a 1.2x safety
	// factor on the estimate, and never under this many messages.
	compactMinMessages = 6
	usageSafetyFactor  = 1.2
	usageThreshold     = 0.75
)

// EstimateTokens approximates the token cost of a text.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}

// EstimateMessageTokens adds the per-message overhead.
func EstimateMessageTokens(m protocol.ChatMessage) int {
	return EstimateTokens(m.Content) + perMessageOverhead
}

// EstimateMessagesTokens sums the estimate over a history.
func EstimateMessagesTokens(messages []protocol.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessageTokens(m)
	}
	return total
}

// ShouldCompact reports whether the history is close enough to the
// window to warrant summarization.
func ShouldCompact(systemTokens int, messages []protocol.ChatMessage, limit int) bool {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	if len(messages) < compactMinMessages {
		return false
	}
	total := float64(systemTokens + EstimateMessagesTokens(messages))
	return total*usageSafetyFactor > usageThreshold*float64(limit)
}

// SplitForCompaction partitions history into the prefix to summarize and
// the recent tail to keep verbatim. Scanning from the end, the tail
// starts at the RecentTurnsToKeep-th user message. Histories with fewer
// user turns are kept whole.
func SplitForCompaction(messages []protocol.ChatMessage) (toCompact, toKeep []protocol.ChatMessage) {
	seen := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != protocol.RoleUser {
			continue
		}
		seen++
		if seen == RecentTurnsToKeep {
			return messages[:i], messages[i:]
		}
	}
	return nil, messages
}

// ChunkByTokens greedily packs messages into chunks whose estimated
// token sum stays under max. A single oversized message becomes its own
// chunk.
func ChunkByTokens(messages []protocol.ChatMessage, max int) [][]protocol.ChatMessage {
	var chunks [][]protocol.ChatMessage
	var current []protocol.ChatMessage
	currentTokens := 0

	for _, m := range messages {
		cost := EstimateMessageTokens(m)
		if len(current) > 0 && currentTokens+cost > max {
			chunks = append(chunks, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, m)
		currentTokens += cost
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
