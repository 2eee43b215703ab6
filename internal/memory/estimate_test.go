package memory

import (
	"fmt"
	"strings"
	"testing"

	"github.com/lumenworks/gemgate/pkg/protocol"
)

func history(turns int, contentLen int) []protocol.ChatMessage {
	var out []protocol.ChatMessage
	for i := 0; i < turns; i++ {
		out = append(out,
			protocol.ChatMessage{ID: fmt.Sprintf("u%d", i), Role: protocol.RoleUser, Content: strings.Repeat("u", contentLen)},
			protocol.ChatMessage{ID: fmt.Sprintf("a%d", i), Role: protocol.RoleAssistant, Content: strings.Repeat("a", contentLen)},
		)
	}
	return out
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},       // ceil(3/3.5)
		{"abcdefg", 2},   // ceil(7/3.5)
		{strings.Repeat("x", 35), 10},
		{strings.Repeat("x", 36), 11},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(len %d) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestEstimateMessagesTokensAddsOverhead(t *testing.T) {
	msgs := []protocol.ChatMessage{
		{Role: protocol.RoleUser, Content: strings.Repeat("x", 35)},
		{Role: protocol.RoleAssistant, Content: ""},
	}
	// 10 + overhead, 0 + overhead.
	if got := EstimateMessagesTokens(msgs); got != 30 {
		t.Errorf("EstimateMessagesTokens = %d, want 30", got)
	}
}

func TestShouldCompact(t *testing.T) {
	tests := []struct {
		name         string
		messages     []protocol.ChatMessage
		systemTokens int
		limit        int
		want         bool
	}{
		{"too few messages", history(2, 100_000), 0, 1000, false},
		{"small history", history(10, 10), 0, 128_000, false},
		{"over threshold", history(100, 5000), 2000, 128_000, true},
		{"system tokens push over", history(10, 100), 200_000, 128_000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldCompact(tt.systemTokens, tt.messages, tt.limit); got != tt.want {
				t.Errorf("ShouldCompact = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitForCompaction(t *testing.T) {
	msgs := history(6, 10) // 6 user turns, 12 messages
	toCompact, toKeep := SplitForCompaction(msgs)

	if len(toCompact) != 4 || len(toKeep) != 8 {
		t.Fatalf("split = %d/%d, want 4/8", len(toCompact), len(toKeep))
	}
	if toKeep[0].Role != protocol.RoleUser {
		t.Errorf("toKeep starts with %s, want user", toKeep[0].Role)
	}
	users := 0
	for _, m := range toKeep {
		if m.Role == protocol.RoleUser {
			users++
		}
	}
	if users != RecentTurnsToKeep {
		t.Errorf("toKeep user turns = %d, want %d", users, RecentTurnsToKeep)
	}
}

func TestSplitForCompactionFewUserTurns(t *testing.T) {
	msgs := history(3, 10)
	toCompact, toKeep := SplitForCompaction(msgs)
	if len(toCompact) != 0 {
		t.Errorf("toCompact = %d, want 0", len(toCompact))
	}
	if len(toKeep) != len(msgs) {
		t.Errorf("toKeep = %d, want everything", len(toKeep))
	}
}

func TestChunkByTokens(t *testing.T) {
	msgs := history(10, 35) // each message ~20 tokens
	chunks := ChunkByTokens(msgs, 45)

	total := 0
	for _, ch := range chunks {
		total += len(ch)
		if EstimateMessagesTokens(ch) > 45 && len(ch) > 1 {
			t.Errorf("chunk of %d messages exceeds cap", len(ch))
		}
	}
	if total != len(msgs) {
		t.Errorf("chunked %d messages, want %d", total, len(msgs))
	}
}

func TestChunkByTokensOversizedMessage(t *testing.T) {
	msgs := []protocol.ChatMessage{
		{Role: protocol.RoleUser, Content: strings.Repeat("x", 10_000)},
		{Role: protocol.RoleAssistant, Content: "short"},
	}
	chunks := ChunkByTokens(msgs, 50)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if len(chunks[0]) != 1 {
		t.Errorf("oversized message not isolated: chunk has %d messages", len(chunks[0]))
	}
}
