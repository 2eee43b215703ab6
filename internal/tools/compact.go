package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/lumenworks/gemgate/internal/contextstore"
)

const (
	// Results above this size spill to the context store.
	spillThreshold = 4 * 1024
	// Non-JSON results are clipped to this many bytes.
	nonJSONCap = 4000
	// List-shaped results keep this many entries.
	maxListEntries = 5
	snippetMax     = 120
	previewLen     = 500
)

// Compactor shrinks raw tool results before they re-enter the model
// context: list results are trimmed, oversized documents spill to the
// context store, unparseable text is truncated.
type Compactor struct {
	store   contextstore.Store
	counter atomic.Int64
}

func NewCompactor(store contextstore.Store) *Compactor {
	return &Compactor{store: store}
}

// Compact returns the text to feed back to the model in place of raw.
// Documents over the threshold spill whole, JSON or not; fetched pages
// are usually plain text.
func (c *Compactor) Compact(toolName, raw string) string {
	var parsed map[string]interface{}
	isObject := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed) == nil

	if isObject {
		if results, ok := parsed["results"].([]interface{}); ok {
			return compactList(parsed, results, raw)
		}
	}

	if len(raw) > spillThreshold && c.store != nil {
		return c.spill(toolName, raw)
	}
	if !isObject {
		return truncateText(raw, nonJSONCap)
	}
	return raw
}

// compactList keeps the top entries of a search-shaped result and clips
// each snippet.
func compactList(parsed map[string]interface{}, results []interface{}, raw string) string {
	kept := results
	if len(kept) > maxListEntries {
		kept = kept[:maxListEntries]
	}

	entries := make([]map[string]interface{}, 0, len(kept))
	for _, r := range kept {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		entry := map[string]interface{}{}
		for _, key := range []string{"title", "url", "siteName"} {
			if v, ok := m[key].(string); ok && v != "" {
				entry[key] = v
			}
		}
		if snippet, ok := m["snippet"].(string); ok && snippet != "" {
			entry["snippet"] = truncateText(snippet, snippetMax)
		}
		entries = append(entries, entry)
	}

	out := map[string]interface{}{
		"count":   len(results),
		"results": entries,
	}
	for _, key := range []string{"query", "tookMs"} {
		if v, ok := parsed[key]; ok {
			out[key] = v
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return truncateText(raw, nonJSONCap)
	}
	return string(b)
}

// spill writes the full body to the context store and substitutes a
// pointer record. Filenames are monotonic per process.
func (c *Compactor) spill(toolName, raw string) string {
	name := fmt.Sprintf("%s-%d-%s.txt", toolName, c.counter.Add(1), shortHash(raw))
	if err := c.store.Write(name, []byte(raw)); err != nil {
		slog.Warn("tool result spill failed", "tool", toolName, "file", name, "error", err)
		return truncateText(raw, nonJSONCap)
	}

	b, err := json.Marshal(map[string]interface{}{
		"savedTo": name,
		"hint":    "full result saved to the context store; read it back if details are needed",
		"preview": truncateText(raw, previewLen),
	})
	if err != nil {
		return truncateText(raw, nonJSONCap)
	}
	return string(b)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:4])
}

// truncateText clips s to at most n bytes on a rune boundary, appending
// a truncation marker when anything was cut.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n[...truncated]"
}
