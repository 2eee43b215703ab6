package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// toolMetrics accumulates per-tool invocation counts and latency across
// one generation. Safe for concurrent record calls.
type toolMetrics struct {
	mu    sync.Mutex
	stats map[string]*toolStat
}

type toolStat struct {
	count        int
	totalLatency time.Duration
}

func newToolMetrics() *toolMetrics {
	return &toolMetrics{stats: make(map[string]*toolStat)}
}

func (m *toolMetrics) record(tool string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[tool]
	if !ok {
		s = &toolStat{}
		m.stats[tool] = s
	}
	s.count++
	s.totalLatency += latency
}

// summary formats "tool=X count=N avg=Mms; ..." sorted by count
// descending, name ascending on ties.
func (m *toolMetrics) summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	type entry struct {
		name string
		stat *toolStat
	}
	entries := make([]entry, 0, len(m.stats))
	for name, stat := range m.stats {
		entries = append(entries, entry{name, stat})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].stat.count != entries[j].stat.count {
			return entries[i].stat.count > entries[j].stat.count
		}
		return entries[i].name < entries[j].name
	})

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		avg := e.stat.totalLatency.Milliseconds() / int64(e.stat.count)
		parts = append(parts, fmt.Sprintf("tool=%s count=%d avg=%dms", e.name, e.stat.count, avg))
	}
	return strings.Join(parts, "; ")
}
