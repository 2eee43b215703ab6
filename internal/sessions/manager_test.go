package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/lumenworks/gemgate/pkg/protocol"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(NopStore{}, opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func msg(id, role, content string) protocol.ChatMessage {
	return protocol.ChatMessage{ID: id, Role: role, Content: content}
}

func TestAppendAndHistory(t *testing.T) {
	m := newTestManager(t)

	m.Append("s1", msg("m1", protocol.RoleUser, "hello"))
	m.Append("s1", msg("m2", protocol.RoleAssistant, "hi"))

	got := m.History("s1")
	if len(got) != 2 {
		t.Fatalf("History len = %d, want 2", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" {
		t.Errorf("history order = %s, %s", got[0].ID, got[1].ID)
	}

	// The returned slice is a copy.
	got[0].Content = "mutated"
	if m.History("s1")[0].Content != "hello" {
		t.Error("History returned a live reference")
	}
}

func TestReplace(t *testing.T) {
	m := newTestManager(t)
	m.Append("s1", msg("m1", protocol.RoleUser, "a"))
	m.Append("s1", msg("m2", protocol.RoleAssistant, "b"))

	m.Replace("s1", []protocol.ChatMessage{msg("sum", protocol.RoleSystem, "summary")})

	got := m.History("s1")
	if len(got) != 1 || got[0].ID != "sum" {
		t.Fatalf("History after Replace = %+v", got)
	}
}

func TestResetClearsHistoryAndQueue(t *testing.T) {
	m := newTestManager(t)
	m.Append("s1", msg("m1", protocol.RoleUser, "a"))
	m.Enqueue("s1", QueuedMessage{Text: "waiting"})

	m.Reset("s1")

	if n := len(m.History("s1")); n != 0 {
		t.Errorf("history len after reset = %d", n)
	}
	if n := m.QueueLen("s1"); n != 0 {
		t.Errorf("queue len after reset = %d", n)
	}
}

func TestGenerationLifecycle(t *testing.T) {
	m := newTestManager(t)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !m.StartGeneration("s1", cancel) {
		t.Fatal("StartGeneration refused on idle session")
	}
	if !m.Busy("s1") {
		t.Error("Busy = false during generation")
	}
	if m.StartGeneration("s1", cancel) {
		t.Error("StartGeneration allowed a second concurrent generation")
	}

	m.EndGeneration("s1")
	if m.Busy("s1") {
		t.Error("Busy = true after EndGeneration")
	}
}

func TestCancelIdempotent(t *testing.T) {
	m := newTestManager(t)

	if m.Cancel("s1") {
		t.Error("Cancel on unknown session reported work")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.StartGeneration("s1", cancel)

	if !m.Cancel("s1") {
		t.Fatal("Cancel did not trip active generation")
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("generation context not cancelled")
	}

	if m.Cancel("s1") {
		t.Error("second Cancel reported work")
	}
	if m.Busy("s1") {
		t.Error("Busy = true after cancel")
	}
}

func TestQueueFIFO(t *testing.T) {
	m := newTestManager(t)

	if pos := m.Enqueue("s1", QueuedMessage{Text: "first"}); pos != 1 {
		t.Errorf("first Enqueue position = %d, want 1", pos)
	}
	if pos := m.Enqueue("s1", QueuedMessage{Text: "second"}); pos != 2 {
		t.Errorf("second Enqueue position = %d, want 2", pos)
	}

	qm, ok := m.DequeueNext("s1")
	if !ok || qm.Text != "first" {
		t.Fatalf("DequeueNext = %q, %v, want first", qm.Text, ok)
	}
	qm, ok = m.DequeueNext("s1")
	if !ok || qm.Text != "second" {
		t.Fatalf("DequeueNext = %q, %v, want second", qm.Text, ok)
	}
	if _, ok := m.DequeueNext("s1"); ok {
		t.Error("DequeueNext on empty queue reported a message")
	}
}

func TestTTLEviction(t *testing.T) {
	m := newTestManager(t, WithTTL(30*time.Millisecond))
	m.Append("s1", msg("m1", protocol.RoleUser, "a"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(m.List()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("idle session never evicted")
}

func TestTTLSkipsBusySession(t *testing.T) {
	m := newTestManager(t, WithTTL(30*time.Millisecond))
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartGeneration("s1", cancel)

	time.Sleep(120 * time.Millisecond)
	if len(m.List()) != 1 {
		t.Fatal("busy session evicted by TTL")
	}
}

func TestDirStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir)
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	m, err := NewManager(store)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.Append("client:42", msg("m1", protocol.RoleUser, "persist me"))
	m.Append("client:42", msg("m2", protocol.RoleAssistant, "done"))
	m.Close()

	store2, err := NewDirStore(dir)
	if err != nil {
		t.Fatalf("NewDirStore reopen: %v", err)
	}
	m2, err := NewManager(store2)
	if err != nil {
		t.Fatalf("NewManager reload: %v", err)
	}
	defer m2.Close()

	got := m2.History("client:42")
	if len(got) != 2 {
		t.Fatalf("reloaded history len = %d, want 2", len(got))
	}
	if got[1].Content != "done" {
		t.Errorf("reloaded content = %q", got[1].Content)
	}
}

func TestDirStoreDelete(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	rec := SessionRecord{ID: "gone", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete("gone"); err != nil {
		t.Errorf("Delete of missing record: %v", err)
	}
	recs, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("LoadAll after delete = %d records", len(recs))
	}
}
