package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRegisterBuiltin(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltin(r, t.TempDir()); err != nil {
		t.Fatalf("RegisterBuiltin: %v", err)
	}
	for _, name := range []string{"read_file", "write_file", "list_files", "web_fetch"} {
		if !r.Has(name) {
			t.Errorf("missing builtin %q", name)
		}
	}
}

func TestFileToolsRoundTrip(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()

	write := NewWriteFileTool(ws)
	res, err := write.Execute(ctx, "c1", map[string]interface{}{
		"path": "notes/hello.txt", "content": "hello world",
	})
	if err != nil || res.Error != "" {
		t.Fatalf("write: err=%v result=%+v", err, res)
	}

	read := NewReadFileTool(ws)
	res, err = read.Execute(ctx, "c2", map[string]interface{}{"path": "notes/hello.txt"})
	if err != nil || res.Text() != "hello world" {
		t.Fatalf("read: err=%v content=%q", err, res.Text())
	}

	list := NewListFilesTool(ws)
	res, err = list.Execute(ctx, "c3", map[string]interface{}{})
	if err != nil || !strings.Contains(res.Text(), "notes/hello.txt") {
		t.Fatalf("list: err=%v content=%q", err, res.Text())
	}
}

func TestFileToolsRejectEscapes(t *testing.T) {
	ws := t.TempDir()
	outside := filepath.Join(filepath.Dir(ws), "outside.txt")
	os.WriteFile(outside, []byte("secret"), 0o644)

	for _, path := range []string{"../outside.txt", "/etc/passwd", ".."} {
		res, err := NewReadFileTool(ws).Execute(context.Background(), "c", map[string]interface{}{"path": path})
		if err != nil {
			t.Fatalf("read %q: %v", path, err)
		}
		if res.Error == "" || !strings.Contains(res.Text(), "escapes workspace") {
			t.Errorf("read %q = %+v, want escape error", path, res)
		}
	}
}

func TestWebFetchExtractsHTML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><style>p{color:red}</style></head>` +
			`<body><h1>Title</h1><p>First &amp; second.</p><li>item</li></body></html>`))
	}))
	defer ts.Close()

	res, err := NewWebFetchTool().Execute(context.Background(), "c1", map[string]interface{}{"url": ts.URL})
	if err != nil || res.Error != "" {
		t.Fatalf("fetch: err=%v result=%+v", err, res)
	}
	for _, want := range []string{"# Title", "First & second.", "- item"} {
		if !strings.Contains(res.Text(), want) {
			t.Errorf("content missing %q:\n%s", want, res.Text())
		}
	}
	if strings.Contains(res.Text(), "color:red") {
		t.Error("style content leaked into extraction")
	}
}

func TestWebFetchRejectsBadURL(t *testing.T) {
	res, err := NewWebFetchTool().Execute(context.Background(), "c1", map[string]interface{}{"url": "ftp://example.com"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Error == "" {
		t.Errorf("expected error result, got %+v", res)
	}
}
