package gemini

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func collectPayloads(t *testing.T, r io.Reader) []string {
	t.Helper()
	dec := newSSEDecoder(r)
	var out []string
	for {
		p, err := dec.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		out = append(out, string(p))
	}
}

func TestSSEDecoderBasic(t *testing.T) {
	body := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\n"
	got := collectPayloads(t, strings.NewReader(body))
	want := []string{`{"a":1}`, `{"b":2}`}
	if len(got) != len(want) {
		t.Fatalf("payloads = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("payload %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSSEDecoderRobustness(t *testing.T) {
	// Interleaves valid payloads with CRLF delimiters, comment and event
	// lines, [DONE] sentinels, extra blank lines, and a multi-line data
	// payload. Reads one byte at a time to force partial chunks.
	body := strings.Join([]string{
		": comment",
		"data: {\"a\":1}",
		"",
		"",
		"event: update\r",
		"data: {\"b\":\r",
		"data: 2}\r",
		"\r",
		"data: [DONE]",
		"",
		"id: 7",
		"data: {\"c\":3}",
		"",
	}, "\n")

	got := collectPayloads(t, iotest.OneByteReader(strings.NewReader(body)))
	want := []string{"{\"a\":1}", "{\"b\":\n2}", "{\"c\":3}"}
	if len(got) != len(want) {
		t.Fatalf("payloads = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("payload %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSSEDecoderTruncatedTail(t *testing.T) {
	// A final event without its blank-line delimiter still surfaces at EOF.
	body := "data: {\"a\":1}\n\ndata: {\"b\":2}"
	got := collectPayloads(t, strings.NewReader(body))
	if len(got) != 2 || got[1] != `{"b":2}` {
		t.Errorf("payloads = %q, want trailing {\"b\":2}", got)
	}
}
