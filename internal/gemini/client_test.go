package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("key = %q, want k", r.URL.Query().Get("key"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates":[{"content":{"parts":[
				{"text":"Hello "},
				{"text":"world"},
				{"functionCall":{"name":"lookup","args":{"q":"go"}},"thoughtSignature":"sig1"}
			]}}],
			"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}
		}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMaxAttempts(1))
	resp, err := c.Generate(context.Background(), Request{
		APIKey:   "k",
		Model:    "gemini-test",
		Contents: []Content{TextContent("user", "hi")},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if resp.Text != "Hello world" {
		t.Errorf("text = %q, want %q", resp.Text, "Hello world")
	}
	if len(resp.Calls) != 1 || resp.Calls[0].Name != "lookup" {
		t.Fatalf("calls = %#v, want one lookup call", resp.Calls)
	}
	if resp.Calls[0].ThoughtSignature != "sig1" {
		t.Errorf("thoughtSignature = %q, want sig1", resp.Calls[0].ThoughtSignature)
	}
	if resp.Usage == nil || resp.Usage.TotalTokenCount != 15 {
		t.Errorf("usage = %#v, want total 15", resp.Usage)
	}
}

func TestGenerateUnexpectedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMaxAttempts(1))
	_, err := c.Generate(context.Background(), Request{APIKey: "k", Model: "m"})
	if !errors.Is(err, ErrUnexpectedShape) {
		t.Errorf("err = %v, want ErrUnexpectedShape", err)
	}
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMaxAttempts(1))
	_, err := c.Generate(context.Background(), Request{APIKey: "bad", Model: "m"})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if httpErr.Status != 401 {
		t.Errorf("status = %d, want 401", httpErr.Status)
	}
	if c := Classify(err); c.Reason != ReasonAuth || c.Retryable {
		t.Errorf("classification = %#v, want non-retryable auth", c)
	}
}

func TestStreamEmitsEventsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("alt = %q, want sse", r.URL.Query().Get("alt"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n"))
		w.Write([]byte("data: not json\n\n"))
		w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"},{\"functionCall\":{\"name\":\"read_file\",\"args\":{\"filename\":\"SOUL.md\"}},\"thoughtSignature\":\"s\"}]}}],\"usageMetadata\":{\"totalTokenCount\":9}}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMaxAttempts(1))
	var events []GenEvent
	err := c.Stream(context.Background(), Request{
		APIKey:   "k",
		Model:    "gemini-test",
		Contents: []Content{TextContent("user", "hi")},
	}, func(ev GenEvent) { events = append(events, ev) })
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	wantTypes := []string{EventTextDelta, EventTextDelta, EventFunctionCall, EventDone}
	if len(events) != len(wantTypes) {
		t.Fatalf("events = %d, want %d: %#v", len(events), len(wantTypes), events)
	}
	for i, w := range wantTypes {
		if events[i].Type != w {
			t.Errorf("event %d type = %s, want %s", i, events[i].Type, w)
		}
	}
	if events[0].Text+events[1].Text != "Hello" {
		t.Errorf("text = %q, want Hello", events[0].Text+events[1].Text)
	}
	if events[2].Call == nil || events[2].Call.Name != "read_file" {
		t.Errorf("call = %#v, want read_file", events[2].Call)
	}
	if events[2].ThoughtSignature != "s" {
		t.Errorf("thoughtSignature = %q, want s", events[2].ThoughtSignature)
	}
	if events[3].Usage == nil || events[3].Usage.TotalTokenCount != 9 {
		t.Errorf("usage = %#v, want total 9", events[3].Usage)
	}
}

func TestRequestBodyCarriesSanitizedTools(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMaxAttempts(1))
	_, err := c.Generate(context.Background(), Request{
		APIKey:            "k",
		Model:             "m",
		SystemInstruction: "be brief",
		Contents:          []Content{TextContent("user", "hi")},
		Tools: []ToolDeclaration{{
			Name:        "search",
			Description: "web search",
			Parameters: map[string]interface{}{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "minLength": float64(1)},
				},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	sys := captured["systemInstruction"].(map[string]interface{})
	parts := sys["parts"].([]interface{})
	if parts[0].(map[string]interface{})["text"] != "be brief" {
		t.Errorf("systemInstruction = %#v", sys)
	}

	tools := captured["tools"].([]interface{})
	decls := tools[0].(map[string]interface{})["functionDeclarations"].([]interface{})
	params := decls[0].(map[string]interface{})["parameters"].(map[string]interface{})
	if _, ok := params["additionalProperties"]; ok {
		t.Error("additionalProperties leaked into provider request")
	}
	query := params["properties"].(map[string]interface{})["query"].(map[string]interface{})
	if _, ok := query["minLength"]; ok {
		t.Error("minLength leaked into provider request")
	}

	tc := captured["toolConfig"].(map[string]interface{})
	mode := tc["functionCallingConfig"].(map[string]interface{})["mode"]
	if mode != "AUTO" {
		t.Errorf("mode = %v, want AUTO", mode)
	}
}
