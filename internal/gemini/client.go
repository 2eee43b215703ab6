package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumenworks/gemgate/internal/schema"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// One request, streaming or not, is bounded by this wall clock.
	requestTimeout = 120 * time.Second
)

// Client talks to the Gemini HTTP API via net/http. Safe for concurrent
// use; the API key travels per-request.
type Client struct {
	baseURL     string
	client      *http.Client
	maxAttempts int
}

// NewClient creates a provider client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: requestTimeout},
		maxAttempts: DefaultMaxAttempts,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// Generate issues a non-streaming generateContent call.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, req.Model, url.QueryEscape(req.APIKey))
	body := buildRequestBody(req)

	return RetryDo(ctx, c.maxAttempts, func() (*Response, error) {
		respBody, err := c.doRequest(ctx, endpoint, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var resp genResponse
		if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
			return nil, fmt.Errorf("gemini: decode response: %w", err)
		}
		return projectResponse(&resp)
	})
}

// Stream issues a streamGenerateContent call and invokes onEvent for each
// demultiplexed part, finishing with one done event carrying usage.
// Only the connection phase is retried; once streaming starts, no retry.
func (c *Client) Stream(ctx context.Context, req Request, onEvent func(GenEvent)) error {
	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		c.baseURL, req.Model, url.QueryEscape(req.APIKey))
	body := buildRequestBody(req)

	respBody, err := RetryDo(ctx, c.maxAttempts, func() (io.ReadCloser, error) {
		return c.doRequest(ctx, endpoint, body)
	})
	if err != nil {
		return err
	}
	defer respBody.Close()

	dec := newSSEDecoder(respBody)
	var usage *Usage
	for {
		payload, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("gemini: read stream: %w", err)
		}

		var frame genResponse
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue // malformed frame
		}
		if frame.UsageMetadata != nil {
			usage = frame.UsageMetadata
		}
		if len(frame.Candidates) == 0 {
			continue
		}

		for _, part := range frame.Candidates[0].Content.Parts {
			switch {
			case part.FunctionCall != nil:
				onEvent(GenEvent{
					Type:             EventFunctionCall,
					Call:             part.FunctionCall,
					ThoughtSignature: part.ThoughtSignature,
				})
			case part.Text != "" && !part.Thought:
				onEvent(GenEvent{Type: EventTextDelta, Text: part.Text})
			}
		}
	}

	onEvent(GenEvent{Type: EventDone, Usage: usage})
	return nil
}

func buildRequestBody(req Request) map[string]interface{} {
	body := map[string]interface{}{
		"contents": req.Contents,
	}

	if req.SystemInstruction != "" {
		body["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{{"text": req.SystemInstruction}},
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]map[string]interface{}, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, map[string]interface{}{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  schema.Sanitize(t.Parameters),
			})
		}
		body["tools"] = []map[string]interface{}{
			{"functionDeclarations": decls},
		}

		mode := strings.ToUpper(req.ToolConfig)
		if mode == "" {
			mode = "AUTO"
		}
		body["toolConfig"] = map[string]interface{}{
			"functionCallingConfig": map[string]interface{}{"mode": mode},
		}
	}

	genCfg := map[string]interface{}{}
	if req.Temperature != nil {
		genCfg["temperature"] = *req.Temperature
	}
	if req.MaxOutputTokens > 0 {
		genCfg["maxOutputTokens"] = req.MaxOutputTokens
	}
	if req.ThinkingBudget != nil {
		genCfg["thinkingConfig"] = map[string]interface{}{
			"thinkingBudget": *req.ThinkingBudget,
		}
	}
	if len(genCfg) > 0 {
		body["generationConfig"] = genCfg
	}

	return body
}

func (c *Client) doRequest(ctx context.Context, endpoint string, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return resp.Body, nil
}

func projectResponse(resp *genResponse) (*Response, error) {
	if len(resp.Candidates) == 0 {
		return nil, ErrUnexpectedShape
	}

	out := &Response{Usage: resp.UsageMetadata}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			out.Calls = append(out.Calls, CallPart{
				FunctionCall:     *part.FunctionCall,
				ThoughtSignature: part.ThoughtSignature,
			})
		case !part.Thought:
			out.Text += part.Text
		}
	}
	return out, nil
}
