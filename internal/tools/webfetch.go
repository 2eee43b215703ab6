package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/lumenworks/gemgate/pkg/protocol"
)

const (
	fetchMaxChars     = 50000
	fetchMaxRedirects = 3
	fetchTimeout      = 30 * time.Second
	fetchUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// WebFetchTool downloads a URL and returns readable text. HTML is
// reduced to a markdown-like form, JSON is pretty-printed, everything
// else passes through truncated.
type WebFetchTool struct {
	client   *http.Client
	maxChars int
}

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= fetchMaxRedirects {
					return fmt.Errorf("stopped after %d redirects", fetchMaxRedirects)
				}
				return nil
			},
		},
		maxChars: fetchMaxChars,
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch a URL and return its content as readable text. HTML pages are converted to markdown."
}

func (t *WebFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "The http or https URL to fetch",
			},
			"max_chars": map[string]interface{}{
				"type":        "integer",
				"description": "Truncate the result to this many characters",
			},
		},
		"required": []interface{}{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, callID string, args map[string]interface{}) (protocol.ToolResult, error) {
	rawURL := stringArg(args, "url")
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return protocol.ErrorResult(callID, fmt.Sprintf("invalid url: %s", rawURL)), nil
	}

	maxChars := t.maxChars
	if n, ok := args["max_chars"].(float64); ok && n > 0 {
		maxChars = int(n)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return protocol.ErrorResult(callID, err.Error()), nil
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return protocol.ErrorResult(callID, fmt.Sprintf("fetch: %v", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return protocol.ErrorResult(callID, fmt.Sprintf("fetch: %s returned %d", u.Host, resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxChars)*4))
	if err != nil {
		return protocol.ErrorResult(callID, fmt.Sprintf("read body: %v", err)), nil
	}

	text := extractReadable(body, resp.Header.Get("Content-Type"))
	if len(text) > maxChars {
		text = text[:maxChars] + "\n[truncated]"
	}
	return protocol.TextResult(callID, text), nil
}

var (
	reStrip   = regexp.MustCompile(`(?is)<script[\s\S]*?</script>|<style[\s\S]*?</style>|<nav[\s\S]*?</nav>|<footer[\s\S]*?</footer>|<!--[\s\S]*?-->`)
	reHeading = regexp.MustCompile(`(?i)<h([1-6])[^>]*>([\s\S]*?)</h[1-6]>`)
	reBreakP  = regexp.MustCompile(`(?i)</p>|<br\s*/?>`)
	reListEl  = regexp.MustCompile(`(?i)<li[^>]*>`)
	reTag     = regexp.MustCompile(`<[^>]+>`)
	reMultiNL = regexp.MustCompile(`\n{3,}`)
	reMultiSP = regexp.MustCompile(`[ \t]{2,}`)
)

// extractReadable converts a fetched body to plain text based on its
// content type. Not a full readability pass, enough for common pages.
func extractReadable(body []byte, contentType string) string {
	switch {
	case strings.Contains(contentType, "application/json"):
		var data interface{}
		if err := json.Unmarshal(body, &data); err == nil {
			formatted, _ := json.MarshalIndent(data, "", "  ")
			return string(formatted)
		}
		return string(body)
	case strings.Contains(contentType, "text/html"), looksLikeHTML(body):
		return htmlToText(string(body))
	default:
		return string(body)
	}
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<!doctype html") || strings.Contains(head, "<html")
}

func htmlToText(html string) string {
	s := reStrip.ReplaceAllString(html, "")
	s = reHeading.ReplaceAllStringFunc(s, func(m string) string {
		parts := reHeading.FindStringSubmatch(m)
		level := int(parts[1][0] - '0')
		return "\n" + strings.Repeat("#", level) + " " + parts[2] + "\n"
	})
	s = reBreakP.ReplaceAllString(s, "\n")
	s = reListEl.ReplaceAllString(s, "\n- ")
	s = reTag.ReplaceAllString(s, "")
	s = unescapeEntities(s)
	s = reMultiSP.ReplaceAllString(s, " ")
	s = reMultiNL.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

func unescapeEntities(s string) string {
	return entityReplacer.Replace(s)
}
