package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/agentmesh/runtime/pkg/types"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxFetchTimeout     = 120 * time.Second
	minMaxChars         = 256
	defaultMaxChars     = 20000
	maxMaxCharsCap      = 100000
	defaultMaxRedirects = 5
)

// FetchURLTool implements fetch_url/web_fetch: L2, with an SSRF guard that
// rejects any hop resolving to a private/loopback/link-local/reserved/
// multicast/unspecified address.
type FetchURLTool struct {
	MaxRedirects int
}

func (FetchURLTool) Name() string { return "fetch_url" }
func (FetchURLTool) Tier() Tier   { return TierNetwork }

type fetchArgs struct {
	URL         string `json:"url"`
	ExtractMode string `json:"extractMode"` // markdown|text|html
	MaxChars    int    `json:"maxChars,omitempty"`
	TimeoutSecs int    `json:"timeoutSecs,omitempty"`
}

func (t FetchURLTool) Run(ctx context.Context, rawArgs json.RawMessage, call CallContext) types.ToolResult {
	meta := types.ResultMeta{ToolName: "fetch_url"}
	var args fetchArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return types.NewFail(types.ErrInvalidArgs, "invalid arguments: "+err.Error(), false, nil, meta)
	}
	if args.ExtractMode == "" {
		args.ExtractMode = "markdown"
	}
	if args.ExtractMode != "markdown" && args.ExtractMode != "text" && args.ExtractMode != "html" {
		return types.NewFail(types.ErrInvalidArgs, "extractMode must be markdown, text, or html", false, nil, meta)
	}

	maxChars := args.MaxChars
	if maxChars < minMaxChars {
		maxChars = defaultMaxChars
	}
	if maxChars > maxMaxCharsCap {
		maxChars = maxMaxCharsCap
	}

	timeout := defaultFetchTimeout
	if args.TimeoutSecs > 0 {
		timeout = time.Duration(args.TimeoutSecs) * time.Second
	}
	if timeout > maxFetchTimeout {
		timeout = maxFetchTimeout
	}

	maxRedirects := t.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects")
			}
			if err := guardURL(req.URL); err != nil {
				return err
			}
			return nil
		},
	}

	if err := validateFetchURL(args.URL); err != nil {
		return types.NewFail(types.ErrInvalidArgs, err.Error(), false, nil, meta)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, args.URL, nil)
	if err != nil {
		return types.NewFail(types.ErrInvalidArgs, "bad url: "+err.Error(), false, nil, meta)
	}
	req.Header.Set("User-Agent", "agentd-fetch/1.0")

	resp, err := client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return types.NewFail(types.ErrTimeout, "fetch timed out", true, nil, meta)
		}
		return types.NewFail(types.ErrHTTP, err.Error(), true, nil, meta)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewFail(types.ErrHTTP, fmt.Sprintf("status %d", resp.StatusCode), resp.StatusCode >= 500, nil, meta)
	}

	limited := io.LimitReader(resp.Body, int64(maxMaxCharsCap)*4+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return types.NewFail(types.ErrIO, err.Error(), true, nil, meta)
	}

	contentType := resp.Header.Get("Content-Type")
	output, err := extractContent(string(body), contentType, args.ExtractMode, args.URL)
	if err != nil {
		return types.NewFail(types.ErrInternal, "extraction failed: "+err.Error(), false, nil, meta)
	}

	truncated := false
	if len(output) > maxChars {
		output = output[:maxChars]
		truncated = true
	}
	meta.Truncated = truncated

	return types.NewOk(map[string]any{"url": args.URL, "text": output}, meta)
}

func extractContent(body, contentType, mode, sourceURL string) (string, error) {
	isHTML := strings.Contains(contentType, "text/html") || strings.HasPrefix(strings.TrimSpace(body), "<")
	switch mode {
	case "html":
		return body, nil
	case "text":
		if !isHTML {
			return body, nil
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			return "", err
		}
		doc.Find("script, style, noscript, iframe").Remove()
		return strings.TrimSpace(doc.Text()), nil
	default: // markdown
		if !isHTML {
			return body, nil
		}
		if u, err := url.Parse(sourceURL); err == nil {
			if article, err := readability.FromReader(strings.NewReader(body), u); err == nil && strings.TrimSpace(article.Content) != "" {
				body = article.Content
			}
		}
		converter := md.NewConverter("", true, nil)
		converter.Remove("script", "style", "meta", "link")
		return converter.ConvertString(body)
	}
}

// validateFetchURL validates a URL string before the initial request.
func validateFetchURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	return guardURL(u)
}

// guardURL rejects non-http(s) schemes and any host resolving to a
// private, loopback, link-local, reserved (IPv4 240.0.0.0/4), multicast,
// or unspecified address, blocking SSRF via internal-network or metadata-endpoint fetches.
func guardURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing host")
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("dns lookup failed: %w", err)
	}
	for _, ip := range ips {
		if isDisallowedIP(ip) {
			return fmt.Errorf("url resolves to a disallowed address")
		}
	}
	return nil
}

func isDisallowedIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil && v4[0] >= 240 {
		return true // 240.0.0.0/4 is reserved, including 255.255.255.255
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified()
}
