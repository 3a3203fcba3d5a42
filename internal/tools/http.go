package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parley-sh/parley/pkg/schema"
)

// HTTPConfig configures the http.request tool.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// HTTPRequestTool implements the "http.request" built-in.
// Args: method (default GET), url (required), headers (map), body (any,
// JSON-encoded when present), timeout (duration string), fail_on_error_status.
type HTTPRequestTool struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPRequestTool creates the http.request tool with config defaults applied.
func NewHTTPRequestTool(cfg HTTPConfig) *HTTPRequestTool {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	return &HTTPRequestTool{
		config: cfg,
		client: &http.Client{},
	}
}

func (t *HTTPRequestTool) Name() string { return "http.request" }

func (t *HTTPRequestTool) Description() string {
	return "Execute an HTTP request with control over method, headers, body, and timeout."
}

func (t *HTTPRequestTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	rawURL := stringParam(args, "url", "")
	if rawURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "http.request: missing required param 'url'")
	}
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "http.request: invalid url %q", rawURL)
	}

	method := strings.ToUpper(stringParam(args, "method", "GET"))
	failOnErrorStatus := boolParam(args, "fail_on_error_status", false)

	timeout := t.config.DefaultTimeout
	if ts := stringParam(args, "timeout", ""); ts != "" {
		if d, err := time.ParseDuration(ts); err == nil {
			timeout = d
		}
	}

	var bodyReader io.Reader
	var contentType string
	if rawBody, ok := args["body"]; ok && rawBody != nil {
		if s, isStr := rawBody.(string); isStr {
			bodyReader = strings.NewReader(s)
			contentType = "text/plain"
		} else {
			b, err := json.Marshal(rawBody)
			if err != nil {
				return nil, schema.NewError(schema.ErrCodeEffectFailed, "http.request: failed to marshal body as JSON").WithCause(err)
			}
			bodyReader = strings.NewReader(string(b))
			contentType = "application/json"
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeEffectFailed, "http.request: failed to create request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if hdrs, ok := args["headers"].(map[string]any); ok {
		for k, v := range hdrs {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEffectFailed, "http.request: request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, t.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeEffectFailed, "http.request: failed to read response body").WithCause(err)
	}

	respContentType := resp.Header.Get("Content-Type")
	var parsedBody any
	if len(bodyBytes) == 0 {
		parsedBody = nil
	} else if strings.Contains(respContentType, "application/json") {
		var jsonBody any
		if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
			parsedBody = jsonBody
		} else {
			parsedBody = string(bodyBytes)
		}
	} else {
		parsedBody = string(bodyBytes)
	}

	result := map[string]any{
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"body":         parsedBody,
		"content_type": respContentType,
		"duration_ms":  durationMs,
	}

	if failOnErrorStatus && resp.StatusCode >= 400 {
		return nil, schema.NewErrorf(schema.ErrCodeEffectFailed, "http.request: server returned %d", resp.StatusCode).
			WithDetails(result)
	}
	return result, nil
}
