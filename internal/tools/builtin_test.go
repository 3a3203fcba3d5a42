package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-sh/parley/pkg/schema"
)

func TestEchoTool(t *testing.T) {
	out, err := EchoTool{}.Execute(context.Background(), map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestEchoTool_MissingMessage(t *testing.T) {
	_, err := EchoTool{}.Execute(context.Background(), map[string]any{})
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeValidation, flowErr.Code)
}

func TestJQTool_SingleResult(t *testing.T) {
	out, err := JQTool{}.Execute(context.Background(), map[string]any{
		"query": ".name",
		"input": map[string]any{"name": "Ada", "age": float64(36)},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", out)
}

func TestJQTool_JSONStringInput(t *testing.T) {
	out, err := JQTool{}.Execute(context.Background(), map[string]any{
		"query": ".items | length",
		"input": `{"items": [1, 2, 3]}`,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out)
}

func TestJQTool_MultipleResults(t *testing.T) {
	out, err := JQTool{}.Execute(context.Background(), map[string]any{
		"query": ".[]",
		"input": []any{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out)
}

func TestJQTool_InvalidQuery(t *testing.T) {
	_, err := JQTool{}.Execute(context.Background(), map[string]any{
		"query": ".[unclosed",
		"input": map[string]any{},
	})
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeValidation, flowErr.Code)
}

func TestJQTool_MissingQuery(t *testing.T) {
	_, err := JQTool{}.Execute(context.Background(), map[string]any{"input": "{}"})
	assert.Error(t, err)
}

func TestHTTPRequestTool_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	tool := NewHTTPRequestTool(HTTPConfig{})
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)

	result, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, result["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, result["body"])
}

func TestHTTPRequestTool_PostBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tool := NewHTTPRequestTool(HTTPConfig{})
	out, err := tool.Execute(context.Background(), map[string]any{
		"url":    srv.URL,
		"method": "post",
		"body":   map[string]any{"k": "v"},
	})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, http.StatusCreated, result["status_code"])
}

func TestHTTPRequestTool_FailOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tool := NewHTTPRequestTool(HTTPConfig{})
	_, err := tool.Execute(context.Background(), map[string]any{
		"url":                  srv.URL,
		"fail_on_error_status": true,
	})
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeEffectFailed, flowErr.Code)
}

func TestHTTPRequestTool_InvalidURL(t *testing.T) {
	tool := NewHTTPRequestTool(HTTPConfig{})

	_, err := tool.Execute(context.Background(), map[string]any{"url": "not-a-url"})
	assert.Error(t, err)

	_, err = tool.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}
