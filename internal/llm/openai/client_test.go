package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/llm"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestClient_ExtractImage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```json\\n{\\\"result\\\":\\\"pass\\\"}\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test"}, discard())
	out, err := c.Extract(context.Background(), llm.Request{
		ReportType:  constants.ReportTypeQC,
		Instruction: "read the sheet",
		Data:        []byte{0xff, 0xd8, 0xff},
		MediaType:   "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, "```json\n{\"result\":\"pass\"}\n```", out, "content is returned verbatim")

	assert.Equal(t, "gpt-test", got["model"])
	msgs := got["messages"].([]any)
	user := msgs[1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "read the sheet", parts[0].(map[string]any)["text"])
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.True(t, strings.HasPrefix(img["url"].(string), "data:image/jpeg;base64,"))
}

func TestClient_ExtractPDFUsesFilePart(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"[]"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, discard())
	_, err := c.Extract(context.Background(), llm.Request{
		Instruction: "x", Data: []byte("%PDF-1.7"), MediaType: "application/pdf", FileName: "factory/a.pdf",
	})
	require.NoError(t, err)
	parts := got["messages"].([]any)[1].(map[string]any)["content"].([]any)
	file := parts[1].(map[string]any)["file"].(map[string]any)
	assert.Equal(t, "a.pdf", file["filename"])
	assert.True(t, strings.HasPrefix(file["file_data"].(string), "data:application/pdf;base64,"))
}

func TestClient_ExtractErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"server error", http.StatusBadGateway, `{"error":"upstream"}`, true},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, true},
		{"bad request", http.StatusBadRequest, `{"error":"bad image"}`, false},
		{"no choices", http.StatusOK, `{"choices":[]}`, false},
		{"garbage body", http.StatusOK, `<html>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, discard())
			_, err := c.Extract(context.Background(), llm.Request{Instruction: "x", Data: []byte("x"), MediaType: "image/png"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrExtractionService))
			assert.Equal(t, tt.retryable, llm.IsRetryable(err))
		})
	}
}

func TestClient_NetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: url}, discard())
	_, err := c.Extract(context.Background(), llm.Request{Instruction: "x", Data: []byte("x"), MediaType: "image/png"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrExtractionService))
	assert.True(t, llm.IsRetryable(err))
}
