package render

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/shift-reports/internal/common"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "rid-1", r.Header.Get("X-Request-ID"))
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, generateRequest{DocumentType: "invoice", EntityID: "42"}, req)
		_ = json.NewEncoder(w).Encode(generateResponse{DownloadURL: "https://cdn.test/invoice-42.pdf"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/"}, discard())
	got, err := c.Generate(common.WithRequestID(context.Background(), "rid-1"), "invoice", "42")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/invoice-42.pdf", got)
}

func TestGenerateErrors(t *testing.T) {
	_, err := NewClient(Config{}, discard()).Generate(context.Background(), "invoice", "1")
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = NewClient(Config{BaseURL: "http://unused"}, discard()).Generate(context.Background(), " ", "1")
	assert.True(t, errors.Is(err, common.ErrInvalidInput))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("x") == "" {
			http.Error(w, "browser crashed", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	_, err = NewClient(Config{BaseURL: srv.URL}, discard()).Generate(context.Background(), "quote", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
