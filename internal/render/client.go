// Package render calls the external document-render service, which turns a
// record into a PDF and returns where it can be downloaded.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/shift-reports/internal/common"
)

// ErrNotConfigured is returned when no render service URL is set.
var ErrNotConfigured = errors.New("document render service is not configured")

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type generateRequest struct {
	DocumentType string `json:"documentType"`
	EntityID     string `json:"entityId"`
}

type generateResponse struct {
	DownloadURL string `json:"downloadUrl"`
}

// Generate asks the service to render docType for entityID and returns the
// download URL. The response is otherwise opaque.
func (c *Client) Generate(ctx context.Context, docType, entityID string) (string, error) {
	if c.base == "" {
		return "", ErrNotConfigured
	}
	docType, entityID = strings.TrimSpace(docType), strings.TrimSpace(entityID)
	if docType == "" || entityID == "" {
		return "", fmt.Errorf("%w: document type and entity id are required", common.ErrInvalidInput)
	}

	start := time.Now()
	body, err := json.Marshal(generateRequest{DocumentType: docType, EntityID: entityID})
	if err != nil {
		return "", fmt.Errorf("encode render request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if rid := common.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("render.generate.send_error", "doc_type", docType, "entity_id", entityID, "error", err)
		return "", fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read render response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		c.logger.Error("render.generate.status", "status", resp.StatusCode, "doc_type", docType, "entity_id", entityID)
		return "", fmt.Errorf("render service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode render response: %w", err)
	}
	if out.DownloadURL == "" {
		return "", errors.New("render service returned no download url")
	}
	c.logger.Info("render.generate.ok",
		"doc_type", docType,
		"entity_id", entityID,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out.DownloadURL, nil
}
