// Package gemini calls the Gemini generateContent endpoint with the report
// file attached as inline data.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joseph-ayodele/shift-reports/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Client) Name() string { return "gemini" }

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

func (c *Client) Extract(ctx context.Context, req llm.Request) (string, error) {
	start := time.Now()
	body := map[string]any{
		"contents": []map[string]any{{
			"role": "user",
			"parts": []part{
				{Text: req.Instruction},
				{InlineData: &inlineData{MimeType: req.MediaType, Data: llm.Base64(req.Data)}},
			},
		}},
		"generationConfig": map[string]any{"temperature": c.cfg.Temperature},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + url.PathEscape(c.cfg.Model) + ":generateContent"
	raw, err := llm.Post(ctx, c.Name(), c.http, endpoint, body, map[string]string{
		"x-goog-api-key": c.cfg.APIKey,
	}, c.logger)
	if err != nil {
		return "", err
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &llm.ServiceError{Provider: c.Name(), Op: "decode", Err: err}
	}
	if len(resp.Candidates) == 0 {
		return "", &llm.ServiceError{Provider: c.Name(), Op: "decode", Err: errors.New("no candidates in gemini response")}
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	c.logger.Info("llm.extract.ok",
		"provider", c.Name(),
		"model", c.cfg.Model,
		"report_type", req.ReportType,
		"finish_reason", resp.Candidates[0].FinishReason,
		"content_len", sb.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return sb.String(), nil
}
