package openai

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/llm"
)

// Extract implements llm.Provider using vision chat/completions. Images go
// as image_url parts, PDFs as file parts; both carry a base64 data URL.
func (c *Client) Extract(ctx context.Context, req llm.Request) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", c.Name(),
		"model", c.cfg.Model,
		"report_type", req.ReportType,
		"media_type", req.MediaType,
		"bytes", len(req.Data),
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
		"messages": []map[string]any{
			{"role": "system", "content": "You extract structured data from photographed factory shift reports."},
			{"role": "user", "content": userContent(req)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := llm.Post(ctx, c.Name(), c.http, endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", &llm.ServiceError{Provider: c.Name(), Op: "decode", Err: err}
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices",
			"req_id", rid, "elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", &llm.ServiceError{Provider: c.Name(), Op: "decode", Err: errors.New("no choices in openai response")}
	}

	content := cc.Choices[0].Message.Content
	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func userContent(req llm.Request) []map[string]any {
	parts := []map[string]any{
		{"type": "text", "text": req.Instruction},
	}
	dataURL := llm.DataURL(req.MediaType, req.Data)
	if constants.BaseContentType(req.MediaType) == constants.ContentTypePDF {
		name := path.Base(req.FileName)
		if name == "" || name == "." || name == "/" {
			name = "report.pdf"
		}
		parts = append(parts, map[string]any{
			"type": "file",
			"file": map[string]any{"filename": name, "file_data": dataURL},
		})
		return parts
	}
	parts = append(parts, map[string]any{
		"type":      "image_url",
		"image_url": map[string]any{"url": dataURL, "detail": "high"},
	})
	return parts
}
