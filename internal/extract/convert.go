package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		logger.Error("exec failed",
			"cmd", name,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		logger.Debug("exec ok", "cmd", name, "elapsed_ms", time.Since(start).Milliseconds())
	}
	return out.Bytes(), errb.Bytes(), err
}

// HEICConverter turns HEIC/HEIF photos into JPEG with an external tool,
// since extraction services and the image decoders only take common formats.
type HEICConverter struct {
	// Tool is one of heif-convert, magick or sips.
	Tool   string
	runner Runner
	logger *slog.Logger
}

func NewHEICConverter(tool string, runner Runner, logger *slog.Logger) (*HEICConverter, error) {
	switch tool {
	case "heif-convert", "magick", "sips":
	default:
		return nil, fmt.Errorf("unsupported heic converter %q: use heif-convert, magick or sips", tool)
	}
	if runner == nil {
		runner = execRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HEICConverter{Tool: tool, runner: runner, logger: logger}, nil
}

// Handles reports whether mediaType needs conversion.
func (c *HEICConverter) Handles(mediaType string) bool {
	return mediaType == "image/heic" || mediaType == "image/heif"
}

// Convert writes data to a scratch directory, runs the tool and returns the JPEG.
func (c *HEICConverter) Convert(ctx context.Context, data []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "shift-heic-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in, out := filepath.Join(dir, "in.heic"), filepath.Join(dir, "out.jpg")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	var args []string
	switch c.Tool {
	case "heif-convert":
		args = []string{"-q", "90", in, out}
	case "magick":
		args = []string{in, "-quality", "90", out}
	case "sips":
		args = []string{"-s", "format", "jpeg", in, "--out", out}
	}
	if _, errb, err := c.runner.Run(ctx, c.Tool, c.logger, args...); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", c.Tool, err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	b, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("heic conversion produced no output: %w", err)
	}
	return b, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
