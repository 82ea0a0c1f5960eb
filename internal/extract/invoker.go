// Package extract turns a stored report file into raw extraction-service
// output for one report type.
package extract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"
	"path"
	"time"

	"github.com/disintegration/imaging"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/llm"
	"github.com/joseph-ayodele/shift-reports/internal/objectstore"
)

// Fetcher resolves a file URL to its bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Invoker struct {
	fetcher     Fetcher
	provider    llm.Provider
	maxImageDim int
	heic        *HEICConverter
	logger      *slog.Logger
}

type InvokerOption func(*Invoker)

// WithHEICConverter converts HEIC/HEIF files to JPEG before extraction.
func WithHEICConverter(c *HEICConverter) InvokerOption {
	return func(i *Invoker) { i.heic = c }
}

// NewInvoker builds an Invoker. maxImageDim <= 0 disables downscaling.
func NewInvoker(fetcher Fetcher, provider llm.Provider, maxImageDim int, logger *slog.Logger, opts ...InvokerOption) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Invoker{fetcher: fetcher, provider: provider, maxImageDim: maxImageDim, logger: logger}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Provider returns the configured extraction provider name.
func (i *Invoker) Provider() string { return i.provider.Name() }

// Invoke fetches fileURL, attaches it to the instruction for rt and returns
// the provider's text unchanged. It never touches the ledger or record tables.
func (i *Invoker) Invoke(ctx context.Context, rt constants.ReportType, fileURL, mediaType string) (string, error) {
	start := time.Now()
	instruction, err := llm.BuildInstruction(rt)
	if err != nil {
		return "", err
	}

	data, err := i.fetcher.Fetch(ctx, fileURL)
	if err != nil {
		se := &llm.ServiceError{Provider: i.provider.Name(), Op: "fetch", Err: err}
		var fse *objectstore.FetchStatusError
		if errors.As(err, &fse) {
			se.StatusCode = fse.StatusCode
		}
		i.logger.Error("extract.fetch.failed", "report_type", rt, "file_url", fileURL, "error", err)
		return "", se
	}

	mediaType = constants.BaseContentType(mediaType)
	if i.heic != nil && i.heic.Handles(mediaType) {
		converted, err := i.heic.Convert(ctx, data)
		if err != nil {
			i.logger.Error("extract.heic.failed", "report_type", rt, "file_url", fileURL, "error", err)
			return "", &llm.ServiceError{Provider: i.provider.Name(), Op: "convert", Err: err}
		}
		data, mediaType = converted, "image/jpeg"
	}
	if constants.IsImage(mediaType) && i.maxImageDim > 0 {
		if out, ok := i.downscale(data); ok {
			i.logger.Debug("extract.image.downscaled", "from_bytes", len(data), "to_bytes", len(out))
			data, mediaType = out, "image/jpeg"
		}
	}

	out, err := i.provider.Extract(ctx, llm.Request{
		ReportType:  rt,
		Instruction: instruction,
		Data:        data,
		MediaType:   mediaType,
		FileName:    path.Base(fileURL),
	})
	if err != nil {
		return "", err
	}
	i.logger.Info("extract.invoke.ok",
		"report_type", rt,
		"provider", i.provider.Name(),
		"bytes", len(data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// downscale re-encodes images larger than maxImageDim on either side as JPEG.
// Images that cannot be decoded are sent as-is.
func (i *Invoker) downscale(data []byte) ([]byte, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || (cfg.Width <= i.maxImageDim && cfg.Height <= i.maxImageDim) {
		return nil, false
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, false
	}
	img = imaging.Fit(img, i.maxImageDim, i.maxImageDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
