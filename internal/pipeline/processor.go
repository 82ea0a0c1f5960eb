// Package pipeline runs one upload through invoke -> parse -> write and
// records the outcome on the ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/entity"
	"github.com/joseph-ayodele/shift-reports/internal/llm"
	"github.com/joseph-ayodele/shift-reports/internal/metrics"
	"github.com/joseph-ayodele/shift-reports/internal/records"
)

type StatusLedger interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Upload, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkProcessed(ctx context.Context, id uuid.UUID, recordCount int) error
	MarkError(ctx context.Context, id uuid.UUID, msg string, recordCount int) error
}

type Invoker interface {
	Invoke(ctx context.Context, rt constants.ReportType, fileURL, mediaType string) (string, error)
	Provider() string
}

type RecordWriter interface {
	Write(ctx context.Context, rt constants.ReportType, parsed any, sourceFileURL string, opts ...records.WriteOption) records.WriteOutcome
}

// RetryPolicy applies to retryable extraction failures only.
type RetryPolicy struct {
	Attempts uint          // total tries, at least 1
	Delay    time.Duration // base backoff delay
}

// Processor is stateless across uploads and safe for concurrent use.
type Processor struct {
	ledger  StatusLedger
	invoker Invoker
	writer  RecordWriter
	retry   RetryPolicy
	logger  *slog.Logger
}

func NewProcessor(ledger StatusLedger, invoker Invoker, writer RecordWriter, retry RetryPolicy, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.Attempts == 0 {
		retry.Attempts = 1
	}
	return &Processor{ledger: ledger, invoker: invoker, writer: writer, retry: retry, logger: logger}
}

// Process runs the stages in order. Every failure after MarkProcessing ends
// the row in error with the failing stage's message; it is never returned.
// The result is the row as stored after processing.
func (p *Processor) Process(ctx context.Context, u *entity.Upload) *entity.Upload {
	defer metrics.TrackInFlight()()
	start := time.Now()
	log := common.LoggerFromContext(ctx, p.logger).With("upload_id", u.ID, "report_type", u.ReportType)

	if err := p.ledger.MarkProcessing(ctx, u.ID); err != nil {
		log.Warn("pipeline.mark_processing.failed", "error", err)
		return p.current(ctx, u)
	}

	raw, err := p.invoke(ctx, log, u)
	if err != nil {
		return p.fail(ctx, log, u, "extraction failed", err, 0)
	}

	t := time.Now()
	parsed, err := llm.ParseLenient(raw)
	metrics.ObserveStage("parse", string(u.ReportType), time.Since(t))
	if err != nil {
		return p.fail(ctx, log, u, "parse failed", err, 0)
	}

	t = time.Now()
	out := p.writer.Write(ctx, u.ReportType, parsed, u.FileURL, records.WithUploadID(u.ID))
	metrics.ObserveStage("write", string(u.ReportType), time.Since(t))
	metrics.RecordWrite(string(u.ReportType), out.Written, out.Skipped, out.Failed)
	if out.Err != nil {
		return p.fail(ctx, log, u, "record write failed", out.Err, out.Written)
	}

	if err := p.ledger.MarkProcessed(context.WithoutCancel(ctx), u.ID, out.Written); err != nil {
		log.Error("pipeline.mark_processed.failed", "error", err)
		return p.current(ctx, u)
	}
	metrics.RecordOutcome(string(u.ReportType), string(constants.UploadStatusProcessed))
	log.Info("pipeline.processed",
		"records", out.Written,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return p.current(ctx, u)
}

func (p *Processor) invoke(ctx context.Context, log *slog.Logger, u *entity.Upload) (string, error) {
	start := time.Now()
	defer func() { metrics.ObserveStage("invoke", string(u.ReportType), time.Since(start)) }()

	return retry.DoWithData(
		func() (string, error) {
			return p.invoker.Invoke(ctx, u.ReportType, u.FileURL, u.ContentType)
		},
		retry.Attempts(p.retry.Attempts),
		retry.Delay(p.retry.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(llm.IsRetryable),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			metrics.RecordRetry(p.invoker.Provider())
			log.Warn("pipeline.invoke.retry", "attempt", n+1, "error", err)
		}),
	)
}

func (p *Processor) fail(ctx context.Context, log *slog.Logger, u *entity.Upload, stage string, cause error, written int) *entity.Upload {
	msg := fmt.Sprintf("%s: %v", stage, cause)
	log.Error("pipeline.failed", "stage", stage, "error", cause, "records", written)

	// finish the row even when the caller's context is gone
	if err := p.ledger.MarkError(context.WithoutCancel(ctx), u.ID, msg, written); err != nil {
		if errors.Is(err, common.ErrInvalidTransition) {
			log.Warn("pipeline.mark_error.refused", "error", err)
		} else {
			log.Error("pipeline.mark_error.failed", "error", err)
		}
	}
	metrics.RecordOutcome(string(u.ReportType), string(constants.UploadStatusError))
	return p.current(ctx, u)
}

func (p *Processor) current(ctx context.Context, u *entity.Upload) *entity.Upload {
	got, err := p.ledger.Get(context.WithoutCancel(ctx), u.ID)
	if err != nil {
		p.logger.Warn("pipeline.reload.failed", "upload_id", u.ID, "error", err)
		return u.Clone()
	}
	return got
}
