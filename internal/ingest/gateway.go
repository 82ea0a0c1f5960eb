// Package ingest accepts report files from HTTP, the CLI, a directory walk
// or a watch folder and hands them to the pipeline.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/async"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/entity"
	"github.com/joseph-ayodele/shift-reports/internal/metrics"
)

// SubmitRequest is one file as received from a client.
type SubmitRequest struct {
	FileName    string
	ContentType string
	Data        []byte
	ReportType  string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
}

type Ledger interface {
	Create(ctx context.Context, u *entity.Upload) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Upload, error)
	FindByHash(ctx context.Context, rt constants.ReportType, hash string) (*entity.Upload, error)
	MarkError(ctx context.Context, id uuid.UUID, msg string, recordCount int) error
}

type Processor interface {
	Process(ctx context.Context, u *entity.Upload) *entity.Upload
}

type Gateway struct {
	store    ObjectStore
	ledger   Ledger
	proc     Processor
	queue    async.Queue
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

type GatewayOption func(*Gateway)

// WithQueue enables SubmitAsync.
func WithQueue(q async.Queue) GatewayOption {
	return func(g *Gateway) { g.queue = q }
}

// WithMaxBytes caps the payload size; <= 0 disables the cap.
func WithMaxBytes(n int64) GatewayOption {
	return func(g *Gateway) { g.maxBytes = n }
}

func NewGateway(store ObjectStore, ledger Ledger, proc Processor, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		store:    store,
		ledger:   ledger,
		proc:     proc,
		maxBytes: constants.MaxUploadMBDefault << 20,
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Submit stores the file, records a pending ledger row and runs the pipeline
// before returning the final row. Errors before the ledger row exists are
// returned; later failures are recorded on the row. A file whose content
// already has a live row of the same report type returns that row with
// Deduplicated set and is not processed again.
func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (*entity.Upload, error) {
	u, err := g.accept(ctx, req)
	if err != nil || u.Deduplicated {
		return u, err
	}
	return g.proc.Process(ctx, u), nil
}

// SubmitAsync is Submit with processing handed to the worker queue. The
// pending row is returned immediately; callers poll the ledger.
func (g *Gateway) SubmitAsync(ctx context.Context, req SubmitRequest) (*entity.Upload, error) {
	if g.queue == nil {
		return nil, fmt.Errorf("%w: async processing is not configured", common.ErrInvalidInput)
	}
	u, err := g.accept(ctx, req)
	if err != nil || u.Deduplicated {
		return u, err
	}
	if err := g.queue.Enqueue(ctx, async.Job{
		UploadID:   u.ID,
		ReportType: u.ReportType,
		TraceID:    common.RequestIDFromContext(ctx),
	}); err != nil {
		return g.abandon(ctx, u, fmt.Errorf("enqueue failed: %w", err))
	}
	return u, nil
}

// abandon ends a pending row that will never reach the pipeline.
func (g *Gateway) abandon(ctx context.Context, u *entity.Upload, cause error) (*entity.Upload, error) {
	log := common.LoggerFromContext(ctx, g.logger)
	log.Error("ingest.enqueue.failed", "upload_id", u.ID, "error", cause)

	ctx = context.WithoutCancel(ctx)
	if err := g.ledger.MarkError(ctx, u.ID, cause.Error(), 0); err != nil {
		log.Error("ingest.mark_error.failed", "upload_id", u.ID, "error", err)
		return u, nil
	}
	metrics.RecordOutcome(string(u.ReportType), string(constants.UploadStatusError))
	got, err := g.ledger.Get(ctx, u.ID)
	if err != nil {
		return u, nil
	}
	return got, nil
}

// SubmitPath reads a file from disk and submits it.
func (g *Gateway) SubmitPath(ctx context.Context, path string, reportType constants.ReportType) (*entity.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return g.Submit(ctx, SubmitRequest{
		FileName:    filepath.Base(path),
		ContentType: constants.ContentTypeFromName(path),
		Data:        data,
		ReportType:  string(reportType),
	})
}

// HandleJob is the worker-queue handler: it processes a pending row or
// submits a file found on disk.
func (g *Gateway) HandleJob(ctx context.Context, job async.Job) error {
	if job.Path != "" {
		u, err := g.SubmitPath(ctx, job.Path, job.ReportType)
		if err != nil {
			return err
		}
		if u.Deduplicated {
			return nil
		}
		if u.Status == constants.UploadStatusError {
			return fmt.Errorf("upload %s: %s", u.ID, deref(u.ErrorMessage))
		}
		return nil
	}
	u, err := g.ledger.Get(ctx, job.UploadID)
	if err != nil {
		return err
	}
	if got := g.proc.Process(ctx, u); got.Status == constants.UploadStatusError {
		return fmt.Errorf("upload %s: %s", got.ID, deref(got.ErrorMessage))
	}
	return nil
}

func (g *Gateway) accept(ctx context.Context, req SubmitRequest) (*entity.Upload, error) {
	log := common.LoggerFromContext(ctx, g.logger)

	rt, err := constants.ParseReportType(req.ReportType)
	if err != nil {
		metrics.RecordIntakeRejected("report_type")
		return nil, common.NewAppError(common.CodeInvalidReportType, err.Error(), common.ErrInvalidReportType)
	}
	if len(req.Data) == 0 {
		metrics.RecordIntakeRejected("empty")
		return nil, fmt.Errorf("%w: empty file", common.ErrInvalidInput)
	}
	if g.maxBytes > 0 && int64(len(req.Data)) > g.maxBytes {
		metrics.RecordIntakeRejected("too_large")
		return nil, common.NewAppError(common.CodePayloadTooLarge,
			fmt.Sprintf("%d bytes exceeds limit of %d", len(req.Data), g.maxBytes), common.ErrPayloadTooLarge)
	}

	ct := resolveContentType(req.ContentType, req.Data)
	if !constants.IsSupportedContentType(ct) {
		metrics.RecordIntakeRejected("media_type")
		log.Warn("ingest.rejected.media_type", "file_name", req.FileName, "content_type", ct)
		return nil, common.NewAppError(common.CodeUnsupportedMediaType,
			fmt.Sprintf("%q is not an image or PDF", ct), common.ErrUnsupportedMediaType)
	}

	sum := sha256.Sum256(req.Data)
	hash := hex.EncodeToString(sum[:])
	existing, err := g.ledger.FindByHash(ctx, rt, hash)
	switch {
	case err == nil:
		metrics.RecordDeduplicated(string(rt))
		log.Info("ingest.deduplicated", "upload_id", existing.ID, "report_type", rt, "file_name", req.FileName)
		existing.Deduplicated = true
		return existing, nil
	case !errors.Is(err, common.ErrNotFound):
		log.Error("ingest.dedup.failed", "report_type", rt, "error", err)
		return nil, err
	}

	id := uuid.New()
	key := fmt.Sprintf("%s/%s.%s", rt, id, constants.ExtForContentType(ct, req.FileName))
	if err := g.store.Put(ctx, key, req.Data, ct); err != nil {
		metrics.RecordIntakeRejected("storage")
		log.Error("ingest.storage.failed", "key", key, "error", err)
		return nil, err
	}

	u := &entity.Upload{
		ID:          id,
		FileName:    displayName(req.FileName, key),
		FileURL:     g.store.PublicURL(key),
		StoragePath: key,
		ContentType: ct,
		ContentHash: hash,
		ReportType:  rt,
		Status:      constants.UploadStatusPending,
		UploadedAt:  g.now().UTC().Truncate(time.Microsecond),
	}
	if err := g.ledger.Create(ctx, u); err != nil {
		log.Error("ingest.ledger.failed", "upload_id", id, "key", key, "error", err)
		return nil, err
	}

	metrics.RecordSubmitted(string(rt))
	log.Info("ingest.accepted",
		"upload_id", id,
		"report_type", rt,
		"content_type", ct,
		"bytes", len(req.Data),
		"key", key,
	)
	return u, nil
}

// resolveContentType trusts a declared type unless it is missing or generic,
// in which case the bytes are sniffed.
func resolveContentType(declared string, data []byte) string {
	ct := constants.BaseContentType(declared)
	if ct == "" || ct == constants.ContentTypeOctetStream {
		return constants.BaseContentType(mimetype.Detect(data).String())
	}
	return ct
}

func displayName(name, key string) string {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == "/" {
		return filepath.Base(key)
	}
	return name
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
