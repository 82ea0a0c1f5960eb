// Package ledger tracks every upload through pending -> processing ->
// processed|error, with an orthogonal flagged overlay for manual review.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/entity"
	"github.com/joseph-ayodele/shift-reports/internal/repository"
)

// Patch is a targeted field update; nil fields are untouched.
type Patch = repository.UploadPatch

type Ledger struct {
	repo   repository.UploadRepository
	logger *slog.Logger
	now    func() time.Time
}

func New(repo repository.UploadRepository, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{repo: repo, logger: logger, now: time.Now}
}

// Create inserts a new row. A store failure is a LedgerWriteError.
func (l *Ledger) Create(ctx context.Context, u *entity.Upload) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = constants.UploadStatusPending
	}
	if u.UploadedAt.IsZero() {
		u.UploadedAt = l.stamp()
	}
	if err := l.repo.Create(ctx, u); err != nil {
		return common.LedgerWriteError("create upload "+u.ID.String(), err)
	}
	l.logger.Info("ledger.create", "upload_id", u.ID, "report_type", u.ReportType, "status", u.Status)
	return nil
}

// List returns every row, newest first.
func (l *Ledger) List(ctx context.Context) ([]*entity.Upload, error) {
	return l.repo.List(ctx, 0)
}

// Recent returns at most limit rows, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*entity.Upload, error) {
	return l.repo.List(ctx, limit)
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*entity.Upload, error) {
	return l.repo.Get(ctx, id)
}

// FindByHash returns the newest live row for rt with the same file content.
// Rows that ended in error do not count, so a failed file can be resubmitted.
func (l *Ledger) FindByHash(ctx context.Context, rt constants.ReportType, hash string) (*entity.Upload, error) {
	u, err := l.repo.FindByHash(ctx, rt, hash)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, common.LedgerWriteError("find upload by hash", err)
	}
	return u, err
}

// Update applies p and returns the updated row. A status change must be a
// legal transition from the row's current status; "flagged" is never written
// as a status (use Flag).
func (l *Ledger) Update(ctx context.Context, id uuid.UUID, p Patch) (*entity.Upload, error) {
	if p.IsEmpty() {
		return nil, fmt.Errorf("%w: empty patch", common.ErrInvalidInput)
	}
	var from []constants.UploadStatus
	if p.Status != nil {
		to := *p.Status
		if !to.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", common.ErrInvalidInput, to)
		}
		from = to.AllowedFrom()
		if from == nil {
			return nil, fmt.Errorf("%w: status %q cannot be set directly", common.ErrInvalidTransition, to)
		}
	}
	if err := l.patch(ctx, id, p, from...); err != nil {
		return nil, err
	}
	return l.repo.Get(ctx, id)
}

// MarkProcessing moves a pending row to processing.
func (l *Ledger) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	s := constants.UploadStatusProcessing
	return l.patch(ctx, id, Patch{Status: &s}, s.AllowedFrom()...)
}

// MarkProcessed moves a processing row to processed.
func (l *Ledger) MarkProcessed(ctx context.Context, id uuid.UUID, recordCount int) error {
	s := constants.UploadStatusProcessed
	now := l.stamp()
	return l.patch(ctx, id, Patch{Status: &s, RecordCount: &recordCount, ProcessedAt: &now}, s.AllowedFrom()...)
}

// MarkError ends a non-terminal row in error with msg. recordCount is the
// number of rows a partial batch still committed.
func (l *Ledger) MarkError(ctx context.Context, id uuid.UUID, msg string, recordCount int) error {
	s := constants.UploadStatusError
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "processing failed"
	}
	now := l.stamp()
	return l.patch(ctx, id, Patch{Status: &s, ErrorMessage: &msg, RecordCount: &recordCount, ProcessedAt: &now}, s.AllowedFrom()...)
}

// Flag marks a row for manual review from any status. Status is untouched.
func (l *Ledger) Flag(ctx context.Context, id uuid.UUID, reason string) (*entity.Upload, error) {
	flagged := true
	reason = strings.TrimSpace(reason)
	if err := common.NewValidator().
		Field("reason", reason, common.MaxLength(constants.MaxFlagReasonLength)).
		Error(); err != nil {
		return nil, err
	}
	if err := l.patch(ctx, id, Patch{Flagged: &flagged, FlagReason: &reason}); err != nil {
		return nil, err
	}
	l.logger.Info("ledger.flag", "upload_id", id, "reason", reason)
	return l.repo.Get(ctx, id)
}

// Unflag clears the review overlay.
func (l *Ledger) Unflag(ctx context.Context, id uuid.UUID) (*entity.Upload, error) {
	flagged, reason := false, ""
	if err := l.patch(ctx, id, Patch{Flagged: &flagged, FlagReason: &reason}); err != nil {
		return nil, err
	}
	l.logger.Info("ledger.unflag", "upload_id", id)
	return l.repo.Get(ctx, id)
}

// Clear deletes every row atomically. Record tables and stored objects are kept.
func (l *Ledger) Clear(ctx context.Context) (int64, error) {
	n, err := l.repo.DeleteAll(ctx)
	if err != nil {
		return 0, common.LedgerWriteError("clear", err)
	}
	l.logger.Info("ledger.clear", "deleted", n)
	return n, nil
}

func (l *Ledger) patch(ctx context.Context, id uuid.UUID, p Patch, from ...constants.UploadStatus) error {
	ok, err := l.repo.Patch(ctx, id, p, from...)
	if err != nil {
		return common.LedgerWriteError("update upload "+id.String(), err)
	}
	if ok {
		if p.Status != nil {
			l.logger.Debug("ledger.transition", "upload_id", id, "to", *p.Status)
		}
		return nil
	}

	cur, err := l.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return err
		}
		return common.LedgerWriteError("update upload "+id.String(), err)
	}
	l.logger.Warn("ledger.transition.refused", "upload_id", id, "from", cur.Status, "to", deref(p.Status))
	return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, cur.Status, deref(p.Status))
}

func (l *Ledger) stamp() time.Time {
	return l.now().UTC().Truncate(time.Microsecond)
}

func deref(s *constants.UploadStatus) constants.UploadStatus {
	if s == nil {
		return ""
	}
	return *s
}
