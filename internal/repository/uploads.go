package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/entity"
)

const tableUploads = "uploads"

var uploadColumns = []string{
	"id", "file_name", "file_url", "storage_path", "content_type", "report_type",
	"status", "error_message", "flagged", "flag_reason", "record_count",
	"uploaded_at", "processed_at", "content_hash",
}

// UploadPatch is a targeted field update. Nil fields are left untouched.
type UploadPatch struct {
	Status       *constants.UploadStatus
	ErrorMessage *string
	Flagged      *bool
	FlagReason   *string // an empty string stores NULL
	RecordCount  *int
	ProcessedAt  *time.Time
}

func (p UploadPatch) IsEmpty() bool {
	return p.Status == nil && p.ErrorMessage == nil && p.Flagged == nil &&
		p.FlagReason == nil && p.RecordCount == nil && p.ProcessedAt == nil
}

type UploadRepository interface {
	Create(ctx context.Context, u *entity.Upload) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Upload, error)
	// List returns rows newest-first by uploaded_at. limit <= 0 means all rows.
	List(ctx context.Context, limit int) ([]*entity.Upload, error)
	// Patch applies p to the row. When fromStatuses is non-empty the row must
	// currently hold one of them. It reports whether a row was updated.
	Patch(ctx context.Context, id uuid.UUID, p UploadPatch, fromStatuses ...constants.UploadStatus) (bool, error)
	// FindByHash returns the newest row of report type rt holding content
	// hash, skipping rows that ended in error. ErrNotFound when none.
	FindByHash(ctx context.Context, rt constants.ReportType, hash string) (*entity.Upload, error)
	// DeleteAll removes every row in one transaction and returns the count.
	DeleteAll(ctx context.Context) (int64, error)
}

type uploadRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewUploadRepository(db *DB, logger *slog.Logger) UploadRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &uploadRepository{db: db, logger: logger}
}

func (r *uploadRepository) Create(ctx context.Context, u *entity.Upload) error {
	query, args := r.db.Builder().Insert(tableUploads).
		Columns(uploadColumns...).
		Values(
			u.ID, u.FileName, u.FileURL, u.StoragePath, u.ContentType, string(u.ReportType),
			string(u.Status), nullString(u.ErrorMessage), u.Flagged, nullString(u.FlagReason), u.RecordCount,
			u.UploadedAt.UTC(), nullTime(u.ProcessedAt), nullIfEmpty(u.ContentHash),
		).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("upload insert failed", "upload_id", u.ID, "err", err)
		return fmt.Errorf("insert upload: %w", err)
	}
	r.logger.Debug("upload inserted", "upload_id", u.ID, "report_type", u.ReportType)
	return nil
}

func (r *uploadRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Upload, error) {
	b := r.db.Builder()
	query, args := b.Select(uploadColumns...).
		From(b.Table(tableUploads)).
		Where(entsql.EQ("id", id)).
		Query()
	row := r.db.QueryRowContext(ctx, query, args...)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("upload %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return u, nil
}

func (r *uploadRepository) FindByHash(ctx context.Context, rt constants.ReportType, hash string) (*entity.Upload, error) {
	b := r.db.Builder()
	query, args := b.Select(uploadColumns...).
		From(b.Table(tableUploads)).
		Where(entsql.And(
			entsql.EQ("report_type", string(rt)),
			entsql.EQ("content_hash", hash),
			entsql.NEQ("status", string(constants.UploadStatusError)),
		)).
		OrderBy(entsql.Desc("uploaded_at"), entsql.Desc("id")).
		Limit(1).
		Query()
	u, err := scanUpload(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("upload with hash %s: %w", hash, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find upload by hash: %w", err)
	}
	return u, nil
}

func (r *uploadRepository) List(ctx context.Context, limit int) ([]*entity.Upload, error) {
	b := r.db.Builder()
	sel := b.Select(uploadColumns...).
		From(b.Table(tableUploads)).
		OrderBy(entsql.Desc("uploaded_at"), entsql.Desc("id"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var out []*entity.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return out, nil
}

func (r *uploadRepository) Patch(ctx context.Context, id uuid.UUID, p UploadPatch, fromStatuses ...constants.UploadStatus) (bool, error) {
	if p.IsEmpty() {
		return false, fmt.Errorf("%w: empty patch", common.ErrInvalidInput)
	}
	upd := r.db.Builder().Update(tableUploads)
	if p.Status != nil {
		upd.Set("status", string(*p.Status))
	}
	if p.ErrorMessage != nil {
		upd.Set("error_message", *p.ErrorMessage)
	}
	if p.Flagged != nil {
		upd.Set("flagged", *p.Flagged)
	}
	if p.FlagReason != nil {
		if *p.FlagReason == "" {
			upd.SetNull("flag_reason")
		} else {
			upd.Set("flag_reason", *p.FlagReason)
		}
	}
	if p.RecordCount != nil {
		upd.Set("record_count", *p.RecordCount)
	}
	if p.ProcessedAt != nil {
		upd.Set("processed_at", p.ProcessedAt.UTC())
	}

	pred := entsql.EQ("id", id)
	if len(fromStatuses) > 0 {
		from := make([]any, len(fromStatuses))
		for i, s := range fromStatuses {
			from[i] = string(s)
		}
		pred = entsql.And(pred, entsql.In("status", from...))
	}
	query, args := upd.Where(pred).Query()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("upload patch failed", "upload_id", id, "err", err)
		return false, fmt.Errorf("patch upload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("patch upload rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *uploadRepository) DeleteAll(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin clear: %w", err)
	}
	query, args := r.db.Builder().Delete(tableUploads).Query()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		r.logger.Error("uploads clear failed", "err", err)
		return 0, fmt.Errorf("clear uploads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("clear uploads rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("uploads clear commit failed", "err", err)
		return 0, fmt.Errorf("commit clear: %w", err)
	}
	r.logger.Info("uploads cleared", "deleted", n)
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(s rowScanner) (*entity.Upload, error) {
	var (
		u           entity.Upload
		reportType  string
		status      string
		errMsg      sql.NullString
		flagReason  sql.NullString
		processedAt sql.NullTime
		hash        sql.NullString
	)
	if err := s.Scan(
		&u.ID, &u.FileName, &u.FileURL, &u.StoragePath, &u.ContentType, &reportType,
		&status, &errMsg, &u.Flagged, &flagReason, &u.RecordCount,
		&u.UploadedAt, &processedAt, &hash,
	); err != nil {
		return nil, err
	}
	u.ReportType = constants.ReportType(reportType)
	u.Status = constants.UploadStatus(status)
	u.ErrorMessage = stringPtr(errMsg)
	u.FlagReason = stringPtr(flagReason)
	u.ContentHash = hash.String
	u.UploadedAt = u.UploadedAt.UTC()
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		u.ProcessedAt = &t
	}
	return &u, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
