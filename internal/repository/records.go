package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/shift-reports/internal/entity"
)

const (
	tableStaffLogs     = "staff_logs"
	tableMachineChecks = "machine_checks"
	tableQCFlags       = "qc_flags"
	tableWasteLogs     = "waste_logs"
)

var (
	staffLogColumns     = []string{"id", "upload_id", "staff_id", "hours", "report_date", "shift", "notes", "source_file_url", "created_at"}
	machineCheckColumns = []string{"id", "upload_id", "machine", "status", "note", "report_date", "shift", "source_file_url", "created_at"}
	qcFlagColumns       = []string{"id", "upload_id", "report_date", "shift", "result", "defects", "machine_id", "source_file_url", "created_at"}
	wasteLogColumns     = []string{"id", "upload_id", "report_date", "shift", "waste_percentage", "waste_units", "source_file_url", "created_at"}
)

// RecordRepository writes and reads the per-report-type domain tables.
// The pipeline only inserts; reads serve dashboards and exports.
type RecordRepository interface {
	InsertStaffLog(ctx context.Context, rec *entity.StaffLog) error
	InsertMachineCheck(ctx context.Context, rec *entity.MachineCheck) error
	InsertQCFlag(ctx context.Context, rec *entity.QCFlag) error
	InsertWasteLog(ctx context.Context, rec *entity.WasteLog) error

	ListStaffLogs(ctx context.Context, limit int) ([]*entity.StaffLog, error)
	ListMachineChecks(ctx context.Context, limit int) ([]*entity.MachineCheck, error)
	ListQCFlags(ctx context.Context, limit int) ([]*entity.QCFlag, error)
	ListWasteLogs(ctx context.Context, limit int) ([]*entity.WasteLog, error)
}

type recordRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewRecordRepository(db *DB, logger *slog.Logger) RecordRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &recordRepository{db: db, logger: logger}
}

func (r *recordRepository) insert(ctx context.Context, table string, columns []string, values ...any) error {
	query, args := r.db.Builder().Insert(table).Columns(columns...).Values(values...).Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("record insert failed", "table", table, "err", err)
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (r *recordRepository) InsertStaffLog(ctx context.Context, rec *entity.StaffLog) error {
	return r.insert(ctx, tableStaffLogs, staffLogColumns,
		rec.ID, nullUUID(rec.UploadID), rec.StaffID, nullFloat(rec.Hours), nullString(rec.Date),
		nullString(rec.Shift), nullString(rec.Notes), rec.SourceFileURL, rec.CreatedAt.UTC())
}

func (r *recordRepository) InsertMachineCheck(ctx context.Context, rec *entity.MachineCheck) error {
	return r.insert(ctx, tableMachineChecks, machineCheckColumns,
		rec.ID, nullUUID(rec.UploadID), rec.Machine, nullString(rec.Status), nullString(rec.Note),
		nullString(rec.Date), nullString(rec.Shift), rec.SourceFileURL, rec.CreatedAt.UTC())
}

func (r *recordRepository) InsertQCFlag(ctx context.Context, rec *entity.QCFlag) error {
	defects := rec.Defects
	if defects == nil {
		defects = []string{}
	}
	b, err := json.Marshal(defects)
	if err != nil {
		return fmt.Errorf("encode defects: %w", err)
	}
	return r.insert(ctx, tableQCFlags, qcFlagColumns,
		rec.ID, nullUUID(rec.UploadID), nullString(rec.Date), nullString(rec.Shift), nullString(rec.Result),
		string(b), nullString(rec.MachineID), rec.SourceFileURL, rec.CreatedAt.UTC())
}

func (r *recordRepository) InsertWasteLog(ctx context.Context, rec *entity.WasteLog) error {
	var pct any
	if rec.WastePercentage != nil {
		pct = rec.WastePercentage.String()
	}
	var units any
	if rec.WasteUnits != nil {
		units = *rec.WasteUnits
	}
	return r.insert(ctx, tableWasteLogs, wasteLogColumns,
		rec.ID, nullUUID(rec.UploadID), nullString(rec.Date), nullString(rec.Shift), pct, units,
		rec.SourceFileURL, rec.CreatedAt.UTC())
}

func (r *recordRepository) query(ctx context.Context, table string, columns []string, limit int) (*sql.Rows, error) {
	b := r.db.Builder()
	sel := b.Select(columns...).From(b.Table(table)).OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return rows, nil
}

func (r *recordRepository) ListStaffLogs(ctx context.Context, limit int) ([]*entity.StaffLog, error) {
	rows, err := r.query(ctx, tableStaffLogs, staffLogColumns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.StaffLog
	for rows.Next() {
		var (
			rec                entity.StaffLog
			uploadID           uuid.NullUUID
			hours              sql.NullFloat64
			date, shift, notes sql.NullString
		)
		if err := rows.Scan(&rec.ID, &uploadID, &rec.StaffID, &hours, &date, &shift, &notes, &rec.SourceFileURL, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan staff log: %w", err)
		}
		rec.UploadID = uuidPtr(uploadID)
		if hours.Valid {
			h := hours.Float64
			rec.Hours = &h
		}
		rec.Date, rec.Shift, rec.Notes = stringPtr(date), stringPtr(shift), stringPtr(notes)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *recordRepository) ListMachineChecks(ctx context.Context, limit int) ([]*entity.MachineCheck, error) {
	rows, err := r.query(ctx, tableMachineChecks, machineCheckColumns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.MachineCheck
	for rows.Next() {
		var (
			rec                      entity.MachineCheck
			uploadID                 uuid.NullUUID
			status, note, date, shft sql.NullString
		)
		if err := rows.Scan(&rec.ID, &uploadID, &rec.Machine, &status, &note, &date, &shft, &rec.SourceFileURL, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan machine check: %w", err)
		}
		rec.UploadID = uuidPtr(uploadID)
		rec.Status, rec.Note, rec.Date, rec.Shift = stringPtr(status), stringPtr(note), stringPtr(date), stringPtr(shft)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *recordRepository) ListQCFlags(ctx context.Context, limit int) ([]*entity.QCFlag, error) {
	rows, err := r.query(ctx, tableQCFlags, qcFlagColumns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.QCFlag
	for rows.Next() {
		var (
			rec                            entity.QCFlag
			uploadID                       uuid.NullUUID
			date, shift, result, machineID sql.NullString
			defects                        string
		)
		if err := rows.Scan(&rec.ID, &uploadID, &date, &shift, &result, &defects, &machineID, &rec.SourceFileURL, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan qc flag: %w", err)
		}
		rec.UploadID = uuidPtr(uploadID)
		rec.Date, rec.Shift, rec.Result, rec.MachineID = stringPtr(date), stringPtr(shift), stringPtr(result), stringPtr(machineID)
		if err := json.Unmarshal([]byte(defects), &rec.Defects); err != nil {
			return nil, fmt.Errorf("decode defects: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *recordRepository) ListWasteLogs(ctx context.Context, limit int) ([]*entity.WasteLog, error) {
	rows, err := r.query(ctx, tableWasteLogs, wasteLogColumns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.WasteLog
	for rows.Next() {
		var (
			rec         entity.WasteLog
			uploadID    uuid.NullUUID
			date, shift sql.NullString
			pct         decimal.NullDecimal
			units       sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &uploadID, &date, &shift, &pct, &units, &rec.SourceFileURL, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan waste log: %w", err)
		}
		rec.UploadID = uuidPtr(uploadID)
		rec.Date, rec.Shift = stringPtr(date), stringPtr(shift)
		if pct.Valid {
			d := pct.Decimal
			rec.WastePercentage = &d
		}
		if units.Valid {
			u := units.Int64
			rec.WasteUnits = &u
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func uuidPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}
