// Package export renders the ledger and the record tables as an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/shift-reports/internal/entity"
	"github.com/joseph-ayodele/shift-reports/internal/repository"
)

// UploadLister is the ledger read the export needs.
type UploadLister interface {
	List(ctx context.Context) ([]*entity.Upload, error)
}

type Service struct {
	uploads UploadLister
	records repository.RecordRepository
	logger  *slog.Logger
}

func NewService(uploads UploadLister, records repository.RecordRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uploads: uploads, records: records, logger: logger}
}

// Sheet names, in workbook order.
const (
	SheetUploads    = "Uploads"
	SheetEfficiency = "Efficiency"
	SheetFactory    = "Factory"
	SheetQC         = "QC"
	SheetWaste      = "Waste"
)

// ExportXLSX returns one workbook with the ledger and every record table.
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	uploads, err := s.uploads.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	staff, err := s.records.ListStaffLogs(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("query staff logs: %w", err)
	}
	machines, err := s.records.ListMachineChecks(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("query machine checks: %w", err)
	}
	qc, err := s.records.ListQCFlags(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("query qc flags: %w", err)
	}
	waste, err := s.records.ListWasteLogs(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("query waste logs: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_error", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", SheetUploads); err != nil {
		return nil, err
	}

	uploadRows := make([][]any, 0, len(uploads))
	for _, u := range uploads {
		processed := ""
		if u.ProcessedAt != nil {
			processed = u.ProcessedAt.UTC().Format(time.RFC3339)
		}
		uploadRows = append(uploadRows, []any{
			u.UploadedAt.UTC().Format(time.RFC3339), string(u.ReportType), string(u.DisplayStatus()),
			u.FileName, u.RecordCount, str(u.ErrorMessage), str(u.FlagReason), processed, u.FileURL,
		})
	}
	if err := writeSheet(f, SheetUploads,
		[]string{"Uploaded At", "Report Type", "Status", "File", "Records", "Error", "Flag Reason", "Processed At", "File URL"},
		[]float64{22, 12, 12, 28, 10, 48, 32, 22, 60},
		uploadRows); err != nil {
		return nil, err
	}

	staffRows := make([][]any, 0, len(staff))
	for _, r := range staff {
		var hours any = ""
		if r.Hours != nil {
			hours = *r.Hours
		}
		staffRows = append(staffRows, []any{str(r.Date), str(r.Shift), r.StaffID, hours, truncate(str(r.Notes), 140), r.SourceFileURL})
	}
	if err := writeSheet(f, SheetEfficiency,
		[]string{"Date", "Shift", "Staff ID", "Hours", "Notes", "Source File"},
		[]float64{12, 10, 14, 8, 48, 60}, staffRows); err != nil {
		return nil, err
	}

	machineRows := make([][]any, 0, len(machines))
	for _, r := range machines {
		machineRows = append(machineRows, []any{str(r.Date), str(r.Shift), r.Machine, str(r.Status), truncate(str(r.Note), 140), r.SourceFileURL})
	}
	if err := writeSheet(f, SheetFactory,
		[]string{"Date", "Shift", "Machine", "Status", "Note", "Source File"},
		[]float64{12, 10, 22, 14, 48, 60}, machineRows); err != nil {
		return nil, err
	}

	qcRows := make([][]any, 0, len(qc))
	for _, r := range qc {
		qcRows = append(qcRows, []any{str(r.Date), str(r.Shift), str(r.Result), strings.Join(r.Defects, "; "), str(r.MachineID), r.SourceFileURL})
	}
	if err := writeSheet(f, SheetQC,
		[]string{"Date", "Shift", "Result", "Defects", "Machine", "Source File"},
		[]float64{12, 10, 10, 48, 16, 60}, qcRows); err != nil {
		return nil, err
	}

	wasteRows := make([][]any, 0, len(waste))
	for _, r := range waste {
		var pct, units any = "", ""
		if r.WastePercentage != nil {
			pct = r.WastePercentage.InexactFloat64()
		}
		if r.WasteUnits != nil {
			units = *r.WasteUnits
		}
		wasteRows = append(wasteRows, []any{str(r.Date), str(r.Shift), pct, units, r.SourceFileURL})
	}
	if err := writeSheet(f, SheetWaste,
		[]string{"Date", "Shift", "Waste %", "Waste Units", "Source File"},
		[]float64{12, 10, 10, 12, 60}, wasteRows); err != nil {
		return nil, err
	}
	if pctStyle, err := f.NewStyle(&excelize.Style{NumFmt: 10}); err == nil && len(wasteRows) > 0 {
		_ = f.SetCellStyle(SheetWaste, "C2", fmt.Sprintf("C%d", len(wasteRows)+1), pctStyle)
	}

	idx, _ := f.GetSheetIndex(SheetUploads)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"uploads", len(uploads),
		"staff_logs", len(staff),
		"machine_checks", len(machines),
		"qc_flags", len(qc),
		"waste_logs", len(waste),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, widths []float64, rows [][]any) error {
	if idx, _ := f.GetSheetIndex(sheet); idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, col, col, w)
	}
	return nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
