package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Machine check statuses.
const (
	MachineStatusOK          = "OK"
	MachineStatusIssue       = "Issue"
	MachineStatusMaintenance = "Maintenance"
)

// QC results.
const (
	QCResultPass = "pass"
	QCResultFail = "fail"
)

// StaffLog is one staff entry from an efficiency report.
type StaffLog struct {
	ID            uuid.UUID  `json:"id"`
	UploadID      *uuid.UUID `json:"uploadId,omitempty"`
	StaffID       string     `json:"staffId"`
	Hours         *float64   `json:"hours,omitempty"`
	Date          *string    `json:"date,omitempty"`
	Shift         *string    `json:"shift,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	SourceFileURL string     `json:"sourceFileUrl"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// MachineCheck is one machine entry from a factory report.
type MachineCheck struct {
	ID            uuid.UUID  `json:"id"`
	UploadID      *uuid.UUID `json:"uploadId,omitempty"`
	Machine       string     `json:"machine"`
	Status        *string    `json:"status,omitempty"`
	Note          *string    `json:"note,omitempty"`
	Date          *string    `json:"date,omitempty"`
	Shift         *string    `json:"shift,omitempty"`
	SourceFileURL string     `json:"sourceFileUrl"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// QCFlag summarizes one quality-control sheet.
type QCFlag struct {
	ID            uuid.UUID  `json:"id"`
	UploadID      *uuid.UUID `json:"uploadId,omitempty"`
	Date          *string    `json:"date,omitempty"`
	Shift         *string    `json:"shift,omitempty"`
	Result        *string    `json:"result,omitempty"`
	Defects       []string   `json:"defects"`
	MachineID     *string    `json:"machineId,omitempty"`
	SourceFileURL string     `json:"sourceFileUrl"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// WasteLog summarizes one waste sheet.
type WasteLog struct {
	ID              uuid.UUID        `json:"id"`
	UploadID        *uuid.UUID       `json:"uploadId,omitempty"`
	Date            *string          `json:"date,omitempty"`
	Shift           *string          `json:"shift,omitempty"`
	WastePercentage *decimal.Decimal `json:"wastePercentage,omitempty"`
	WasteUnits      *int64           `json:"wasteUnits,omitempty"`
	SourceFileURL   string           `json:"sourceFileUrl"`
	CreatedAt       time.Time        `json:"createdAt"`
}
