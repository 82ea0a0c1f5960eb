package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/shift-reports/constants"
)

// Upload is one row of the status ledger: the lifecycle of a single submitted file.
type Upload struct {
	ID           uuid.UUID              `json:"id"`
	FileName     string                 `json:"fileName"`
	FileURL      string                 `json:"fileUrl"`
	StoragePath  string                 `json:"storagePath"`
	ContentType  string                 `json:"contentType"`
	ContentHash  string                 `json:"contentHash,omitempty"` // hex sha256 of the file bytes
	ReportType   constants.ReportType   `json:"reportType"`
	Status       constants.UploadStatus `json:"status"`
	ErrorMessage *string                `json:"errorMessage,omitempty"`
	Flagged      bool                   `json:"flagged"`
	FlagReason   *string                `json:"flagReason,omitempty"`
	RecordCount  int                    `json:"recordCount"`
	UploadedAt   time.Time              `json:"uploadedAt"`
	ProcessedAt  *time.Time             `json:"processedAt,omitempty"`

	// Deduplicated is set on a submission answered by an existing row. It is not stored.
	Deduplicated bool `json:"deduplicated,omitempty"`
}

// DisplayStatus is what the dashboard renders: flagged takes precedence over status.
func (u *Upload) DisplayStatus() constants.UploadStatus {
	if u.Flagged {
		return constants.UploadStatusFlagged
	}
	return u.Status
}

// Clone returns a copy that shares no pointers with u.
func (u *Upload) Clone() *Upload {
	if u == nil {
		return nil
	}
	c := *u
	if u.ErrorMessage != nil {
		s := *u.ErrorMessage
		c.ErrorMessage = &s
	}
	if u.FlagReason != nil {
		s := *u.FlagReason
		c.FlagReason = &s
	}
	if u.ProcessedAt != nil {
		t := *u.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}
