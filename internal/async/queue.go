package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/shift-reports/constants"
)

// Job is one unit of background work. Either UploadID (process an existing
// ledger row) or Path (submit a file from disk) is set.
type Job struct {
	UploadID    uuid.UUID
	Path        string
	ReportType  constants.ReportType
	SubmittedAt time.Time
	TraceID     string
}

// Handler runs one job. The context carries the per-job timeout.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")
