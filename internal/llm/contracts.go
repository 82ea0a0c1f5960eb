package llm

import (
	"context"

	"github.com/joseph-ayodele/shift-reports/constants"
)

// Request is one extraction call: an instruction plus the encoded file.
type Request struct {
	ReportType  constants.ReportType
	Instruction string
	Data        []byte
	MediaType   string // image/* or application/pdf
	FileName    string
}

// Provider is a multimodal extraction service. Extract returns the model's
// text verbatim; failures are *ServiceError.
// Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	Extract(ctx context.Context, req Request) (string, error)
}
