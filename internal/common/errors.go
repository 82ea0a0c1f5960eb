package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes carried by AppError.
const (
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeInvalidReportType    = "INVALID_REPORT_TYPE"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeStorageWrite         = "STORAGE_WRITE_ERROR"
	CodeLedgerWrite          = "LEDGER_WRITE_ERROR"
	CodeExtractionService    = "EXTRACTION_SERVICE_ERROR"
	CodeMalformedOutput      = "MALFORMED_EXTRACTION_OUTPUT"
	CodePersist              = "PERSIST_ERROR"
	CodeConfig               = "CONFIG_ERROR"
	CodeValidation           = "VALIDATION_ERROR"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")

	// Pipeline taxonomy.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidReportType    = errors.New("invalid report type")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrStorageWrite         = errors.New("object store write failed")
	ErrLedgerWrite          = errors.New("ledger write failed")
	ErrExtractionService    = errors.New("extraction service error")
	ErrMalformedOutput      = errors.New("malformed extraction output")
	ErrPersist              = errors.New("record persist failed")
	ErrInvalidTransition    = errors.New("invalid status transition")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// StorageWriteError wraps an object store failure so errors.Is matches ErrStorageWrite.
func StorageWriteError(path string, err error) error {
	return NewAppError(CodeStorageWrite, "put "+path, fmt.Errorf("%w: %w", ErrStorageWrite, err))
}

// LedgerWriteError wraps a ledger store failure so errors.Is matches ErrLedgerWrite.
func LedgerWriteError(op string, err error) error {
	return NewAppError(CodeLedgerWrite, op, fmt.Errorf("%w: %w", ErrLedgerWrite, err))
}

// CodeOf returns the AppError code in err's chain, or "".
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// ToGRPC maps domain errors onto gRPC status codes.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidReportType), errors.Is(err, ErrUnsupportedMediaType):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrLedgerWrite), errors.Is(err, ErrStorageWrite):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}
