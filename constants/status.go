package constants

// UploadStatus is the lifecycle state of a row in the uploads ledger.
type UploadStatus string

// Stable values (store these exact strings in DB).
const (
	UploadStatusPending    UploadStatus = "pending"    // set at intake
	UploadStatusProcessing UploadStatus = "processing" // extraction in flight
	UploadStatusProcessed  UploadStatus = "processed"  // terminal success
	UploadStatusError      UploadStatus = "error"      // terminal failure
	UploadStatusFlagged    UploadStatus = "flagged"    // legacy value; review uses the flagged column
)

// IsTerminal reports whether no further pipeline transition is allowed.
func (s UploadStatus) IsTerminal() bool {
	return s == UploadStatusProcessed || s == UploadStatusError
}

func (s UploadStatus) Valid() bool {
	switch s {
	case UploadStatusPending, UploadStatusProcessing, UploadStatusProcessed, UploadStatusError, UploadStatusFlagged:
		return true
	}
	return false
}

// AllowedFrom lists the states a row may be in when moving to s.
// Nil means the pipeline never writes s.
func (s UploadStatus) AllowedFrom() []UploadStatus {
	switch s {
	case UploadStatusProcessing:
		return []UploadStatus{UploadStatusPending}
	case UploadStatusProcessed:
		return []UploadStatus{UploadStatusProcessing}
	case UploadStatusError:
		return []UploadStatus{UploadStatusPending, UploadStatusProcessing}
	}
	return nil
}
