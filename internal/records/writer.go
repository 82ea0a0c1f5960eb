// Package records validates parsed extraction output and persists it into the
// per-report-type domain tables.
package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/llm"
	"github.com/joseph-ayodele/shift-reports/internal/repository"
)

// WriteOutcome summarizes one batch. Err is non-nil when the batch was
// malformed, any element was skipped, or any insert failed; rows counted in
// Written stay committed regardless.
type WriteOutcome struct {
	Written int
	Skipped int
	Failed  int
	Err     error
}

func (o WriteOutcome) OK() bool { return o.Err == nil }

type writeOptions struct {
	uploadID *uuid.UUID
	now      func() time.Time
}

type WriteOption func(*writeOptions)

// WithUploadID stamps every written row with the originating upload.
func WithUploadID(id uuid.UUID) WriteOption {
	return func(o *writeOptions) { o.uploadID = &id }
}

type Writer struct {
	repo   repository.RecordRepository
	logger *slog.Logger

	mu      sync.Mutex
	schemas map[constants.ReportType]*jsonschema.Schema
}

func NewWriter(repo repository.RecordRepository, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{repo: repo, logger: logger, schemas: make(map[constants.ReportType]*jsonschema.Schema)}
}

// Write persists parsed for rt. Optional fields that fail validation are
// dropped; elements missing a valid identifier are skipped;
// insert failures are counted and the first one is reported, but the
// remaining elements are still attempted.
func (w *Writer) Write(ctx context.Context, rt constants.ReportType, parsed any, sourceFileURL string, opts ...WriteOption) WriteOutcome {
	o := writeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	elems, err := normalize(rt, parsed)
	if err != nil {
		return WriteOutcome{Err: err}
	}
	schema, err := w.schema(rt)
	if err != nil {
		return WriteOutcome{Err: err}
	}

	var (
		out        WriteOutcome
		firstSkip  error
		firstFault error
	)
	for i, elem := range elems {
		m, ok := elem.(map[string]any)
		if !ok {
			out.Skipped++
			if firstSkip == nil {
				firstSkip = fmt.Errorf("element %d is %T, not an object", i, elem)
			}
			continue
		}
		clean, _ := Sanitize(rt, m, w.logger)
		if err := w.validate(rt, schema, clean, i); err != nil {
			out.Skipped++
			w.logger.Warn("records.element.skipped", "report_type", rt, "index", i, "error", err)
			if firstSkip == nil {
				firstSkip = fmt.Errorf("element %d: %w", i, err)
			}
			continue
		}
		if err := w.insert(ctx, rt, clean, sourceFileURL, o); err != nil {
			out.Failed++
			w.logger.Error("records.element.persist_failed", "report_type", rt, "index", i, "error", err)
			if firstFault == nil {
				firstFault = err
			}
			continue
		}
		out.Written++
	}

	switch {
	case firstFault != nil:
		out.Err = fmt.Errorf("%w: %d of %d %s records failed to persist: %w",
			common.ErrPersist, out.Failed, len(elems), rt, firstFault)
	case firstSkip != nil:
		out.Err = fmt.Errorf("%w: %d of %d %s records skipped: %w",
			common.ErrMalformedOutput, out.Skipped, len(elems), rt, firstSkip)
	}
	w.logger.Info("records.write.done",
		"report_type", rt,
		"written", out.Written,
		"skipped", out.Skipped,
		"failed", out.Failed,
	)
	return out
}

// validate checks clean against schema. Fields that fail their own rules are
// dropped from clean and the element is checked again; only a violation on
// the element itself or its identifying field rejects it.
func (w *Writer) validate(rt constants.ReportType, schema *jsonschema.Schema, clean map[string]any, index int) error {
	for {
		err := schema.Validate(clean)
		if err == nil {
			return nil
		}
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		bad, whole := offendingFields(ve)
		if whole || len(bad) == 0 {
			return err
		}
		for _, f := range bad {
			if f == identifyingField(rt) {
				return err
			}
		}
		dropped := 0
		for _, f := range bad {
			v, ok := clean[f]
			if !ok {
				continue
			}
			w.logger.Warn("records.field.dropped", "report_type", rt, "index", index, "field", f, "value", v)
			delete(clean, f)
			dropped++
		}
		if dropped == 0 {
			return err
		}
	}
}

// offendingFields returns the top-level fields named by the leaf errors of
// ve. whole is true when a leaf points at the element itself.
func offendingFields(ve *jsonschema.ValidationError) (fields []string, whole bool) {
	seen := map[string]bool{}
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		loc := strings.TrimPrefix(e.InstanceLocation, "/")
		if loc == "" {
			whole = true
			return
		}
		if i := strings.IndexByte(loc, '/'); i >= 0 {
			loc = loc[:i]
		}
		if !seen[loc] {
			seen[loc] = true
			fields = append(fields, loc)
		}
	}
	walk(ve)
	return fields, whole
}

func (w *Writer) schema(rt constants.ReportType) (*jsonschema.Schema, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.schemas[rt]; ok {
		return s, nil
	}
	m, err := llm.BuildRecordJSONSchema(rt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidReportType, err)
	}
	s, err := llm.CompileSchema(string(rt)+".json", m)
	if err != nil {
		return nil, err
	}
	w.schemas[rt] = s
	return s, nil
}

func (w *Writer) insert(ctx context.Context, rt constants.ReportType, m map[string]any, src string, o writeOptions) error {
	id, now := uuid.New(), o.now().UTC().Truncate(time.Microsecond)
	switch rt {
	case constants.ReportTypeEfficiency:
		rec, err := decodeStaffLog(m)
		if err != nil {
			return err
		}
		rec.ID, rec.UploadID, rec.SourceFileURL, rec.CreatedAt = id, o.uploadID, src, now
		return w.repo.InsertStaffLog(ctx, rec)
	case constants.ReportTypeFactory:
		rec, err := decodeMachineCheck(m)
		if err != nil {
			return err
		}
		rec.ID, rec.UploadID, rec.SourceFileURL, rec.CreatedAt = id, o.uploadID, src, now
		return w.repo.InsertMachineCheck(ctx, rec)
	case constants.ReportTypeQC:
		rec, err := decodeQCFlag(m)
		if err != nil {
			return err
		}
		rec.ID, rec.UploadID, rec.SourceFileURL, rec.CreatedAt = id, o.uploadID, src, now
		return w.repo.InsertQCFlag(ctx, rec)
	case constants.ReportTypeWaste:
		rec, err := decodeWasteLog(m)
		if err != nil {
			return err
		}
		rec.ID, rec.UploadID, rec.SourceFileURL, rec.CreatedAt = id, o.uploadID, src, now
		return w.repo.InsertWasteLog(ctx, rec)
	}
	return fmt.Errorf("%w: %q", common.ErrInvalidReportType, rt)
}

// normalize turns parsed output into the element list for rt. Fan-out types
// take a list or a single object; one-per-upload types take exactly one object.
func normalize(rt constants.ReportType, parsed any) ([]any, error) {
	switch v := parsed.(type) {
	case []any:
		if !rt.FansOut() {
			return nil, fmt.Errorf("%w: %s expects one object, got a list of %d", common.ErrMalformedOutput, rt, len(v))
		}
		return v, nil
	case map[string]any:
		if rt.FansOut() {
			if inner, ok := unwrapEnvelope(rt, v); ok {
				return inner, nil
			}
		}
		return []any{v}, nil
	case nil:
		return nil, fmt.Errorf("%w: %s output is null", common.ErrMalformedOutput, rt)
	}
	return nil, fmt.Errorf("%w: %s output is %T, not an object or list", common.ErrMalformedOutput, rt, parsed)
}

// unwrapEnvelope handles {"staff": [{...}, ...]} style wrappers: an object
// without the type's identifying field holding exactly one array of objects.
func unwrapEnvelope(rt constants.ReportType, m map[string]any) ([]any, bool) {
	clean, _ := Sanitize(rt, m, nil)
	if _, hasID := clean[identifyingField(rt)]; hasID {
		return nil, false
	}
	var found []any
	for _, v := range m {
		arr, ok := v.([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		if _, isObj := arr[0].(map[string]any); !isObj {
			continue
		}
		if found != nil {
			return nil, false
		}
		found = arr
	}
	return found, found != nil
}

func identifyingField(rt constants.ReportType) string {
	switch rt {
	case constants.ReportTypeEfficiency:
		return "staff_id"
	case constants.ReportTypeFactory:
		return "machine"
	}
	return ""
}

// IsPartial reports whether the outcome wrote some rows but not all.
func IsPartial(o WriteOutcome) bool {
	return o.Written > 0 && (o.Skipped > 0 || o.Failed > 0)
}
