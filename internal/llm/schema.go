package llm

import (
	"fmt"

	"github.com/joseph-ayodele/shift-reports/constants"
)

const datePattern = `^\d{4}-\d{2}-\d{2}$`

// BuildRecordJSONSchema returns the per-element JSON-Schema for rt, keyed on
// the canonical snake_case field names.
func BuildRecordJSONSchema(rt constants.ReportType) (map[string]any, error) {
	var (
		props    map[string]any
		required []string
	)
	switch rt {
	case constants.ReportTypeEfficiency:
		props = map[string]any{
			"staff_id": map[string]any{"type": "string", "minLength": 1},
			"hours":    map[string]any{"type": "number", "minimum": 0, "maximum": 24},
			"date":     dateProp(),
			"shift":    textProp(),
			"notes":    textProp(),
		}
		required = []string{"staff_id"}
	case constants.ReportTypeFactory:
		props = map[string]any{
			"machine": map[string]any{"type": "string", "minLength": 1},
			"status":  map[string]any{"type": "string", "enum": []string{"OK", "Issue", "Maintenance"}},
			"note":    textProp(),
			"date":    dateProp(),
			"shift":   textProp(),
		}
		required = []string{"machine"}
	case constants.ReportTypeQC:
		props = map[string]any{
			"date":       dateProp(),
			"shift":      textProp(),
			"result":     map[string]any{"type": "string", "enum": []string{"pass", "fail"}},
			"defects":    map[string]any{"type": "array", "items": map[string]any{"type": "string", "minLength": 1}},
			"machine_id": textProp(),
		}
	case constants.ReportTypeWaste:
		props = map[string]any{
			"date":             dateProp(),
			"shift":            textProp(),
			"waste_percentage": map[string]any{"type": "number", "minimum": 0},
			"waste_units":      map[string]any{"type": "integer", "minimum": 0},
		}
	default:
		return nil, fmt.Errorf("no schema for report type %q", rt)
	}

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema, nil
}

func dateProp() map[string]any {
	return map[string]any{"type": "string", "pattern": datePattern}
}

func textProp() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}
