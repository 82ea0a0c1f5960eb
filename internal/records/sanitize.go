package records

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/shift-reports/constants"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindNumber
	kindFraction // number; "3.2%" becomes 0.032
	kindDate
	kindTextList
	kindMachineStatus
	kindQCResult
)

type fieldSpec struct {
	kind    fieldKind
	aliases []string
}

// fields lists the canonical snake_case keys per report type and the
// spellings models have been seen to use instead.
var fields = map[constants.ReportType]map[string]fieldSpec{
	constants.ReportTypeEfficiency: {
		"staff_id": {kindText, []string{"staffId", "staffid", "staff", "employee_id", "employeeId", "worker_id", "id"}},
		"hours":    {kindNumber, []string{"hours_worked", "hoursWorked", "hrs"}},
		"date":     {kindDate, []string{"report_date", "reportDate"}},
		"shift":    {kindText, nil},
		"notes":    {kindText, []string{"note", "comment", "comments", "remarks"}},
	},
	constants.ReportTypeFactory: {
		"machine": {kindText, []string{"machine_name", "machineName", "machine_id", "machineId", "name"}},
		"status":  {kindMachineStatus, []string{"state", "condition"}},
		"note":    {kindText, []string{"notes", "comment", "comments", "remarks"}},
		"date":    {kindDate, []string{"report_date", "reportDate"}},
		"shift":   {kindText, nil},
	},
	constants.ReportTypeQC: {
		"date":       {kindDate, []string{"report_date", "reportDate"}},
		"shift":      {kindText, nil},
		"result":     {kindQCResult, []string{"outcome", "status"}},
		"defects":    {kindTextList, []string{"defect", "issues"}},
		"machine_id": {kindText, []string{"machineId", "machine"}},
	},
	constants.ReportTypeWaste: {
		"date":             {kindDate, []string{"report_date", "reportDate"}},
		"shift":            {kindText, nil},
		"waste_percentage": {kindFraction, []string{"wastePercentage", "waste_pct", "waste_percent", "percentage"}},
		"waste_units":      {kindNumber, []string{"wasteUnits", "units", "waste_count"}},
	},
}

var (
	reSlashDate  = regexp.MustCompile(`^(\d{4})[/.](\d{1,2})[/.](\d{1,2})$`)
	reNumberText = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)$`)
)

// Sanitize maps one untrusted element onto the canonical keys for rt:
//   - renames known aliases (the canonical key wins when both are present)
//   - drops null, empty and unknown fields
//   - coerces numeric strings to json.Number and numbers to text where text is expected
//   - canonicalizes machine status and qc result spellings
//
// The returned notes describe every change, for logging.
func Sanitize(rt constants.ReportType, elem map[string]any, logger *slog.Logger) (map[string]any, []string) {
	if logger == nil {
		logger = slog.Default()
	}
	specs := fields[rt]
	out := make(map[string]any, len(specs))
	notes := make([]string, 0, 4)

	for key, spec := range specs {
		raw, ok := elem[key]
		src := key
		if !ok {
			for _, alias := range spec.aliases {
				if v, found := elem[alias]; found {
					raw, ok, src = v, true, alias
					notes = append(notes, alias+"->"+key)
					break
				}
			}
		}
		if !ok {
			continue
		}
		v, keep := coerce(spec.kind, raw)
		if !keep {
			notes = append(notes, fmt.Sprintf("%s(dropped)", src))
			continue
		}
		out[key] = v
	}

	for k := range elem {
		if _, known := specs[k]; known || isAlias(specs, k) {
			continue
		}
		notes = append(notes, k+"(unknown)")
	}

	if len(notes) > 0 {
		logger.Debug("records.sanitize", "report_type", rt, "notes", notes)
	}
	return out, notes
}

func isAlias(specs map[string]fieldSpec, k string) bool {
	for _, spec := range specs {
		for _, a := range spec.aliases {
			if a == k {
				return true
			}
		}
	}
	return false
}

func coerce(kind fieldKind, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch kind {
	case kindText:
		return text(v)
	case kindDate:
		s, ok := text(v)
		if !ok {
			return nil, false
		}
		if m := reSlashDate.FindStringSubmatch(s); m != nil {
			s = fmt.Sprintf("%s-%s-%s", m[1], pad(m[2]), pad(m[3]))
		}
		return s, true
	case kindNumber:
		return number(v)
	case kindFraction:
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if strings.HasSuffix(s, "%") {
				n, ok := number(strings.TrimSpace(strings.TrimSuffix(s, "%")))
				if !ok {
					return nil, false
				}
				return percentToFraction(n.(json.Number))
			}
		}
		return number(v)
	case kindTextList:
		return textList(v)
	case kindMachineStatus:
		s, ok := text(v)
		if !ok {
			return nil, false
		}
		switch strings.ToLower(s) {
		case "ok", "good", "running", "normal":
			return "OK", true
		case "issue", "problem", "fault", "down", "broken":
			return "Issue", true
		case "maintenance", "maint", "service", "servicing":
			return "Maintenance", true
		}
		return s, true
	case kindQCResult:
		s, ok := text(v)
		if !ok {
			return nil, false
		}
		switch strings.ToLower(s) {
		case "pass", "passed", "ok":
			return "pass", true
		case "fail", "failed":
			return "fail", true
		}
		return s, true
	}
	return v, true
}

func text(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		return fmt.Sprint(t), true
	case bool:
		return fmt.Sprint(t), true
	}
	return "", false
}

func number(v any) (any, bool) {
	switch t := v.(type) {
	case json.Number:
		return t, true
	case float64:
		return json.Number(fmt.Sprint(t)), true
	case int:
		return json.Number(fmt.Sprint(t)), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if reNumberText.MatchString(s) {
			return json.Number(s), true
		}
	}
	return nil, false
}

func textList(v any) (any, bool) {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case string:
		for _, part := range strings.Split(t, ",") {
			items = append(items, part)
		}
	default:
		return nil, false
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		if s, ok := text(it); ok {
			out = append(out, s)
		}
	}
	return out, true
}

func percentToFraction(n json.Number) (any, bool) {
	d, err := decimalFromNumber(n)
	if err != nil {
		return nil, false
	}
	return json.Number(d.Shift(-2).String()), true
}

func pad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
