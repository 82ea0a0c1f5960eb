package llm

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/shift-reports/constants"
)

// RawJSONDirective closes every instruction.
const RawJSONDirective = "Return ONLY raw JSON. Do not wrap it in markdown code fences and do not add any prose before or after it."

var (
	commonRules = []string{
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Shift labels should be copied as written, e.g. shift_1, night, B.",
		"If a field is not legible or not present, omit it. Never invent values.",
	}

	instructions = map[constants.ReportType][]string{
		constants.ReportTypeEfficiency: {
			"You are reading a photographed factory staff efficiency sheet.",
			"Return a JSON array with one object per staff member listed on the sheet:",
			`[{"staff_id": "string (required)", "hours": number, "date": "YYYY-MM-DD", "shift": "string", "notes": "string"}]`,
			"Every object MUST include staff_id. Return [] when no staff rows are readable.",
		},
		constants.ReportTypeFactory: {
			"You are reading a photographed factory machine check sheet.",
			"Return a JSON array with one object per machine listed on the sheet:",
			`[{"machine": "string (required)", "status": "OK" | "Issue" | "Maintenance", "note": "string", "date": "YYYY-MM-DD", "shift": "string"}]`,
			"Every object MUST include machine. Return [] when no machine rows are readable.",
		},
		constants.ReportTypeQC: {
			"You are reading a photographed quality-control inspection sheet.",
			"Return ONE JSON object summarizing the sheet:",
			`{"date": "YYYY-MM-DD", "shift": "string", "result": "pass" | "fail", "defects": ["string"], "machine_id": "string"}`,
			"Use an empty defects array when none are listed.",
		},
		constants.ReportTypeWaste: {
			"You are reading a photographed production waste sheet.",
			"Return ONE JSON object summarizing the sheet:",
			`{"date": "YYYY-MM-DD", "shift": "string", "waste_percentage": number, "waste_units": integer}`,
			"waste_percentage is a decimal fraction (3.2% is 0.032).",
		},
	}
)

// BuildInstruction returns the fixed instruction template for rt.
func BuildInstruction(rt constants.ReportType) (string, error) {
	lines, ok := instructions[rt]
	if !ok {
		return "", fmt.Errorf("no instruction for report type %q", rt)
	}
	parts := make([]string, 0, len(lines)+len(commonRules)+1)
	parts = append(parts, lines...)
	parts = append(parts, commonRules...)
	parts = append(parts, RawJSONDirective)
	return strings.Join(parts, "\n"), nil
}
