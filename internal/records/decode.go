package records

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/shift-reports/internal/entity"
)

// The decoders below run on sanitized, schema-valid elements; they only
// convert types.

func decodeStaffLog(m map[string]any) (*entity.StaffLog, error) {
	rec := &entity.StaffLog{
		StaffID: str(m, "staff_id"),
		Date:    optStr(m, "date"),
		Shift:   optStr(m, "shift"),
		Notes:   optStr(m, "notes"),
	}
	if n, ok := m["hours"].(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("hours: %w", err)
		}
		rec.Hours = &f
	}
	return rec, nil
}

func decodeMachineCheck(m map[string]any) (*entity.MachineCheck, error) {
	return &entity.MachineCheck{
		Machine: str(m, "machine"),
		Status:  optStr(m, "status"),
		Note:    optStr(m, "note"),
		Date:    optStr(m, "date"),
		Shift:   optStr(m, "shift"),
	}, nil
}

func decodeQCFlag(m map[string]any) (*entity.QCFlag, error) {
	rec := &entity.QCFlag{
		Date:      optStr(m, "date"),
		Shift:     optStr(m, "shift"),
		Result:    optStr(m, "result"),
		MachineID: optStr(m, "machine_id"),
		Defects:   []string{},
	}
	if items, ok := m["defects"].([]any); ok {
		for _, it := range items {
			if s, ok := it.(string); ok {
				rec.Defects = append(rec.Defects, s)
			}
		}
	}
	return rec, nil
}

func decodeWasteLog(m map[string]any) (*entity.WasteLog, error) {
	rec := &entity.WasteLog{
		Date:  optStr(m, "date"),
		Shift: optStr(m, "shift"),
	}
	if n, ok := m["waste_percentage"].(json.Number); ok {
		d, err := decimalFromNumber(n)
		if err != nil {
			return nil, fmt.Errorf("waste_percentage: %w", err)
		}
		rec.WastePercentage = &d
	}
	if n, ok := m["waste_units"].(json.Number); ok {
		d, err := decimalFromNumber(n)
		if err != nil {
			return nil, fmt.Errorf("waste_units: %w", err)
		}
		units := d.IntPart()
		rec.WasteUnits = &units
	}
	return rec, nil
}

func decimalFromNumber(n json.Number) (decimal.Decimal, error) {
	return decimal.NewFromString(n.String())
}

func str(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}

func optStr(m map[string]any, k string) *string {
	s, ok := m[k].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}
