package constants

import (
	"fmt"
	"strings"
)

// ReportType selects the extraction instruction and the destination table.
type ReportType string

const (
	ReportTypeEfficiency ReportType = "efficiency" // staff logs, 0..n per upload
	ReportTypeFactory    ReportType = "factory"    // machine checks, 0..n per upload
	ReportTypeQC         ReportType = "qc"         // one qc flag per upload
	ReportTypeWaste      ReportType = "waste"      // one waste log per upload
)

// ReportTypes in display order.
var ReportTypes = []ReportType{ReportTypeEfficiency, ReportTypeFactory, ReportTypeQC, ReportTypeWaste}

// ParseReportType lowercases and trims s and checks it against the known types.
func ParseReportType(s string) (ReportType, error) {
	rt := ReportType(strings.ToLower(strings.TrimSpace(s)))
	if !rt.Valid() {
		return "", fmt.Errorf("unknown report type %q", s)
	}
	return rt, nil
}

func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeEfficiency, ReportTypeFactory, ReportTypeQC, ReportTypeWaste:
		return true
	}
	return false
}

// FansOut reports whether one upload of this type may yield several records.
func (t ReportType) FansOut() bool {
	return t == ReportTypeEfficiency || t == ReportTypeFactory
}

func (t ReportType) String() string { return string(t) }
