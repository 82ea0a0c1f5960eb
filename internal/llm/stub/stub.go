// Package stub is an offline llm.Provider returning canned output per report
// type. It backs LLM_PROVIDER=stub for demos and tests.
package stub

import (
	"context"
	"sync/atomic"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/llm"
)

var canned = map[constants.ReportType]string{
	constants.ReportTypeEfficiency: `[{"staff_id":"S-101","hours":7.5,"date":"2024-03-01","shift":"shift_1"},{"staff_id":"S-102","hours":8,"date":"2024-03-01","shift":"shift_1","notes":"covered line 2"}]`,
	constants.ReportTypeFactory:    `[{"machine":"Press 4","status":"OK","date":"2024-03-01","shift":"shift_1"},{"machine":"Lathe 2","status":"Issue","note":"coolant leak","date":"2024-03-01","shift":"shift_1"}]`,
	constants.ReportTypeQC:         `{"date":"2024-03-01","shift":"shift_1","result":"fail","defects":["scratch","misaligned label"],"machine_id":"Press 4"}`,
	constants.ReportTypeWaste:      "```json\n{\"date\":\"2025-01-06\",\"shift\":\"shift_1\",\"waste_percentage\":0.032,\"waste_units\":120}\n```",
}

// Provider answers every request from the canned table. Responses overrides
// entries per report type.
type Provider struct {
	Responses map[constants.ReportType]string
	Err       error

	calls atomic.Int64
}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "stub" }

func (p *Provider) Extract(ctx context.Context, req llm.Request) (string, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", &llm.ServiceError{Provider: p.Name(), Op: "request", Err: err}
	}
	if p.Err != nil {
		return "", p.Err
	}
	if s, ok := p.Responses[req.ReportType]; ok {
		return s, nil
	}
	if s, ok := canned[req.ReportType]; ok {
		return s, nil
	}
	return "[]", nil
}

// Calls is the number of Extract invocations so far.
func (p *Provider) Calls() int64 { return p.calls.Load() }
