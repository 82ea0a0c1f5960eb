package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/shift-reports/constants"
)

func TestBuildInstruction(t *testing.T) {
	for _, rt := range constants.ReportTypes {
		got, err := BuildInstruction(rt)
		require.NoError(t, err, rt)
		assert.True(t, strings.HasSuffix(got, RawJSONDirective), rt)
	}
	eff, _ := BuildInstruction(constants.ReportTypeEfficiency)
	assert.Contains(t, eff, "staff_id")
	waste, _ := BuildInstruction(constants.ReportTypeWaste)
	assert.Contains(t, waste, "waste_percentage")

	_, err := BuildInstruction(constants.ReportType("payroll"))
	assert.Error(t, err)
}

func TestRecordSchemas(t *testing.T) {
	tests := []struct {
		rt    constants.ReportType
		doc   string
		valid bool
	}{
		{constants.ReportTypeEfficiency, `{"staff_id":"S1","hours":7.5,"date":"2024-03-01"}`, true},
		{constants.ReportTypeEfficiency, `{"hours":7.5}`, false},
		{constants.ReportTypeEfficiency, `{"staff_id":"S1","hours":30}`, false},
		{constants.ReportTypeFactory, `{"machine":"M1","status":"Issue","note":"leak"}`, true},
		{constants.ReportTypeFactory, `{"machine":"M1","status":"broken"}`, false},
		{constants.ReportTypeQC, `{"result":"fail","defects":["scratch"]}`, true},
		{constants.ReportTypeQC, `{"result":"maybe"}`, false},
		{constants.ReportTypeWaste, `{"waste_percentage":0.032,"waste_units":14}`, true},
		{constants.ReportTypeWaste, `{"waste_units":1.5}`, false},
		{constants.ReportTypeWaste, `{"date":"03/01/2024"}`, false},
		{constants.ReportTypeWaste, `{"colour":"red"}`, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.rt)+"/"+tt.doc, func(t *testing.T) {
			schema, err := BuildRecordJSONSchema(tt.rt)
			require.NoError(t, err)
			err = ValidateJSONAgainstSchema(schema, []byte(tt.doc))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	_, err := BuildRecordJSONSchema(constants.ReportType("nope"))
	assert.Error(t, err)
}
