package stub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/llm"
)

func TestProvider_CannedOutputParses(t *testing.T) {
	p := New()
	for _, rt := range constants.ReportTypes {
		out, err := p.Extract(context.Background(), llm.Request{ReportType: rt})
		require.NoError(t, err, rt)
		_, err = llm.ParseLenient(out)
		require.NoError(t, err, rt)
	}
	assert.EqualValues(t, len(constants.ReportTypes), p.Calls())
}

func TestProvider_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Extract(ctx, llm.Request{ReportType: constants.ReportTypeQC})
	require.Error(t, err)
	assert.False(t, llm.IsRetryable(err))
}
