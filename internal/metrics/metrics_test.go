package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(recordsWritten.WithLabelValues("waste"))
	RecordWrite("waste", 1, 2, 0)
	assert.Equal(t, before+1, testutil.ToFloat64(recordsWritten.WithLabelValues("waste")))

	done := TrackInFlight()
	assert.Equal(t, float64(1), testutil.ToFloat64(inFlight))
	done()
	assert.Equal(t, float64(0), testutil.ToFloat64(inFlight))

	ObserveStage("invoke", "qc", 20*time.Millisecond)
	RecordOutcome("qc", "error")
	assert.Equal(t, float64(1), testutil.ToFloat64(pipelineOutcomes.WithLabelValues("qc", "error")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordSubmitted("factory")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "shift_reports_uploads_submitted_total"))
}
