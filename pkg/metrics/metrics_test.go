package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(pipelineRuns.WithLabelValues("prediction", "failed"))

	RecordRun("prediction", time.Second, errors.New("boom"))

	after := testutil.ToFloat64(pipelineRuns.WithLabelValues("prediction", "failed"))
	assert.Equal(t, before+1, after)
}

func TestRecordEntities(t *testing.T) {
	before := testutil.ToFloat64(entityOutcomes.WithLabelValues(OutcomeSkipped))

	RecordEntities(2, 5, 1)

	assert.Equal(t, before+2, testutil.ToFloat64(entityOutcomes.WithLabelValues(OutcomeSkipped)))
}

func TestInstrumentHandler(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/ai/health", "418"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/ai/health", "418")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordPersisted(3)
	SetSubscribers(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "demandcast_store_forecast_rows_total"))
	assert.True(t, strings.Contains(body, "demandcast_notify_subscribers 2"))
}

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/api/ai/demandforecast", canonicalPath("/api/ai/demandforecast/predict"))
	assert.Equal(t, "other", canonicalPath("/random/123"))
}
