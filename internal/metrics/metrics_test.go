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

func TestRecordReconcileCountsChanges(t *testing.T) {
	before := testutil.ToFloat64(reconcileLinkChanges.WithLabelValues("metrics_test", "insert"))

	RecordReconcile("metrics_test", "ok", 3, 0, 1)

	assert.Equal(t, before+3, testutil.ToFloat64(reconcileLinkChanges.WithLabelValues("metrics_test", "insert")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reconcileLinkChanges.WithLabelValues("metrics_test", "delete")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reconcileTotal.WithLabelValues("metrics_test", "ok")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveReport("metrics_test", 5*time.Millisecond)
	RecordHTTPRequest("get", "", http.StatusOK)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `kitchenpos_report_duration_seconds_count{report="metrics_test"} 1`))
	assert.True(t, strings.Contains(body, `kitchenpos_http_requests_total{method="GET",route="unmatched",status="200"}`))
}
