package metrics

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
		{0, "5xx"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusBucket(tt.code), "statusBucket(%d)", tt.code)
	}
}

func TestRecordTransaction(t *testing.T) {
	safeBefore := testutil.ToFloat64(TransactionsTotal.WithLabelValues("Safe"))
	highBefore := testutil.ToFloat64(TransactionsTotal.WithLabelValues("High Risk"))
	blockedBefore := testutil.ToFloat64(TransactionsBlockedTotal)
	verifyBefore := testutil.ToFloat64(VerificationRequiredTotal)

	RecordTransaction("Safe", 20, false, false)
	RecordTransaction("High Risk", 95, true, false)
	RecordTransaction("Suspicious", 80, false, true)

	assert.Equal(t, safeBefore+1, testutil.ToFloat64(TransactionsTotal.WithLabelValues("Safe")))
	assert.Equal(t, highBefore+1, testutil.ToFloat64(TransactionsTotal.WithLabelValues("High Risk")))
	assert.Equal(t, blockedBefore+1, testutil.ToFloat64(TransactionsBlockedTotal))
	assert.Equal(t, verifyBefore+1, testutil.ToFloat64(VerificationRequiredTotal))
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	// Gauges always appear; counters only after first observation.
	body := w.Body.String()
	assert.Contains(t, body, "fraudwatch_active_websocket_clients")
	assert.Contains(t, body, "fraudwatch_goroutines")
}

func TestSampleDB(t *testing.T) {
	sampleDB(sql.DBStats{OpenConnections: 5, Idle: 3, InUse: 2, WaitCount: 7})

	assert.Equal(t, 5.0, testutil.ToFloat64(DBConnections.WithLabelValues("open")))
	assert.Equal(t, 3.0, testutil.ToFloat64(DBConnections.WithLabelValues("idle")))
	assert.Equal(t, 2.0, testutil.ToFloat64(DBConnections.WithLabelValues("in_use")))
	assert.Equal(t, 7.0, testutil.ToFloat64(DBWaits))
	assert.Positive(t, testutil.ToFloat64(Goroutines))
}

func TestMiddleware_RecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/ping", "2xx"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/ping", "2xx")))
}
