package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestLoggerKeepsBodyReadable(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/echo", func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.String(http.StatusOK, string(b))
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"id":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"id":"x"}`, w.Body.String())
}

func TestRequestLoggerSkipsStreams(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	var captured bool
	r.GET("/api/v1/events", func(c *gin.Context) {
		_, captured = c.Writer.(*bodyLogWriter)
		c.String(http.StatusOK, "data")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	assert.Equal(t, "data", w.Body.String())
	assert.False(t, captured)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short"))
	long := strings.Repeat("a", maxLoggedBody+10)
	assert.True(t, strings.HasSuffix(truncate(long), "...(truncated)"))
	assert.Len(t, truncate(long), maxLoggedBody+len("...(truncated)"))
}

func TestMetricsCountsByRoute(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "204"))
	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "204"))
	assert.Equal(t, 2.0, after-before)

	unmatched := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	before = testutil.ToFloat64(unmatched)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(unmatched)-before)
}
