package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// setupTestMetrics 创建测试用的 Prometheus 指标收集器
func setupTestMetrics(t *testing.T) *PrometheusMetrics {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	// 使用唯一的 namespace 避免指标冲突
	namespace := "test_" + t.Name() + "_" + time.Now().Format("20060102150405999999999")
	return NewPrometheusMetrics(logger, namespace)
}

func TestPrometheusMetrics_Initialization(t *testing.T) {
	pm := setupTestMetrics(t)

	assert.NotNil(t, pm)
	assert.NotNil(t, pm.httpRequestsTotal)
	assert.NotNil(t, pm.linesParsedTotal)
	assert.NotNil(t, pm.sessionsOpenedTotal)
	assert.NotNil(t, pm.viewBuildDuration)
	assert.NotNil(t, pm.snapshotsPublishedTotal)
}

func TestHTTPMiddleware(t *testing.T) {
	pm := setupTestMetrics(t)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(pm.HTTPMiddleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	count := testutil.CollectAndCount(pm.httpRequestsTotal)
	assert.Greater(t, count, 0, "HTTP request metric should be recorded")
}

func TestRecordLineParsed(t *testing.T) {
	pm := setupTestMetrics(t)

	pm.RecordLineParsed("steam", 4096, 0)
	pm.RecordLineParsed("steam", 0, 8192)
	pm.RecordLineParsed("epic", 1024, 1024)

	assert.Greater(t, testutil.CollectAndCount(pm.linesParsedTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(pm.bytesServedTotal), 0)
}

func TestRecordSessionLifecycle(t *testing.T) {
	pm := setupTestMetrics(t)

	pm.RecordSessionOpened("steam")
	pm.RecordSessionOpened("epic")
	pm.RecordSessionFinalized("steam")

	assert.Equal(t, float64(1), testutil.ToFloat64(pm.activeSessions))
	assert.Greater(t, testutil.CollectAndCount(pm.sessionsOpenedTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(pm.sessionsFinalizedTotal), 0)
}

func TestRecordViewBuild(t *testing.T) {
	pm := setupTestMetrics(t)

	pm.RecordViewBuild(2*time.Millisecond, false)
	pm.RecordViewBuild(10*time.Microsecond, true)
	pm.RecordViewBuild(15*time.Microsecond, true)

	assert.Equal(t, float64(2), testutil.ToFloat64(pm.viewCacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(pm.viewCacheMisses))
}

func TestRecordExport(t *testing.T) {
	pm := setupTestMetrics(t)

	pm.RecordExport("csv")
	pm.RecordExport("json")
	pm.RecordExport("csv")

	assert.Greater(t, testutil.CollectAndCount(pm.exportsTotal), 0)
}

func TestSnapshotMetrics(t *testing.T) {
	pm := setupTestMetrics(t)

	pm.RecordSnapshotPublished()
	pm.RecordSnapshotPublished()
	pm.RecordSnapshotDropped()

	assert.Equal(t, float64(2), testutil.ToFloat64(pm.snapshotsPublishedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(pm.snapshotsDroppedTotal))
}

func TestUpdateRuntimeStats(t *testing.T) {
	pm := setupTestMetrics(t)

	pm.UpdateRuntimeStats()

	assert.Greater(t, testutil.ToFloat64(pm.memoryUsage), float64(0))
	assert.Greater(t, testutil.ToFloat64(pm.goroutinesCount), float64(0))
}

func TestUpdateDBStats(t *testing.T) {
	pm := setupTestMetrics(t)

	pm.UpdateDBStats(10, 5, 5)

	assert.Equal(t, float64(10), testutil.ToFloat64(pm.dbConnectionsOpen))
	assert.Equal(t, float64(5), testutil.ToFloat64(pm.dbConnectionsIdle))
	assert.Equal(t, float64(5), testutil.ToFloat64(pm.dbConnectionsInUse))
}

func TestPrometheusHandler(t *testing.T) {
	pm := setupTestMetrics(t)

	pm.RecordLineParsed("steam", 1024, 0)
	pm.RecordExport("csv")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/metrics", pm.Handler())

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# HELP", "Should contain Prometheus help text")
	assert.Contains(t, w.Body.String(), "# TYPE", "Should contain Prometheus type text")
}
