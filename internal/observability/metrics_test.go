package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/missionctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordPropertyFetch("org.freedesktop.Telepathy.Client", "ok")
	RecordWaiterCancelled()
	SetRegistryClients(3)
	SetStartupLock(0)
	RecordInvalidClientName()
	RecordHandlerSelection(SelectionRanked)
	RecordConnectionAttempt(true)
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	testlog.Start(t)
	ready := false
	h := Handler(testlog.Logger(t), func() bool { return ready })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("health before ready: status=%d", rec.Code)
	}

	ready = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health after ready: status=%d", rec.Code)
	}

	SetRegistryClients(2)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missionctl_registry_clients") {
		t.Fatalf("metrics body missing registry gauge")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route: status=%d", rec.Code)
	}
}

func TestRequestLoggerSeesHandlerStatus(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var status, size int
	r.Use(func(c *gin.Context) {
		c.Next()
		status, size = c.Writer.Status(), c.Writer.Size()
	}, RequestLogger(testlog.Logger(t)))
	r.GET("/teapot", func(c *gin.Context) { c.String(http.StatusTeapot, "short\n") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	if rec.Code != http.StatusTeapot || status != http.StatusTeapot {
		t.Fatalf("status: recorder=%d writer=%d", rec.Code, status)
	}
	if size != len("short\n") {
		t.Fatalf("size=%d", size)
	}
}
