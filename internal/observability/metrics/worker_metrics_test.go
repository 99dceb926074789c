package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyWorkerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: WorkerJobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: WorkerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: WorkerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: WorkerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: WorkerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyWorkerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsWorkerErrorRetryable(t *testing.T) {
	if !IsWorkerErrorRetryable(context.DeadlineExceeded) {
		t.Fatalf("expected deadline to be retryable")
	}
	if !IsWorkerErrorRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected pg error to be retryable")
	}
	if IsWorkerErrorRetryable(gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found to be terminal")
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWorkerMetricsForTest(registry)

	m.AddBatchProcessed("usage_reconcile", "recorded", 3)
	m.AddBatchProcessed("usage_reconcile", "recorded", 0)

	got := testutil.ToFloat64(m.batchProcessed.WithLabelValues("usage_reconcile", "recorded"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestGinMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{ServiceName: "htmlpdf", Environment: "test"})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/health", "200"))
	if got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}
