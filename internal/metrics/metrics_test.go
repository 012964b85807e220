package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsExposure(t *testing.T) {
	QueueTasks.Inc()
	QueueRetries.Inc()
	QueueDepth.Set(3)
	IncAction("reply")
	IncAPIRetry("/test")
	ObserveQueueTask(time.Now().Add(-1500 * time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"petrel_queue_tasks_total",
		"petrel_queue_retries_total",
		"petrel_queue_depth",
		"petrel_queue_task_duration_seconds",
		"petrel_actions_total",
		"petrel_api_retries_total",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
