package metrics_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dialogkit/convmem/metrics"
)

func TestInstruments(t *testing.T) {
	// promauto registers globally, so construct once per test binary.
	m := metrics.New("convmem_test")

	m.TurnsStored.Inc()
	m.ChunkDecisions.WithLabelValues("new").Inc()
	m.SearchRequests.WithLabelValues("price", "balanced").Inc()
	m.CacheEvents.WithLabelValues("search", "hit").Inc()
	m.ObserveSearchLatency(120 * time.Millisecond)

	var nilMetrics *metrics.Metrics
	nilMetrics.ObserveSearchLatency(time.Second) // must not panic

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body := rec.Body.String()
	if body == "" {
		t.Fatal("empty scrape body")
	}
}
