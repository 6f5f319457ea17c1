package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordError("persist")
	r.RecordError("persist")
	r.RecordSessions(1)
	r.RecordSessions(1)
	r.RecordSessions(-1)
	r.RecordReconnect("ok")

	if got := testutil.ToFloat64(r.errorsTotal.WithLabelValues("persist")); got != 2 {
		t.Fatalf("expected 2 errors, got %v", got)
	}
	if got := testutil.ToFloat64(r.sessions); got != 1 {
		t.Fatalf("expected 1 session, got %v", got)
	}
	if got := testutil.ToFloat64(r.reconnects.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 reconnect, got %v", got)
	}
}
