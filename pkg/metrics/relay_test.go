package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRelayMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)

	m.IncPublished("order-placed")
	m.IncPublished("order-placed")
	m.IncPublishRetry("order-placed")
	m.IncDeadLetter("payment-success", "consumer")
	m.IncOffsetCommit("payment-success", "order-service")
	m.ObserveHandlerDuration("payment-success", "order-service", 25*time.Millisecond)

	if got := testutil.ToFloat64(m.published.WithLabelValues("order-placed")); got != 2 {
		t.Fatalf("published counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.publishRetries.WithLabelValues("order-placed")); got != 1 {
		t.Fatalf("retry counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.deadLetters.WithLabelValues("payment-success", "consumer")); got != 1 {
		t.Fatalf("dead letter counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.offsetCommits.WithLabelValues("payment-success", "order-service")); got != 1 {
		t.Fatalf("offset commit counter = %v, want 1", got)
	}
}

func TestRelayMetricsNilSafe(t *testing.T) {
	var m *RelayMetrics
	m.IncPublished("x")
	m.IncDeadLetter("x", "publisher")

	empty := NewRelayMetrics(nil)
	empty.IncPublished("x")
	empty.ObserveHandlerDuration("x", "g", time.Second)
}

func TestNormalizeLabel(t *testing.T) {
	if got := normalizeLabel("  "); got != "unknown" {
		t.Fatalf("blank label should normalize to unknown, got %q", got)
	}
	if got := normalizeLabel("order-placed"); got != "order-placed" {
		t.Fatalf("unexpected label %q", got)
	}
}
