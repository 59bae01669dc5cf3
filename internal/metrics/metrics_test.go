package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestDetectionsCounterIncrements(t *testing.T) {
	DetectionsTotal.Reset()

	DetectionsTotal.WithLabelValues("velocity_violation", "high").Inc()
	DetectionsTotal.WithLabelValues("velocity_violation", "high").Inc()

	m := &dto.Metric{}
	counter, err := DetectionsTotal.GetMetricWithLabelValues("velocity_violation", "high")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)

	if m.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2, got %f", m.Counter.GetValue())
	}
}

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{
		102: "1xx",
		200: "2xx",
		301: "3xx",
		404: "4xx",
		500: "5xx",
	}
	for code, want := range cases {
		if got := statusBucket(code); got != want {
			t.Errorf("statusBucket(%d) = %s, want %s", code, got, want)
		}
	}
}

func TestCoreMetricsRegistered(t *testing.T) {
	// Exercise a few metrics so Gather has data to report.
	InvocationsTotal.WithLabelValues("ok").Inc()
	AlertsWrittenTotal.WithLabelValues("critical").Inc()

	gathered, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range gathered {
		found[mf.GetName()] = true
	}

	for _, name := range []string{
		"warden_invocations_total",
		"warden_alerts_written_total",
		"warden_detections_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}
