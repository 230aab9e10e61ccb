package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(UnitsTotal.WithLabelValues(JobTick, OutcomeSkipped))
	UnitsTotal.WithLabelValues(JobTick, OutcomeSkipped).Inc()
	after := testutil.ToFloat64(UnitsTotal.WithLabelValues(JobTick, OutcomeSkipped))
	if after-before != 1 {
		t.Fatalf("expected +1, got %v", after-before)
	}
}

func TestMetricNamesLint(t *testing.T) {
	problems, err := testutil.CollectAndLint(AlertsRaisedTotal)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	for _, p := range problems {
		t.Errorf("%s: %s", p.Metric, p.Text)
	}
}
