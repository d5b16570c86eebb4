package observability_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/observability"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	m.RunsSubmittedTotal.Inc()
	m.TasksTotal.WithLabelValues(observability.OutcomeFailed).Add(2)

	if got := testutil.ToFloat64(m.RunsSubmittedTotal); got != 1 {
		t.Errorf("expected 1 submitted run, got %v", got)
	}
	if got := testutil.ToFloat64(m.TasksTotal.WithLabelValues(observability.OutcomeFailed)); got != 2 {
		t.Errorf("expected 2 failed tasks, got %v", got)
	}

	// A second registry must not collide with the first.
	observability.NewMetrics(prometheus.NewRegistry())
}
