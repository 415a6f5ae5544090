package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("scan").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("scan").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("scan", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("scan", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("scan")))
}

func TestLowStockAndImportCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetLowStock(4)
	m.SetLowStock(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lowStock))

	m.AddImported("created", 3)
	m.AddImported("created", 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.imported.WithLabelValues("created")))

	var nilMetrics *Metrics
	nilMetrics.SetLowStock(1)
	nilMetrics.AddImported("created", 1)
	assert.NoError(t, nilMetrics.Track("noop").End(nil))
}
