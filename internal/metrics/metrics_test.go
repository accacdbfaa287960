package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveScan(ScanSuccess)
	m.ObserveScan(ScanSuccess)
	m.ObserveScan(ScanForbidden)
	m.ScanRecordFailed()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.scans.WithLabelValues(ScanSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.scans.WithLabelValues(ScanForbidden)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.scanRecordFailures))

	_, err = New(reg)
	assert.Error(t, err, "second registration on the same registry must fail")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveScan(ScanInactive)
		m.ScanRecordFailed()
		m.VersionConflict()
		m.DocumentCreated()
	})
}
