package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclocker/internal/metrics"
	"doclocker/internal/model"
)

// flakyWriter fails the first failures calls.
type flakyWriter struct {
	captureWriter
	failures int32
	calls    atomic.Int32
}

func (w *flakyWriter) Record(ctx context.Context, e *model.ScanLogEntry) error {
	if w.calls.Add(1) <= w.failures {
		return errors.New("connection reset")
	}
	return w.captureWriter.Record(ctx, e)
}

func fastRecorderConfig(workers int) RecorderConfig {
	return RecorderConfig{Workers: workers, QueueSize: 4, MaxAttempts: 3, Backoff: time.Millisecond, Timeout: time.Second}
}

func TestScanRecorder_Synchronous(t *testing.T) {
	w := &captureWriter{}
	r := NewScanRecorder(w, RecorderConfig{}, nil, nil)

	var hooked bool
	err := r.Record(context.Background(), ScanJob{
		Entry:    model.ScanLogEntry{QRID: testQRID, Success: true},
		OnLogged: func(context.Context) error { hooked = true; return nil },
	})
	require.NoError(t, err)
	assert.True(t, hooked)
	assert.Len(t, w.all(), 1)

	w.err = errors.New("db down")
	err = r.Record(context.Background(), ScanJob{Entry: model.ScanLogEntry{QRID: testQRID}})
	assert.Error(t, err)
	require.NoError(t, r.Close(context.Background()))
}

func TestScanRecorder_PooledDrainsOnClose(t *testing.T) {
	w := &captureWriter{}
	r := NewScanRecorder(w, fastRecorderConfig(3), nil, nil)

	var counted atomic.Int32
	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, r.Record(context.Background(), ScanJob{
			Entry: model.ScanLogEntry{QRID: testQRID, Success: true},
			OnLogged: func(context.Context) error {
				counted.Add(1)
				return nil
			},
		}))
	}

	require.NoError(t, r.Close(context.Background()))
	assert.Len(t, w.all(), n)
	assert.Equal(t, int32(n), counted.Load())

	err := r.Record(context.Background(), ScanJob{})
	assert.ErrorIs(t, err, ErrRecorderClosed)
	assert.NoError(t, r.Close(context.Background()))
}

func TestScanRecorder_RetriesTransientFailures(t *testing.T) {
	w := &flakyWriter{failures: 2}
	r := NewScanRecorder(w, fastRecorderConfig(1), nil, nil)

	require.NoError(t, r.Record(context.Background(), ScanJob{Entry: model.ScanLogEntry{QRID: testQRID}}))
	require.NoError(t, r.Close(context.Background()))

	assert.Len(t, w.all(), 1)
	assert.Equal(t, int32(3), w.calls.Load())
}

func TestScanRecorder_OnLoggedRetryDoesNotDuplicateEntry(t *testing.T) {
	w := &captureWriter{}
	r := NewScanRecorder(w, fastRecorderConfig(1), nil, nil)

	var attempts atomic.Int32
	require.NoError(t, r.Record(context.Background(), ScanJob{
		Entry: model.ScanLogEntry{QRID: testQRID, Success: true},
		OnLogged: func(context.Context) error {
			if attempts.Add(1) == 1 {
				return errors.New("deadlock detected")
			}
			return nil
		},
	}))
	require.NoError(t, r.Close(context.Background()))

	assert.Len(t, w.all(), 1)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestScanRecorder_ExhaustedJobsAreLoggedAndCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	log, hook := test.NewNullLogger()

	w := &flakyWriter{failures: 100}
	r := NewScanRecorder(w, fastRecorderConfig(1), log, m)
	require.NoError(t, r.Record(context.Background(), ScanJob{Entry: model.ScanLogEntry{QRID: testQRID, DocumentID: testDocID}}))
	require.NoError(t, r.Close(context.Background()))

	assert.Empty(t, w.all())
	assert.Equal(t, int32(3), w.calls.Load())
	assert.InDelta(t, 1, gatherCounter(t, reg, "doclocker_scan_record_failures_total"), 0)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "scan_record_failed", entry.Data["event"])
	assert.Equal(t, testQRID, entry.Data["qr_id"])
}

func TestScanRecorder_EnqueueBlocksWhenFull(t *testing.T) {
	release := make(chan struct{})
	w := &blockingWriter{release: release}
	r := NewScanRecorder(w, RecorderConfig{Workers: 1, QueueSize: 1, Backoff: time.Millisecond}, nil, nil)

	// One job in the worker, one in the queue.
	require.NoError(t, r.Record(context.Background(), ScanJob{}))
	require.NoError(t, r.Record(context.Background(), ScanJob{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = r.Record(ctx, ScanJob{})
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, r.Close(context.Background()))
}

type blockingWriter struct {
	release chan struct{}
}

func (w *blockingWriter) Record(ctx context.Context, _ *model.ScanLogEntry) error {
	<-w.release
	return nil
}

func gatherCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
