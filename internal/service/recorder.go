package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"doclocker/internal/logging"
	"doclocker/internal/metrics"
	"doclocker/internal/model"
)

// ErrRecorderClosed is returned by Record after Close.
var ErrRecorderClosed = errors.New("scan recorder closed")

// ScanJob is one audit entry to persist. OnLogged, when set, runs after the
// entry is written and shares its retry budget.
type ScanJob struct {
	Entry    model.ScanLogEntry
	OnLogged func(ctx context.Context) error

	logged bool
}

// ScanWriter persists scan log entries.
type ScanWriter interface {
	Record(ctx context.Context, e *model.ScanLogEntry) error
}

// RecorderConfig sizes the recorder. Workers == 0 records synchronously.
type RecorderConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

// ScanRecorder writes scan jobs through a bounded worker pool so the HTTP
// response does not wait on the audit insert. Enqueue blocks while the queue
// is full; jobs are never dropped silently.
type ScanRecorder struct {
	writer  ScanWriter
	cfg     RecorderConfig
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	jobs   chan ScanJob
	wg     sync.WaitGroup
}

// NewScanRecorder starts cfg.Workers workers.
func NewScanRecorder(writer ScanWriter, cfg RecorderConfig, log logrus.FieldLogger, m *metrics.Metrics) *ScanRecorder {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if log == nil {
		log = logging.Discard()
	}
	r := &ScanRecorder{
		writer:  writer,
		cfg:     cfg,
		log:     log.WithField("component", "scan_recorder"),
		metrics: m,
	}
	if cfg.Workers > 0 {
		r.jobs = make(chan ScanJob, cfg.QueueSize)
		r.wg.Add(cfg.Workers)
		for i := 0; i < cfg.Workers; i++ {
			go r.worker()
		}
	}
	return r
}

// Record persists job. In synchronous mode it returns the write error; in
// pooled mode it returns once the job is queued, or ctx is done.
func (r *ScanRecorder) Record(ctx context.Context, job ScanJob) error {
	if r.jobs == nil {
		return r.attempt(ctx, &job)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits until queued jobs are written or ctx
// expires.
func (r *ScanRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.jobs != nil {
		close(r.jobs)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *ScanRecorder) worker() {
	defer r.wg.Done()
	for job := range r.jobs {
		r.process(job)
	}
}

func (r *ScanRecorder) process(job ScanJob) {
	var err error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
		err = r.attempt(ctx, &job)
		cancel()
		if err == nil {
			return
		}
		if attempt < r.cfg.MaxAttempts {
			time.Sleep(time.Duration(attempt) * r.cfg.Backoff)
		}
	}

	r.metrics.ScanRecordFailed()
	r.log.WithError(err).WithFields(logrus.Fields{
		"event":       "scan_record_failed",
		"qr_id":       job.Entry.QRID,
		"document_id": job.Entry.DocumentID,
		"success":     job.Entry.Success,
		"attempts":    r.cfg.MaxAttempts,
	}).Error("dropping scan log entry after retries")
}

// attempt writes the entry once; after that only OnLogged is retried.
func (r *ScanRecorder) attempt(ctx context.Context, job *ScanJob) error {
	if !job.logged {
		if err := r.writer.Record(ctx, &job.Entry); err != nil {
			return err
		}
		job.logged = true
	}
	if job.OnLogged != nil {
		if err := job.OnLogged(ctx); err != nil {
			return err
		}
		job.OnLogged = nil
	}
	return nil
}
