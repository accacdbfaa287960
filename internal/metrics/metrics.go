// Package metrics holds the domain counters exposed on /metrics next to the
// HTTP middleware metrics. A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Scan outcomes used as the "result" label.
const (
	ScanSuccess   = "success"
	ScanForbidden = "forbidden"
	ScanInactive  = "inactive"
)

type Metrics struct {
	scans              *prometheus.CounterVec
	scanRecordFailures prometheus.Counter
	versionConflicts   prometheus.Counter
	documentsCreated   prometheus.Counter
}

// New creates the domain counters and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doclocker_qr_scans_total",
				Help: "QR resolution attempts against existing codes, by result.",
			},
			[]string{"result"},
		),
		scanRecordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doclocker_scan_record_failures_total",
			Help: "Scan log writes dropped after exhausting retries.",
		}),
		versionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doclocker_version_conflicts_total",
			Help: "Optimistic version append attempts that lost a race.",
		}),
		documentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doclocker_documents_created_total",
			Help: "Documents created with their first version and QR code.",
		}),
	}

	for _, c := range []prometheus.Collector{m.scans, m.scanRecordFailures, m.versionConflicts, m.documentsCreated} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveScan(result string) {
	if m != nil {
		m.scans.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ScanRecordFailed() {
	if m != nil {
		m.scanRecordFailures.Inc()
	}
}

func (m *Metrics) VersionConflict() {
	if m != nil {
		m.versionConflicts.Inc()
	}
}

func (m *Metrics) DocumentCreated() {
	if m != nil {
		m.documentsCreated.Inc()
	}
}
