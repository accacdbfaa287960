package repository

import (
	"context"
	"time"

	"doclocker/internal/model"
)

// ScanLogRepository is the append-only audit trail of QR resolutions.
type ScanLogRepository interface {
	Insert(ctx context.Context, e *model.ScanLogEntry) error
	Query(ctx context.Context, q ScanLogQuery) (*PageResult[model.ScanLogEntry], error)
	Count(ctx context.Context, q ScanLogQuery) (int64, error)
	Aggregate(ctx context.Context, q AggregateQuery) ([]model.ScanBucket, error)
}

// ScanLogQuery selects scan log entries. Zero values mean "no constraint".
type ScanLogQuery struct {
	DocumentID    string
	ScannerUserID string
	QRID          string
	Department    string
	Success       *bool
	From          time.Time
	To            time.Time
	Sort          Sort
	Page          PageQuery
}

// GroupBy is an aggregation dimension over the scan log.
type GroupBy string

const (
	GroupByDepartment GroupBy = "department"
	GroupByDocument   GroupBy = "document"
	GroupByHour       GroupBy = "hour"
)

// Valid reports whether g is a supported dimension.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupByDepartment, GroupByDocument, GroupByHour:
		return true
	}
	return false
}

// AggregateQuery counts scan log entries per GroupBy bucket. Limit, when
// positive, keeps only the largest buckets.
type AggregateQuery struct {
	Filter  ScanLogQuery
	GroupBy GroupBy
	Limit   int
}
