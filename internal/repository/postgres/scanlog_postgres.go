package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"doclocker/internal/model"
	"doclocker/internal/repository"
)

// ScanLogPostgres is the sqlx-backed scan audit log. Rows are never updated
// or deleted and have no foreign key to documents, so they outlive them.
type ScanLogPostgres struct {
	db *sqlx.DB
}

// NewScanLogPostgres wraps db for sqlx struct scanning.
func NewScanLogPostgres(db *sql.DB) *ScanLogPostgres {
	return &ScanLogPostgres{db: sqlx.NewDb(db, "pgx")}
}

var _ repository.ScanLogRepository = (*ScanLogPostgres)(nil)

// Insert appends one entry.
func (r *ScanLogPostgres) Insert(ctx context.Context, e *model.ScanLogEntry) error {
	const q = `
		INSERT INTO scan_logs (id, qr_id, document_id, department, scanner_user_id,
			scanned_at, ip_address, user_agent, success, reason)
		VALUES (:id, :qr_id, :document_id, :department, :scanner_user_id,
			:scanned_at, :ip_address, :user_agent, :success, :reason)
	`
	_, err := r.db.NamedExecContext(ctx, q, e)
	return err
}

func scanLogPredicates(q repository.ScanLogQuery) ([]string, []any, int) {
	var (
		preds []string
		args  []any
		next  = 1
	)
	add := func(format string, v any) {
		preds = append(preds, fmt.Sprintf(format, next))
		args = append(args, v)
		next++
	}
	if q.DocumentID != "" {
		add("s.document_id = $%d", q.DocumentID)
	}
	if q.ScannerUserID != "" {
		add("s.scanner_user_id = $%d", q.ScannerUserID)
	}
	if q.QRID != "" {
		add("s.qr_id = $%d", q.QRID)
	}
	if q.Department != "" {
		add("s.department = $%d", q.Department)
	}
	if q.Success != nil {
		add("s.success = $%d", *q.Success)
	}
	if !q.From.IsZero() {
		add("s.scanned_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("s.scanned_at <= $%d", q.To)
	}
	return preds, args, next
}

// Query returns a sorted page of entries and the total match count.
func (r *ScanLogPostgres) Query(ctx context.Context, q repository.ScanLogQuery) (*repository.PageResult[model.ScanLogEntry], error) {
	total, err := r.Count(ctx, q)
	if err != nil {
		return nil, err
	}

	srt := q.Sort
	if srt.Field == "" {
		srt = repository.DefaultScanLogSort
	}
	preds, args, next := scanLogPredicates(q)
	query := `
		SELECT s.id, s.qr_id, s.document_id, s.department, s.scanner_user_id, s.scanned_at,
			s.ip_address, s.user_agent, s.success, s.reason
		FROM scan_logs s` + where(preds) + `
		ORDER BY ` + repository.ScanLogSortSpec.OrderBy(srt, "s.id") +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", next, next+1)

	items := make([]model.ScanLogEntry, 0)
	if err := r.db.SelectContext(ctx, &items, query, append(args, q.Page.Limit, q.Page.Offset)...); err != nil {
		return nil, err
	}
	return &repository.PageResult[model.ScanLogEntry]{Items: items, Total: int(total)}, nil
}

// Count returns the number of entries matching q, ignoring sort and page.
func (r *ScanLogPostgres) Count(ctx context.Context, q repository.ScanLogQuery) (int64, error) {
	preds, args, _ := scanLogPredicates(q)
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM scan_logs s`+where(preds), args...)
	return n, err
}

// Aggregate counts entries per bucket, largest first, except hourly buckets
// which are returned in chronological order.
func (r *ScanLogPostgres) Aggregate(ctx context.Context, q repository.AggregateQuery) ([]model.ScanBucket, error) {
	preds, args, next := scanLogPredicates(q.Filter)

	var query string
	switch q.GroupBy {
	case repository.GroupByDepartment:
		query = `
		SELECT s.department AS bucket_key, s.department AS bucket_label, COUNT(*) AS bucket_count
		FROM scan_logs s` + where(preds) + `
		GROUP BY s.department
		ORDER BY bucket_count DESC, bucket_key ASC`
	case repository.GroupByDocument:
		query = `
		SELECT s.document_id AS bucket_key, COALESCE(MAX(d.title), '') AS bucket_label, COUNT(*) AS bucket_count
		FROM scan_logs s
		LEFT JOIN documents d ON d.id = s.document_id` + where(preds) + `
		GROUP BY s.document_id
		ORDER BY bucket_count DESC, bucket_key ASC`
	case repository.GroupByHour:
		query = `
		SELECT to_char(date_trunc('hour', s.scanned_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD"T"HH24:00:00"Z"') AS bucket_key,
			'' AS bucket_label, COUNT(*) AS bucket_count
		FROM scan_logs s` + where(preds) + `
		GROUP BY bucket_key
		ORDER BY bucket_key ASC`
	default:
		return nil, fmt.Errorf("%w: cannot group by %q", repository.ErrInvalidFilter, q.GroupBy)
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", next)
		args = append(args, q.Limit)
	}

	buckets := make([]model.ScanBucket, 0)
	if err := r.db.SelectContext(ctx, &buckets, query, args...); err != nil {
		return nil, err
	}
	return buckets, nil
}
