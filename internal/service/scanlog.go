package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"doclocker/internal/access"
	"doclocker/internal/apperr"
	"doclocker/internal/model"
	"doclocker/internal/repository"
)

const (
	defaultScanLogLimit = 50
	maxScanLogLimit     = 500
	topDocumentsLimit   = 10
)

// ScanLogQueryInput is a raw scan log query as received from a client.
// From and To accept RFC 3339 timestamps or YYYY-MM-DD dates.
type ScanLogQueryInput struct {
	DocumentID    string
	ScannerUserID string
	QRID          string
	Department    string
	Success       *bool
	From          string
	To            string
	Sort          string
	Limit         int
	Offset        int
}

// ScanLogPage is a page of scan log entries.
type ScanLogPage struct {
	Items  []model.ScanLogEntry `json:"data"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// AggregateInput groups the scan log over an optional time range.
type AggregateInput struct {
	GroupBy    string
	From       string
	To         string
	Department string
}

// Analytics is the dashboard summary over a time range.
type Analytics struct {
	TimeRange    string             `json:"time_range"`
	From         time.Time          `json:"from"`
	To           time.Time          `json:"to"`
	TotalScans   int64              `json:"total_scans"`
	ByDepartment []model.ScanBucket `json:"by_department"`
	TopDocuments []model.ScanBucket `json:"top_documents"`
	ByHour       []model.ScanBucket `json:"by_hour"`
}

var analyticsRanges = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// ScanLogService exposes the scan audit trail.
type ScanLogService interface {
	// Record appends an entry, assigning its id and timestamp when unset.
	Record(ctx context.Context, e *model.ScanLogEntry) error
	Query(ctx context.Context, actor model.Actor, in ScanLogQueryInput) (*ScanLogPage, error)
	Aggregate(ctx context.Context, actor model.Actor, in AggregateInput) ([]model.ScanBucket, error)
	Analytics(ctx context.Context, actor model.Actor, timeRange string) (*Analytics, error)
}

type scanLogService struct {
	repo repository.ScanLogRepository
	opts Options
	log  logrus.FieldLogger
}

// NewScanLogService constructs a new ScanLogService.
func NewScanLogService(repo repository.ScanLogRepository, opts Options) ScanLogService {
	opts = opts.withDefaults()
	return &scanLogService{
		repo: repo,
		opts: opts,
		log:  opts.Logger.WithField("component", "scan_log_service"),
	}
}

func (s *scanLogService) Record(ctx context.Context, e *model.ScanLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.opts.Now()
	}
	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	if err := s.repo.Insert(dbCtx, e); err != nil {
		return apperr.Persistence("failed to record scan", err)
	}
	return nil
}

func (s *scanLogService) Query(ctx context.Context, actor model.Actor, in ScanLogQueryInput) (*ScanLogPage, error) {
	from, to, err := parseRange(in.From, in.To)
	if err != nil {
		return nil, err
	}
	srt, err := repository.ScanLogSortSpec.ParseSort(in.Sort, repository.DefaultScanLogSort)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if in.Limit <= 0 {
		in.Limit = defaultScanLogLimit
	}
	if in.Limit > maxScanLogLimit {
		in.Limit = maxScanLogLimit
	}
	if in.Offset < 0 {
		in.Offset = 0
	}

	q := repository.ScanLogQuery{
		DocumentID:    in.DocumentID,
		ScannerUserID: in.ScannerUserID,
		QRID:          in.QRID,
		Department:    in.Department,
		Success:       in.Success,
		From:          from,
		To:            to,
		Sort:          srt,
		Page:          repository.PageQuery{Limit: in.Limit, Offset: in.Offset},
	}
	if err := restrictScanQuery(actor, &q); err != nil {
		return nil, err
	}

	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	res, err := s.repo.Query(dbCtx, q)
	if err != nil {
		return nil, apperr.Persistence("failed to query scan logs", err)
	}
	return &ScanLogPage{Items: res.Items, Total: res.Total, Limit: in.Limit, Offset: in.Offset}, nil
}

func (s *scanLogService) Aggregate(ctx context.Context, actor model.Actor, in AggregateInput) ([]model.ScanBucket, error) {
	if !access.HasPermission(actor.Role, model.RoleSupervisor) {
		return nil, apperr.Forbidden("only supervisors and admins can aggregate scan logs")
	}
	groupBy := repository.GroupBy(in.GroupBy)
	if !groupBy.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("groupBy must be one of department, document, hour; got %q", in.GroupBy))
	}
	from, to, err := parseRange(in.From, in.To)
	if err != nil {
		return nil, err
	}

	filter := repository.ScanLogQuery{Department: in.Department, From: from, To: to}
	if err := restrictScanQuery(actor, &filter); err != nil {
		return nil, err
	}

	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	buckets, err := s.repo.Aggregate(dbCtx, repository.AggregateQuery{Filter: filter, GroupBy: groupBy})
	if err != nil {
		return nil, apperr.Persistence("failed to aggregate scan logs", err)
	}
	return buckets, nil
}

func (s *scanLogService) Analytics(ctx context.Context, actor model.Actor, timeRange string) (*Analytics, error) {
	if !access.HasPermission(actor.Role, model.RoleSupervisor) {
		return nil, apperr.Forbidden("only supervisors and admins can view analytics")
	}
	if timeRange == "" {
		timeRange = "7d"
	}
	window, ok := analyticsRanges[timeRange]
	if !ok {
		return nil, apperr.New(apperr.KindInvalidRange, "timeRange must be one of 24h, 7d, 30d")
	}

	now := s.opts.Now()
	out := &Analytics{TimeRange: timeRange, From: now.Add(-window), To: now}
	filter := repository.ScanLogQuery{From: out.From, To: now}
	if err := restrictScanQuery(actor, &filter); err != nil {
		return nil, err
	}
	lastDay := filter
	lastDay.From = now.Add(-24 * time.Hour)

	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(dbCtx)
	g.Go(func() error {
		n, err := s.repo.Count(gctx, filter)
		out.TotalScans = n
		return err
	})
	g.Go(func() error {
		b, err := s.repo.Aggregate(gctx, repository.AggregateQuery{Filter: filter, GroupBy: repository.GroupByDepartment})
		out.ByDepartment = b
		return err
	})
	g.Go(func() error {
		b, err := s.repo.Aggregate(gctx, repository.AggregateQuery{Filter: filter, GroupBy: repository.GroupByDocument, Limit: topDocumentsLimit})
		out.TopDocuments = b
		return err
	})
	g.Go(func() error {
		b, err := s.repo.Aggregate(gctx, repository.AggregateQuery{Filter: lastDay, GroupBy: repository.GroupByHour})
		out.ByHour = b
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Persistence("failed to compute analytics", err)
	}
	return out, nil
}

// restrictScanQuery narrows q to what actor may read: supervisors see their
// department, users their own scans.
func restrictScanQuery(actor model.Actor, q *repository.ScanLogQuery) error {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleSupervisor:
		if q.Department != "" && q.Department != actor.Department {
			return apperr.Forbidden("supervisors can only read scans of their own department")
		}
		q.Department = actor.Department
		return nil
	case model.RoleUser:
		if q.ScannerUserID != "" && q.ScannerUserID != actor.ID {
			return apperr.Forbidden("users can only read their own scans")
		}
		q.ScannerUserID = actor.ID
		return nil
	}
	return apperr.Forbidden("unknown role")
}

var rangeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range rangeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unparsable time")
}

// parseRange parses optional bounds. A date-only To covers the whole day.
func parseRange(rawFrom, rawTo string) (from, to time.Time, err error) {
	if rawFrom != "" {
		if from, err = parseTime(rawFrom); err != nil {
			return from, to, apperr.New(apperr.KindInvalidRange, fmt.Sprintf("invalid from %q", rawFrom))
		}
	}
	if rawTo != "" {
		if to, err = parseTime(rawTo); err != nil {
			return from, to, apperr.New(apperr.KindInvalidRange, fmt.Sprintf("invalid to %q", rawTo))
		}
		if len(rawTo) == len("2006-01-02") {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return from, to, apperr.New(apperr.KindInvalidRange, "from must not be after to")
	}
	return from, to, nil
}
