package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"doclocker/internal/access"
	"doclocker/internal/apperr"
	"doclocker/internal/cache"
	"doclocker/internal/metrics"
	"doclocker/internal/model"
	"doclocker/internal/qr"
	"doclocker/internal/repository"
	"doclocker/internal/storage"
)

const recentScansLimit = 100

// Failure reasons stored on scan log entries.
const (
	ReasonInactive     = "qr code inactive"
	ReasonAccessDenied = "access denied"
)

// ScanContext describes the client that scanned a code.
type ScanContext struct {
	IP        string
	UserAgent string
}

// DocumentSummary is the short form of a document shown next to a binding.
type DocumentSummary struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Department     string `json:"department"`
	MachineID      string `json:"machine_id,omitempty"`
	CurrentVersion int    `json:"current_version"`
}

// QRCodeDetails is a binding with its document and printable image.
type QRCodeDetails struct {
	Binding  model.QRBinding `json:"binding"`
	Document DocumentSummary `json:"document"`
	ViewURL  string          `json:"view_url"`
	Image    string          `json:"image"`
}

// ViewResult is what a successful scan returns.
type ViewResult struct {
	QRID        string          `json:"qr_id"`
	Document    *model.Document `json:"document"`
	Version     model.Version   `json:"version"`
	DownloadURL string          `json:"download_url"`
}

// QRStats summarises scans of one code.
type QRStats struct {
	QRID          string               `json:"qr_id"`
	DocumentID    string               `json:"document_id"`
	IsActive      bool                 `json:"is_active"`
	TotalScans    int64                `json:"total_scans"`
	LastScan      *time.Time           `json:"last_scan,omitempty"`
	ScansToday    int64                `json:"scans_today"`
	ScansThisWeek int64                `json:"scans_this_week"`
	RecentScans   []model.ScanLogEntry `json:"recent_scans"`
}

// Recorder accepts scan jobs; *ScanRecorder implements it.
type Recorder interface {
	Record(ctx context.Context, job ScanJob) error
}

// QRCodeService is the QR binding registry and scan flow.
type QRCodeService interface {
	// Bind mints a token for a document without an active binding.
	Bind(ctx context.Context, actor model.Actor, documentID string) (*model.QRBinding, error)

	// Regenerate deactivates the document's active binding, if any, and binds
	// a fresh token. The old token then resolves as inactive.
	Regenerate(ctx context.Context, actor model.Actor, documentID string) (*model.QRBinding, error)

	// Resolve returns the binding for qrID. An inactive binding is returned
	// together with an INACTIVE error.
	Resolve(ctx context.Context, qrID string) (*model.QRBinding, error)

	// Deactivate soft-deletes a binding. Admin only.
	Deactivate(ctx context.Context, actor model.Actor, qrID string) error

	// RecordScan bumps the scan counter of a binding.
	RecordScan(ctx context.Context, qrID string) error

	Get(ctx context.Context, actor model.Actor, qrID string) (*QRCodeDetails, error)

	// View resolves a scanned code, checks view access and audits the attempt.
	View(ctx context.Context, actor model.Actor, qrID string, sc ScanContext) (*ViewResult, error)

	Stats(ctx context.Context, actor model.Actor, qrID string) (*QRStats, error)

	// Unbind removes every binding of a document, active or not.
	Unbind(ctx context.Context, documentID string) error
}

type qrCodeService struct {
	bindings repository.QRBindingRepository
	docs     repository.DocumentRepository
	scanLogs repository.ScanLogRepository
	store    storage.Storage
	cache    cache.BindingCache
	recorder Recorder
	newToken qr.TokenFunc
	opts     Options
	log      logrus.FieldLogger
}

// QRCodeDeps groups the collaborators of the QR service.
type QRCodeDeps struct {
	Bindings repository.QRBindingRepository
	Docs     repository.DocumentRepository
	ScanLogs repository.ScanLogRepository
	Store    storage.Storage
	Cache    cache.BindingCache
	Recorder Recorder
	NewToken qr.TokenFunc
}

// NewQRCodeService constructs a new QRCodeService.
func NewQRCodeService(deps QRCodeDeps, opts Options) QRCodeService {
	opts = opts.withDefaults()
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if deps.NewToken == nil {
		deps.NewToken = qr.NewToken
	}
	return &qrCodeService{
		bindings: deps.Bindings,
		docs:     deps.Docs,
		scanLogs: deps.ScanLogs,
		store:    deps.Store,
		cache:    deps.Cache,
		recorder: deps.Recorder,
		newToken: deps.NewToken,
		opts:     opts,
		log:      opts.Logger.WithField("component", "qr_service"),
	}
}

func (s *qrCodeService) Bind(ctx context.Context, actor model.Actor, documentID string) (*model.QRBinding, error) {
	doc, err := s.findDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.ResourceOf(doc), access.OpEdit) {
		return nil, apperr.Forbidden("not allowed to bind a qr code to this document")
	}
	return s.mint(ctx, actor, documentID, func(ctx context.Context, b *model.QRBinding) error {
		return s.bindings.Create(ctx, b)
	})
}

func (s *qrCodeService) Regenerate(ctx context.Context, actor model.Actor, documentID string) (*model.QRBinding, error) {
	doc, err := s.findDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.ResourceOf(doc), access.OpEdit) {
		return nil, apperr.Forbidden("not allowed to regenerate this qr code")
	}

	var prev string
	b, err := s.mint(ctx, actor, documentID, func(ctx context.Context, b *model.QRBinding) error {
		var err error
		prev, err = s.bindings.Rotate(ctx, b, b.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	if prev != "" {
		s.cache.Invalidate(ctx, prev)
	}
	s.log.WithFields(logrus.Fields{
		"event":       "qr_regenerated",
		"document_id": documentID,
		"previous":    prev,
		"qr_id":       b.QRID,
	}).Info("qr code regenerated")
	return b, nil
}

// mint inserts a freshly minted binding through insert, retrying on token
// collisions.
func (s *qrCodeService) mint(ctx context.Context, actor model.Actor, documentID string, insert func(context.Context, *model.QRBinding) error) (*model.QRBinding, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		b := &model.QRBinding{
			QRID:       s.newToken(),
			DocumentID: documentID,
			IsActive:   true,
			CreatedBy:  actor.ID,
			CreatedAt:  s.opts.Now(),
		}
		dbCtx, cancel := s.opts.dbCtx(ctx)
		err := insert(dbCtx, b)
		cancel()
		switch {
		case err == nil:
			return b, nil
		case errors.Is(err, repository.ErrTokenTaken):
			s.log.WithField("attempt", attempt+1).Warn("qr token collision, retrying")
			continue
		case errors.Is(err, repository.ErrAlreadyBound):
			return nil, apperr.New(apperr.KindAlreadyBound, "document already has an active qr code")
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperr.NotFound("document not found")
		default:
			return nil, apperr.Persistence("failed to save qr binding", err)
		}
	}
	return nil, apperr.New(apperr.KindBindingExhausted, "could not allocate a unique qr code")
}

// Resolve returns the binding for qrID. Cached rows are trusted for
// everything except the active flag, which is read from the database.
func (s *qrCodeService) Resolve(ctx context.Context, qrID string) (*model.QRBinding, error) {
	if !qr.LooksLikeToken(qrID) {
		return nil, apperr.NotFound("qr code not found")
	}

	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()

	var b *model.QRBinding
	if cached, ok := s.cache.Get(ctx, qrID); ok {
		active, err := s.bindings.IsActive(dbCtx, qrID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.cache.Invalidate(ctx, qrID)
			}
			return nil, notFoundOr(err, "qr code not found")
		}
		current := *cached
		current.IsActive = active
		b = &current
		if !active {
			s.cache.Invalidate(ctx, qrID)
		}
	} else {
		found, err := s.bindings.FindByQRID(dbCtx, qrID)
		if err != nil {
			return nil, notFoundOr(err, "qr code not found")
		}
		b = found
		if b.IsActive {
			s.cache.Set(ctx, b)
		}
	}

	if !b.IsActive {
		return b, apperr.New(apperr.KindInactive, "qr code has been deactivated")
	}
	return b, nil
}

func (s *qrCodeService) Deactivate(ctx context.Context, actor model.Actor, qrID string) error {
	if actor.Role != model.RoleAdmin {
		return apperr.Forbidden("only admins can deactivate qr codes")
	}
	if !qr.LooksLikeToken(qrID) {
		return apperr.NotFound("qr code not found")
	}
	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	if err := s.bindings.Deactivate(dbCtx, qrID, s.opts.Now()); err != nil {
		return notFoundOr(err, "qr code not found")
	}
	s.cache.Invalidate(ctx, qrID)
	s.log.WithFields(logrus.Fields{
		"event":    "qr_deactivated",
		"qr_id":    qrID,
		"actor_id": actor.ID,
	}).Info("qr code deactivated")
	return nil
}

func (s *qrCodeService) RecordScan(ctx context.Context, qrID string) error {
	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	if err := s.bindings.IncrementScan(dbCtx, qrID, s.opts.Now()); err != nil {
		return notFoundOr(err, "qr code not found")
	}
	return nil
}

func (s *qrCodeService) Get(ctx context.Context, actor model.Actor, qrID string) (*QRCodeDetails, error) {
	if !qr.LooksLikeToken(qrID) {
		return nil, apperr.NotFound("qr code not found")
	}
	dbCtx, cancel := s.opts.dbCtx(ctx)
	b, err := s.bindings.FindByQRID(dbCtx, qrID)
	cancel()
	if err != nil {
		return nil, notFoundOr(err, "qr code not found")
	}
	doc, err := s.findDocument(ctx, b.DocumentID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.ResourceOf(doc), access.OpView) {
		return nil, apperr.Forbidden("not allowed to view this qr code")
	}

	viewURL := qr.ViewURL(s.opts.PublicBaseURL, b.QRID)
	img, err := qr.RenderDataURL(viewURL, qr.DefaultImageSize)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to render qr image", err)
	}
	return &QRCodeDetails{
		Binding:  *b,
		Document: summarize(doc),
		ViewURL:  viewURL,
		Image:    img,
	}, nil
}

func (s *qrCodeService) View(ctx context.Context, actor model.Actor, qrID string, sc ScanContext) (*ViewResult, error) {
	b, err := s.Resolve(ctx, qrID)
	if err != nil {
		if b == nil {
			return nil, err
		}
		// Inactive: audit with the department if the document still exists.
		var department string
		if doc, derr := s.findDocument(ctx, b.DocumentID); derr == nil {
			department = doc.Department
		}
		s.audit(ctx, s.entry(actor, b, department, sc, ReasonInactive), nil)
		s.opts.Metrics.ObserveScan(metrics.ScanInactive)
		return nil, err
	}

	doc, err := s.findDocument(ctx, b.DocumentID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.ResourceOf(doc), access.OpView) {
		s.audit(ctx, s.entry(actor, b, doc.Department, sc, ReasonAccessDenied), nil)
		s.opts.Metrics.ObserveScan(metrics.ScanForbidden)
		return nil, apperr.Forbidden("not allowed to view this document")
	}

	latest, ok := doc.LatestVersion()
	if !ok {
		return nil, apperr.New(apperr.KindInternal, "document has no versions")
	}

	s.audit(ctx, s.entry(actor, b, doc.Department, sc, ""), func(ctx context.Context) error {
		return s.RecordScan(ctx, b.QRID)
	})
	s.opts.Metrics.ObserveScan(metrics.ScanSuccess)

	return &ViewResult{
		QRID:        b.QRID,
		Document:    doc,
		Version:     latest,
		DownloadURL: s.opts.downloadURL(ctx, s.store, latest),
	}, nil
}

func (s *qrCodeService) entry(actor model.Actor, b *model.QRBinding, department string, sc ScanContext, reason string) model.ScanLogEntry {
	e := model.ScanLogEntry{
		QRID:       b.QRID,
		DocumentID: b.DocumentID,
		Department: department,
		Timestamp:  s.opts.Now(),
		IPAddress:  sc.IP,
		UserAgent:  sc.UserAgent,
		Success:    reason == "",
		Reason:     reason,
	}
	if actor.ID != "" {
		id := actor.ID
		e.ScannerUserID = &id
	}
	return e
}

// audit hands the entry to the recorder. A failed enqueue is logged; the scan
// result is still returned to the caller.
func (s *qrCodeService) audit(ctx context.Context, e model.ScanLogEntry, onLogged func(context.Context) error) {
	if err := s.recorder.Record(ctx, ScanJob{Entry: e, OnLogged: onLogged}); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event":   "scan_record_enqueue_failed",
			"qr_id":   e.QRID,
			"success": e.Success,
		}).Error("failed to record scan")
	}
}

func (s *qrCodeService) Stats(ctx context.Context, actor model.Actor, qrID string) (*QRStats, error) {
	if !access.HasPermission(actor.Role, model.RoleSupervisor) {
		return nil, apperr.Forbidden("only supervisors and admins can view qr statistics")
	}
	if !qr.LooksLikeToken(qrID) {
		return nil, apperr.NotFound("qr code not found")
	}
	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()

	b, err := s.bindings.FindByQRID(dbCtx, qrID)
	if err != nil {
		return nil, notFoundOr(err, "qr code not found")
	}
	doc, err := s.docs.FindByID(dbCtx, b.DocumentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Persistence("failed to load document", err)
	}
	if doc != nil && !access.Can(actor, access.ResourceOf(doc), access.OpView) {
		return nil, apperr.Forbidden("not allowed to view this qr code")
	}
	if doc == nil && actor.Role != model.RoleAdmin {
		return nil, apperr.NotFound("qr code not found")
	}

	now := s.opts.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	succeeded := true
	base := repository.ScanLogQuery{QRID: qrID, Success: &succeeded}

	today := base
	today.From = startOfDay
	scansToday, err := s.scanLogs.Count(dbCtx, today)
	if err != nil {
		return nil, apperr.Persistence("failed to count scans", err)
	}
	week := base
	week.From = now.Add(-7 * 24 * time.Hour)
	scansThisWeek, err := s.scanLogs.Count(dbCtx, week)
	if err != nil {
		return nil, apperr.Persistence("failed to count scans", err)
	}
	recent, err := s.scanLogs.Query(dbCtx, repository.ScanLogQuery{
		QRID: qrID,
		Sort: repository.DefaultScanLogSort,
		Page: repository.PageQuery{Limit: recentScansLimit},
	})
	if err != nil {
		return nil, apperr.Persistence("failed to load recent scans", err)
	}

	return &QRStats{
		QRID:          b.QRID,
		DocumentID:    b.DocumentID,
		IsActive:      b.IsActive,
		TotalScans:    b.ScanCount,
		LastScan:      b.LastScanAt,
		ScansToday:    scansToday,
		ScansThisWeek: scansThisWeek,
		RecentScans:   recent.Items,
	}, nil
}

func (s *qrCodeService) Unbind(ctx context.Context, documentID string) error {
	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	ids, err := s.bindings.DeleteByDocument(dbCtx, documentID)
	if err != nil {
		return apperr.Persistence("failed to remove qr bindings", err)
	}
	s.cache.Invalidate(ctx, ids...)
	return nil
}

func (s *qrCodeService) findDocument(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, apperr.Validation("document_id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("document not found")
	}
	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	doc, err := s.docs.FindByID(dbCtx, id)
	if err != nil {
		return nil, notFoundOr(err, "document not found")
	}
	return doc, nil
}

func summarize(d *model.Document) DocumentSummary {
	return DocumentSummary{
		ID:             d.ID,
		Title:          d.Title,
		Department:     d.Department,
		MachineID:      d.MachineID,
		CurrentVersion: d.CurrentVersion,
	}
}
