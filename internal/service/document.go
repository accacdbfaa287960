package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"doclocker/internal/access"
	"doclocker/internal/apperr"
	"doclocker/internal/model"
	"doclocker/internal/repository"
	"doclocker/internal/storage"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 500
	defaultPageLimit  = 10
	maxPageLimit      = 100
)

// FileInput is an uploaded file stream plus the client-declared metadata.
type FileInput struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

// CreateDocumentInput holds everything needed to create a document.
type CreateDocumentInput struct {
	Title       string
	Description string
	Department  string
	MachineID   string
	AccessRoles []model.Role
	Notes       string
	File        FileInput
}

// MetadataPatch changes a subset of the mutable document fields. Nil fields
// are left untouched.
type MetadataPatch struct {
	Title       *string       `json:"title"`
	Description *string       `json:"description"`
	Department  *string       `json:"department"`
	MachineID   *string       `json:"machine_id"`
	AccessRoles *[]model.Role `json:"access_roles"`
}

// ListQuery is a document listing request.
type ListQuery struct {
	Filters []repository.Filter
	Sort    string
	Limit   int
	Offset  int
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items  []model.Document `json:"data"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// DeleteResult reports a completed delete. Warnings name storage objects
// that could not be removed.
type DeleteResult struct {
	ID       string   `json:"id"`
	Warnings []string `json:"warnings"`
}

// VersionFile is an open stream of one stored version.
type VersionFile struct {
	Body    io.ReadCloser
	Info    storage.ObjectInfo
	Version model.Version
}

// QRBinder is the part of the QR registry the document store depends on.
type QRBinder interface {
	Bind(ctx context.Context, actor model.Actor, documentID string) (*model.QRBinding, error)
	Unbind(ctx context.Context, documentID string) error
}

// DocumentService defines the document lifecycle use cases.
type DocumentService interface {
	// Create stores the file, inserts the document with version 1 and binds a
	// QR code. It never reports success without a QR code.
	Create(ctx context.Context, actor model.Actor, in CreateDocumentInput) (*model.Document, error)

	// AddVersion appends a new version with optimistic concurrency.
	AddVersion(ctx context.Context, actor model.Actor, documentID string, file FileInput, notes string) (*model.Document, error)

	UpdateMetadata(ctx context.Context, actor model.Actor, documentID string, patch MetadataPatch) (*model.Document, error)

	// Delete removes the QR bindings and the document, then its stored objects (best effort).
	Delete(ctx context.Context, actor model.Actor, documentID string) (*DeleteResult, error)

	Get(ctx context.Context, actor model.Actor, documentID string) (*model.Document, error)
	ListVersions(ctx context.Context, actor model.Actor, documentID string) ([]model.Version, error)
	List(ctx context.Context, actor model.Actor, q ListQuery) (*DocumentListResult, error)

	// OpenVersion streams one version's bytes. The caller closes Body.
	OpenVersion(ctx context.Context, actor model.Actor, documentID string, version int) (*VersionFile, error)
}

type documentService struct {
	store  storage.Storage
	repo   repository.DocumentRepository
	binder QRBinder
	opts   Options
	log    logrus.FieldLogger
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, binder QRBinder, opts Options) DocumentService {
	opts = opts.withDefaults()
	return &documentService{
		store:  store,
		repo:   repo,
		binder: binder,
		opts:   opts,
		log:    opts.Logger.WithField("component", "document_service"),
	}
}

func (s *documentService) Create(ctx context.Context, actor model.Actor, in CreateDocumentInput) (*model.Document, error) {
	if !access.HasPermission(actor.Role, model.RoleSupervisor) {
		return nil, apperr.Forbidden("only supervisors and admins can create documents")
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Department = strings.TrimSpace(in.Department)
	in.MachineID = strings.TrimSpace(in.MachineID)
	if err := validateMetadata(in.Title, in.Description, in.Department); err != nil {
		return nil, err
	}
	roles, err := normalizeRoles(in.AccessRoles)
	if err != nil {
		return nil, err
	}
	if err := s.validateFile(in.File); err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	obj, checksum, err := s.putFile(ctx, docID, in.File)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	notes := in.Notes
	if notes == "" {
		notes = "Initial version"
	}
	doc := &model.Document{
		ID:             docID,
		Title:          in.Title,
		Description:    in.Description,
		Department:     in.Department,
		MachineID:      in.MachineID,
		CurrentVersion: 1,
		AccessRoles:    roles,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Versions: []model.Version{{
			DocumentID:       docID,
			VersionNumber:    1,
			StorageKey:       obj.Key,
			URL:              obj.URL,
			OriginalFilename: in.File.Filename,
			ContentType:      normalizeContentType(in.File.ContentType),
			Size:             obj.Size,
			Checksum:         checksum,
			UploadedBy:       actor.ID,
			UploadedAt:       now,
			Notes:            notes,
		}},
	}

	dbCtx, cancel := s.opts.dbCtx(ctx)
	stored, err := s.repo.Create(dbCtx, doc)
	cancel()
	if err != nil {
		s.removeObject(ctx, obj.Key, "rollback after failed insert")
		return nil, apperr.Persistence("failed to save document", err)
	}

	binding, err := s.binder.Bind(ctx, actor, docID)
	if err != nil {
		s.compensateCreate(ctx, docID, obj.Key)
		return nil, err
	}
	stored.QRID = binding.QRID

	s.opts.Metrics.DocumentCreated()
	s.log.WithFields(logrus.Fields{
		"event":       "document_created",
		"document_id": docID,
		"qr_id":       binding.QRID,
		"actor_id":    actor.ID,
	}).Info("document created")
	return stored, nil
}

// compensateCreate undoes a half-created document after QR binding failed.
func (s *documentService) compensateCreate(ctx context.Context, docID, key string) {
	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	if err := s.repo.Delete(dbCtx, docID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.WithError(err).WithField("document_id", docID).Error("failed to remove document after qr binding failure")
	}
	s.removeObject(ctx, key, "rollback after failed qr binding")
}

func (s *documentService) removeObject(ctx context.Context, key, reason string) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"storage_key": key, "reason": reason}).Warn("failed to delete stored object")
	}
}

func (s *documentService) AddVersion(ctx context.Context, actor model.Actor, documentID string, file FileInput, notes string) (*model.Document, error) {
	doc, err := s.find(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.ResourceOf(doc), access.OpAddVersion) {
		return nil, apperr.Forbidden("not allowed to add versions to this document")
	}
	if err := s.validateFile(file); err != nil {
		return nil, err
	}

	obj, checksum, err := s.putFile(ctx, documentID, file)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		now := s.opts.Now()
		next := doc.CurrentVersion + 1
		v := &model.Version{
			DocumentID:       documentID,
			VersionNumber:    next,
			StorageKey:       obj.Key,
			URL:              obj.URL,
			OriginalFilename: file.Filename,
			ContentType:      normalizeContentType(file.ContentType),
			Size:             obj.Size,
			Checksum:         checksum,
			UploadedBy:       actor.ID,
			UploadedAt:       now,
			Notes:            notes,
		}
		if v.Notes == "" {
			v.Notes = fmt.Sprintf("Version %d", next)
		}

		dbCtx, cancel := s.opts.dbCtx(ctx)
		err = s.repo.AppendVersion(dbCtx, v, doc.CurrentVersion)
		cancel()
		if err == nil {
			return s.find(ctx, documentID)
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			s.removeObject(ctx, obj.Key, "rollback after failed version insert")
			return nil, apperr.Persistence("failed to save version", err)
		}

		s.opts.Metrics.VersionConflict()
		if doc, err = s.find(ctx, documentID); err != nil {
			s.removeObject(ctx, obj.Key, "document vanished during version append")
			return nil, err
		}
	}

	s.removeObject(ctx, obj.Key, "version append retries exhausted")
	return nil, apperr.New(apperr.KindConflict, "document was modified concurrently, please retry")
}

func (s *documentService) UpdateMetadata(ctx context.Context, actor model.Actor, documentID string, patch MetadataPatch) (*model.Document, error) {
	doc, err := s.find(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.ResourceOf(doc), access.OpEdit) {
		return nil, apperr.Forbidden("not allowed to edit this document")
	}

	if patch.Title != nil {
		doc.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		doc.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Department != nil {
		doc.Department = strings.TrimSpace(*patch.Department)
	}
	if patch.MachineID != nil {
		doc.MachineID = strings.TrimSpace(*patch.MachineID)
	}
	if err := validateMetadata(doc.Title, doc.Description, doc.Department); err != nil {
		return nil, err
	}
	if patch.AccessRoles != nil {
		roles, err := normalizeRoles(*patch.AccessRoles)
		if err != nil {
			return nil, err
		}
		doc.AccessRoles = roles
	}
	doc.UpdatedAt = s.opts.Now()

	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	updated, err := s.repo.UpdateMetadata(dbCtx, doc)
	if err != nil {
		return nil, notFoundOr(err, "document not found")
	}
	return updated, nil
}

func (s *documentService) Delete(ctx context.Context, actor model.Actor, documentID string) (*DeleteResult, error) {
	doc, err := s.find(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.ResourceOf(doc), access.OpDelete) {
		return nil, apperr.Forbidden("not allowed to delete this document")
	}

	// Rows go first: a failure here leaves every version downloadable. Stored
	// objects are only garbage once the rows are gone.
	if err := s.binder.Unbind(ctx, documentID); err != nil {
		return nil, err
	}
	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	if err := s.repo.Delete(dbCtx, documentID); err != nil {
		return nil, notFoundOr(err, "document not found")
	}

	res := &DeleteResult{ID: documentID, Warnings: make([]string, 0)}
	for _, v := range doc.Versions {
		if err := s.store.Delete(ctx, v.StorageKey); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"document_id": documentID,
				"storage_key": v.StorageKey,
			}).Warn("failed to delete version object")
			res.Warnings = append(res.Warnings, fmt.Sprintf("version %d: failed to delete stored file", v.VersionNumber))
		}
	}

	s.log.WithFields(logrus.Fields{
		"event":       "document_deleted",
		"document_id": documentID,
		"actor_id":    actor.ID,
		"warnings":    len(res.Warnings),
	}).Info("document deleted")
	return res, nil
}

func (s *documentService) Get(ctx context.Context, actor model.Actor, documentID string) (*model.Document, error) {
	doc, err := s.find(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !access.Can(actor, access.ResourceOf(doc), access.OpView) {
		return nil, apperr.Forbidden("not allowed to view this document")
	}
	return doc, nil
}

func (s *documentService) ListVersions(ctx context.Context, actor model.Actor, documentID string) ([]model.Version, error) {
	doc, err := s.Get(ctx, actor, documentID)
	if err != nil {
		return nil, err
	}
	return doc.Versions, nil
}

func (s *documentService) List(ctx context.Context, actor model.Actor, q ListQuery) (*DocumentListResult, error) {
	if q.Limit <= 0 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	srt, err := repository.DocumentFilterSpec.ParseSort(q.Sort, repository.DefaultDocumentSort)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	res, err := s.repo.List(dbCtx, repository.DocumentListQuery{
		Scope:   access.ScopeFor(actor),
		Filters: q.Filters,
		Sort:    srt,
		Page:    repository.PageQuery{Limit: q.Limit, Offset: q.Offset},
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidFilter) {
			return nil, apperr.Validation(err.Error())
		}
		return nil, apperr.Persistence("failed to list documents", err)
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total, Limit: q.Limit, Offset: q.Offset}, nil
}

func (s *documentService) OpenVersion(ctx context.Context, actor model.Actor, documentID string, version int) (*VersionFile, error) {
	doc, err := s.Get(ctx, actor, documentID)
	if err != nil {
		return nil, err
	}
	var (
		v     model.Version
		found bool
	)
	for _, cand := range doc.Versions {
		if cand.VersionNumber == version {
			v, found = cand, true
			break
		}
	}
	if !found {
		return nil, apperr.NotFound("version not found")
	}

	body, info, err := s.store.Get(ctx, v.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, apperr.NotFound("stored file not found")
		}
		return nil, apperr.Storage("failed to read stored file", err)
	}
	return &VersionFile{Body: body, Info: info, Version: v}, nil
}

func (s *documentService) find(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, apperr.Validation("document id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("document not found")
	}
	dbCtx, cancel := s.opts.dbCtx(ctx)
	defer cancel()
	doc, err := s.repo.FindByID(dbCtx, id)
	if err != nil {
		return nil, notFoundOr(err, "document not found")
	}
	return doc, nil
}

func (s *documentService) validateFile(f FileInput) error {
	if f.Reader == nil {
		return apperr.Validation("file is required")
	}
	if f.Size > s.opts.MaxUploadBytes {
		return apperr.Validation(fmt.Sprintf("file exceeds the %d byte limit", s.opts.MaxUploadBytes))
	}
	if len(s.opts.AllowedTypes) == 0 {
		return nil
	}
	ct := normalizeContentType(f.ContentType)
	for _, allowed := range s.opts.AllowedTypes {
		if ct == allowed {
			return nil
		}
	}
	return apperr.Validation(fmt.Sprintf("file type %q is not allowed", ct))
}

// putFile streams f to storage under a fresh key, hashing it on the way.
func (s *documentService) putFile(ctx context.Context, docID string, f FileInput) (storage.ObjectInfo, string, error) {
	key := path.Join("documents", docID, uuid.NewString()+strings.ToLower(path.Ext(f.Filename)))

	h := sha256.New()
	cr := &countingReader{r: io.TeeReader(io.LimitReader(f.Reader, s.opts.MaxUploadBytes+1), h)}
	obj, err := s.store.Put(ctx, key, cr, storage.PutObjectOptions{
		Size:        f.Size,
		ContentType: normalizeContentType(f.ContentType),
		Metadata: map[string]string{
			"original-filename": f.Filename,
			"document-id":       docID,
		},
	})
	if err != nil {
		return storage.ObjectInfo{}, "", apperr.Storage("failed to store file", err)
	}
	if cr.n > s.opts.MaxUploadBytes {
		s.removeObject(ctx, obj.Key, "upload over size limit")
		return storage.ObjectInfo{}, "", apperr.Validation(fmt.Sprintf("file exceeds the %d byte limit", s.opts.MaxUploadBytes))
	}
	if obj.Size <= 0 {
		obj.Size = cr.n
	}
	return obj, hexSum(h), nil
}

func validateMetadata(title, description, department string) error {
	if title == "" {
		return apperr.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return apperr.Validation(fmt.Sprintf("title must be at most %d characters", maxTitleLen))
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return apperr.Validation(fmt.Sprintf("description must be at most %d characters", maxDescriptionLen))
	}
	if department == "" {
		return apperr.Validation("department is required")
	}
	return nil
}

// normalizeRoles validates and de-duplicates roles, defaulting to {user}.
func normalizeRoles(roles []model.Role) ([]model.Role, error) {
	if len(roles) == 0 {
		return []model.Role{model.RoleUser}, nil
	}
	seen := make(map[model.Role]struct{}, len(roles))
	out := make([]model.Role, 0, len(roles))
	for _, r := range roles {
		if !r.Valid() {
			return nil, apperr.Validation(fmt.Sprintf("invalid access role %q", r))
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

func normalizeContentType(ct string) string {
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func hexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
