package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"doclocker/internal/model"
	"doclocker/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
// access_roles is a TEXT[] column exchanged as a comma-joined string.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `d.id, d.title, d.description, d.department, d.machine_id,
		array_to_string(d.access_roles, ','), d.current_version, d.created_by,
		d.created_at, d.updated_at, COALESCE(q.qr_id, '')`

const versionColumns = `document_id, version_number, storage_key, url, original_filename,
		content_type, size, checksum, uploaded_by, uploaded_at, notes`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*model.Document, error) {
	var (
		d     model.Document
		roles string
	)
	if err := s.Scan(
		&d.ID,
		&d.Title,
		&d.Description,
		&d.Department,
		&d.MachineID,
		&roles,
		&d.CurrentVersion,
		&d.CreatedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.QRID,
	); err != nil {
		return nil, err
	}
	d.AccessRoles = splitRoles(roles)
	return &d, nil
}

func scanVersion(s scanner) (model.Version, error) {
	var v model.Version
	err := s.Scan(
		&v.DocumentID,
		&v.VersionNumber,
		&v.StorageKey,
		&v.URL,
		&v.OriginalFilename,
		&v.ContentType,
		&v.Size,
		&v.Checksum,
		&v.UploadedBy,
		&v.UploadedAt,
		&v.Notes,
	)
	return v, err
}

// Create inserts the document row and version 1 in a single transaction.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if len(doc.Versions) != 1 {
		return nil, fmt.Errorf("create document: expected exactly one version, got %d", len(doc.Versions))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	const qDoc = `
		INSERT INTO documents (id, title, description, department, machine_id, access_roles,
			current_version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, string_to_array($6, ','), $7, $8, $9, $9)
		RETURNING created_at, updated_at
	`
	out := *doc
	if err := tx.QueryRowContext(ctx, qDoc,
		doc.ID,
		doc.Title,
		doc.Description,
		doc.Department,
		doc.MachineID,
		joinRoles(doc.AccessRoles),
		doc.CurrentVersion,
		doc.CreatedBy,
		doc.CreatedAt,
	).Scan(&out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}

	if err := insertVersion(ctx, tx, &doc.Versions[0]); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out.Versions = []model.Version{doc.Versions[0]}
	return &out, nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, v *model.Version) error {
	const q = `
		INSERT INTO document_versions (` + versionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.ExecContext(ctx, q,
		v.DocumentID,
		v.VersionNumber,
		v.StorageKey,
		v.URL,
		v.OriginalFilename,
		v.ContentType,
		v.Size,
		v.Checksum,
		v.UploadedBy,
		v.UploadedAt,
		v.Notes,
	)
	return err
}

// FindByID fetches a document, its active QR token and all versions.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	q := `
		SELECT ` + documentColumns + `
		FROM documents d
		LEFT JOIN qr_bindings q ON q.document_id = d.id AND q.is_active
		WHERE d.id = $1
	`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	versions, err := r.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Versions = versions
	return d, nil
}

// ListVersions returns all versions of a document, oldest first.
func (r *DocumentPostgres) ListVersions(ctx context.Context, documentID string) ([]model.Version, error) {
	const q = `
		SELECT ` + versionColumns + `
		FROM document_versions
		WHERE document_id = $1
		ORDER BY version_number ASC
	`
	rows, err := r.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]model.Version, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// List returns a filtered, sorted page of documents plus the total count.
func (r *DocumentPostgres) List(ctx context.Context, lq repository.DocumentListQuery) (*repository.PageResult[model.Document], error) {
	var preds []string
	scope, args, next := scopePredicate(lq.Scope, 1)
	if scope != "" {
		preds = append(preds, scope)
	}
	fp, fargs, next, err := repository.DocumentFilterSpec.Compile(lq.Filters, next)
	if err != nil {
		return nil, err
	}
	preds = append(preds, fp...)
	args = append(args, fargs...)

	srt := lq.Sort
	if srt.Field == "" {
		srt = repository.DefaultDocumentSort
	}

	from := `
		FROM documents d
		LEFT JOIN qr_bindings q ON q.document_id = d.id AND q.is_active`

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from+where(preds), args...).Scan(&total); err != nil {
		return nil, err
	}

	qList := `
		SELECT ` + documentColumns + `,
		` + prefixed("v", versionColumns) + from + `
		LEFT JOIN document_versions v ON v.document_id = d.id AND v.version_number = d.current_version` +
		where(preds) + `
		ORDER BY ` + repository.DocumentFilterSpec.OrderBy(srt, "d.id") +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", next, next+1)

	rows, err := r.db.QueryContext(ctx, qList, append(args, lq.Page.Limit, lq.Page.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		var (
			d     model.Document
			roles string
			v     model.Version
		)
		if err := rows.Scan(
			&d.ID, &d.Title, &d.Description, &d.Department, &d.MachineID,
			&roles, &d.CurrentVersion, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt, &d.QRID,
			&v.DocumentID, &v.VersionNumber, &v.StorageKey, &v.URL, &v.OriginalFilename,
			&v.ContentType, &v.Size, &v.Checksum, &v.UploadedBy, &v.UploadedAt, &v.Notes,
		); err != nil {
			return nil, err
		}
		d.AccessRoles = splitRoles(roles)
		d.Versions = []model.Version{v}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}

// UpdateMetadata writes title, description, department, machine id and access roles.
func (r *DocumentPostgres) UpdateMetadata(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		UPDATE documents
		SET title = $2, description = $3, department = $4, machine_id = $5,
			access_roles = string_to_array($6, ','), updated_at = $7
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q,
		doc.ID,
		doc.Title,
		doc.Description,
		doc.Department,
		doc.MachineID,
		joinRoles(doc.AccessRoles),
		doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, repository.ErrNotFound
	}
	return r.FindByID(ctx, doc.ID)
}

// AppendVersion advances current_version with a compare-and-set and inserts
// the version row in the same transaction.
func (r *DocumentPostgres) AppendVersion(ctx context.Context, v *model.Version, expected int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
		UPDATE documents
		SET current_version = $2, updated_at = $3
		WHERE id = $1 AND current_version = $4
	`
	res, err := tx.ExecContext(ctx, q, v.DocumentID, v.VersionNumber, v.UploadedAt, expected)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrVersionConflict
	}

	if err := insertVersion(ctx, tx, v); err != nil {
		if uniqueViolation(err) != "" {
			return repository.ErrVersionConflict
		}
		return err
	}
	return tx.Commit()
}

// Delete removes a document by ID; versions cascade.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func joinRoles(roles []model.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func splitRoles(s string) []model.Role {
	roles := make([]model.Role, 0)
	for _, p := range strings.Split(s, ",") {
		if p != "" {
			roles = append(roles, model.Role(p))
		}
	}
	return roles
}

func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
