package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"doclocker/internal/model"
	"doclocker/internal/repository"
)

// Constraint names from the schema migration; used to tell token collisions
// from double binding.
const (
	constraintQRPrimaryKey   = "qr_bindings_pkey"
	constraintQROneActiveDoc = "qr_bindings_one_active_per_document"
)

// QRBindingPostgres is a PostgreSQL implementation of repository.QRBindingRepository.
type QRBindingPostgres struct {
	db *sql.DB
}

// NewQRBindingPostgres creates a new QRBindingPostgres repository.
func NewQRBindingPostgres(db *sql.DB) *QRBindingPostgres {
	return &QRBindingPostgres{db: db}
}

var _ repository.QRBindingRepository = (*QRBindingPostgres)(nil)

const bindingColumns = `qr_id, document_id, is_active, scan_count, last_scan_at, created_by, created_at, deactivated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertBinding(ctx context.Context, ex execer, b *model.QRBinding) error {
	const q = `
		INSERT INTO qr_bindings (qr_id, document_id, is_active, scan_count, created_by, created_at)
		VALUES ($1, $2, TRUE, 0, $3, $4)
	`
	_, err := ex.ExecContext(ctx, q, b.QRID, b.DocumentID, b.CreatedBy, b.CreatedAt)
	switch uniqueViolation(err) {
	case "":
		return err
	case constraintQROneActiveDoc:
		return repository.ErrAlreadyBound
	default:
		return repository.ErrTokenTaken
	}
}

// Create inserts an active binding.
func (r *QRBindingPostgres) Create(ctx context.Context, b *model.QRBinding) error {
	if err := insertBinding(ctx, r.db, b); err != nil {
		return err
	}
	b.IsActive = true
	return nil
}

// Rotate swaps the document's active binding for next atomically.
func (r *QRBindingPostgres) Rotate(ctx context.Context, next *model.QRBinding, at time.Time) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	const q = `
		UPDATE qr_bindings
		SET is_active = FALSE, deactivated_at = $2
		WHERE document_id = $1 AND is_active
		RETURNING qr_id
	`
	var previous string
	err = tx.QueryRowContext(ctx, q, next.DocumentID, at).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	if err := insertBinding(ctx, tx, next); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	next.IsActive = true
	return previous, nil
}

func scanBinding(s scanner) (*model.QRBinding, error) {
	var (
		b             model.QRBinding
		lastScan      sql.NullTime
		deactivatedAt sql.NullTime
	)
	if err := s.Scan(
		&b.QRID,
		&b.DocumentID,
		&b.IsActive,
		&b.ScanCount,
		&lastScan,
		&b.CreatedBy,
		&b.CreatedAt,
		&deactivatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if lastScan.Valid {
		b.LastScanAt = &lastScan.Time
	}
	if deactivatedAt.Valid {
		b.DeactivatedAt = &deactivatedAt.Time
	}
	return &b, nil
}

// FindByQRID returns a binding regardless of its active flag.
func (r *QRBindingPostgres) FindByQRID(ctx context.Context, qrID string) (*model.QRBinding, error) {
	const q = `SELECT ` + bindingColumns + ` FROM qr_bindings WHERE qr_id = $1`
	return scanBinding(r.db.QueryRowContext(ctx, q, qrID))
}

// FindActiveByDocument returns the document's active binding.
func (r *QRBindingPostgres) FindActiveByDocument(ctx context.Context, documentID string) (*model.QRBinding, error) {
	const q = `SELECT ` + bindingColumns + ` FROM qr_bindings WHERE document_id = $1 AND is_active`
	return scanBinding(r.db.QueryRowContext(ctx, q, documentID))
}

// IsActive reads only the active flag, served by the qr_id primary key.
func (r *QRBindingPostgres) IsActive(ctx context.Context, qrID string) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `SELECT is_active FROM qr_bindings WHERE qr_id = $1`, qrID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, repository.ErrNotFound
	}
	return active, err
}

// Deactivate marks a binding inactive, keeping the first deactivation time.
func (r *QRBindingPostgres) Deactivate(ctx context.Context, qrID string, at time.Time) error {
	const q = `
		UPDATE qr_bindings
		SET is_active = FALSE, deactivated_at = COALESCE(deactivated_at, $2)
		WHERE qr_id = $1
	`
	res, err := r.db.ExecContext(ctx, q, qrID, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// IncrementScan bumps the scan counter in a single statement.
func (r *QRBindingPostgres) IncrementScan(ctx context.Context, qrID string, at time.Time) error {
	const q = `
		UPDATE qr_bindings
		SET scan_count = scan_count + 1, last_scan_at = $2
		WHERE qr_id = $1
	`
	res, err := r.db.ExecContext(ctx, q, qrID, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteByDocument removes all bindings of a document.
func (r *QRBindingPostgres) DeleteByDocument(ctx context.Context, documentID string) ([]string, error) {
	const q = `DELETE FROM qr_bindings WHERE document_id = $1 RETURNING qr_id`
	rows, err := r.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
