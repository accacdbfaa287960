package repository

import (
	"context"
	"time"

	"doclocker/internal/model"
)

// QRBindingRepository persists QR bindings.
type QRBindingRepository interface {
	// Create inserts a binding. It returns ErrTokenTaken when the token exists
	// and ErrAlreadyBound when the document already has an active binding.
	Create(ctx context.Context, b *model.QRBinding) error

	// Rotate deactivates the document's active binding, if any, and inserts
	// next in one transaction. It returns the deactivated token, or "".
	Rotate(ctx context.Context, next *model.QRBinding, at time.Time) (string, error)

	FindByQRID(ctx context.Context, qrID string) (*model.QRBinding, error)
	FindActiveByDocument(ctx context.Context, documentID string) (*model.QRBinding, error)

	// IsActive reports the committed active flag of a binding, or ErrNotFound.
	IsActive(ctx context.Context, qrID string) (bool, error)

	// Deactivate soft-deletes a binding. Deactivating twice is not an error.
	Deactivate(ctx context.Context, qrID string, at time.Time) error

	// IncrementScan atomically bumps scan_count and sets last_scan_at.
	IncrementScan(ctx context.Context, qrID string, at time.Time) error

	// DeleteByDocument removes every binding of a document and returns their tokens.
	DeleteByDocument(ctx context.Context, documentID string) ([]string, error)
}
