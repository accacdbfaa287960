package repository

import (
	"context"

	"doclocker/internal/access"
	"doclocker/internal/model"
)

// DocumentRepository defines data access for documents and their versions.
// No business logic here, strictly persistence operations.
type DocumentRepository interface {
	// Create inserts the document and its first version in one transaction.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document with its full version history and the token
	// of its active QR binding. Missing rows yield ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// List returns a page of documents visible under q.Scope. Items carry only
	// their current version.
	List(ctx context.Context, q DocumentListQuery) (*PageResult[model.Document], error)

	// UpdateMetadata overwrites the mutable document fields and bumps updated_at.
	UpdateMetadata(ctx context.Context, doc *model.Document) (*model.Document, error)

	// AppendVersion inserts v and advances current_version from expected to
	// v.VersionNumber. It returns ErrVersionConflict if current_version no
	// longer equals expected.
	AppendVersion(ctx context.Context, v *model.Version, expected int) error

	// ListVersions returns every version of a document ordered by number.
	ListVersions(ctx context.Context, documentID string) ([]model.Version, error)

	// Delete removes a document; versions cascade. Missing rows yield ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// DocumentListQuery combines a visibility scope with user filters.
type DocumentListQuery struct {
	Scope   access.Scope
	Filters []Filter
	Sort    Sort
	Page    PageQuery
}
