package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	err := NotFound("document not found")
	wrapped := fmt.Errorf("get document: %w", err)

	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrForbidden)
	assert.NotErrorIs(t, wrapped, ErrInactive)
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Persistence("failed to load document", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindOfAndMessageOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantMsg  string
	}{
		{
			name:     "domain error",
			err:      Validation("title is required"),
			wantKind: KindValidation,
			wantMsg:  "title is required",
		},
		{
			name:     "wrapped domain error",
			err:      fmt.Errorf("outer: %w", New(KindInactive, "qr code has been deactivated")),
			wantKind: KindInactive,
			wantMsg:  "qr code has been deactivated",
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantKind: KindInternal,
			wantMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, KindOf(tt.err))
			assert.Equal(t, tt.wantMsg, MessageOf(tt.err))
		})
	}
}
