package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := "documents/doc-1/v1/manual.pdf"

	info, err := s.Put(ctx, key, strings.NewReader("%PDF-1.7"), PutObjectOptions{
		Size:        8,
		ContentType: "application/pdf",
		Metadata:    map[string]string{"document-id": "doc-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, key, info.Key)
	assert.Equal(t, int64(8), info.Size)
	assert.True(t, strings.HasPrefix(info.URL, "file://"))

	rc, got, err := s.Get(ctx, key)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()

	assert.Equal(t, "%PDF-1.7", string(body))
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.Equal(t, "doc-1", got.Metadata["document-id"])

	require.NoError(t, s.Delete(ctx, key))
	_, _, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Deleting twice is not an error.
	assert.NoError(t, s.Delete(ctx, key))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../escape.txt", strings.NewReader("x"), PutObjectOptions{Size: 1})
	assert.Error(t, err)
}

func TestLocalStoragePresignUnsupported(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.PresignGet(context.Background(), "a", time.Minute)
	assert.ErrorIs(t, err, ErrPresignUnsupported)
}

type slowStorage struct {
	Storage
}

func (s slowStorage) Delete(ctx context.Context, key string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	s := WithTimeout(slowStorage{}, 10*time.Millisecond)

	err := s.Delete(context.Background(), "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	inner := slowStorage{}
	assert.Equal(t, Storage(inner), WithTimeout(inner, 0))
}
