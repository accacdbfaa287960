package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclocker/internal/apperr"
	"doclocker/internal/model"
	"doclocker/internal/repository"
	"doclocker/internal/storage"
)

// memDocuments is an in-memory DocumentRepository with the same conditional
// append semantics as the postgres implementation.
type memDocuments struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newMemDocuments(docs ...*model.Document) *memDocuments {
	m := &memDocuments{docs: make(map[string]*model.Document)}
	for _, d := range docs {
		m.docs[d.ID] = cloneDoc(d)
	}
	return m
}

func cloneDoc(d *model.Document) *model.Document {
	c := *d
	c.Versions = append([]model.Version(nil), d.Versions...)
	c.AccessRoles = append([]model.Role(nil), d.AccessRoles...)
	return &c
}

func (m *memDocuments) Create(_ context.Context, doc *model.Document) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = cloneDoc(doc)
	return cloneDoc(doc), nil
}

func (m *memDocuments) FindByID(_ context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneDoc(d), nil
}

func (m *memDocuments) List(context.Context, repository.DocumentListQuery) (*repository.PageResult[model.Document], error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *memDocuments) UpdateMetadata(_ context.Context, doc *model.Document) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = cloneDoc(doc)
	return cloneDoc(doc), nil
}

func (m *memDocuments) AppendVersion(_ context.Context, v *model.Version, expected int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[v.DocumentID]
	if !ok {
		return repository.ErrNotFound
	}
	if d.CurrentVersion != expected || v.VersionNumber != expected+1 {
		return repository.ErrVersionConflict
	}
	d.Versions = append(d.Versions, *v)
	d.CurrentVersion = v.VersionNumber
	return nil
}

func (m *memDocuments) ListVersions(ctx context.Context, id string) ([]model.Version, error) {
	d, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.Versions, nil
}

func (m *memDocuments) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

// memStorage is an in-memory storage.Storage.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{objects: make(map[string][]byte)} }

func (s *memStorage) Put(_ context.Context, key string, r io.Reader, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	return storage.ObjectInfo{Key: key, URL: "mem://" + key, Size: int64(len(b)), ContentType: opt.ContentType}, nil
}

func (s *memStorage) Get(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), storage.ObjectInfo{Key: key, Size: int64(len(b))}, nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStorage) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", storage.ErrPresignUnsupported
}

func (s *memStorage) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func addVersionsConcurrently(t *testing.T, n int) (*memDocuments, *memStorage, int) {
	t.Helper()
	docs := newMemDocuments(testDocument(1))
	store := newMemStorage()
	svc := NewDocumentService(store, docs, new(mockBinder), testOptions())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := svc.AddVersion(context.Background(), admin, testDocID, FileInput{
				Reader:      bytes.NewReader([]byte(fmt.Sprintf("revision %d", i))),
				Filename:    "manual.pdf",
				ContentType: "application/pdf",
				Size:        -1,
			}, "")
			if err != nil {
				assert.ErrorIs(t, err, apperr.ErrConflict)
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()
	return docs, store, conflicts
}

func assertContiguous(t *testing.T, doc *model.Document) {
	t.Helper()
	require.NotEmpty(t, doc.Versions)
	for i, v := range doc.Versions {
		assert.Equal(t, i+1, v.VersionNumber)
	}
	assert.Equal(t, len(doc.Versions), doc.CurrentVersion)
}

func TestDocumentService_AddVersion_ConcurrentWithinRetryBudget(t *testing.T) {
	// Each lost race means another writer committed, so with as many writers
	// as attempts nobody can run out of retries.
	n := maxVersionAttempts
	docs, store, conflicts := addVersionsConcurrently(t, n)

	doc, err := docs.FindByID(context.Background(), testDocID)
	require.NoError(t, err)
	assert.Zero(t, conflicts)
	assert.Equal(t, n+1, doc.CurrentVersion)
	assertContiguous(t, doc)
	assert.Equal(t, n, store.len())
}

func TestDocumentService_AddVersion_ConcurrentUnderContention(t *testing.T) {
	n := 32
	docs, store, conflicts := addVersionsConcurrently(t, n)

	doc, err := docs.FindByID(context.Background(), testDocID)
	require.NoError(t, err)
	assertContiguous(t, doc)
	assert.Equal(t, n, doc.CurrentVersion-1+conflicts)
	// Objects of writers that gave up are removed again.
	assert.Equal(t, doc.CurrentVersion-1, store.len())
}
