package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"doclocker/internal/model"
	"doclocker/internal/service"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Create(ctx context.Context, actor model.Actor, in service.CreateDocumentInput) (*model.Document, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) AddVersion(ctx context.Context, actor model.Actor, documentID string, file service.FileInput, notes string) (*model.Document, error) {
	args := m.Called(ctx, actor, documentID, file, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) UpdateMetadata(ctx context.Context, actor model.Actor, documentID string, patch service.MetadataPatch) (*model.Document, error) {
	args := m.Called(ctx, actor, documentID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, actor model.Actor, documentID string) (*service.DeleteResult, error) {
	args := m.Called(ctx, actor, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DeleteResult), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, actor model.Actor, documentID string) (*model.Document, error) {
	args := m.Called(ctx, actor, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) ListVersions(ctx context.Context, actor model.Actor, documentID string) ([]model.Version, error) {
	args := m.Called(ctx, actor, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Version), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, actor model.Actor, q service.ListQuery) (*service.DocumentListResult, error) {
	args := m.Called(ctx, actor, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) OpenVersion(ctx context.Context, actor model.Actor, documentID string, version int) (*service.VersionFile, error) {
	args := m.Called(ctx, actor, documentID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.VersionFile), args.Error(1)
}
