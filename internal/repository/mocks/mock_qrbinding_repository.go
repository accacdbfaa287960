package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"doclocker/internal/model"
)

type MockQRBindingRepository struct {
	mock.Mock
}

func (m *MockQRBindingRepository) Create(ctx context.Context, b *model.QRBinding) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockQRBindingRepository) Rotate(ctx context.Context, next *model.QRBinding, at time.Time) (string, error) {
	args := m.Called(ctx, next, at)
	return args.String(0), args.Error(1)
}

func (m *MockQRBindingRepository) FindByQRID(ctx context.Context, qrID string) (*model.QRBinding, error) {
	args := m.Called(ctx, qrID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QRBinding), args.Error(1)
}

func (m *MockQRBindingRepository) FindActiveByDocument(ctx context.Context, documentID string) (*model.QRBinding, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QRBinding), args.Error(1)
}

func (m *MockQRBindingRepository) IsActive(ctx context.Context, qrID string) (bool, error) {
	args := m.Called(ctx, qrID)
	if f, ok := args.Get(0).(func(context.Context, string) bool); ok {
		return f(ctx, qrID), args.Error(1)
	}
	return args.Bool(0), args.Error(1)
}

func (m *MockQRBindingRepository) Deactivate(ctx context.Context, qrID string, at time.Time) error {
	args := m.Called(ctx, qrID, at)
	return args.Error(0)
}

func (m *MockQRBindingRepository) IncrementScan(ctx context.Context, qrID string, at time.Time) error {
	args := m.Called(ctx, qrID, at)
	return args.Error(0)
}

func (m *MockQRBindingRepository) DeleteByDocument(ctx context.Context, documentID string) ([]string, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
