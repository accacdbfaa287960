package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"doclocker/internal/model"
	"doclocker/internal/service"
)

type MockQRCodeService struct {
	mock.Mock
}

func (m *MockQRCodeService) Bind(ctx context.Context, actor model.Actor, documentID string) (*model.QRBinding, error) {
	args := m.Called(ctx, actor, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QRBinding), args.Error(1)
}

func (m *MockQRCodeService) Regenerate(ctx context.Context, actor model.Actor, documentID string) (*model.QRBinding, error) {
	args := m.Called(ctx, actor, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QRBinding), args.Error(1)
}

func (m *MockQRCodeService) Resolve(ctx context.Context, qrID string) (*model.QRBinding, error) {
	args := m.Called(ctx, qrID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QRBinding), args.Error(1)
}

func (m *MockQRCodeService) Deactivate(ctx context.Context, actor model.Actor, qrID string) error {
	args := m.Called(ctx, actor, qrID)
	return args.Error(0)
}

func (m *MockQRCodeService) RecordScan(ctx context.Context, qrID string) error {
	args := m.Called(ctx, qrID)
	return args.Error(0)
}

func (m *MockQRCodeService) Get(ctx context.Context, actor model.Actor, qrID string) (*service.QRCodeDetails, error) {
	args := m.Called(ctx, actor, qrID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.QRCodeDetails), args.Error(1)
}

func (m *MockQRCodeService) View(ctx context.Context, actor model.Actor, qrID string, sc service.ScanContext) (*service.ViewResult, error) {
	args := m.Called(ctx, actor, qrID, sc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ViewResult), args.Error(1)
}

func (m *MockQRCodeService) Stats(ctx context.Context, actor model.Actor, qrID string) (*service.QRStats, error) {
	args := m.Called(ctx, actor, qrID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.QRStats), args.Error(1)
}

func (m *MockQRCodeService) Unbind(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}
