package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"doclocker/internal/model"
	"doclocker/internal/service"
)

type MockScanLogService struct {
	mock.Mock
}

func (m *MockScanLogService) Record(ctx context.Context, e *model.ScanLogEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockScanLogService) Query(ctx context.Context, actor model.Actor, in service.ScanLogQueryInput) (*service.ScanLogPage, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ScanLogPage), args.Error(1)
}

func (m *MockScanLogService) Aggregate(ctx context.Context, actor model.Actor, in service.AggregateInput) ([]model.ScanBucket, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScanBucket), args.Error(1)
}

func (m *MockScanLogService) Analytics(ctx context.Context, actor model.Actor, timeRange string) (*service.Analytics, error) {
	args := m.Called(ctx, actor, timeRange)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Analytics), args.Error(1)
}
