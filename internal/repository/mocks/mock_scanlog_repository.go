package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"doclocker/internal/model"
	"doclocker/internal/repository"
)

type MockScanLogRepository struct {
	mock.Mock
}

func (m *MockScanLogRepository) Insert(ctx context.Context, e *model.ScanLogEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockScanLogRepository) Query(ctx context.Context, q repository.ScanLogQuery) (*repository.PageResult[model.ScanLogEntry], error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.ScanLogEntry]), args.Error(1)
}

func (m *MockScanLogRepository) Count(ctx context.Context, q repository.ScanLogQuery) (int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockScanLogRepository) Aggregate(ctx context.Context, q repository.AggregateQuery) ([]model.ScanBucket, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScanBucket), args.Error(1)
}
