package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/notifyd/internal/storage"
)

// MockDeliveryStore is a mock implementation of storage.DeliveryStore.
type MockDeliveryStore struct {
	mock.Mock
}

//nolint:revive
func (m *MockDeliveryStore) CreateDelivery(ctx context.Context, rec *storage.DeliveryRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

//nolint:revive
func (m *MockDeliveryStore) UpdateDelivery(ctx context.Context, rec *storage.DeliveryRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

//nolint:revive
func (m *MockDeliveryStore) GetDelivery(ctx context.Context, id int64) (*storage.DeliveryRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.DeliveryRecord), args.Error(1)
}

//nolint:revive
func (m *MockDeliveryStore) ListDeliveries(ctx context.Context, filter storage.DeliveryFilter) ([]*storage.DeliveryRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*storage.DeliveryRecord), args.Error(1)
}
