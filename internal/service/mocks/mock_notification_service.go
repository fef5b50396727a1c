package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/notifyd/internal/notification"
	"github.com/shaharia-lab/notifyd/internal/service"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

// MockNotificationService is a mock implementation of service.NotificationService.
type MockNotificationService struct {
	mock.Mock
}

//nolint:revive
func (m *MockNotificationService) Send(ctx context.Context, intent notification.Intent) (*service.SendResult, error) {
	args := m.Called(ctx, intent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SendResult), args.Error(1)
}

//nolint:revive
func (m *MockNotificationService) ListDeliveries(ctx context.Context, filter storage.DeliveryFilter) ([]*storage.DeliveryRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*storage.DeliveryRecord), args.Error(1)
}

//nolint:revive
func (m *MockNotificationService) GetDelivery(ctx context.Context, id int64) (*storage.DeliveryRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.DeliveryRecord), args.Error(1)
}

//nolint:revive
func (m *MockNotificationService) ListTemplates(ctx context.Context, code string) ([]*storage.Template, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*storage.Template), args.Error(1)
}

//nolint:revive
func (m *MockNotificationService) ImportTemplates(ctx context.Context, templates []*storage.Template) ([]*storage.Template, error) {
	args := m.Called(ctx, templates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*storage.Template), args.Error(1)
}

//nolint:revive
func (m *MockNotificationService) SetTemplateStatus(ctx context.Context, id int64, status storage.TemplateStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}
