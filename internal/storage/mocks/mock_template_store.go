package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shaharia-lab/notifyd/internal/storage"
)

// MockTemplateStore is a mock implementation of storage.TemplateStore.
type MockTemplateStore struct {
	mock.Mock
}

//nolint:revive
func (m *MockTemplateStore) ListEnabledByCode(ctx context.Context, code string) ([]*storage.Template, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*storage.Template), args.Error(1)
}

//nolint:revive
func (m *MockTemplateStore) GetTemplate(ctx context.Context, id int64) (*storage.Template, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Template), args.Error(1)
}

//nolint:revive
func (m *MockTemplateStore) ListTemplates(ctx context.Context, code string) ([]*storage.Template, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*storage.Template), args.Error(1)
}

//nolint:revive
func (m *MockTemplateStore) CreateTemplate(ctx context.Context, t *storage.Template) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

//nolint:revive
func (m *MockTemplateStore) SetTemplateStatus(ctx context.Context, id int64, status storage.TemplateStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}
