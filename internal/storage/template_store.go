package storage

import (
	"context"
	"slices"
	"time"
)

// TemplateStatus is the enablement state of a notification template.
type TemplateStatus string

// Template status constants.
const (
	TemplateEnabled  TemplateStatus = "enabled"
	TemplateDisabled TemplateStatus = "disabled"
)

// Template is a notification content definition. Several templates may share a
// code while targeting different channels.
type Template struct {
	ID        int64             `json:"id" yaml:"-"`
	Code      string            `json:"code" yaml:"code"`
	Name      string            `json:"name" yaml:"name"`
	Status    TemplateStatus    `json:"status" yaml:"status"`
	Channels  []string          `json:"channels" yaml:"channels"`
	Variables []string          `json:"variables" yaml:"variables"`
	Content   map[string]string `json:"content" yaml:"content"`
	CreatedAt time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt time.Time         `json:"updated_at" yaml:"-"`
}

// Enabled reports whether the template may be used for delivery.
func (t *Template) Enabled() bool {
	return t.Status == TemplateEnabled
}

// HasChannel reports whether the template declares the given channel.
func (t *Template) HasChannel(channel string) bool {
	return slices.Contains(t.Channels, channel)
}

// TemplateStore is the read side of the template catalog plus the writes needed
// to seed it.
type TemplateStore interface {
	// ListEnabledByCode returns the enabled templates for code in catalog order (id ascending).
	ListEnabledByCode(ctx context.Context, code string) ([]*Template, error)
	// GetTemplate returns a template by ID, or nil if not found.
	GetTemplate(ctx context.Context, id int64) (*Template, error)
	// ListTemplates returns every template, optionally filtered by code.
	ListTemplates(ctx context.Context, code string) ([]*Template, error)
	// CreateTemplate inserts a template and sets its ID.
	CreateTemplate(ctx context.Context, t *Template) error
	// SetTemplateStatus enables or disables a template.
	SetTemplateStatus(ctx context.Context, id int64, status TemplateStatus) error
}
