package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shaharia-lab/notifyd/internal/notification"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

const maxDeliveryLimit = 500

// Dispatcher is the part of notification.Dispatcher the service needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent notification.Intent) []notification.Job
}

// SendResult reports which delivery jobs were accepted for an intent.
type SendResult struct {
	Jobs []notification.Job `json:"jobs"`
}

// NotificationService is the operator-facing surface of the pipeline.
type NotificationService interface {
	// Send validates an intent and dispatches it. Rejected or skipped channels
	// are not errors; the result simply lists fewer jobs.
	Send(ctx context.Context, intent notification.Intent) (*SendResult, error)
	// ListDeliveries returns delivery history, newest first.
	ListDeliveries(ctx context.Context, filter storage.DeliveryFilter) ([]*storage.DeliveryRecord, error)
	// GetDelivery returns one delivery record.
	GetDelivery(ctx context.Context, id int64) (*storage.DeliveryRecord, error)
	// ListTemplates returns catalog templates, optionally filtered by code.
	ListTemplates(ctx context.Context, code string) ([]*storage.Template, error)
	// ImportTemplates validates and inserts templates, returning the stored copies.
	ImportTemplates(ctx context.Context, templates []*storage.Template) ([]*storage.Template, error)
	// SetTemplateStatus enables or disables a template.
	SetTemplateStatus(ctx context.Context, id int64, status storage.TemplateStatus) error
}

// notificationServiceImpl implements NotificationService.
type notificationServiceImpl struct {
	dispatcher Dispatcher
	templates  storage.TemplateStore
	deliveries storage.DeliveryStore
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(
	dispatcher Dispatcher,
	templates storage.TemplateStore,
	deliveries storage.DeliveryStore,
) NotificationService {
	return &notificationServiceImpl{
		dispatcher: dispatcher,
		templates:  templates,
		deliveries: deliveries,
	}
}

func (s *notificationServiceImpl) Send(ctx context.Context, intent notification.Intent) (*SendResult, error) {
	intent.Code = strings.TrimSpace(intent.Code)
	intent.NotifiableType = strings.TrimSpace(intent.NotifiableType)
	if intent.Code == "" {
		return nil, invalid("code", "is required")
	}
	if intent.NotifiableType == "" {
		return nil, invalid("notifiable_type", "is required")
	}
	if intent.NotifiableID <= 0 {
		return nil, invalid("notifiable_id", "must be positive, got %d", intent.NotifiableID)
	}
	for _, ch := range intent.PreferredChannels {
		if strings.TrimSpace(ch) == "" {
			return nil, invalid("channels", "channel names must not be empty")
		}
	}

	jobs := s.dispatcher.Dispatch(ctx, intent)
	if jobs == nil {
		jobs = []notification.Job{}
	}
	return &SendResult{Jobs: jobs}, nil
}

func (s *notificationServiceImpl) ListDeliveries(ctx context.Context, filter storage.DeliveryFilter) ([]*storage.DeliveryRecord, error) {
	if filter.Limit < 0 || filter.Limit > maxDeliveryLimit {
		return nil, invalid("limit", "must be between 0 and %d", maxDeliveryLimit)
	}
	switch filter.Status {
	case "", storage.DeliveryPending, storage.DeliverySending, storage.DeliverySent, storage.DeliveryFailed:
	default:
		return nil, invalid("status", "unknown delivery status %q", filter.Status)
	}
	return s.deliveries.ListDeliveries(ctx, filter)
}

func (s *notificationServiceImpl) GetDelivery(ctx context.Context, id int64) (*storage.DeliveryRecord, error) {
	rec, err := s.deliveries.GetDelivery(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading delivery %d: %w", id, err)
	}
	if rec == nil {
		return nil, &NotFoundError{Resource: "delivery", ID: id}
	}
	return rec, nil
}

func (s *notificationServiceImpl) ListTemplates(ctx context.Context, code string) ([]*storage.Template, error) {
	return s.templates.ListTemplates(ctx, strings.TrimSpace(code))
}

func (s *notificationServiceImpl) ImportTemplates(ctx context.Context, templates []*storage.Template) ([]*storage.Template, error) {
	for i, t := range templates {
		if err := validateTemplate(t); err != nil {
			return nil, fmt.Errorf("template #%d: %w", i+1, err)
		}
	}

	imported := make([]*storage.Template, 0, len(templates))
	for _, t := range templates {
		existing, err := s.templates.ListTemplates(ctx, t.Code)
		if err != nil {
			return imported, fmt.Errorf("checking template %q: %w", t.Code, err)
		}
		if slices.ContainsFunc(existing, func(e *storage.Template) bool { return e.Name == t.Name }) {
			return imported, &ConflictError{Resource: "template", Key: t.Code + "/" + t.Name}
		}
		if err := s.templates.CreateTemplate(ctx, t); err != nil {
			return imported, fmt.Errorf("creating template %q: %w", t.Code, err)
		}
		imported = append(imported, t)
	}
	return imported, nil
}

func (s *notificationServiceImpl) SetTemplateStatus(ctx context.Context, id int64, status storage.TemplateStatus) error {
	if status != storage.TemplateEnabled && status != storage.TemplateDisabled {
		return invalid("status", "unknown template status %q", status)
	}
	t, err := s.templates.GetTemplate(ctx, id)
	if err != nil {
		return fmt.Errorf("loading template %d: %w", id, err)
	}
	if t == nil {
		return &NotFoundError{Resource: "template", ID: id}
	}
	return s.templates.SetTemplateStatus(ctx, id, status)
}

func validateTemplate(t *storage.Template) error {
	if t == nil {
		return &ValidationError{Message: "template is empty"}
	}
	t.Code = strings.TrimSpace(t.Code)
	t.Name = strings.TrimSpace(t.Name)
	if t.Code == "" {
		return invalid("code", "is required")
	}
	if t.Name == "" {
		return invalid("name", "is required")
	}
	if len(t.Channels) == 0 {
		return invalid("channels", "at least one channel is required")
	}
	if t.Status == "" {
		t.Status = storage.TemplateEnabled
	}
	if t.Status != storage.TemplateEnabled && t.Status != storage.TemplateDisabled {
		return invalid("status", "unknown template status %q", t.Status)
	}
	for ch := range t.Content {
		if !t.HasChannel(ch) {
			return invalid("content", "channel %q is not declared", ch)
		}
	}
	return nil
}
