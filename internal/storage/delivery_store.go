package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDeliveryFinalized is returned by UpdateDelivery when the stored record
// already reached sent or failed.
var ErrDeliveryFinalized = errors.New("delivery already finalized")

// DeliveryStatus is the state of a single channel delivery attempt.
type DeliveryStatus string

// Delivery status constants. A record moves pending -> sending -> sent|failed.
const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySending DeliveryStatus = "sending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySent || s == DeliveryFailed
}

// DeliveryRecord is the persisted outcome of delivering one notification over one channel.
type DeliveryRecord struct {
	ID             int64          `json:"id"`
	NotifiableType string         `json:"notifiable_type"`
	NotifiableID   int64          `json:"notifiable_id"`
	TemplateID     int64          `json:"template_id"`
	Channel        string         `json:"channel"`
	Data           map[string]any `json:"data"`
	Status         DeliveryStatus `json:"status"`
	Message        string         `json:"message,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Subject returns the subject stored in the record data, if any.
func (r *DeliveryRecord) Subject() string {
	if s, ok := r.Data["subject"].(string); ok {
		return s
	}
	return ""
}

// DeliveryFilter narrows ListDeliveries results. Zero values match everything.
type DeliveryFilter struct {
	NotifiableType string
	NotifiableID   int64
	TemplateID     int64
	Channel        string
	Status         DeliveryStatus
	// AfterID keeps only records with a greater id, i.e. created later.
	AfterID int64
	Limit   int
}

// DeliveryStore persists delivery records.
type DeliveryStore interface {
	// CreateDelivery inserts a record and sets its ID.
	CreateDelivery(ctx context.Context, rec *DeliveryRecord) error
	// UpdateDelivery persists the mutable fields (status, message, sent_at, data)
	// of a record that is still pending or sending. It returns
	// ErrDeliveryFinalized when the stored record is already terminal.
	UpdateDelivery(ctx context.Context, rec *DeliveryRecord) error
	// GetDelivery returns a record by ID, or nil if not found.
	GetDelivery(ctx context.Context, id int64) (*DeliveryRecord, error)
	// ListDeliveries returns the most recent records matching filter, newest first.
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]*DeliveryRecord, error)
}
