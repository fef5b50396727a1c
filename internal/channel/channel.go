// Package channel defines the delivery transports a notification can travel
// over (mail, SMS) and a registry that maps channel names to drivers.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shaharia-lab/notifyd/internal/storage"
)

// Well-known channel names.
const (
	Mail = "mail"
	SMS  = "sms"
)

// ErrUnknownChannel is returned by Registry.Lookup for names with no driver.
var ErrUnknownChannel = errors.New("unknown channel")

// Result codes reported by drivers.
const (
	CodeFailure = 0
	CodeSuccess = 1
)

// Result is a driver's own verdict on a send attempt.
type Result struct {
	Code    int
	Message string
}

// OK reports whether the driver accepted the delivery.
func (r Result) OK() bool { return r.Code == CodeSuccess }

// Recipient is the addressable side of a notifiable entity.
type Recipient interface {
	Email() string
	Mobile() string
}

// Delivery is everything a driver needs to send one record.
type Delivery struct {
	Record    *storage.DeliveryRecord
	Recipient Recipient
	Template  *storage.Template
	// Address is the resolved destination (email address or phone number).
	Address string
}

// Meta returns the record's "_meta" block, or an empty map.
func (d *Delivery) Meta() map[string]any {
	if d.Record == nil {
		return map[string]any{}
	}
	if m, ok := d.Record.Data["_meta"].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// Driver is a channel transport.
type Driver interface {
	// Name returns the channel name the driver serves (e.g. "mail").
	Name() string
	// Available reports whether the transport is configured.
	Available() bool
	// Send delivers d. A returned error means the driver itself broke; a
	// Result with CodeFailure is a failure the driver understood and described.
	Send(ctx context.Context, d *Delivery) (Result, error)
}

// Registry maps channel names to drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry creates a registry holding the given drivers.
func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver)}
	for _, d := range drivers {
		r.Register(d)
	}
	return r
}

// Register adds or replaces the driver for d.Name().
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Name()] = d
}

// Lookup returns the driver registered for name.
func (r *Registry) Lookup(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return d, nil
}

// Names returns the registered channel names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for n := range r.drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
