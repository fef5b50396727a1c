package notification

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/shaharia-lab/notifyd/internal/storage"
)

// Builder errors.
var (
	ErrBuilderNotFound = errors.New("builder not found")
	ErrBuilderDisabled = errors.New("builder disabled")
)

// BuildInput is the data a builder assembles a payload from.
type BuildInput struct {
	Code           string
	Channel        string
	Template       *storage.Template
	NotifiableType string
	NotifiableID   int64
	Context        map[string]any
}

// Payload is a builder's output.
type Payload struct {
	// Data holds the rendered variables. The optional "_meta" entry carries
	// directives such as "subject", "html" or "attachments".
	Data map[string]any
	// Channels narrows delivery to these channels. Empty means no narrowing.
	Channels []string
}

// Meta returns the "_meta" block, creating it if needed.
func (p *Payload) Meta() map[string]any {
	if p.Data == nil {
		p.Data = map[string]any{}
	}
	if m, ok := p.Data["_meta"].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	p.Data["_meta"] = m
	return m
}

// AllowsChannel reports whether the payload may be delivered over ch.
func (p *Payload) AllowsChannel(ch string) bool {
	return len(p.Channels) == 0 || slices.Contains(p.Channels, ch)
}

// Builder assembles a delivery payload for one (code, channel) pair. A
// returned error means the notification cannot be built for this recipient.
type Builder interface {
	Build(ctx context.Context, in BuildInput, n Notifiable) (*Payload, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, in BuildInput, n Notifiable) (*Payload, error)

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context, in BuildInput, n Notifiable) (*Payload, error) {
	return f(ctx, in, n)
}

// BuilderFactory creates a fresh builder for each delivery.
type BuilderFactory func() Builder

// BuilderRegistry maps builder ids to factories and (code, channel) routes to
// builder ids. A route mapped to "" disables the pair.
type BuilderRegistry struct {
	mu        sync.RWMutex
	factories map[string]BuilderFactory
	routes    map[string]string
	defaultID string
}

// NewBuilderRegistry creates a registry with the given routes ("code.channel"
// -> builder id) and default builder id.
func NewBuilderRegistry(defaultID string, routes map[string]string) *BuilderRegistry {
	r := &BuilderRegistry{
		factories: make(map[string]BuilderFactory),
		routes:    maps.Clone(routes),
		defaultID: defaultID,
	}
	if r.routes == nil {
		r.routes = map[string]string{}
	}
	return r
}

// Register adds a factory under id.
func (r *BuilderRegistry) Register(id string, f BuilderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// RouteKey returns the route key for a (code, channel) pair.
func RouteKey(code, channel string) string {
	return code + "." + channel
}

// Validate checks that every configured builder id has a factory.
func (r *BuilderRegistry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	if r.defaultID != "" {
		if _, ok := r.factories[r.defaultID]; !ok {
			errs = append(errs, fmt.Errorf("default builder %q: %w", r.defaultID, ErrBuilderNotFound))
		}
	}
	keys := make([]string, 0, len(r.routes))
	for k := range r.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		id := r.routes[k]
		if id == "" {
			continue
		}
		if _, ok := r.factories[id]; !ok {
			errs = append(errs, fmt.Errorf("builder %q for %s: %w", id, k, ErrBuilderNotFound))
		}
	}
	return errors.Join(errs...)
}

// Disabled reports whether the pair is explicitly mapped to no builder.
func (r *BuilderRegistry) Disabled(code, channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.routes[RouteKey(code, channel)]
	return ok && id == ""
}

// Resolve returns the builder id for a pair: the explicit route first, then
// the default. It returns ErrBuilderDisabled for pairs mapped to "" and
// ErrBuilderNotFound when neither a route nor a default exists.
func (r *BuilderRegistry) Resolve(code, channel string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := RouteKey(code, channel)
	if id, ok := r.routes[key]; ok {
		if id == "" {
			return "", fmt.Errorf("%w for %s", ErrBuilderDisabled, key)
		}
		return id, nil
	}
	if r.defaultID == "" {
		return "", fmt.Errorf("%w for %s: no route and no default", ErrBuilderNotFound, key)
	}
	return r.defaultID, nil
}

// New instantiates the builder registered under id.
func (r *BuilderRegistry) New(id string) (Builder, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %q", ErrBuilderNotFound, id)
	}
	b := f()
	if b == nil {
		return nil, fmt.Errorf("builder factory %q returned nil", id)
	}
	return b, nil
}
