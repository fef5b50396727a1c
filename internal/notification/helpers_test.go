package notification_test

import (
	"context"
	"errors"
	"sync"

	"github.com/shaharia-lab/notifyd/internal/channel"
	"github.com/shaharia-lab/notifyd/internal/notification"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

type memCatalog struct {
	mu        sync.Mutex
	templates []*storage.Template
	calls     int
	err       error
}

func newCatalog(templates ...*storage.Template) *memCatalog {
	return &memCatalog{templates: templates}
}

func (c *memCatalog) ListEnabledByCode(_ context.Context, code string) ([]*storage.Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	var out []*storage.Template
	for _, t := range c.templates {
		if t.Code == code && t.Enabled() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *memCatalog) GetTemplate(_ context.Context, id int64) (*storage.Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	for _, t := range c.templates {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

type memDeliveries struct {
	mu        sync.Mutex
	records   map[int64]*storage.DeliveryRecord
	history   []storage.DeliveryStatus
	nextID    int64
	createErr error
	updateErr error
}

func newDeliveries() *memDeliveries {
	return &memDeliveries{records: map[int64]*storage.DeliveryRecord{}}
}

func (m *memDeliveries) CreateDelivery(_ context.Context, rec *storage.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	rec.ID = m.nextID
	cp := *rec
	m.records[rec.ID] = &cp
	m.history = append(m.history, rec.Status)
	return nil
}

func (m *memDeliveries) UpdateDelivery(_ context.Context, rec *storage.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.records[rec.ID]
	if !ok {
		return errors.New("not found")
	}
	if stored.Status.Terminal() {
		return storage.ErrDeliveryFinalized
	}
	cp := *rec
	m.records[rec.ID] = &cp
	m.history = append(m.history, rec.Status)
	return nil
}

func (m *memDeliveries) GetDelivery(_ context.Context, id int64) (*storage.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id], nil
}

func (m *memDeliveries) ListDeliveries(_ context.Context, _ storage.DeliveryFilter) ([]*storage.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*storage.DeliveryRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func (m *memDeliveries) all() []*storage.DeliveryRecord {
	out, _ := m.ListDeliveries(context.Background(), storage.DeliveryFilter{})
	return out
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []notification.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job notification.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) channels() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.Channel)
	}
	return out
}

type stubDriver struct {
	name      string
	available bool
	result    channel.Result
	err       error
	panicWith any
	sent      []*channel.Delivery
}

func (d *stubDriver) Name() string    { return d.name }
func (d *stubDriver) Available() bool { return d.available }

func (d *stubDriver) Send(_ context.Context, del *channel.Delivery) (channel.Result, error) {
	d.sent = append(d.sent, del)
	if d.panicWith != nil {
		panic(d.panicWith)
	}
	return d.result, d.err
}

func okDriver(name string) *stubDriver {
	return &stubDriver{name: name, available: true, result: channel.Result{Code: channel.CodeSuccess, Message: "ok"}}
}

type recordingObserver struct {
	mu        sync.Mutex
	skipped   []notification.SkipEvent
	enqueued  []notification.Job
	delivered []*storage.DeliveryRecord
}

func (o *recordingObserver) Skipped(_ context.Context, ev notification.SkipEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped = append(o.skipped, ev)
}

func (o *recordingObserver) Enqueued(_ context.Context, job notification.Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enqueued = append(o.enqueued, job)
}

func (o *recordingObserver) Delivered(_ context.Context, rec *storage.DeliveryRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered = append(o.delivered, rec)
}

// countingGuard is a stateless guard double that records how often it ran.
type countingGuard struct {
	mu    sync.Mutex
	name  string
	deny  map[string]string
	calls map[string]int
}

func newCountingGuard(name string, deny map[string]string) *countingGuard {
	return &countingGuard{name: name, deny: deny, calls: map[string]int{}}
}

func (g *countingGuard) Name() string { return g.name }

func (g *countingGuard) Check(_ context.Context, _ notification.Notifiable, ch string, _ *storage.Template, _ notification.Intent) notification.Verdict {
	g.mu.Lock()
	g.calls[ch]++
	g.mu.Unlock()
	if reason, ok := g.deny[ch]; ok {
		return notification.Deny(reason)
	}
	return notification.Allow()
}

func (g *countingGuard) count(ch string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[ch]
}

type recipient struct {
	email  string
	mobile string
}

func (r recipient) Email() string  { return r.email }
func (r recipient) Mobile() string { return r.mobile }

type optingRecipient struct {
	recipient
	optOuts []string
}

func (r optingRecipient) WantsNotification(category string) bool {
	for _, c := range r.optOuts {
		if c == category {
			return false
		}
	}
	return true
}

func staticResolvers(typ string, id int64, n notification.Notifiable) notification.Resolvers {
	return notification.Resolvers{
		typ: notification.ResolverFunc(func(_ context.Context, got int64) (notification.Notifiable, error) {
			if got != id {
				return nil, nil
			}
			return n, nil
		}),
	}
}

func tmpl(id int64, code string, channels ...string) *storage.Template {
	return &storage.Template{
		ID:       id,
		Code:     code,
		Name:     code + " template",
		Status:   storage.TemplateEnabled,
		Channels: channels,
	}
}
