// Package telemetry exposes pipeline counters in Prometheus format and sets
// up OpenTelemetry tracing, metrics and log export.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shaharia-lab/notifyd/internal/notification"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

const namespace = "notifyd"

// Metrics implements notification.Observer on a private Prometheus registry.
type Metrics struct {
	registry  *prometheus.Registry
	skipped   *prometheus.CounterVec
	enqueued  *prometheus.CounterVec
	delivered *prometheus.CounterVec
	discarded prometheus.Counter
	latency   metric.Float64Histogram
	logger    *slog.Logger
}

// NewMetrics creates and registers the pipeline collectors. Skip events are
// also logged at Info so operators can see them without scraping.
func NewMetrics(logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_skipped_total",
			Help:      "Notifications or channels dropped before a delivery record was created.",
		}, []string{"stage"}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Delivery jobs accepted by the work queue.",
		}, []string{"channel"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery records that reached a terminal status.",
		}, []string{"channel", "status"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_discarded_total",
			Help:      "Delivery jobs dropped after exhausting their attempts.",
		}),
		logger: logger,
	}
	m.registry.MustRegister(
		m.skipped, m.enqueued, m.delivered, m.discarded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SetLogger replaces the logger used for skip events. Call it before the
// pipeline starts.
func (m *Metrics) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Skipped implements notification.Observer.
func (m *Metrics) Skipped(_ context.Context, ev notification.SkipEvent) {
	m.skipped.WithLabelValues(ev.Stage).Inc()
	m.logger.Info("Delivery skipped",
		"stage", ev.Stage,
		"code", ev.Code,
		"channel", ev.Channel,
		"notifiable_type", ev.NotifiableType,
		"notifiable_id", ev.NotifiableID,
		"reason", ev.Reason,
	)
}

// Enqueued implements notification.Observer.
func (m *Metrics) Enqueued(_ context.Context, job notification.Job) {
	m.enqueued.WithLabelValues(job.Channel).Inc()
}

// InstrumentLatency records the time from record creation to terminal status
// on a histogram created from meter.
func (m *Metrics) InstrumentLatency(meter metric.Meter) error {
	h, err := meter.Float64Histogram("notifyd.delivery.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time from delivery record creation to terminal status."),
	)
	if err != nil {
		return fmt.Errorf("creating delivery latency histogram: %w", err)
	}
	m.latency = h
	return nil
}

// Delivered implements notification.Observer.
func (m *Metrics) Delivered(ctx context.Context, rec *storage.DeliveryRecord) {
	m.delivered.WithLabelValues(rec.Channel, string(rec.Status)).Inc()
	if m.latency == nil || rec.CreatedAt.IsZero() || rec.UpdatedAt.Before(rec.CreatedAt) {
		return
	}
	m.latency.Record(ctx, rec.UpdatedAt.Sub(rec.CreatedAt).Seconds(), metric.WithAttributes(
		attribute.String("channel", rec.Channel),
		attribute.String("status", string(rec.Status)),
	))
}

// Discarded counts a job the queue gave up on.
func (m *Metrics) Discarded() {
	m.discarded.Inc()
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
