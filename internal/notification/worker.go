package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaharia-lab/notifyd/internal/channel"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

// GenericFailureMessage is stored on records whose driver broke instead of
// reporting a failure.
const GenericFailureMessage = "delivery failed: internal transport error"

// TemplateGetter fetches a template by id. It returns nil, nil when missing.
type TemplateGetter interface {
	GetTemplate(ctx context.Context, id int64) (*storage.Template, error)
}

// WorkerConfig holds the collaborators of a Worker.
type WorkerConfig struct {
	Templates  TemplateGetter
	Resolvers  Resolvers
	Builders   *BuilderRegistry
	Deliveries storage.DeliveryStore
	Channels   *channel.Registry
	Logger     *slog.Logger
	Observer   Observer
	Now        func() time.Time

	// Diagnostics logs skip details at Info instead of Debug.
	Diagnostics bool
}

// Worker executes delivery jobs.
type Worker struct {
	templates  TemplateGetter
	resolvers  Resolvers
	builders   *BuilderRegistry
	deliveries storage.DeliveryStore
	channels   *channel.Registry
	logger     *slog.Logger
	observer   Observer
	now        func() time.Time
	tracer     trace.Tracer
	diagLevel  slog.Level
}

// NewWorker creates a Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	w := &Worker{
		templates:  cfg.Templates,
		resolvers:  cfg.Resolvers,
		builders:   cfg.Builders,
		deliveries: cfg.Deliveries,
		channels:   cfg.Channels,
		logger:     cfg.Logger,
		observer:   cfg.Observer,
		now:        cfg.Now,
		tracer:     otel.Tracer(tracerName),
		diagLevel:  diagnosticLevel(cfg.Diagnostics),
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}
	if w.observer == nil {
		w.observer = NopObserver()
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Deliver runs one job. Once a delivery record has been created it always
// reaches sent or failed before Deliver returns. The returned error is
// reserved for storage failures that happen before the record exists, which
// makes a queue-level retry safe.
func (w *Worker) Deliver(ctx context.Context, job Job) error {
	ctx, span := w.tracer.Start(ctx, "notification.Deliver", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("notification.channel", job.Channel),
		attribute.Int64("notification.template_id", job.TemplateID),
	))
	defer span.End()

	log := w.logger.With(
		"job_id", job.ID,
		"channel", job.Channel,
		"template_id", job.TemplateID,
		"notifiable_type", job.NotifiableType,
		"notifiable_id", job.NotifiableID,
	)

	tmpl, err := w.templates.GetTemplate(ctx, job.TemplateID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "template lookup failed")
		return fmt.Errorf("loading template %d: %w", job.TemplateID, err)
	}
	if tmpl == nil || !tmpl.Enabled() {
		w.skip(ctx, log, job, "", StageTemplate, "template missing or disabled")
		return nil
	}

	n, err := w.resolvers.Resolve(ctx, job.NotifiableType, job.NotifiableID)
	if err != nil {
		if errors.Is(err, ErrUnknownNotifiableType) {
			w.skip(ctx, log, job, tmpl.Code, StageResolve, err.Error())
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("resolving %s %d: %w", job.NotifiableType, job.NotifiableID, err)
	}
	if n == nil {
		w.skip(ctx, log, job, tmpl.Code, StageResolve, "notifiable not found")
		return nil
	}

	builder, err := w.builders.New(job.BuilderID)
	if err != nil {
		w.skip(ctx, log, job, tmpl.Code, StageBuilder, err.Error())
		return nil
	}

	payload, err := build(ctx, builder, BuildInput{
		Code:           tmpl.Code,
		Channel:        job.Channel,
		Template:       tmpl,
		NotifiableType: job.NotifiableType,
		NotifiableID:   job.NotifiableID,
		Context:        maps.Clone(job.Context),
	}, n)
	if err != nil {
		log.Warn("Builder could not assemble payload", "builder", job.BuilderID, "error", err)
		w.skip(ctx, log, job, tmpl.Code, StageBuild, err.Error())
		return nil
	}

	if !tmpl.HasChannel(job.Channel) {
		w.skip(ctx, log, job, tmpl.Code, StageChannel, "template no longer declares channel")
		return nil
	}
	if !payload.AllowsChannel(job.Channel) {
		w.skip(ctx, log, job, tmpl.Code, StageChannel, "builder narrowed channels")
		return nil
	}

	rec := &storage.DeliveryRecord{
		NotifiableType: job.NotifiableType,
		NotifiableID:   job.NotifiableID,
		TemplateID:     tmpl.ID,
		Channel:        job.Channel,
		Data:           mergeData(payload, tmpl),
		Status:         storage.DeliveryPending,
	}
	if err := w.deliveries.CreateDelivery(ctx, rec); err != nil {
		span.RecordError(err)
		return fmt.Errorf("creating delivery record: %w", err)
	}
	log = log.With("delivery_id", rec.ID)
	span.SetAttributes(attribute.Int64("delivery.id", rec.ID))

	rec.Status = storage.DeliverySending
	if err := w.deliveries.UpdateDelivery(ctx, rec); err != nil {
		log.Error("Failed to mark delivery as sending", "error", err)
		w.finish(ctx, log, rec, storage.DeliveryFailed, GenericFailureMessage)
		return nil
	}

	status, message := w.send(ctx, log, &channel.Delivery{
		Record:    rec,
		Recipient: n,
		Template:  tmpl,
		Address:   ContactAddress(job.Channel, n, job.Context),
	})
	if status == storage.DeliveryFailed {
		span.SetStatus(codes.Error, message)
	}
	w.finish(ctx, log, rec, status, message)
	return nil
}

// send invokes the driver and maps its outcome to a terminal status.
func (w *Worker) send(ctx context.Context, log *slog.Logger, d *channel.Delivery) (status storage.DeliveryStatus, message string) {
	driver, err := w.channels.Lookup(d.Record.Channel)
	if err != nil {
		log.Error("No driver for channel", "error", err)
		return storage.DeliveryFailed, GenericFailureMessage
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Channel driver panicked", "driver", driver.Name(), "panic", r)
			status, message = storage.DeliveryFailed, GenericFailureMessage
		}
	}()

	res, err := driver.Send(ctx, d)
	if err != nil {
		log.Error("Channel driver failed", "driver", driver.Name(), "error", err)
		return storage.DeliveryFailed, GenericFailureMessage
	}
	if !res.OK() {
		log.Debug("Channel driver reported failure", "driver", driver.Name(), "message", res.Message)
		return storage.DeliveryFailed, res.Message
	}
	return storage.DeliverySent, res.Message
}

func (w *Worker) finish(ctx context.Context, log *slog.Logger, rec *storage.DeliveryRecord, status storage.DeliveryStatus, message string) {
	rec.Status = status
	rec.Message = message
	if status == storage.DeliverySent {
		now := w.now().UTC()
		rec.SentAt = &now
	}
	if err := w.deliveries.UpdateDelivery(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDeliveryFinalized) {
			// The sweeper already failed the record and reported it.
			log.Warn("Delivery outcome discarded, record already finalized", "status", status, "error", err)
			return
		}
		log.Error("Failed to persist delivery outcome", "status", status, "error", err)
	}
	log.Debug("Delivery finished", "status", status)
	w.observer.Delivered(ctx, rec)
}

func (w *Worker) skip(ctx context.Context, log *slog.Logger, job Job, code, stage, reason string) {
	log.Log(ctx, w.diagLevel, "Delivery skipped", "stage", stage, "reason", reason)
	w.observer.Skipped(ctx, SkipEvent{
		Stage:          stage,
		Code:           code,
		Channel:        job.Channel,
		NotifiableType: job.NotifiableType,
		NotifiableID:   job.NotifiableID,
		Reason:         reason,
	})
}

// build calls b, converting a panic into an error.
func build(ctx context.Context, b Builder, in BuildInput, n Notifiable) (p *Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("builder panicked: %v", r)
		}
	}()
	p, err = b.Build(ctx, in, n)
	if err == nil && p == nil {
		p = &Payload{}
	}
	return p, err
}

// mergeData copies the payload data and fills the subject from the template
// name when the builder left it empty.
func mergeData(p *Payload, tmpl *storage.Template) map[string]any {
	data := maps.Clone(p.Data)
	if data == nil {
		data = map[string]any{}
	}
	meta, _ := data["_meta"].(map[string]any)
	meta = maps.Clone(meta)
	if meta == nil {
		meta = map[string]any{}
	}
	subject, _ := meta["subject"].(string)
	if subject == "" {
		subject = tmpl.Name
		meta["subject"] = subject
	}
	data["_meta"] = meta
	data["subject"] = subject
	return data
}
