package notification

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/shaharia-lab/notifyd/internal/notification"

// Enqueuer accepts delivery jobs. Enqueue must not block on job execution and
// the queue must run every accepted job at least once.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// DispatcherConfig holds the collaborators of a Dispatcher.
type DispatcherConfig struct {
	Resolvers Resolvers
	Selector  *Selector
	Guards    *GuardManager
	Builders  *BuilderRegistry
	Queue     Enqueuer
	Logger    *slog.Logger
	Observer  Observer

	// Diagnostics logs skip and rejection details at Info instead of Debug.
	Diagnostics bool
}

// Dispatcher turns intents into delivery jobs.
type Dispatcher struct {
	resolvers Resolvers
	selector  *Selector
	guards    *GuardManager
	builders  *BuilderRegistry
	queue     Enqueuer
	logger    *slog.Logger
	observer  Observer
	tracer    trace.Tracer
	diagLevel slog.Level
}

// NewDispatcher creates a Dispatcher. A nil guard manager allows every
// channel; a nil logger or observer discards output.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		resolvers: cfg.Resolvers,
		selector:  cfg.Selector,
		guards:    cfg.Guards,
		builders:  cfg.Builders,
		queue:     cfg.Queue,
		logger:    cfg.Logger,
		observer:  cfg.Observer,
		tracer:    otel.Tracer(tracerName),
		diagLevel: diagnosticLevel(cfg.Diagnostics),
	}
	if d.guards == nil {
		d.guards = NewGuardManager()
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	if d.observer == nil {
		d.observer = NopObserver()
	}
	return d
}

// Dispatch selects, filters and enqueues the channels for intent. It never
// fails: every drop is logged and reported to the observer. The returned jobs
// are the ones accepted by the queue.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent) []Job {
	intent = intent.clone()
	ctx, span := d.tracer.Start(ctx, "notification.Dispatch", trace.WithAttributes(
		attribute.String("notification.code", intent.Code),
		attribute.String("notifiable.type", intent.NotifiableType),
		attribute.Int64("notifiable.id", intent.NotifiableID),
	))
	defer span.End()

	log := d.logger.With(
		"code", intent.Code,
		"notifiable_type", intent.NotifiableType,
		"notifiable_id", intent.NotifiableID,
	)

	n, err := d.resolvers.Resolve(ctx, intent.NotifiableType, intent.NotifiableID)
	if err != nil || n == nil {
		reason := "notifiable not found"
		if err != nil {
			reason = err.Error()
		}
		d.skip(ctx, log, intent, StageResolve, "", reason)
		return nil
	}

	sel, err := d.selector.Select(ctx, intent.Code, intent.PreferredChannels)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "template selection failed")
		log.Error("Template selection failed", "error", err)
		d.skip(ctx, log, intent, StageSelect, "", "template lookup failed")
		return nil
	}
	if sel.IsEmpty() {
		d.skip(ctx, log, intent, StageSelect, "", "no enabled template declares a usable channel")
		return nil
	}

	res := d.guards.Filter(ctx, n, intent, sel)
	for _, ch := range sel.Channels() {
		if reason, rejected := res.Rejected[ch]; rejected {
			d.skip(ctx, log, intent, StageGuard, ch, reason)
		}
	}
	if len(res.Allowed) == 0 {
		log.Log(ctx, d.diagLevel, "All channels rejected", "rejected", res.Rejected)
		return nil
	}

	var jobs []Job
	for _, group := range sel.GroupByTemplate(res.Allowed) {
		for _, ch := range group.Channels {
			builderID, err := d.builders.Resolve(intent.Code, ch)
			if err != nil {
				d.skip(ctx, log, intent, StageRoute, ch, err.Error())
				continue
			}
			job := Job{
				ID:             uuid.NewString(),
				NotifiableType: intent.NotifiableType,
				NotifiableID:   intent.NotifiableID,
				TemplateID:     group.Template.ID,
				Channel:        ch,
				Context:        maps.Clone(intent.Context),
				BuilderID:      builderID,
			}
			if err := d.queue.Enqueue(ctx, job); err != nil {
				log.Error("Failed to enqueue delivery job", "channel", ch, "error", err)
				d.skip(ctx, log, intent, StageEnqueue, ch, fmt.Sprintf("enqueue failed: %v", err))
				continue
			}
			log.Debug("Delivery job enqueued",
				"job_id", job.ID, "channel", ch, "template_id", job.TemplateID, "builder", builderID)
			d.observer.Enqueued(ctx, job)
			jobs = append(jobs, job)
		}
	}
	span.SetAttributes(attribute.Int("notification.jobs", len(jobs)))
	return jobs
}

func (d *Dispatcher) skip(ctx context.Context, log *slog.Logger, intent Intent, stage, ch, reason string) {
	log.Log(ctx, d.diagLevel, "Notification skipped", "stage", stage, "channel", ch, "reason", reason)
	d.observer.Skipped(ctx, SkipEvent{
		Stage:          stage,
		Code:           intent.Code,
		Channel:        ch,
		NotifiableType: intent.NotifiableType,
		NotifiableID:   intent.NotifiableID,
		Reason:         reason,
	})
}
