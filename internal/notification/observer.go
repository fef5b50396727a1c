package notification

import (
	"context"
	"log/slog"

	"github.com/shaharia-lab/notifyd/internal/storage"
)

// Skip stages. Every pre-record drop in the pipeline is reported under one.
const (
	StageResolve  = "resolve"
	StageSelect   = "select"
	StageGuard    = "guard"
	StageRoute    = "route"
	StageEnqueue  = "enqueue"
	StageTemplate = "template"
	StageBuilder  = "builder"
	StageBuild    = "build"
	StageChannel  = "channel"
)

// SkipEvent describes a notification (or one channel of it) that was dropped
// before a delivery record existed.
type SkipEvent struct {
	Stage          string `json:"stage"`
	Code           string `json:"code"`
	Channel        string `json:"channel,omitempty"`
	NotifiableType string `json:"notifiable_type"`
	NotifiableID   int64  `json:"notifiable_id"`
	Reason         string `json:"reason"`
}

// Observer receives structured pipeline events.
type Observer interface {
	Skipped(ctx context.Context, ev SkipEvent)
	Enqueued(ctx context.Context, job Job)
	Delivered(ctx context.Context, rec *storage.DeliveryRecord)
}

type nopObserver struct{}

func (nopObserver) Skipped(context.Context, SkipEvent)                 {}
func (nopObserver) Enqueued(context.Context, Job)                      {}
func (nopObserver) Delivered(context.Context, *storage.DeliveryRecord) {}

// NopObserver discards every event.
func NopObserver() Observer { return nopObserver{} }

// diagnosticLevel is the level skip and rejection diagnostics are logged at.
func diagnosticLevel(enabled bool) slog.Level {
	if enabled {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
