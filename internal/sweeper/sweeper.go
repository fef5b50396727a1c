// Package sweeper closes out delivery records that will never finish: records
// left pending or sending by a crashed process, or stuck behind a hung
// transport, are marked failed so the history has no orphans.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/shaharia-lab/notifyd/internal/storage"
)

// InterruptedMessage is stored on records the sweeper fails.
const InterruptedMessage = "delivery interrupted before completion"

const (
	defaultInterval   = time.Minute
	defaultStaleAfter = 15 * time.Minute
)

// StaleFailer fails unfinished records last updated before cutoff.
type StaleFailer interface {
	FailStale(ctx context.Context, cutoff time.Time, message string) ([]*storage.DeliveryRecord, error)
}

// Config holds the sweeper configuration.
type Config struct {
	Store StaleFailer
	// Interval between periodic sweeps. Defaults to one minute.
	Interval time.Duration
	// StaleAfter is how long a record may stay pending or sending. Defaults to 15 minutes.
	StaleAfter time.Duration
	Logger     *slog.Logger
	// OnFailed is called for every record the sweeper marks failed.
	OnFailed func(ctx context.Context, rec *storage.DeliveryRecord)
	Now      func() time.Time
}

// Sweeper periodically fails stale delivery records using gocron.
type Sweeper struct {
	cron   gocron.Scheduler
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	ctx context.Context
}

// New creates a new Sweeper.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("sweeper: nil store")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	return &Sweeper{cron: cron, cfg: cfg, logger: logger}, nil
}

// Recover fails every record that was unfinished before startedAt. Call it
// once at startup, before workers begin, to close out records orphaned by a
// previous process.
func (s *Sweeper) Recover(ctx context.Context, startedAt time.Time) (int, error) {
	n, err := s.sweep(ctx, startedAt)
	if err != nil {
		return n, fmt.Errorf("recovering orphaned deliveries: %w", err)
	}
	if n > 0 {
		s.logger.Warn("orphaned deliveries marked failed", "count", n)
	}
	return n, nil
}

// Start schedules the periodic sweep and starts the gocron scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	_, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(s.run),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("delivery sweeper started",
		"interval", s.cfg.Interval, "stale_after", s.cfg.StaleAfter)
	return nil
}

// Stop shuts down the gocron scheduler.
func (s *Sweeper) Stop() error {
	return s.cron.Shutdown()
}

// SweepNow runs one periodic sweep synchronously.
func (s *Sweeper) SweepNow(ctx context.Context) (int, error) {
	return s.sweep(ctx, s.cfg.Now().Add(-s.cfg.StaleAfter))
}

func (s *Sweeper) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	n, err := s.SweepNow(ctx)
	if err != nil {
		s.logger.Error("delivery sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Warn("stale deliveries marked failed", "count", n, "stale_after", s.cfg.StaleAfter)
	}
}

func (s *Sweeper) sweep(ctx context.Context, cutoff time.Time) (int, error) {
	failed, err := s.cfg.Store.FailStale(ctx, cutoff.UTC(), InterruptedMessage)
	for _, rec := range failed {
		s.logger.Debug("delivery marked failed",
			"delivery_id", rec.ID, "channel", rec.Channel,
			"notifiable_type", rec.NotifiableType, "notifiable_id", rec.NotifiableID)
		if s.cfg.OnFailed != nil {
			s.cfg.OnFailed(ctx, rec)
		}
	}
	return len(failed), err
}
