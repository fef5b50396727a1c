package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/notifyd/internal/config"
	"github.com/shaharia-lab/notifyd/internal/notification"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

// NewSendCmd returns the "send" subcommand that dispatches one notification
// in-process and waits for its deliveries to finish.
func NewSendCmd(cfg *config.AppConfig) *cobra.Command {
	var (
		intent notification.Intent
		pairs  []string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Dispatch a notification",
		Example: `  notifyd send --code cert_issued --type user --id 42 --ctx domain=example.com
  notifyd send --code welcome --id 7 --channel mail --ctx name=Ada`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := parseContext(pairs)
			if err != nil {
				return err
			}
			intent.Context = data
			return runSend(cmd.Context(), cfg, cmd, intent)
		},
	}

	cmd.Flags().StringVar(&intent.Code, "code", "", "Notification code")
	cmd.Flags().StringVar(&intent.NotifiableType, "type", notification.TypeUser, "Notifiable type (user, admin)")
	cmd.Flags().Int64Var(&intent.NotifiableID, "id", 0, "Notifiable id")
	cmd.Flags().StringArrayVar(&pairs, "ctx", nil, "Context value as key=value (repeatable)")
	cmd.Flags().StringSliceVar(&intent.PreferredChannels, "channel", nil, "Restrict delivery to these channels")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func runSend(ctx context.Context, cfg *config.AppConfig, cmd *cobra.Command, intent notification.Intent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	a.queue.Start(ctx)

	lastID, err := lastDeliveryID(ctx, a.deliveries)
	if err != nil {
		return errors.Join(err, a.Close(ctx))
	}

	res, err := a.svc.Send(ctx, intent)
	if err != nil {
		return errors.Join(err, a.Close(ctx))
	}

	// Jobs live in memory; wait for them before the process exits.
	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	if err := a.queue.Close(drainCtx); err != nil {
		return errors.Join(err, a.Close(ctx))
	}

	out := cmd.OutOrStdout()
	renderJobs(out, res.Jobs)
	if len(res.Jobs) > 0 {
		records, err := sentDeliveries(ctx, a.deliveries, intent, lastID, len(res.Jobs))
		if err != nil {
			return errors.Join(err, a.Close(ctx))
		}
		renderDeliveries(out, records)
	}
	return a.Close(ctx)
}

// lastDeliveryID returns the newest delivery id, or 0 when there are none.
// Records created by this send all have a greater id.
func lastDeliveryID(ctx context.Context, store storage.DeliveryStore) (int64, error) {
	recs, err := store.ListDeliveries(ctx, storage.DeliveryFilter{Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("listing deliveries: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return recs[0].ID, nil
}

// sentDeliveries lists the records created for intent after afterID. Jobs
// skipped by the worker leave no record, so fewer than jobs may come back.
func sentDeliveries(ctx context.Context, store storage.DeliveryStore, intent notification.Intent, afterID int64, jobs int) ([]*storage.DeliveryRecord, error) {
	records, err := store.ListDeliveries(ctx, storage.DeliveryFilter{
		NotifiableType: intent.NotifiableType,
		NotifiableID:   intent.NotifiableID,
		AfterID:        afterID,
		Limit:          jobs,
	})
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	return records, nil
}

// parseContext turns repeated key=value flags into an intent context.
func parseContext(pairs []string) (map[string]any, error) {
	data := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --ctx %q: want key=value", p)
		}
		data[key] = value
	}
	return data, nil
}
