package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/notifyd/internal/config"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

// NewDeliveriesCmd returns the "deliveries" subcommand that prints delivery history.
func NewDeliveriesCmd(cfg *config.AppConfig) *cobra.Command {
	var (
		filter storage.DeliveryFilter
		status string
	)

	cmd := &cobra.Command{
		Use:   "deliveries [id]",
		Short: "Show delivery history",
		Args:  cobra.MaximumNArgs(1),
		Example: `  notifyd deliveries --status failed --limit 20
  notifyd deliveries 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Status = storage.DeliveryStatus(status)
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				if len(args) == 1 {
					id, err := strconv.ParseInt(args[0], 10, 64)
					if err != nil {
						return err
					}
					rec, err := a.svc.GetDelivery(ctx, id)
					if err != nil {
						return err
					}
					renderDeliveries(cmd.OutOrStdout(), []*storage.DeliveryRecord{rec})
					return nil
				}
				records, err := a.svc.ListDeliveries(ctx, filter)
				if err != nil {
					return err
				}
				renderDeliveries(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum number of records")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, sending, sent, failed)")
	cmd.Flags().StringVar(&filter.Channel, "channel", "", "Filter by channel")
	cmd.Flags().StringVar(&filter.NotifiableType, "type", "", "Filter by notifiable type")
	cmd.Flags().Int64Var(&filter.NotifiableID, "id", 0, "Filter by notifiable id")
	return cmd
}

// withApp wires the pipeline, runs fn and releases everything afterwards.
func withApp(ctx context.Context, cfg *config.AppConfig, fn func(context.Context, *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	if err := fn(ctx, a); err != nil {
		_ = a.Close(ctx)
		return err
	}
	return a.Close(ctx)
}
