package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kasflow/payment-batch/internal/batch"
	datamodel "github.com/kasflow/payment-batch/internal/core/datamodel/batch"
	"github.com/kasflow/payment-batch/pkg/logger"
)

var (
	watchInterval time.Duration
	watchStatuses []string
	watchBanks    []string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch batches headlessly",
	Long:  `Poll the batch list on an interval and log page statistics. Useful for operations monitoring without the dashboard.`,
	Run: func(cmd *cobra.Command, args []string) {
		runWatch()
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (defaults to config)")
	watchCmd.Flags().StringSliceVar(&watchStatuses, "status", nil, "statuses to filter on")
	watchCmd.Flags().StringSliceVar(&watchBanks, "bank", nil, "bank names to filter on")
}

func runWatch() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Service.Close()

	lg := logger.L()

	filter := batch.Filter{BankNames: watchBanks}
	for _, s := range watchStatuses {
		filter.Statuses = append(filter.Statuses, datamodel.Status(s))
	}

	interval := watchInterval
	if interval <= 0 {
		interval = deps.Config.Poller.IntervalOrDefault()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		lg.Info("received signal, stopping watch", "signal", sig)
		cancel()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logPage(ctx, deps, filter)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logPage(ctx, deps, filter)
		}
	}
}

func logPage(ctx context.Context, deps *Dependencies, filter batch.Filter) {
	lg := logger.L()

	page, err := deps.Service.RefreshList(ctx, filter)
	if err != nil {
		lg.Error("watch refresh failed", "error", err)
		return
	}

	stats := batch.Aggregate(page)
	lg.Info("batch page snapshot",
		"total", stats.TotalBatches,
		"pending", stats.PendingBatches,
		"processing", stats.ProcessingBatches,
		"completed", stats.CompletedBatches,
		"failed", stats.FailedBatches,
		"total_amount", stats.TotalAmount,
		"total_payments", stats.TotalPayments)
}
