package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"aidigest/internal/runner"
)

var flagSchedule string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run digests on a schedule",
	Long: `Keeps the process alive and executes an incremental digest run on
the given cron schedule. Overlapping runs are prevented by the run
lock; a tick that finds the lock held is skipped.`,
	RunE: doWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagSchedule, "schedule", "0 8,18 * * *", "cron schedule")
}

func doWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cron.New()
	_, err = c.AddFunc(flagSchedule, func() { scheduledRun(ctx, a) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", flagSchedule, err)
	}

	a.log.Info("watching", "schedule", flagSchedule)
	c.Start()
	<-ctx.Done()
	a.log.Info("shutting down")
	<-c.Stop().Done()
	return nil
}

func scheduledRun(ctx context.Context, a *app) {
	r, err := a.buildRunner(false)
	if err != nil {
		a.log.Error("building pipeline", "err", err)
		return
	}
	report, err := r.Run(ctx, runner.Options{
		UseLastCompletedWindow: true,
		OnlyNew:                true,
		AllowSeenFallback:      true,
	})
	if err != nil {
		a.log.Error("scheduled run failed", "err", err)
		return
	}
	a.log.Info("scheduled run finished",
		"run", report.RunID, "status", report.Status,
		"must_read", report.MustReadCount, "skim", report.SkimCount, "videos", report.VideoCount)
}
