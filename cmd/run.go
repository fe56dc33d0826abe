package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aidigest/internal/runlock"
	"aidigest/internal/runner"
)

var (
	flagPreview      bool
	flagBroad        bool
	flagSeenFallback bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one digest run",
	Long: `Runs the digest pipeline once. By default the run is incremental:
it covers the window since the last completed run and skips items that
were already delivered. --broad covers the past 24 hours and ignores
the seen-set.`,
	RunE: doRun,
}

func init() {
	runCmd.Flags().BoolVar(&flagPreview, "preview", false, "render without delivering or updating the seen-set")
	runCmd.Flags().BoolVar(&flagBroad, "broad", false, "cover the past 24 hours and ignore the seen-set")
	runCmd.Flags().BoolVar(&flagSeenFallback, "seen-fallback", true, "re-admit seen videos when none are new")
}

func doRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.buildRunner(flagPreview)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := r.Run(ctx, runner.Options{
		UseLastCompletedWindow: !flagBroad,
		OnlyNew:                !flagBroad,
		AllowSeenFallback:      flagSeenFallback,
		Preview:                flagPreview,
		Progress:               progressPrinter(a),
	})
	if err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			return fmt.Errorf("another run is in progress: %w", err)
		}
		return err
	}

	printReport(report)
	if flagPreview {
		fmt.Println("\n--- chat preview ---")
		fmt.Println(report.PreviewChat)
		fmt.Println("\n--- note preview ---")
		fmt.Println(report.PreviewMarkdown)
	}
	return nil
}

func progressPrinter(a *app) runner.ProgressFunc {
	return func(ev runner.Event) {
		a.log.Debug("stage", "run", ev.RunID, "stage", ev.Stage, "severity", ev.Severity, "msg", ev.Message)
	}
}

func printReport(r runner.RunReport) {
	fmt.Printf("run %s: %s\n", r.RunID, r.Status)
	fmt.Printf("  sources: %d, fetched: %d, selected: %d must-read / %d skim / %d videos\n",
		r.SourceCount, r.Context.Fetched.Total, r.MustReadCount, r.SkimCount, r.VideoCount)
	if r.Context.SparseNote != "" {
		fmt.Printf("  note: %s\n", r.Context.SparseNote)
	}
	for _, e := range r.SourceErrors {
		fmt.Printf("  source error: %s\n", e)
	}
	for _, e := range r.SummaryErrors {
		fmt.Printf("  summary error: %s\n", e)
	}
}
