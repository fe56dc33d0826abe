package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagNote string

var timelineCmd = &cobra.Command{
	Use:   "timeline <run_id>",
	Short: "Show a run's event timeline",
	Args:  cobra.ExactArgs(1),
	RunE:  doTimeline,
}

func init() {
	timelineCmd.Flags().StringVar(&flagNote, "note", "", "attach a note to the run instead of printing")
}

func doTimeline(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	runID := args[0]
	if flagNote != "" {
		if err := a.store.AddTimelineNote(runID, flagNote); err != nil {
			return err
		}
		return a.store.AddAuditEntry("cli", "timeline_note", runID)
	}

	run, err := a.store.GetRun(runID)
	if err != nil {
		return err
	}
	fmt.Printf("run %s: %s\n", run.RunID, run.Status)
	fmt.Printf("  window: %s .. %s\n", run.WindowStart.Format("2006-01-02 15:04"), run.WindowEnd.Format("2006-01-02 15:04"))

	events, err := a.store.TimelineEvents(runID)
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Printf("  [%6.1fs] %-5s %-20s %s\n", ev.ElapsedS, ev.Severity, ev.Stage, ev.Message)
		if ev.Details != "" && ev.Details != "{}" {
			fmt.Printf("           %s\n", ev.Details)
		}
	}
	return nil
}
