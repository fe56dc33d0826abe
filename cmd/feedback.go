package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagFeedbackRun  string
	flagFeedbackItem string
	flagFeedbackNote string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <up|down>",
	Short: "Record a verdict on a delivered item or run",
	Long: `Stores operator feedback for later review. Feedback is advisory and
does not change ranking directly; the quality-repair loop is the only
automatic ranking feedback.`,
	Args: cobra.ExactArgs(1),
	RunE: doFeedback,
}

func init() {
	feedbackCmd.Flags().StringVar(&flagFeedbackRun, "run", "", "run id the verdict applies to")
	feedbackCmd.Flags().StringVar(&flagFeedbackItem, "item", "", "item id the verdict applies to")
	feedbackCmd.Flags().StringVar(&flagFeedbackNote, "note", "", "free-form note")
}

func doFeedback(cmd *cobra.Command, args []string) error {
	verdict := args[0]
	if verdict != "up" && verdict != "down" {
		return fmt.Errorf("verdict must be up or down, got %q", verdict)
	}
	if flagFeedbackRun == "" && flagFeedbackItem == "" {
		return fmt.Errorf("need --run or --item")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.AddFeedback(flagFeedbackRun, flagFeedbackItem, verdict, flagFeedbackNote); err != nil {
		return err
	}
	return a.store.AddAuditEntry("cli", "feedback_"+verdict, flagFeedbackRun+" "+flagFeedbackItem)
}
