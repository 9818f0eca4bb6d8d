package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/briefd/briefd/internal/models"
	"github.com/briefd/briefd/internal/output"
)

var researchPrompt string

var researchCmd = &cobra.Command{
	Use:   "research <topic>",
	Short: "Run a single research session in the terminal",
	Long: `Run one research session to completion, streaming progress to the
terminal. The finished PDF (and the Markdown source) land in the
configured output directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := strings.Join(args, " ")

		o, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = o.Close() }()

		id := o.manager.Create(topic, researchPrompt)
		ui.Info("Researching: %s", output.Cyan(topic))
		ui.VerboseLog("session %s", id)

		history, sub, err := o.streamer.Subscribe(id)
		if err != nil {
			return err
		}
		defer sub.Close()

		for _, ev := range history {
			printEvent(ev)
		}
		for ev := range sub.Events() {
			printEvent(ev)
		}

		sess, err := o.manager.Get(id)
		if err != nil {
			return err
		}
		summary := sess.Summary()
		switch summary.Status {
		case models.SessionStatusCompleted:
			ui.Success("Report saved: %s", summary.Result.PDFPath)
			return nil
		case models.SessionStatusCancelled:
			ui.Warning("Research cancelled")
			return nil
		default:
			if summary.Result != nil {
				return fmt.Errorf("research failed: %s", summary.Result.ErrorMessage)
			}
			return fmt.Errorf("research failed")
		}
	},
}

func printEvent(ev models.Event) {
	switch ev.Kind {
	case models.EventToolActivity:
		ui.Info("%s", ev.Message)
	case models.EventHeartbeat:
		ui.VerboseLog("%s", ev.Message)
	case models.EventError:
		ui.Error("%s", ev.Message)
	case models.EventDone:
		ui.Success("%s", ev.Message)
	default:
		ui.Info("%s", output.Yellow(ev.Message))
	}
}

func init() {
	rootCmd.AddCommand(researchCmd)

	researchCmd.Flags().StringVar(&researchPrompt, "prompt", "", "Additional instructions for the agent")
}
