package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/briefd/briefd/internal/output"
	"github.com/briefd/briefd/internal/store"
)

var (
	historyLimit     int
	historyPruneDays int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived research sessions",
	Long: `List finished research sessions from the archive database,
most recent first. Use 'briefd history show <id>' to replay a
session's full event log.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun(cmd)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show an archived session's event log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyShowRun(cmd, args[0])
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete archived sessions older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyPruneRun(cmd)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Maximum number of sessions to show (0 = all)")
	historyPruneCmd.Flags().IntVar(&historyPruneDays, "days", 30, "Delete sessions that ended more than this many days ago")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

func openArchive(cmd *cobra.Command) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(viper.GetString("db_path"))
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate archive database: %w", err)
	}
	return st, nil
}

func historyListRun(cmd *cobra.Command) error {
	st, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	summaries, err := st.ListSessions(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	if len(summaries) == 0 {
		ui.Info("No archived sessions.")
		return nil
	}

	table := ui.Table([]string{"ID", "Topic", "Status", "Started", "Duration"})
	for _, s := range summaries {
		duration := "-"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.CreatedAt).Round(time.Second).String()
		}
		table.Append([]string{
			s.ID,
			output.Cyan(truncate(s.Topic, 50)),
			output.StatusColor(string(s.Status)),
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			duration,
		})
	}
	table.Render()
	return nil
}

func historyShowRun(cmd *cobra.Command, id string) error {
	st, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	summary, events, err := st.GetSession(cmd.Context(), id)
	if err != nil {
		return err
	}

	ui.Info("%s  %s", output.Cyan(summary.Topic), output.StatusColor(string(summary.Status)))
	if summary.Result != nil {
		if summary.Result.PDFPath != "" {
			ui.Info("PDF: %s", summary.Result.PDFPath)
		}
		if summary.Result.ErrorMessage != "" {
			ui.Error("%s", summary.Result.ErrorMessage)
		}
	}
	fmt.Fprintln(ui.Out)

	for _, ev := range events {
		fmt.Fprintf(ui.Out, "  %3d  %s  %-13s %s\n",
			ev.Seq, ev.Timestamp.Local().Format("15:04:05"), ev.Kind, ev.Message)
	}
	return nil
}

func historyPruneRun(cmd *cobra.Command) error {
	st, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cutoff := time.Now().AddDate(0, 0, -historyPruneDays)
	n, err := st.PruneSessions(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	ui.Success("Pruned %d archived session(s) older than %d days", n, historyPruneDays)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
