package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/briefd/briefd/internal/output"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List generated reports in the output directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportsListRun()
	},
}

func init() {
	rootCmd.AddCommand(reportsCmd)
}

func reportsListRun() error {
	dir := viper.GetString("output_dir")

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		ui.Info("No reports yet. Run 'briefd research <topic>' to create one.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}

	type report struct {
		name    string
		size    int64
		modTime time.Time
	}
	var reports []report
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		reports = append(reports, report{entry.Name(), info.Size(), info.ModTime()})
	}

	if len(reports) == 0 {
		ui.Info("No reports yet. Run 'briefd research <topic>' to create one.")
		return nil
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].modTime.After(reports[j].modTime)
	})

	table := ui.Table([]string{"Report", "Size", "Created"})
	for _, r := range reports {
		table.Append([]string{
			output.Cyan(r.name),
			formatSize(r.size),
			r.modTime.Format("2006-01-02 15:04"),
		})
	}
	table.Render()

	fmt.Fprintln(ui.Out)
	ui.Info("Output directory: %s", dir)
	return nil
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
