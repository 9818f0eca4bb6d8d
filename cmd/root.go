package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/briefd/briefd/internal/agent"
	"github.com/briefd/briefd/internal/output"
	"github.com/briefd/briefd/internal/pipeline"
	"github.com/briefd/briefd/internal/render"
	"github.com/briefd/briefd/internal/sessions"
	"github.com/briefd/briefd/internal/store"
	"github.com/briefd/briefd/internal/stream"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui *output.UI

	verbose bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "briefd",
	Short: "Research brief service - cancellable research sessions with live progress",
	Long: `briefd runs long-running research sessions against an LLM agent,
streams their progress to observers in real time, and renders the final
Markdown report to a styled PDF.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/briefd/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "briefd")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BRIEFD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "briefd")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "briefd.db"))
	viper.SetDefault("output_dir", filepath.Join(defaultConfigDir, "reports"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("research.action_budget", agent.DefaultActionBudget)
	viper.SetDefault("research.on_budget_exhausted", string(agent.PolicyFail))
	viper.SetDefault("stream.heartbeat_interval", 15*time.Second)
	viper.SetDefault("sessions.max_history", sessions.DefaultMaxHistory)
	viper.SetDefault("render.engine", "weasyprint")
	viper.SetDefault("archive.enabled", true)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
}

// orchestrator bundles the wired session machinery for a command run.
type orchestrator struct {
	manager  *sessions.Manager
	streamer *stream.Streamer
	archive  *store.SQLiteStore
}

// Close releases the archive store, if one was opened.
func (o *orchestrator) Close() error {
	if o.archive != nil {
		return o.archive.Close()
	}
	return nil
}

// newOrchestrator wires streamer, adapter, renderer, executor, and
// manager from the effective configuration.
func newOrchestrator(cmd *cobra.Command) (*orchestrator, error) {
	streamer := stream.New(viper.GetDuration("stream.heartbeat_interval"))

	adapter := agent.NewAnthropicAdapter(
		viper.GetString("anthropic.api_key"),
		viper.GetString("anthropic.model"),
		viper.GetInt("research.action_budget"),
		agent.BudgetPolicy(viper.GetString("research.on_budget_exhausted")),
	)
	renderer := render.NewPDFRenderer(viper.GetString("render.engine"))
	exec := pipeline.New(adapter, renderer, viper.GetString("output_dir"))

	opts := []sessions.Option{
		sessions.WithMaxHistory(viper.GetInt("sessions.max_history")),
	}

	o := &orchestrator{streamer: streamer}
	if viper.GetBool("archive.enabled") {
		st, err := store.NewSQLiteStore(viper.GetString("db_path"))
		if err != nil {
			return nil, fmt.Errorf("open archive database: %w", err)
		}
		if err := st.Migrate(cmd.Context()); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("migrate archive database: %w", err)
		}
		o.archive = st
		opts = append(opts, sessions.WithArchive(st))
	}

	o.manager = sessions.NewManager(streamer, exec, opts...)
	return o, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "briefd %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}
