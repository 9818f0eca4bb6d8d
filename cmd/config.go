package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "briefd"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage briefd configuration.

Running bare 'briefd config' is the same as 'briefd config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# briefd configuration
# See: briefd config show (for effective values and sources)

# State/data directory (default: ~/.config/briefd)
# state_dir: {{ .StateDir }}

# SQLite archive database path (default: ~/.config/briefd/briefd.db)
# db_path: {{ .DBPath }}

# Directory where rendered reports are written (default: ~/.config/briefd/reports)
# output_dir: {{ .OutputDir }}

# HTTP server port (default: 8080)
# port: {{ .Port }}

# Anthropic API
anthropic:
  # API key (prefer BRIEFD_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY env vars)
  api_key: "{{ .AnthropicAPIKey }}"

  # Model to use
  model: "{{ .AnthropicModel }}"

# Research settings
research:
  # Maximum research actions (web searches) per session
  action_budget: {{ .ActionBudget }}

  # What to do when the budget runs out before research finishes:
  # "fail" or "write_partial"
  on_budget_exhausted: "{{ .OnBudgetExhausted }}"

# PDF rendering
render:
  # External HTML-to-PDF engine (must be on PATH)
  engine: "{{ .RenderEngine }}"

# Session archive
archive:
  # Persist finished sessions and their event logs to SQLite
  enabled: {{ .ArchiveEnabled }}
`

type configTemplateData struct {
	StateDir          string
	DBPath            string
	OutputDir         string
	Port              int
	AnthropicAPIKey   string
	AnthropicModel    string
	ActionBudget      int
	OnBudgetExhausted string
	RenderEngine      string
	ArchiveEnabled    bool
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:          viper.GetString("state_dir"),
		DBPath:            viper.GetString("db_path"),
		OutputDir:         viper.GetString("output_dir"),
		Port:              viper.GetInt("port"),
		AnthropicAPIKey:   viper.GetString("anthropic.api_key"),
		AnthropicModel:    viper.GetString("anthropic.model"),
		ActionBudget:      viper.GetInt("research.action_budget"),
		OnBudgetExhausted: viper.GetString("research.on_budget_exhausted"),
		RenderEngine:      viper.GetString("render.engine"),
		ArchiveEnabled:    viper.GetBool("archive.enabled"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "BRIEFD_STATE_DIR"},
	{Key: "db_path", EnvVar: "BRIEFD_DB_PATH"},
	{Key: "output_dir", EnvVar: "BRIEFD_OUTPUT_DIR"},
	{Key: "port", EnvVar: "BRIEFD_PORT"},
	{Key: "anthropic.model", EnvVar: "BRIEFD_ANTHROPIC_MODEL"},
	{Key: "research.action_budget", EnvVar: "BRIEFD_RESEARCH_ACTION_BUDGET"},
	{Key: "research.on_budget_exhausted", EnvVar: "BRIEFD_RESEARCH_ON_BUDGET_EXHAUSTED"},
	{Key: "stream.heartbeat_interval", EnvVar: "BRIEFD_STREAM_HEARTBEAT_INTERVAL"},
	{Key: "sessions.max_history", EnvVar: "BRIEFD_SESSIONS_MAX_HISTORY"},
	{Key: "render.engine", EnvVar: "BRIEFD_RENDER_ENGINE"},
	{Key: "archive.enabled", EnvVar: "BRIEFD_ARCHIVE_ENABLED"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-30s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'briefd config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
