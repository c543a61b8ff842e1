package cli

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	rulesDir   string
)

var rootCmd = &cobra.Command{
	Use:   "threatlens",
	Short: "ThreatLens - threat monitor for AI prompts and responses",
	Long: `ThreatLens is a local-first threat monitor that inspects prompts and
LLM responses for prompt injection, jailbreak attempts, and PII or
credential leakage. It serves the same rule-based detection engine over
a CLI, a local REST API, and an MCP stdio server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default: ~/.threatlens/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rulesDir, "rules", "", "Rule pack directory (default: ~/.threatlens/rules)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
