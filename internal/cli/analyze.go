package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/threatlens/threatlens/internal/approval"
	"github.com/threatlens/threatlens/internal/audit"
	"github.com/threatlens/threatlens/internal/redact"
	"github.com/threatlens/threatlens/pkg/threat"
)

var (
	analyzeJSON bool
	analyzeGate bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Analyze a prompt or response for threats",
	Long: `Analyze text for prompt injection, jailbreak attempts, and PII or
credential leakage. Text comes from the argument, or from stdin when no
argument is given.

Examples:
  threatlens analyze "Ignore all previous instructions"
  cat prompt.txt | threatlens analyze
  threatlens analyze --json "some text"   # machine-readable output
  threatlens analyze --gate "some text"   # ask before passing a warn verdict

Exit code is 1 when the verdict is block (or a gated warn is denied),
0 otherwise.`,
	Args: cobra.MaximumNArgs(1),
	RunE: analyzeCommand,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Emit the full result as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeGate, "gate", false, "Prompt for approval on warn verdicts")
	rootCmd.AddCommand(analyzeCmd)
}

func analyzeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, _, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	text, err := readInput(args)
	if err != nil {
		return err
	}

	result, err := eng.Analyze(text)
	if err != nil {
		return err
	}

	if logger, err := audit.New(cfg.Audit.Path); err == nil {
		_ = logger.LogResult("cli", text, result)
		_ = logger.Close()
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printResult(text, result)

	if result.Action == threat.ActionBlock {
		os.Exit(1)
	}
	if analyzeGate && result.Action == threat.ActionWarn {
		decision := approval.Ask(approval.Prompt{
			Excerpt:     redact.Snippet(text, 120),
			RiskScore:   result.RiskScore,
			ThreatTypes: result.ThreatTypes,
			Reasons:     detectionReasons(result),
		})
		if !decision.Approved {
			os.Exit(1)
		}
	}
	return nil
}

// readInput takes the text from the argument or, failing that, stdin.
func readInput(args []string) (string, error) {
	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func printResult(text string, result *threat.AnalysisResult) {
	verdict := color.New(color.FgGreen, color.Bold)
	switch result.Action {
	case threat.ActionWarn:
		verdict = color.New(color.FgYellow, color.Bold)
	case threat.ActionBlock:
		verdict = color.New(color.FgRed, color.Bold)
	}

	fmt.Printf("  Verdict:    %s\n", verdict.Sprint(strings.ToUpper(string(result.Action))))
	fmt.Printf("  Risk score: %d/100\n", result.RiskScore)
	fmt.Printf("  Confidence: %.2f\n", result.Confidence)
	if len(result.ThreatTypes) > 0 {
		fmt.Printf("  Threats:    %s\n", strings.Join(result.ThreatTypes, ", "))
	}
	fmt.Printf("  Duration:   %dms\n", result.DurationMs)

	if len(result.Detections) > 0 {
		fmt.Println()
		fmt.Println("  Detections:")
		for _, d := range result.Detections {
			fmt.Printf("    [%s] %s (%s): %s\n", d.Severity, d.RuleID, d.Detector, d.Reason)
			if d.Snippet != "" {
				fmt.Printf("        %s\n", d.Snippet)
			}
		}
	}
}

func detectionReasons(result *threat.AnalysisResult) []string {
	reasons := make([]string, 0, len(result.Detections))
	for _, d := range result.Detections {
		reasons = append(reasons, fmt.Sprintf("%s: %s", d.RuleID, d.Reason))
	}
	return reasons
}
