package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/threatlens/threatlens/internal/store"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show detection statistics from the analysis history",
	Long: `Summarize the analyses recorded in the local history database:
totals, threat rate, breakdowns by category and action, and the most
recent threats.

  threatlens stats
  threatlens stats --json`,
	RunE: statsCommand,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Emit statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func statsCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer db.Close()

	stats, err := db.Stats(10)
	if err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Println("ThreatLens Statistics")
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("  Total analyses:   %d\n", stats.TotalAnalyses)
	fmt.Printf("  Threats detected: %s\n", color.RedString("%d", stats.ThreatsDetected))
	fmt.Printf("  Threat rate:      %.1f%%\n", stats.ThreatRate*100)
	fmt.Printf("  Avg risk score:   %.1f\n", stats.AverageRiskScore)

	printBreakdown("By category", stats.ByCategory)
	printBreakdown("By action", stats.ByAction)

	if len(stats.Recent) > 0 {
		fmt.Println()
		fmt.Println("  Recent threats:")
		for _, r := range stats.Recent {
			fmt.Printf("    %s  score %-3d  %-5s  %s (%s)\n",
				r.Timestamp.Local().Format("2006-01-02 15:04"),
				r.RiskScore, r.Action, strings.Join(r.Categories, ", "), r.Source)
		}
	}
	fmt.Println(strings.Repeat("─", 60))
	return nil
}

func printBreakdown(label string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Println()
	fmt.Printf("  %s:\n", label)
	for _, k := range keys {
		fmt.Printf("    %-22s %d\n", k, counts[k])
	}
}
