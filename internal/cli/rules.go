package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/threatlens/threatlens/internal/rule"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage rule packs",
	Long: `Manage ThreatLens rule packs.

Rule packs are YAML files of detection rules, stored in
~/.threatlens/rules/ and merged with the built-in rules at load time.
A pack whose filename starts with an underscore is disabled.

Examples:
  threatlens rules list                    # list packs and rule counts
  threatlens rules enable custom-pii       # enable a disabled pack
  threatlens rules disable custom-pii      # disable a pack
  threatlens rules validate my-pack.yaml   # check a pack before installing`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed rule packs",
	RunE:  rulesList,
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <pack-name>",
	Short: "Enable a disabled rule pack",
	Args:  cobra.ExactArgs(1),
	RunE:  rulesEnable,
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <pack-name>",
	Short: "Disable a rule pack (prefix with underscore)",
	Args:  cobra.ExactArgs(1),
	RunE:  rulesDisable,
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <pack-file>",
	Short: "Validate a rule pack file",
	Args:  cobra.ExactArgs(1),
	RunE:  rulesValidate,
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesEnableCmd)
	rulesCmd.AddCommand(rulesDisableCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}

func rulesDirPath() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	dir := cfg.Engine.RulesDir
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

func rulesList(cmd *cobra.Command, args []string) error {
	dir, err := rulesDirPath()
	if err != nil {
		return err
	}

	set, infos, err := rule.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	fmt.Printf("Built-in rules: %d\n\n", set.Len()-enabledRuleCount(infos))

	if len(infos) == 0 {
		fmt.Println("No rule packs installed.")
		fmt.Printf("\nTo install packs, copy YAML files to: %s\n", dir)
		return nil
	}

	fmt.Println("Installed Rule Packs:")
	fmt.Println(strings.Repeat("─", 60))
	for _, info := range infos {
		status := "\xe2\x9c\x85" // check mark
		if !info.Enabled {
			status = "\xe2\x9d\x8c" // cross mark
		}
		fmt.Printf("  %s  %-25s %s\n", status, info.Name, info.Description)
		if info.Version != "" {
			fmt.Printf("       v%s by %s  (%d rules)\n", info.Version, info.Author, info.RuleCount)
		}
	}
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("\nRules directory: %s\n", dir)
	fmt.Printf("Rule set revision: %s\n", set.Revision())
	return nil
}

func enabledRuleCount(infos []rule.PackInfo) int {
	n := 0
	for _, info := range infos {
		if info.Enabled {
			n += info.RuleCount
		}
	}
	return n
}

func rulesEnable(cmd *cobra.Command, args []string) error {
	dir, err := rulesDirPath()
	if err != nil {
		return err
	}

	name := args[0]
	disabledPath := filepath.Join(dir, "_"+name+".yaml")
	enabledPath := filepath.Join(dir, name+".yaml")

	if _, err := os.Stat(disabledPath); err == nil {
		if err := os.Rename(disabledPath, enabledPath); err != nil {
			return fmt.Errorf("failed to enable pack: %w", err)
		}
		fmt.Printf("\xe2\x9c\x85 Pack '%s' enabled.\n", name)
		return nil
	}

	if _, err := os.Stat(enabledPath); err == nil {
		fmt.Printf("Pack '%s' is already enabled.\n", name)
		return nil
	}

	return fmt.Errorf("pack '%s' not found in %s", name, dir)
}

func rulesDisable(cmd *cobra.Command, args []string) error {
	dir, err := rulesDirPath()
	if err != nil {
		return err
	}

	name := args[0]
	enabledPath := filepath.Join(dir, name+".yaml")
	disabledPath := filepath.Join(dir, "_"+name+".yaml")

	if _, err := os.Stat(enabledPath); err == nil {
		if err := os.Rename(enabledPath, disabledPath); err != nil {
			return fmt.Errorf("failed to disable pack: %w", err)
		}
		fmt.Printf("\xe2\x9d\x8c Pack '%s' disabled.\n", name)
		return nil
	}

	if _, err := os.Stat(disabledPath); err == nil {
		fmt.Printf("Pack '%s' is already disabled.\n", name)
		return nil
	}

	return fmt.Errorf("pack '%s' not found in %s", name, dir)
}

func rulesValidate(cmd *cobra.Command, args []string) error {
	set, err := rule.Load(args[0])
	if err != nil {
		fmt.Printf("\xe2\x9d\x8c %s: %v\n", args[0], err)
		os.Exit(1)
	}
	fmt.Printf("\xe2\x9c\x85 %s: %d rules, all patterns compile.\n", args[0], set.Len())
	return nil
}
