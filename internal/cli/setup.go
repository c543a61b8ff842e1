package cli

import (
	"fmt"

	"github.com/threatlens/threatlens/internal/config"
	"github.com/threatlens/threatlens/internal/engine"
	"github.com/threatlens/threatlens/internal/metrics"
	"github.com/threatlens/threatlens/internal/policy"
	"github.com/threatlens/threatlens/internal/rule"
)

// loadConfig applies the global flags on top of the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if rulesDir != "" {
		cfg.Engine.RulesDir = rulesDir
	}
	return cfg, nil
}

// buildEngine loads rules per config and constructs the engine.
func buildEngine(cfg *config.Config) (*engine.Engine, []rule.PackInfo, error) {
	rules, packs, err := rule.LoadDir(cfg.Engine.RulesDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rules: %w", err)
	}
	metrics.RulesLoaded.Set(float64(rules.Len()))

	pol := cfg.Policy
	if pol.DefaultAction == "" {
		pol = *policy.Default()
	}
	eng, err := engine.New(rules, &pol, engine.WithMaxInputLen(cfg.Engine.MaxInputLen))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return eng, packs, nil
}
