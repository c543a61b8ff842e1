package rule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is a YAML rule file with metadata. Packs group related rules
// (one file per threat family, typically).
type Pack struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	Author      string `yaml:"author"`
	Rules       []Rule `yaml:"rules"`
}

// PackInfo is a summary of a pack for listing.
type PackInfo struct {
	Name        string
	Description string
	Version     string
	Author      string
	Enabled     bool
	Path        string
	RuleCount   int
}

// Set is the immutable collection of compiled rules the engine runs.
type Set struct {
	rules    []Rule
	revision string
}

// Rules returns the compiled rules in load order.
func (s *Set) Rules() []Rule { return s.rules }

// Len returns the number of rules in the set.
func (s *Set) Len() int { return len(s.rules) }

// Revision is a stable fingerprint of the rule set, used for cache
// keying so cached verdicts die with the rules that produced them.
func (s *Set) Revision() string { return s.revision }

// NewSet validates and compiles rules into an immutable Set.
// Duplicate rule IDs fail the whole set.
func NewSet(rules []Rule) (*Set, error) {
	seen := make(map[string]bool, len(rules))
	for i := range rules {
		if err := rules[i].validate(); err != nil {
			return nil, err
		}
		if seen[rules[i].ID] {
			return nil, fmt.Errorf("duplicate rule id %q", rules[i].ID)
		}
		seen[rules[i].ID] = true
	}
	return &Set{rules: rules, revision: fingerprint(rules)}, nil
}

// Load reads a single pack file and compiles its rules into a Set.
func Load(path string) (*Set, error) {
	pack, err := loadPack(path)
	if err != nil {
		return nil, err
	}
	return NewSet(pack.Rules)
}

// LoadDir reads all YAML pack files from dir and merges them with the
// built-in rules. Files prefixed with an underscore are disabled. A
// missing directory is not an error: the built-in set is returned.
func LoadDir(dir string) (*Set, []PackInfo, error) {
	rules := append([]Rule(nil), builtinRules()...)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			set, serr := NewSet(rules)
			return set, nil, serr
		}
		return nil, nil, err
	}

	var infos []PackInfo
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		enabled := !strings.HasPrefix(baseName, "_")

		pack, err := loadPack(path)
		if err != nil {
			return nil, nil, fmt.Errorf("pack %s: %w", path, err)
		}

		info := PackInfo{
			Name:        pack.Name,
			Description: pack.Description,
			Version:     pack.Version,
			Author:      pack.Author,
			Enabled:     enabled,
			Path:        path,
			RuleCount:   len(pack.Rules),
		}
		if info.Name == "" {
			info.Name = baseName
		}
		infos = append(infos, info)

		if !enabled {
			continue
		}
		rules = append(rules, pack.Rules...)
	}

	set, err := NewSet(rules)
	if err != nil {
		return nil, nil, err
	}
	return set, infos, nil
}

func loadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse pack: %w", err)
	}
	return &pack, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// fingerprint hashes rule identities and patterns in a stable order.
func fingerprint(rules []Rule) string {
	parts := make([]string, 0, len(rules))
	for _, r := range rules {
		var pats []string
		for _, p := range r.Patterns {
			pats = append(pats, p.Flags+"/"+p.Regex)
		}
		parts = append(parts, r.ID+"|"+string(r.Severity)+"|"+strings.Join(pats, ","))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:8])
}
