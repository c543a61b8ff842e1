// Package cache stores analysis verdicts keyed by text hash and rule
// set revision. The engine is deterministic, so a cached verdict is
// exactly the verdict re-analysis would produce — until the rules
// change, which rotates the key.
package cache

import (
	"context"

	"github.com/threatlens/threatlens/pkg/threat"
)

// Cache is the verdict cache interface. Both implementations are safe
// for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (*threat.AnalysisResult, bool)
	Set(ctx context.Context, key string, result *threat.AnalysisResult)
}

// Key builds a cache key from the rule set revision and text hash.
func Key(revision, textHash string) string {
	return "tl:" + revision + ":" + textHash
}
