package engine

import (
	"errors"
	"fmt"
	"sort"

	"acp-capacity-analyzer/internal/model"

	"github.com/gobwas/glob"
)

var ErrRuleNotFound = errors.New("no rule matches")

// TopByCapacity returns the k rules with the most ACEs before merging.
// k <= 0 returns every rule.
func TopByCapacity(results []model.RuleOptimizationResult, k int) []model.RuleOptimizationResult {
	ranked := append([]model.RuleOptimizationResult(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Before > ranked[j].Before
	})
	return limit(ranked, k)
}

// TopByOptimization returns the k rules with the largest factor, ties broken
// by the number of ACEs saved.
func TopByOptimization(results []model.RuleOptimizationResult, k int) []model.RuleOptimizationResult {
	ranked := append([]model.RuleOptimizationResult(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Factor != ranked[j].Factor {
			return ranked[i].Factor > ranked[j].Factor
		}
		return ranked[i].Saved() > ranked[j].Saved()
	})
	return limit(ranked, k)
}

func limit(results []model.RuleOptimizationResult, k int) []model.RuleOptimizationResult {
	if k > 0 && k < len(results) {
		return results[:k]
	}
	return results
}

// SelectRules matches results by exact rule name, by "name | tag", or by a
// glob pattern such as "web-*".
func SelectRules(results []model.RuleOptimizationResult, pattern string) ([]model.RuleOptimizationResult, error) {
	var out []model.RuleOptimizationResult
	for _, res := range results {
		if res.Rule.Name == pattern || res.Rule.ID() == pattern {
			out = append(out, res)
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid rule pattern %q: %w", pattern, err)
	}
	for _, res := range results {
		if g.Match(res.Rule.Name) || g.Match(res.Rule.ID()) {
			out = append(out, res)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w %q", ErrRuleNotFound, pattern)
	}
	return out, nil
}
