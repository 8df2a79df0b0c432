package engine

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"acp-capacity-analyzer/internal/diag"
	"acp-capacity-analyzer/internal/model"
)

// CountMode selects how a network slot is sized.
type CountMode string

const (
	// CountEntries counts merged intervals, one per entry.
	CountEntries CountMode = "entries"
	// CountPrefixes counts the CIDR blocks each interval expands to on the device.
	CountPrefixes CountMode = "prefixes"
)

// ParseCountMode accepts "" as the default mode.
func ParseCountMode(s string) (CountMode, error) {
	switch CountMode(s) {
	case "", CountEntries:
		return CountEntries, nil
	case CountPrefixes:
		return CountPrefixes, nil
	default:
		return "", fmt.Errorf("unknown count mode %q (want %q or %q)", s, CountEntries, CountPrefixes)
	}
}

type Options struct {
	Workers int
	Mode    CountMode
}

// Report is everything a run produces for the report writers.
type Report struct {
	Policy      *model.Policy
	Mode        CountMode
	Results     []model.RuleOptimizationResult
	TotalBefore uint64
	TotalAfter  uint64
	Diagnostics []diag.Diagnostic
}

// Factor is the policy-wide reduction, 1.0 for an empty policy.
func (r *Report) Factor() float64 {
	if r.TotalAfter == 0 {
		return 1
	}
	return float64(r.TotalBefore) / float64(r.TotalAfter)
}

// LowerBound reports whether any rule carried unresolved entries.
func (r *Report) LowerBound() bool {
	for _, res := range r.Results {
		if res.LowerBound {
			return true
		}
	}
	return false
}

// OptimizeRule computes the ACE count of one rule before and after merging.
func OptimizeRule(setName string, index int, rule *model.Rule, mode CountMode) model.RuleOptimizationResult {
	res := model.RuleOptimizationResult{
		RuleSet: setName,
		Index:   index,
		Rule:    rule,
		Before:  1,
		After:   1,
	}
	for k := range rule.Slots {
		slot := OptimizeSlot(rule.Slots[k], model.SlotKind(k), mode)
		res.Slots[k] = slot
		res.Before *= slot.Before
		res.After *= slot.After
		res.LowerBound = res.LowerBound || slot.LowerBound
	}
	res.Factor = float64(res.Before) / float64(res.After)
	return res
}

type task struct {
	pos     int
	index   int
	setName string
	rule    *model.Rule
}

type result struct {
	pos int
	res model.RuleOptimizationResult
}

// Optimize runs OptimizeRule for every rule of the policy on a bounded worker
// pool. Results keep the policy's rule order.
func Optimize(policy *model.Policy, diags *diag.Collector, opts Options) *Report {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	mode := opts.Mode
	if mode == "" {
		mode = CountEntries
	}

	var all []task
	for _, rs := range policy.RuleSets {
		for i, rule := range rs.Rules {
			all = append(all, task{pos: len(all), index: i, setName: rs.Name, rule: rule})
		}
	}

	report := &Report{
		Policy:  policy,
		Mode:    mode,
		Results: make([]model.RuleOptimizationResult, len(all)),
	}

	tasks := make(chan task, workers*2)
	results := make(chan result, workers*2)
	var wg sync.WaitGroup

	slog.Debug("Starting optimizer workers", "count", workers, "rules", len(all))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker(&wg, i+1, mode, tasks, results)
	}

	go func() {
		for _, t := range all {
			tasks <- t
		}
		close(tasks)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		report.Results[r.pos] = r.res
	}
	for _, res := range report.Results {
		report.TotalBefore += res.Before
		report.TotalAfter += res.After
	}

	report.Diagnostics = diags.Items()
	return report
}

func worker(wg *sync.WaitGroup, id int, mode CountMode, tasks <-chan task, results chan<- result) {
	defer wg.Done()
	slog.Debug("Worker started", "id", id)
	for t := range tasks {
		res := OptimizeRule(t.setName, t.index, t.rule, mode)
		slog.Debug("Rule optimized", "worker", id, "rule", t.rule.ID(), "before", res.Before, "after", res.After)
		results <- result{pos: t.pos, res: res}
	}
	slog.Debug("Worker finished", "id", id)
}
