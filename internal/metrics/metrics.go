// Package metrics exposes the outcome of an analysis run in the Prometheus
// text format, for node-exporter's textfile collector.
package metrics

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"acp-capacity-analyzer/internal/diag"
	"acp-capacity-analyzer/internal/engine"
)

// acpCollector implements prometheus.Collector over the last observed report.
type acpCollector struct {
	mu       sync.Mutex
	rep      *engine.Report
	duration time.Duration

	rulesTotal      *prometheus.Desc
	acesBefore      *prometheus.Desc
	acesAfter       *prometheus.Desc
	ruleAces        *prometheus.Desc
	lowerBoundRules *prometheus.Desc
	diagnostics     *prometheus.Desc
	analysisSeconds *prometheus.Desc
}

func newCollector() *acpCollector {
	return &acpCollector{
		rulesTotal: prometheus.NewDesc(
			"acp_rules",
			"Number of rules per rule set.",
			[]string{"policy", "rule_set"}, nil,
		),
		acesBefore: prometheus.NewDesc(
			"acp_aces_before",
			"Estimated ACE count of the policy as configured.",
			[]string{"policy"}, nil,
		),
		acesAfter: prometheus.NewDesc(
			"acp_aces_after",
			"Estimated ACE count of the policy after per-rule merging.",
			[]string{"policy"}, nil,
		),
		ruleAces: prometheus.NewDesc(
			"acp_rule_aces",
			"Estimated ACE count of a single rule.",
			[]string{"policy", "rule_set", "index", "rule", "stage"}, nil,
		),
		lowerBoundRules: prometheus.NewDesc(
			"acp_lower_bound_rules",
			"Rules whose reduction is a lower bound because of unresolved objects.",
			[]string{"policy"}, nil,
		),
		diagnostics: prometheus.NewDesc(
			"acp_diagnostics",
			"Diagnostics raised while parsing, by kind.",
			[]string{"policy", "kind"}, nil,
		),
		analysisSeconds: prometheus.NewDesc(
			"acp_analysis_duration_seconds",
			"Wall time of the last analysis run in seconds.",
			nil, nil,
		),
	}
}

func (c *acpCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rulesTotal
	ch <- c.acesBefore
	ch <- c.acesAfter
	ch <- c.ruleAces
	ch <- c.lowerBoundRules
	ch <- c.diagnostics
	ch <- c.analysisSeconds
}

func (c *acpCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	rep, dur := c.rep, c.duration
	c.mu.Unlock()
	if rep == nil {
		return
	}

	policy := ""
	if rep.Policy != nil {
		policy = rep.Policy.Name
		var names []string
		perSet := make(map[string]int)
		for _, rs := range rep.Policy.RuleSets {
			if _, ok := perSet[rs.Name]; !ok {
				names = append(names, rs.Name)
			}
			perSet[rs.Name] += len(rs.Rules)
		}
		for _, name := range names {
			ch <- prometheus.MustNewConstMetric(c.rulesTotal, prometheus.GaugeValue, float64(perSet[name]), policy, name)
		}
	}
	ch <- prometheus.MustNewConstMetric(c.acesBefore, prometheus.GaugeValue, float64(rep.TotalBefore), policy)
	ch <- prometheus.MustNewConstMetric(c.acesAfter, prometheus.GaugeValue, float64(rep.TotalAfter), policy)

	lower := 0
	for _, res := range rep.Results {
		// rule names are not unique within a rule set, positions are
		idx, id := strconv.Itoa(res.Index), res.Rule.ID()
		ch <- prometheus.MustNewConstMetric(c.ruleAces, prometheus.GaugeValue, float64(res.Before), policy, res.RuleSet, idx, id, "before")
		ch <- prometheus.MustNewConstMetric(c.ruleAces, prometheus.GaugeValue, float64(res.After), policy, res.RuleSet, idx, id, "after")
		if res.LowerBound {
			lower++
		}
	}
	ch <- prometheus.MustNewConstMetric(c.lowerBoundRules, prometheus.GaugeValue, float64(lower), policy)

	counts := make(map[diag.Kind]int)
	for _, d := range rep.Diagnostics {
		counts[d.Kind]++
	}
	kinds := make([]diag.Kind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		ch <- prometheus.MustNewConstMetric(c.diagnostics, prometheus.GaugeValue, float64(counts[k]), policy, k.String())
	}

	ch <- prometheus.MustNewConstMetric(c.analysisSeconds, prometheus.GaugeValue, dur.Seconds())
}

// Recorder holds the registry the run metrics are gathered from.
type Recorder struct {
	registry  *prometheus.Registry
	collector *acpCollector
}

func NewRecorder() *Recorder {
	c := newCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(c)
	return &Recorder{registry: registry, collector: c}
}

// Observe replaces the report the metrics are computed from.
func (r *Recorder) Observe(rep *engine.Report, dur time.Duration) {
	r.collector.mu.Lock()
	defer r.collector.mu.Unlock()
	r.collector.rep = rep
	r.collector.duration = dur
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteFile writes the metrics atomically in the text exposition format.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
