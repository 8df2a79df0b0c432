// Package report renders optimizer results as text tables, CSV or JSON.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"acp-capacity-analyzer/internal/diag"
	"acp-capacity-analyzer/internal/engine"
	"acp-capacity-analyzer/internal/model"
)

type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// WriteCapacity prints one line per rule with its ACE count before and after.
func WriteCapacity(w io.Writer, format Format, rep *engine.Report, results []model.RuleOptimizationResult) error {
	switch format {
	case FormatCSV:
		return writeCapacityCSV(w, results)
	case FormatJSON:
		return writeJSON(w, newDocument(rep, results, false))
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE SET\tRULE\tACTION\tACES BEFORE\tACES AFTER\tFACTOR")
	for _, res := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			ruleSetName(res.RuleSet), res.Rule.ID(), res.Rule.Action, res.Before, res.After, factor(res.Factor, res.LowerBound))
	}
	before, after, lower := totals(results)
	fmt.Fprintf(tw, "\tTOTAL\t\t%d\t%d\t%s\n", before, after, factor(ratio(before, after), lower))
	return tw.Flush()
}

// WriteAnalysis prints the per-slot merges of each rule followed by the
// diagnostics that concern them.
func WriteAnalysis(w io.Writer, format Format, rep *engine.Report, results []model.RuleOptimizationResult) error {
	switch format {
	case FormatCSV:
		return writeAnalysisCSV(w, results)
	case FormatJSON:
		return writeJSON(w, newDocument(rep, results, true))
	}

	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := writeRuleAnalysis(w, res); err != nil {
			return err
		}
	}

	diags := relevantDiagnostics(rep, results)
	if len(diags) > 0 {
		fmt.Fprintln(w)
		return WriteDiagnostics(w, diags)
	}
	return nil
}

func writeRuleAnalysis(w io.Writer, res model.RuleOptimizationResult) error {
	fmt.Fprintf(w, "Rule %s (%s): %d -> %d ACEs, factor %s\n",
		res.Rule.ID(), ruleSetName(res.RuleSet), res.Before, res.After, factor(res.Factor, res.LowerBound))
	if res.Rule.Truncated {
		fmt.Fprintln(w, "  rule text is truncated, counts cover what was printed")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, slot := range res.Slots {
		if slot.Absent {
			fmt.Fprintf(tw, "  %s\tany\t\n", slot.Kind)
			continue
		}
		fmt.Fprintf(tw, "  %s\t%d -> %d\t%s\n", slot.Kind, slot.Before, slot.After, strings.Join(Entries(slot), ", "))
		for _, m := range slot.Merges {
			fmt.Fprintf(tw, "\t\t%s %s %s\n", m.Into, m.Relation, m.From)
		}
	}
	return tw.Flush()
}

// Entries renders the optimized entries of a slot in output order.
func Entries(slot model.OptimizedSlot) []string {
	var out []string
	for _, n := range slot.Networks {
		for _, p := range n.Prefixes {
			out = append(out, p.String())
		}
	}
	for _, p := range slot.Ports {
		if p.Low == p.High {
			out = append(out, fmt.Sprintf("%s/%d", p.Protocol, p.Low))
		} else {
			out = append(out, fmt.Sprintf("%s/%d-%d", p.Protocol, p.Low, p.High))
		}
	}
	for _, p := range slot.Protocols {
		out = append(out, p.Value())
	}
	for _, u := range slot.Unresolved {
		out = append(out, u.Label()+" (unresolved)")
	}
	return out
}

func WriteDiagnostics(w io.Writer, diags []diag.Diagnostic) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tKIND\tRULE\tMESSAGE")
	for _, d := range diags {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Line, d.Kind, d.Rule, d.Message)
	}
	return tw.Flush()
}

// relevantDiagnostics keeps everything for a full report and only the rules'
// own findings for a selection.
func relevantDiagnostics(rep *engine.Report, results []model.RuleOptimizationResult) []diag.Diagnostic {
	if rep == nil {
		return nil
	}
	if len(results) == len(rep.Results) {
		return rep.Diagnostics
	}
	ids := make(map[string]bool, len(results))
	for _, res := range results {
		ids[res.Rule.ID()] = true
	}
	var out []diag.Diagnostic
	for _, d := range rep.Diagnostics {
		if ids[d.Rule] {
			out = append(out, d)
		}
	}
	return out
}

func totals(results []model.RuleOptimizationResult) (before, after uint64, lower bool) {
	for _, res := range results {
		before += res.Before
		after += res.After
		lower = lower || res.LowerBound
	}
	return before, after, lower
}

func ratio(before, after uint64) float64 {
	if after == 0 {
		return 1
	}
	return float64(before) / float64(after)
}

// factor marks lower bounds with ">=".
func factor(f float64, lowerBound bool) string {
	if lowerBound {
		return fmt.Sprintf(">=%.2f", f)
	}
	return fmt.Sprintf("%.2f", f)
}

func ruleSetName(name string) string {
	if name == "" {
		return "-"
	}
	return name
}
