package report

import (
	"io"

	"acp-capacity-analyzer/internal/engine"
	"acp-capacity-analyzer/internal/model"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type document struct {
	Policy      string       `json:"policy"`
	CountMode   string       `json:"count_mode"`
	AcesBefore  uint64       `json:"aces_before"`
	AcesAfter   uint64       `json:"aces_after"`
	Factor      float64      `json:"factor"`
	LowerBound  bool         `json:"lower_bound"`
	Rules       []ruleDoc    `json:"rules"`
	Diagnostics []diagnostic `json:"diagnostics,omitempty"`
}

type ruleDoc struct {
	RuleSet    string    `json:"rule_set"`
	Name       string    `json:"name"`
	Tag        string    `json:"tag,omitempty"`
	Action     string    `json:"action,omitempty"`
	AcesBefore uint64    `json:"aces_before"`
	AcesAfter  uint64    `json:"aces_after"`
	Factor     float64   `json:"factor"`
	LowerBound bool      `json:"lower_bound"`
	Truncated  bool      `json:"truncated,omitempty"`
	Slots      []slotDoc `json:"slots,omitempty"`
}

type slotDoc struct {
	Slot    string     `json:"slot"`
	Absent  bool       `json:"absent,omitempty"`
	Before  uint64     `json:"before"`
	After   uint64     `json:"after"`
	Entries []string   `json:"entries,omitempty"`
	Merges  []mergeDoc `json:"merges,omitempty"`
}

type mergeDoc struct {
	Into     string `json:"into"`
	Relation string `json:"relation"`
	From     string `json:"from"`
}

type diagnostic struct {
	Line    int    `json:"line"`
	Kind    string `json:"kind"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func newDocument(rep *engine.Report, results []model.RuleOptimizationResult, detail bool) document {
	before, after, lower := totals(results)
	doc := document{
		AcesBefore: before,
		AcesAfter:  after,
		Factor:     ratio(before, after),
		LowerBound: lower,
		Rules:      make([]ruleDoc, 0, len(results)),
	}
	if rep != nil {
		if rep.Policy != nil {
			doc.Policy = rep.Policy.Name
		}
		doc.CountMode = string(rep.Mode)
	}

	for _, res := range results {
		rd := ruleDoc{
			RuleSet:    res.RuleSet,
			Name:       res.Rule.Name,
			Tag:        res.Rule.Tag,
			Action:     res.Rule.Action,
			AcesBefore: res.Before,
			AcesAfter:  res.After,
			Factor:     res.Factor,
			LowerBound: res.LowerBound,
			Truncated:  res.Rule.Truncated,
		}
		if detail {
			for _, slot := range res.Slots {
				sd := slotDoc{
					Slot:    slot.Kind.String(),
					Absent:  slot.Absent,
					Before:  slot.Before,
					After:   slot.After,
					Entries: Entries(slot),
				}
				for _, m := range slot.Merges {
					sd.Merges = append(sd.Merges, mergeDoc{Into: m.Into, Relation: m.Relation.String(), From: m.From})
				}
				rd.Slots = append(rd.Slots, sd)
			}
		}
		doc.Rules = append(doc.Rules, rd)
	}

	if detail {
		for _, d := range relevantDiagnostics(rep, results) {
			doc.Diagnostics = append(doc.Diagnostics, diagnostic{Line: d.Line, Kind: d.Kind.String(), Rule: d.Rule, Message: d.Message})
		}
	}
	return doc
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
