package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"acp-capacity-analyzer/internal/model"
)

var capacityHeader = []string{
	"rule_set", "rule", "tag", "action",
	"src_networks", "dst_networks", "src_ports", "dst_ports",
	"aces_before", "aces_after", "factor", "lower_bound",
}

func writeCapacityCSV(w io.Writer, results []model.RuleOptimizationResult) error {
	cw := csv.NewWriter(w)
	cw.Write(capacityHeader)
	for _, res := range results {
		record := []string{res.RuleSet, res.Rule.Name, res.Rule.Tag, res.Rule.Action}
		for _, slot := range res.Slots {
			record = append(record, fmt.Sprintf("%d/%d", slot.Before, slot.After))
		}
		record = append(record,
			strconv.FormatUint(res.Before, 10),
			strconv.FormatUint(res.After, 10),
			strconv.FormatFloat(res.Factor, 'f', 2, 64),
			strconv.FormatBool(res.LowerBound),
		)
		cw.Write(record)
	}
	cw.Flush()
	return cw.Error()
}

// writeAnalysisCSV emits one row per merge step.
func writeAnalysisCSV(w io.Writer, results []model.RuleOptimizationResult) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"rule_set", "rule", "slot", "into", "relation", "from"})
	for _, res := range results {
		for _, slot := range res.Slots {
			for _, m := range slot.Merges {
				cw.Write([]string{res.RuleSet, res.Rule.ID(), slot.Kind.String(), m.Into, m.Relation.String(), m.From})
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
