package engine

import (
	"sort"

	"acp-capacity-analyzer/internal/model"
)

// OptimizeSlot folds the resolved primitives of one slot. Unresolved entries
// pass through untouched after the merged intervals.
func OptimizeSlot(slot model.ObjectSlot, kind model.SlotKind, mode CountMode) model.OptimizedSlot {
	out := model.OptimizedSlot{Kind: kind}
	if slot.Absent() {
		out.Absent = true
		out.Before, out.After = 1, 1
		return out
	}

	prims := slot.Primitives()
	if kind.IsNetwork() {
		optimizeNetworks(&out, prims, mode)
	} else {
		optimizePorts(&out, prims)
	}

	out.LowerBound = len(out.Unresolved) > 0
	if out.Before == 0 {
		out.Before = 1
	}
	if out.After == 0 {
		out.After = 1
	}
	return out
}

func optimizeNetworks(out *model.OptimizedSlot, prims []model.ObjectReference, mode CountMode) {
	var spans []Span
	for i, p := range prims {
		switch {
		case p.IsNetwork():
			spans = append(spans, Span{Lo: uint64(p.Low), Hi: uint64(p.High), Sources: []int{i}})
			if mode == CountPrefixes {
				out.Before += CoverSize(p.Low, p.High)
			} else {
				out.Before++
			}
		default:
			// ports in a network slot cannot be folded either
			out.Unresolved = append(out.Unresolved, p)
			out.Before++
		}
	}

	merged, steps := MergeSpans(spans)
	for _, m := range merged {
		iv := model.NetworkInterval{
			Low:      uint32(m.Lo),
			High:     uint32(m.Hi),
			Prefixes: Decompose(uint32(m.Lo), uint32(m.Hi)),
			Sources:  labels(prims, m.Sources),
		}
		out.Networks = append(out.Networks, iv)
		if mode == CountPrefixes {
			out.After += uint64(len(iv.Prefixes))
		} else {
			out.After++
		}
	}
	out.Merges = mergeSteps(prims, steps)
	out.After += uint64(len(out.Unresolved))
}

func optimizePorts(out *model.OptimizedSlot, prims []model.ObjectReference) {
	byProto := make(map[model.Protocol][]Span)
	var protos []model.Protocol
	seen := make(map[string]int)

	for i, p := range prims {
		out.Before++
		switch {
		case p.IsPort():
			if _, ok := byProto[p.Protocol]; !ok {
				protos = append(protos, p.Protocol)
			}
			byProto[p.Protocol] = append(byProto[p.Protocol], Span{Lo: uint64(p.PortLow), Hi: uint64(p.PortHigh), Sources: []int{i}})
		case p.Kind == model.RefProtocol:
			key := p.Value()
			if first, ok := seen[key]; ok {
				out.Merges = append(out.Merges, model.MergeStep{
					Into:     prims[first].Label(),
					From:     p.Label(),
					Relation: model.Duplicates,
				})
				continue
			}
			seen[key] = i
			out.Protocols = append(out.Protocols, p)
		default:
			out.Unresolved = append(out.Unresolved, p)
		}
	}

	sort.Slice(protos, func(i, j int) bool { return protos[i] < protos[j] })
	for _, proto := range protos {
		merged, steps := MergeSpans(byProto[proto])
		for _, m := range merged {
			out.Ports = append(out.Ports, model.PortInterval{
				Protocol: proto,
				Low:      uint16(m.Lo),
				High:     uint16(m.Hi),
				Sources:  labels(prims, m.Sources),
			})
		}
		out.Merges = append(out.Merges, mergeSteps(prims, steps)...)
	}
	sort.SliceStable(out.Protocols, func(i, j int) bool {
		return out.Protocols[i].Protocol < out.Protocols[j].Protocol
	})

	out.After = uint64(len(out.Ports) + len(out.Protocols) + len(out.Unresolved))
}

func labels(prims []model.ObjectReference, idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, prims[i].Label())
	}
	return out
}

func mergeSteps(prims []model.ObjectReference, steps []Step) []model.MergeStep {
	out := make([]model.MergeStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, model.MergeStep{
			Into:     prims[s.Into].Label(),
			From:     prims[s.From].Label(),
			Relation: s.Relation,
		})
	}
	return out
}
