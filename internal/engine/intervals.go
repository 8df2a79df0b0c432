package engine

import (
	"math/bits"
	"net/netip"
	"sort"

	"acp-capacity-analyzer/internal/model"
	"acp-capacity-analyzer/internal/utils"
)

// Span is a closed interval over the address or port space. Sources holds the
// input positions folded into it, the leading one first.
type Span struct {
	Lo      uint64
	Hi      uint64
	Sources []int
}

// Step records that input From was folded into the span led by input Into.
type Step struct {
	Into     int
	From     int
	Relation model.Relation
}

// MergeSpans sweeps the spans into the minimal disjoint, non-adjacent set.
// The input is not modified. Output is ascending by Lo.
func MergeSpans(in []Span) ([]Span, []Step) {
	if len(in) == 0 {
		return nil, nil
	}
	sorted := make([]Span, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Lo != sorted[j].Lo {
			return sorted[i].Lo < sorted[j].Lo
		}
		return sorted[i].Hi > sorted[j].Hi
	})

	var out []Span
	var steps []Step
	acc := Span{Lo: sorted[0].Lo, Hi: sorted[0].Hi, Sources: append([]int(nil), sorted[0].Sources...)}
	for _, s := range sorted[1:] {
		if s.Lo > acc.Hi+1 {
			out = append(out, acc)
			acc = Span{Lo: s.Lo, Hi: s.Hi, Sources: append([]int(nil), s.Sources...)}
			continue
		}

		var rel model.Relation
		switch {
		case s.Hi <= acc.Hi:
			rel = model.Shadows
		case s.Lo == acc.Hi+1:
			rel = model.Adjoins
			acc.Hi = s.Hi
		default:
			rel = model.Overlaps
			acc.Hi = s.Hi
		}
		for _, src := range s.Sources {
			steps = append(steps, Step{Into: lead(acc), From: src, Relation: rel})
		}
		acc.Sources = append(acc.Sources, s.Sources...)
	}
	out = append(out, acc)
	return out, steps
}

func lead(s Span) int {
	if len(s.Sources) == 0 {
		return -1
	}
	return s.Sources[0]
}

// Decompose returns the minimal CIDR blocks whose union is exactly [lo, hi].
func Decompose(lo, hi uint32) []netip.Prefix {
	var out []netip.Prefix
	cur, end := uint64(lo), uint64(hi)
	for cur <= end {
		// largest block aligned at cur
		size := 32
		if cur != 0 {
			size = bits.TrailingZeros32(uint32(cur))
		}
		for size > 0 && cur+(uint64(1)<<size)-1 > end {
			size--
		}
		out = append(out, netip.PrefixFrom(utils.Uint32ToAddr(uint32(cur)), 32-size))
		cur += uint64(1) << size
	}
	return out
}

// CoverSize is the number of CIDR blocks needed to express [lo, hi].
func CoverSize(lo, hi uint32) uint64 {
	return uint64(len(Decompose(lo, hi)))
}
