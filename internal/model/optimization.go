package model

import "net/netip"

// Relation classifies how an entry was folded into a merged interval.
type Relation int

const (
	Disjoint Relation = iota
	Shadows
	Overlaps
	Adjoins
	Duplicates
)

func (r Relation) String() string {
	switch r {
	case Shadows:
		return "SHADOWS"
	case Overlaps:
		return "PARTIALLY OVERLAPS"
	case Adjoins:
		return "ADJOINS"
	case Duplicates:
		return "DUPLICATES"
	default:
		return "DISJOINT"
	}
}

// MergeStep records that From was folded into the interval led by Into.
type MergeStep struct {
	Into     string
	From     string
	Relation Relation
}

type NetworkInterval struct {
	Low      uint32
	High     uint32
	Prefixes []netip.Prefix
	Sources  []string
}

// Size is the number of addresses covered.
func (n NetworkInterval) Size() uint64 {
	return uint64(n.High) - uint64(n.Low) + 1
}

type PortInterval struct {
	Protocol Protocol
	Low      uint16
	High     uint16
	Sources  []string
}

type OptimizedSlot struct {
	Kind       SlotKind
	Absent     bool
	Before     uint64
	After      uint64
	Networks   []NetworkInterval
	Ports      []PortInterval
	Protocols  []ObjectReference
	Unresolved []ObjectReference
	Merges     []MergeStep
	// LowerBound is set when unresolved entries make the reduction inexact.
	LowerBound bool
}

type RuleOptimizationResult struct {
	RuleSet    string
	Index      int
	Rule       *Rule
	Before     uint64
	After      uint64
	Factor     float64
	LowerBound bool
	Slots      [NumSlots]OptimizedSlot
}

// Saved is the number of ACEs removed by the recommendation.
func (r RuleOptimizationResult) Saved() uint64 {
	return r.Before - r.After
}
