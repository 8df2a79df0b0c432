package engine

import (
	"net/netip"
	"testing"

	"acp-capacity-analyzer/internal/model"
	"acp-capacity-analyzer/internal/utils"
)

func mustAddr(t *testing.T, s string) uint32 {
	t.Helper()
	v, err := utils.ParseIPv4(s)
	if err != nil {
		t.Fatalf("bad test address %q: %v", s, err)
	}
	return v
}

func TestMergeSpansRelations(t *testing.T) {
	tests := []struct {
		name  string
		in    []Span
		want  []Span
		steps []Step
	}{
		{
			name:  "disjoint",
			in:    []Span{{Lo: 10, Hi: 20, Sources: []int{0}}, {Lo: 22, Hi: 30, Sources: []int{1}}},
			want:  []Span{{Lo: 10, Hi: 20}, {Lo: 22, Hi: 30}},
			steps: nil,
		},
		{
			name:  "shadow",
			in:    []Span{{Lo: 12, Hi: 15, Sources: []int{0}}, {Lo: 10, Hi: 20, Sources: []int{1}}},
			want:  []Span{{Lo: 10, Hi: 20}},
			steps: []Step{{Into: 1, From: 0, Relation: model.Shadows}},
		},
		{
			name:  "adjacent",
			in:    []Span{{Lo: 10, Hi: 20, Sources: []int{0}}, {Lo: 21, Hi: 30, Sources: []int{1}}},
			want:  []Span{{Lo: 10, Hi: 30}},
			steps: []Step{{Into: 0, From: 1, Relation: model.Adjoins}},
		},
		{
			name:  "overlap",
			in:    []Span{{Lo: 15, Hi: 30, Sources: []int{0}}, {Lo: 10, Hi: 20, Sources: []int{1}}},
			want:  []Span{{Lo: 10, Hi: 30}},
			steps: []Step{{Into: 1, From: 0, Relation: model.Overlaps}},
		},
		{
			name:  "equal start keeps the wider one first",
			in:    []Span{{Lo: 10, Hi: 12, Sources: []int{0}}, {Lo: 10, Hi: 20, Sources: []int{1}}},
			want:  []Span{{Lo: 10, Hi: 20}},
			steps: []Step{{Into: 1, From: 0, Relation: model.Shadows}},
		},
		{
			name:  "duplicate",
			in:    []Span{{Lo: 5, Hi: 5, Sources: []int{0}}, {Lo: 5, Hi: 5, Sources: []int{1}}},
			want:  []Span{{Lo: 5, Hi: 5}},
			steps: []Step{{Into: 0, From: 1, Relation: model.Shadows}},
		},
		{
			name: "top of the address space",
			in: []Span{
				{Lo: 0xFFFFFF00, Hi: 0xFFFFFFFF, Sources: []int{0}},
				{Lo: 0xFFFFFFFF, Hi: 0xFFFFFFFF, Sources: []int{1}},
			},
			want:  []Span{{Lo: 0xFFFFFF00, Hi: 0xFFFFFFFF}},
			steps: []Step{{Into: 0, From: 1, Relation: model.Shadows}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, steps := MergeSpans(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d spans, got %d: %v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i].Lo != tt.want[i].Lo || got[i].Hi != tt.want[i].Hi {
					t.Errorf("span %d: expected [%d,%d], got [%d,%d]", i, tt.want[i].Lo, tt.want[i].Hi, got[i].Lo, got[i].Hi)
				}
			}
			if len(steps) != len(tt.steps) {
				t.Fatalf("expected %d steps, got %v", len(tt.steps), steps)
			}
			for i := range steps {
				if steps[i] != tt.steps[i] {
					t.Errorf("step %d: expected %+v, got %+v", i, tt.steps[i], steps[i])
				}
			}
		})
	}
}

func TestMergeSpansDoesNotModifyInput(t *testing.T) {
	in := []Span{{Lo: 30, Hi: 40, Sources: []int{0}}, {Lo: 10, Hi: 31, Sources: []int{1}}}
	MergeSpans(in)
	if in[0].Lo != 30 || len(in[0].Sources) != 1 || len(in[1].Sources) != 1 {
		t.Errorf("input was modified: %+v", in)
	}
}

func TestDecompose(t *testing.T) {
	tests := []struct {
		lo, hi string
		want   []string
	}{
		{"192.168.168.0", "192.168.168.255", []string{"192.168.168.0/24"}},
		{"10.0.0.1", "10.0.0.9", []string{"10.0.0.1/32", "10.0.0.2/31", "10.0.0.4/30", "10.0.0.8/31"}},
		{"10.220.240.100", "10.220.240.124", []string{"10.220.240.100/30", "10.220.240.104/29", "10.220.240.112/29", "10.220.240.120/30", "10.220.240.124/32"}},
		{"0.0.0.0", "255.255.255.255", []string{"0.0.0.0/0"}},
		{"255.255.255.254", "255.255.255.255", []string{"255.255.255.254/31"}},
		{"255.255.255.255", "255.255.255.255", []string{"255.255.255.255/32"}},
	}
	for _, tt := range tests {
		t.Run(tt.lo+"-"+tt.hi, func(t *testing.T) {
			got := Decompose(mustAddr(t, tt.lo), mustAddr(t, tt.hi))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != netip.MustParsePrefix(tt.want[i]) {
					t.Errorf("prefix %d: expected %s, got %s", i, tt.want[i], got[i])
				}
			}
		})
	}
}
