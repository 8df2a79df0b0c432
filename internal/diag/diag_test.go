package diag

import (
	"strings"
	"testing"
)

func TestCollectorKeepsOrderAndCounts(t *testing.T) {
	c := NewCollector()
	c.Add(TruncatedRule, 40, "r1", "rule never closed")
	c.Add(UnresolvedObjectReference, 12, "r0", "object missing %s", "abc")
	c.Add(TruncatedRule, 90, "r2", "rule never closed")

	items := c.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 diagnostics, got %d", len(items))
	}
	if items[1].Message != "object missing abc" {
		t.Errorf("expected formatted message, got %q", items[1].Message)
	}
	if got := c.Count(TruncatedRule); got != 2 {
		t.Errorf("expected 2 truncated rules, got %d", got)
	}

	items[0].Rule = "changed"
	if c.Items()[0].Rule != "r1" {
		t.Errorf("Items must return a copy")
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.Add(MalformedLine, 1, "", "ignored")
	if c.Len() != 0 || c.Items() != nil || c.Count(MalformedLine) != 0 {
		t.Fatalf("nil collector should stay empty")
	}
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Kind: CyclicGroup, Line: 7, Rule: "allow-web", Message: "group A references itself"}
	s := d.String()
	for _, want := range []string{"line 7", "CyclicGroup", "allow-web"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in %q", want, s)
		}
	}
}
