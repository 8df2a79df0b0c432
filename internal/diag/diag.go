// Package diag collects the non-fatal findings of a parse and resolve run.
package diag

import (
	"fmt"
	"sync"
)

type Kind int

const (
	MalformedLine Kind = iota
	TruncatedRule
	UnresolvedObjectReference
	InvalidAddressLiteral
	UnparsedSection
	CyclicGroup
)

func (k Kind) String() string {
	switch k {
	case MalformedLine:
		return "MalformedLine"
	case TruncatedRule:
		return "TruncatedRule"
	case UnresolvedObjectReference:
		return "UnresolvedObjectReference"
	case InvalidAddressLiteral:
		return "InvalidAddressLiteral"
	case UnparsedSection:
		return "UnparsedSection"
	case CyclicGroup:
		return "CyclicGroup"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type Diagnostic struct {
	Kind    Kind
	Line    int
	Rule    string
	Message string
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("line %d: %s: %s", d.Line, d.Kind, d.Message)
	if d.Rule != "" {
		s += " (rule " + d.Rule + ")"
	}
	return s
}

// Collector accumulates diagnostics in the order they were found.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Add(kind Kind, line int, rule, format string, args ...any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, Diagnostic{
		Kind:    kind,
		Line:    line,
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
	})
}

// Items returns a copy of everything collected so far.
func (c *Collector) Items() []Diagnostic {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collector) Count(kind Kind) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.items {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

func (c *Collector) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
