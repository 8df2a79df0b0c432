package parser

import (
	"log/slog"
	"slices"

	"acp-capacity-analyzer/internal/diag"
	"acp-capacity-analyzer/internal/model"
)

// node is a reference under construction. Group headers own the lines
// indented deeper than themselves.
type node struct {
	ref      model.ObjectReference
	indent   int
	group    bool
	lookup   bool
	children []*node
}

func (n *node) clone() *node {
	c := *n
	c.ref.Members = slices.Clone(n.ref.Members)
	c.children = make([]*node, len(n.children))
	for i, child := range n.children {
		c.children[i] = child.clone()
	}
	return &c
}

func (n *node) toRef() model.ObjectReference {
	ref := n.ref
	if n.group {
		ref.Kind = model.RefGroup
		ref.Members = nil
		for _, c := range n.children {
			ref.Members = append(ref.Members, c.toRef())
		}
	}
	return ref
}

// Resolver expands the object slots of every rule into reference trees.
// Groups printed with members are remembered per slot family so later bare
// references to the same name can be filled in.
type Resolver struct {
	items    itemParser
	networks map[string]*node
	ports    map[string]*node
}

func NewResolver(diags *diag.Collector) *Resolver {
	return &Resolver{
		items:    itemParser{diags: diags},
		networks: make(map[string]*node),
		ports:    make(map[string]*node),
	}
}

// Resolve fills Rule.Slots for every rule of the policy. Calling it again
// rebuilds the same slots from the rule fields.
func Resolve(policy *model.Policy, diags *diag.Collector) {
	NewResolver(diags).Resolve(policy)
}

type pendingSlot struct {
	rule  *model.Rule
	kind  model.SlotKind
	roots []*node
}

func (r *Resolver) Resolve(policy *model.Policy) {
	var pending []pendingSlot
	for _, rs := range policy.RuleSets {
		for _, rule := range rs.Rules {
			r.items.rule = rule.ID()
			for k := model.SlotKind(0); k < model.NumSlots; k++ {
				rule.Slots[k] = model.ObjectSlot{Kind: k}
			}
			for _, f := range rule.Fields {
				kind, ok := model.SlotKindByKey(f.Key)
				if !ok {
					continue
				}
				roots := r.build(kind, f)
				r.record(r.catalog(kind), roots)
				pending = append(pending, pendingSlot{rule: rule, kind: kind, roots: roots})
			}
		}
	}

	for _, p := range pending {
		r.items.rule = p.rule.ID()
		r.expand(r.catalog(p.kind), p.roots)
		slot := &p.rule.Slots[p.kind]
		for _, n := range p.roots {
			slot.Refs = append(slot.Refs, n.toRef())
		}
		r.report(p.rule, *slot)
	}
}

func (r *Resolver) catalog(kind model.SlotKind) map[string]*node {
	if kind.IsNetwork() {
		return r.networks
	}
	return r.ports
}

// build turns the field's value and continuation lines into a forest by indentation.
func (r *Resolver) build(kind model.SlotKind, f *model.Field) []*node {
	lines := make([]model.FieldLine, 0, len(f.Lines)+1)
	if f.Value != "" {
		first := model.FieldLine{Number: f.Line, Indent: f.ValueColumn, Text: f.Value}
		// members may be printed left of the value column when the key is short
		if groupItem.MatchString(f.Value) && len(f.Lines) > 0 {
			if next := f.Lines[0].Indent; next > f.Column && next < first.Indent {
				first.Indent = next - 1
			}
		}
		lines = append(lines, first)
	}
	lines = append(lines, f.Lines...)

	var roots, stack []*node
	for _, l := range lines {
		for len(stack) > 0 && stack[len(stack)-1].indent >= l.Indent {
			stack = stack[:len(stack)-1]
		}
		n := r.item(kind, l)
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			top.children = append(top.children, n)
		} else {
			roots = append(roots, n)
		}
		if n.group {
			stack = append(stack, n)
		}
	}
	return roots
}

func (r *Resolver) item(kind model.SlotKind, l model.FieldLine) *node {
	n := &node{indent: l.Indent}
	if m := groupItem.FindStringSubmatch(l.Text); m != nil {
		n.ref = model.ObjectReference{Kind: model.RefGroup, Name: m[1], Line: l.Number}
		n.group = true
		return n
	}
	if kind.IsNetwork() {
		n.ref, n.lookup = r.items.networkItem(l.Text, l.Number)
	} else {
		n.ref, n.lookup = r.items.portItem(l.Text, l.Number)
	}
	return n
}

// record remembers every group printed with members. The first definition wins.
func (r *Resolver) record(catalog map[string]*node, roots []*node) {
	work := slices.Clone(roots)
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		if !n.group {
			continue
		}
		if len(n.children) > 0 {
			if _, ok := catalog[n.ref.Name]; !ok {
				catalog[n.ref.Name] = n.clone()
			}
		}
		work = append(work, n.children...)
	}
}

type expansion struct {
	n    *node
	path []string
}

// expand fills memberless group references from the catalog. It walks an
// explicit worklist and cuts any reference to a group already on the path.
func (r *Resolver) expand(catalog map[string]*node, roots []*node) {
	var work []expansion
	for i := len(roots) - 1; i >= 0; i-- {
		work = append(work, expansion{n: roots[i]})
	}

	for len(work) > 0 {
		it := work[len(work)-1]
		work = work[:len(work)-1]
		n := it.n

		if (n.group && len(n.children) == 0) || n.lookup {
			name := n.ref.Name
			switch def, ok := catalog[name]; {
			case slices.Contains(it.path, name):
				r.items.diags.Add(diag.CyclicGroup, n.ref.Line, r.items.rule, "group %q is reached again through %v", name, it.path)
				n.ref = model.ObjectReference{Kind: model.RefUnresolved, Name: name, Line: n.ref.Line, Note: noteCyclicGroup}
				n.group, n.lookup = false, false
				continue
			case ok:
				slog.Debug("Expanding group from catalog", "group", name, "rule", r.items.rule)
				n.children = def.clone().children
				n.group, n.lookup = true, false
			case n.group:
				n.ref = model.ObjectReference{Kind: model.RefUnresolved, Name: name, Line: n.ref.Line, Note: noteEmptyGroup}
				n.group = false
				continue
			default:
				n.lookup = false
				continue
			}
		}

		if n.group {
			path := append(slices.Clone(it.path), n.ref.Name)
			for i := len(n.children) - 1; i >= 0; i-- {
				work = append(work, expansion{n: n.children[i], path: path})
			}
		}
	}
}

// report raises one diagnostic per unresolved primitive left in the slot.
func (r *Resolver) report(rule *model.Rule, slot model.ObjectSlot) {
	for _, p := range slot.Primitives() {
		if p.Kind != model.RefUnresolved || p.Invalid || p.Note == noteCyclicGroup {
			continue
		}
		r.items.diags.Add(diag.UnresolvedObjectReference, p.Line, rule.ID(), "%s in %s: %s", p.Label(), slot.Kind, p.Note)
	}
}
