package parser

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"acp-capacity-analyzer/internal/diag"
	"acp-capacity-analyzer/internal/model"
)

type sectionState int

const (
	statePreamble sectionState = iota
	statePolicy
	stateSecurityIntelligence
	stateRuleSet
	stateRule
	stateUnparsed
)

// ACPParser builds the policy tree of a show access-control-config transcript.
type ACPParser struct {
	diags  *diag.Collector
	policy *model.Policy
	state  sectionState

	si       *model.SecurityIntelligenceBlock
	ruleSet  *model.RuleSet
	rule     *model.Rule
	unparsed int

	// ruleClosed is set once a blank line follows the current rule's content.
	ruleClosed bool
	field      *model.Field
	header     *model.Field
}

func NewACPParser(diags *diag.Collector) *ACPParser {
	return &ACPParser{
		diags:    diags,
		policy:   &model.Policy{},
		unparsed: -1,
	}
}

// Load parses a transcript and resolves every rule's object slots.
func Load(r io.Reader, diags *diag.Collector) (*model.Policy, error) {
	policy, err := ParseACP(r, diags)
	if err != nil {
		return nil, err
	}
	Resolve(policy, diags)
	return policy, nil
}

// ParseACP builds the Policy tree without resolving object references.
// Only empty or unreadable input is an error; everything else degrades into diagnostics.
func ParseACP(r io.Reader, diags *diag.Collector) (*model.Policy, error) {
	lines, err := ReadLines(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	p := NewACPParser(diags)
	for _, ln := range lines {
		p.consume(ln)
	}
	p.finish()
	return p.policy, nil
}

func (p *ACPParser) consume(ln LogicalLine) {
	switch ln.Kind {
	case LineNoise:
	case LineBlank:
		p.field = nil
		p.header = nil
		if p.rule != nil {
			p.ruleClosed = true
		}
	case LineRuleHeader:
		p.startRule(ln)
	case LineSectionHeader:
		p.startSection(ln)
	case LineFieldStart:
		p.addField(ln)
	default:
		p.addContinuation(ln)
	}
}

func (p *ACPParser) startSection(ln LogicalLine) {
	p.closeRule()
	title := ln.Title
	switch {
	case strings.HasPrefix(title, "Security Intelligence"):
		p.si = &model.SecurityIntelligenceBlock{Title: title, Line: ln.Number}
		p.policy.SecurityIntelligence = append(p.policy.SecurityIntelligence, p.si)
		p.state = stateSecurityIntelligence
	case strings.HasPrefix(title, "Rule Set"):
		p.ruleSet = &model.RuleSet{Name: ruleSetName(title), Line: ln.Number}
		p.policy.RuleSets = append(p.policy.RuleSets, p.ruleSet)
		p.state = stateRuleSet
	case p.policy.Name == "" && len(p.policy.RuleSets) == 0:
		p.policy.Name = title
		p.state = statePolicy
	default:
		p.openUnparsed(title, ln.Number)
		p.diags.Add(diag.UnparsedSection, ln.Number, "", "section %q is not analyzed", title)
	}
}

// ruleSetName extracts "Mandatory" from "Rule Set: (Mandatory)".
func ruleSetName(title string) string {
	name := strings.TrimSpace(strings.TrimPrefix(title, "Rule Set"))
	name = strings.TrimSpace(strings.TrimPrefix(name, ":"))
	if strings.HasPrefix(name, "(") && strings.HasSuffix(name, ")") {
		name = strings.TrimSpace(name[1 : len(name)-1])
	}
	return name
}

func splitRuleTitle(title string) (name, tag string) {
	name, tag, _ = strings.Cut(title, "|")
	return strings.TrimSpace(name), strings.TrimSpace(tag)
}

func (p *ACPParser) startRule(ln LogicalLine) {
	p.closeRule()
	name, tag := splitRuleTitle(ln.Title)
	if name == "" {
		p.diags.Add(diag.MalformedLine, ln.Number, "", "rule header without a name: %q", ln.Text)
		p.openUnparsed("Rule: "+ln.Title, ln.Number)
		return
	}
	if p.ruleSet == nil {
		p.ruleSet = &model.RuleSet{Line: ln.Number}
		p.policy.RuleSets = append(p.policy.RuleSets, p.ruleSet)
	}
	p.rule = &model.Rule{Name: name, Tag: tag, Line: ln.Number}
	p.ruleSet.Rules = append(p.ruleSet.Rules, p.rule)
	p.ruleClosed = false
	p.state = stateRule
}

func (p *ACPParser) closeRule() {
	if p.rule != nil {
		decorate(p.rule)
	}
	p.rule = nil
	p.field = nil
	p.header = nil
}

func (p *ACPParser) finish() {
	if p.rule != nil && !p.ruleClosed {
		p.rule.Truncated = true
		p.diags.Add(diag.TruncatedRule, p.rule.Line, p.rule.ID(), "rule %q is not terminated before end of input", p.rule.Name)
		slog.Warn("Rule truncated at end of input", "rule", p.rule.ID(), "line", p.rule.Line)
	}
	p.closeRule()
}

func (p *ACPParser) openUnparsed(title string, line int) {
	p.policy.Unparsed = append(p.policy.Unparsed, model.UnparsedSection{Title: title, Line: line})
	p.unparsed = len(p.policy.Unparsed) - 1
	p.state = stateUnparsed
}

func (p *ACPParser) appendUnparsed(ln LogicalLine) {
	if p.state == statePreamble && p.unparsed < 0 {
		p.policy.Unparsed = append(p.policy.Unparsed, model.UnparsedSection{Title: "preamble", Line: ln.Number})
		p.unparsed = len(p.policy.Unparsed) - 1
	}
	sec := &p.policy.Unparsed[p.unparsed]
	sec.Lines = append(sec.Lines, ln.Raw)
}

// fieldTarget returns the field list that owns top-level fields in the current section.
func (p *ACPParser) fieldTarget() *[]*model.Field {
	switch p.state {
	case statePolicy:
		return &p.policy.Fields
	case stateSecurityIntelligence:
		return &p.si.Fields
	case stateRule:
		return &p.rule.Fields
	}
	return nil
}

func (p *ACPParser) addField(ln LogicalLine) {
	target := p.fieldTarget()
	if target == nil {
		if p.state == stateRuleSet {
			// rule-set level fields are kept with the unparsed sections
			p.openUnparsed("Rule Set "+p.ruleSet.Name, ln.Number)
		}
		p.appendUnparsed(ln)
		return
	}
	if p.state == stateRule {
		p.ruleClosed = false
	}

	f := &model.Field{
		Key:         ln.Key,
		Value:       ln.Value,
		Line:        ln.Number,
		Column:      ln.Indent,
		ValueColumn: ln.ValueColumn,
	}
	if p.header != nil && ln.Indent > p.header.Column {
		p.header.Children = append(p.header.Children, f)
	} else {
		*target = append(*target, f)
		p.header = nil
		if f.Value == "" {
			if _, isSlot := model.SlotKindByKey(f.Key); !isSlot {
				p.header = f
			}
		}
		if p.state == statePolicy {
			switch {
			case f.Key == "Default Action":
				p.policy.DefaultAction = f.Value
			case strings.HasPrefix(f.Key, "Logging"):
				p.policy.Logging = f
			}
		}
	}
	p.field = f
}

func (p *ACPParser) addContinuation(ln LogicalLine) {
	switch p.state {
	case statePreamble, stateUnparsed:
		p.appendUnparsed(ln)
		return
	case stateRule:
		p.ruleClosed = false
	}

	if p.field != nil && ln.Indent >= p.field.Column {
		p.field.Lines = append(p.field.Lines, model.FieldLine{Number: ln.Number, Indent: ln.Indent, Text: ln.Text})
		return
	}

	switch p.state {
	case stateRule:
		p.diags.Add(diag.MalformedLine, ln.Number, p.rule.ID(), "unexpected line %q", ln.Text)
		p.rule.Unparsed = append(p.rule.Unparsed, ln.Text)
	case stateSecurityIntelligence:
		p.diags.Add(diag.MalformedLine, ln.Number, "", "unexpected line %q in %s", ln.Text, p.si.Title)
		p.si.Unparsed = append(p.si.Unparsed, ln.Text)
	default:
		p.diags.Add(diag.MalformedLine, ln.Number, "", "unexpected line %q", ln.Text)
		p.policy.Unparsed = append(p.policy.Unparsed, model.UnparsedSection{
			Title: "fragment",
			Line:  ln.Number,
			Lines: []string{ln.Raw},
		})
	}
}

// decorate fills the rule attributes that come straight from its fields.
func decorate(rule *model.Rule) {
	if f := rule.Field("Action"); f != nil {
		rule.Action = f.Value
	}
	if f := rule.Field("Source Zones"); f != nil {
		rule.SourceZones = zoneSet(f)
	}
	if f := rule.Field("Destination Zones"); f != nil {
		rule.DestinationZones = zoneSet(f)
	}
}

func zoneSet(f *model.Field) []string {
	seen := make(map[string]bool)
	var zones []string
	for _, v := range f.Values() {
		for _, z := range strings.Split(v, ",") {
			z = strings.TrimSpace(z)
			if z == "" || seen[z] {
				continue
			}
			seen[z] = true
			zones = append(zones, z)
		}
	}
	sort.Strings(zones)
	return zones
}
