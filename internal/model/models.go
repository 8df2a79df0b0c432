package model

import (
	"fmt"
	"net/netip"
)

type Protocol uint8 // IANA protocol number

const (
	AnyProtocol Protocol = 0
	ICMP        Protocol = 1
	IGMP        Protocol = 2
	TCP         Protocol = 6
	UDP         Protocol = 17
	GRE         Protocol = 47
	ESP         Protocol = 50
	ICMPv6      Protocol = 58
)

func (p Protocol) String() string {
	switch p {
	case AnyProtocol:
		return "any"
	case ICMP:
		return "icmp"
	case IGMP:
		return "igmp"
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	case GRE:
		return "gre"
	case ESP:
		return "esp"
	case ICMPv6:
		return "icmpv6"
	default:
		return fmt.Sprintf("proto-%d", uint8(p))
	}
}

// RefKind tells which variant an ObjectReference holds.
type RefKind int

const (
	RefUnresolved RefKind = iota
	RefHost
	RefCIDR
	RefRange
	RefGroup
	RefPort
	RefPortRange
	RefProtocol
)

func (k RefKind) String() string {
	switch k {
	case RefHost:
		return "host"
	case RefCIDR:
		return "cidr"
	case RefRange:
		return "range"
	case RefGroup:
		return "group"
	case RefPort:
		return "port"
	case RefPortRange:
		return "port-range"
	case RefProtocol:
		return "protocol"
	default:
		return "unresolved"
	}
}

// AnyCode marks an ICMP type or code printed as "any" or not printed at all.
const AnyCode = -1

// ObjectReference is one entry of an ObjectSlot as printed in the transcript.
// Network variants use Low/High (inclusive, host byte order) and Bits for CIDRs.
// Port variants use Protocol with PortLow/PortHigh. Groups carry Members.
type ObjectReference struct {
	Kind RefKind
	Name string
	Line int

	Low  uint32
	High uint32
	Bits int

	Protocol Protocol
	PortLow  uint16
	PortHigh uint16
	ICMPType int
	ICMPCode int

	Members []ObjectReference

	// ID is the opaque identifier of an "Object missing" marker.
	ID      string
	Note    string
	Invalid bool
}

// Primitives flattens groups depth-first. Source order and duplicates are kept.
func (r ObjectReference) Primitives() []ObjectReference {
	if r.Kind != RefGroup {
		return []ObjectReference{r}
	}
	var out []ObjectReference
	for _, m := range r.Members {
		out = append(out, m.Primitives()...)
	}
	return out
}

// Value renders the primitive's canonical value without its display name.
func (r ObjectReference) Value() string {
	switch r.Kind {
	case RefHost:
		return addrString(r.Low)
	case RefCIDR:
		return fmt.Sprintf("%s/%d", addrString(r.Low), r.Bits)
	case RefRange:
		return addrString(r.Low) + "-" + addrString(r.High)
	case RefPort:
		return fmt.Sprintf("%s/%d", r.Protocol, r.PortLow)
	case RefPortRange:
		return fmt.Sprintf("%s/%d-%d", r.Protocol, r.PortLow, r.PortHigh)
	case RefProtocol:
		s := r.Protocol.String()
		if r.ICMPType != AnyCode {
			s += fmt.Sprintf(" type %d", r.ICMPType)
			if r.ICMPCode != AnyCode {
				s += fmt.Sprintf(" code %d", r.ICMPCode)
			}
		}
		return s
	case RefGroup:
		return fmt.Sprintf("%d members", len(r.Members))
	default:
		if r.ID != "" {
			return "missing:" + r.ID
		}
		return "unresolved"
	}
}

// Label is the display name when one was printed, the canonical value otherwise.
func (r ObjectReference) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Value()
}

func (r ObjectReference) IsNetwork() bool {
	return r.Kind == RefHost || r.Kind == RefCIDR || r.Kind == RefRange
}

func (r ObjectReference) IsPort() bool {
	return r.Kind == RefPort || r.Kind == RefPortRange
}

func addrString(v uint32) string {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}).String()
}

// SlotKind indexes the four combinatorial dimensions of a rule.
type SlotKind int

const (
	SourceNetworks SlotKind = iota
	DestinationNetworks
	SourcePorts
	DestinationPorts
	NumSlots
)

var slotNames = [NumSlots]string{"Source Networks", "Destination Networks", "Source Ports", "Destination Ports"}

func (k SlotKind) String() string {
	if k < 0 || k >= NumSlots {
		return "unknown"
	}
	return slotNames[k]
}

func (k SlotKind) IsNetwork() bool {
	return k == SourceNetworks || k == DestinationNetworks
}

// SlotKindByKey maps a transcript field key onto its slot.
func SlotKindByKey(key string) (SlotKind, bool) {
	for i, n := range slotNames {
		if n == key {
			return SlotKind(i), true
		}
	}
	return 0, false
}

type ObjectSlot struct {
	Kind SlotKind
	Refs []ObjectReference
}

// Absent reports whether the slot was not printed, which the device treats as "any".
func (s ObjectSlot) Absent() bool {
	return len(s.Refs) == 0
}

func (s ObjectSlot) Primitives() []ObjectReference {
	var out []ObjectReference
	for _, r := range s.Refs {
		out = append(out, r.Primitives()...)
	}
	return out
}

// FieldLine is a continuation line of a multi-line field value.
type FieldLine struct {
	Number int
	Indent int
	Text   string
}

type Field struct {
	Key         string
	Value       string
	Line        int
	Column      int
	ValueColumn int
	Lines       []FieldLine
	Children    []*Field
}

// Values returns the value followed by every continuation line, trimmed.
func (f *Field) Values() []string {
	var out []string
	if f.Value != "" {
		out = append(out, f.Value)
	}
	for _, l := range f.Lines {
		out = append(out, l.Text)
	}
	return out
}

type Rule struct {
	Name             string
	Tag              string
	Action           string
	SourceZones      []string
	DestinationZones []string
	Slots            [NumSlots]ObjectSlot
	Fields           []*Field
	Unparsed         []string
	Truncated        bool
	Line             int
}

// Field returns the first top-level field with the given key.
func (r *Rule) Field(key string) *Field {
	for _, f := range r.Fields {
		if f.Key == key {
			return f
		}
	}
	return nil
}

// ID renders "name | tag" the way the rule header prints it.
func (r *Rule) ID() string {
	if r.Tag == "" {
		return r.Name
	}
	return r.Name + " | " + r.Tag
}

type RuleSet struct {
	Name  string
	Line  int
	Rules []*Rule
}

type SecurityIntelligenceBlock struct {
	Title    string
	Line     int
	Fields   []*Field
	Unparsed []string
}

type UnparsedSection struct {
	Title string
	Line  int
	Lines []string
}

type Policy struct {
	Name                 string
	DefaultAction        string
	Logging              *Field
	Fields               []*Field
	SecurityIntelligence []*SecurityIntelligenceBlock
	RuleSets             []*RuleSet
	Unparsed             []UnparsedSection
}

// RuleCount is the number of rules across every rule set.
func (p *Policy) RuleCount() int {
	n := 0
	for _, rs := range p.RuleSets {
		n += len(rs.Rules)
	}
	return n
}
