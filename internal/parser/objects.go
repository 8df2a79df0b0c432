package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"acp-capacity-analyzer/internal/diag"
	"acp-capacity-analyzer/internal/model"
	"acp-capacity-analyzer/internal/utils"
	"acp-capacity-analyzer/pkg/wellknown"
)

const (
	noteUnknownObject  = "unknown object"
	noteUnknownService = "unknown service"
	noteEmptyGroup     = "group listed without members"
	noteCyclicGroup    = "cyclic group reference"
)

var (
	groupItem     = regexp.MustCompile(`^(.*?)\s*\(group\)$`)
	parenItem     = regexp.MustCompile(`^(.*?)\s*\((.*)\)$`)
	missingItem   = regexp.MustCompile(`^Object missing:?\s*(.*)$`)
	addrLike      = regexp.MustCompile(`^[\d./-]+$`)
	ipv6Like      = regexp.MustCompile(`^[0-9A-Fa-f:./-]*:[0-9A-Fa-f:./-]*$`)
	hostnameLike  = regexp.MustCompile(`^(?:[A-Za-z0-9-]+\.)+[A-Za-z][A-Za-z0-9-]*\.?$`)
	embeddedCIDR  = regexp.MustCompile(`(\d{1,3}(?:\.\d{1,3}){3})[_/](\d{1,2})$`)
	embeddedRange = regexp.MustCompile(`(\d{1,3}(?:\.\d{1,3}){3})-(\d{1,3}(?:\.\d{1,3}){0,3})$`)
	embeddedHost  = regexp.MustCompile(`(\d{1,3}(?:\.\d{1,3}){3})$`)
	adhocService  = regexp.MustCompile(`(?i)^(tcp|udp)[_-](\d+)(?:-(\d+))?$`)
)

type literalStatus int

const (
	litNone literalStatus = iota
	litValid
	litMasked
	litInvalid
	litUnsupported
)

// itemParser turns single object lines into references and reports
// what it could not make sense of.
type itemParser struct {
	diags *diag.Collector
	rule  string
}

func (ip *itemParser) missing(id string, line int) model.ObjectReference {
	id = strings.TrimSpace(id)
	ref := model.ObjectReference{Kind: model.RefUnresolved, Line: line, ID: id, Note: "object missing"}
	if u, err := uuid.Parse(id); err == nil {
		ref.ID = u.String()
	} else if id != "" {
		ref.Note = "object missing, id is not a UUID"
	}
	return ref
}

func (ip *itemParser) invalid(name, text string, line int, reason string) model.ObjectReference {
	ip.diags.Add(diag.InvalidAddressLiteral, line, ip.rule, "%q: %s", text, reason)
	return model.ObjectReference{Kind: model.RefUnresolved, Name: name, Line: line, Note: reason, Invalid: true}
}

// parseAddressLiteral accepts a host, CIDR (prefix length or dotted mask),
// range with full or abbreviated end, or one of the "any" keywords.
func parseAddressLiteral(s string) (model.ObjectReference, literalStatus, string) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "any", "any-ipv4", "any4":
		return model.ObjectReference{Kind: model.RefCIDR, Low: 0, High: 0xFFFFFFFF, Bits: 0}, litValid, ""
	case "any-ipv6", "any6":
		return model.ObjectReference{}, litUnsupported, "IPv6 is not analyzed"
	}
	if ipv6Like.MatchString(s) {
		return model.ObjectReference{}, litUnsupported, "IPv6 is not analyzed"
	}
	if !addrLike.MatchString(s) {
		return model.ObjectReference{}, litNone, ""
	}

	if addr, bitsText, ok := strings.Cut(s, "/"); ok {
		a, err := utils.ParseIPv4(addr)
		if err != nil {
			return model.ObjectReference{}, litInvalid, "bad network address"
		}
		bits, err := strconv.Atoi(bitsText)
		if err != nil {
			var maskOK bool
			if bits, maskOK = utils.MaskBits(bitsText); !maskOK {
				return model.ObjectReference{}, litInvalid, "bad prefix length"
			}
		}
		if bits < 0 || bits > 32 {
			return model.ObjectReference{}, litInvalid, "prefix length out of range"
		}
		lo, hi, masked := utils.PrefixBounds(a, bits)
		ref := model.ObjectReference{Kind: model.RefCIDR, Low: lo, High: hi, Bits: bits}
		if masked {
			ref.Note = fmt.Sprintf("host bits cleared, using %s", ref.Value())
			return ref, litMasked, ref.Note
		}
		return ref, litValid, ""
	}

	if start, end, ok := strings.Cut(s, "-"); ok {
		if strings.Count(end, ".") < 3 {
			full, ok := utils.ExpandShortRangeEnd(start, end)
			if !ok {
				return model.ObjectReference{}, litInvalid, "bad range end"
			}
			end = full
		}
		lo, err1 := utils.ParseIPv4(start)
		hi, err2 := utils.ParseIPv4(end)
		if err1 != nil || err2 != nil {
			return model.ObjectReference{}, litInvalid, "bad range bound"
		}
		if lo > hi {
			return model.ObjectReference{}, litInvalid, "range start above range end"
		}
		return model.ObjectReference{Kind: model.RefRange, Low: lo, High: hi}, litValid, ""
	}

	a, err := utils.ParseIPv4(s)
	if err != nil {
		return model.ObjectReference{}, litInvalid, "bad host address"
	}
	return model.ObjectReference{Kind: model.RefHost, Low: a, High: a, Bits: 32}, litValid, ""
}

// literal converts one address token, reporting invalid and masked input.
func (ip *itemParser) literal(name, text string, line int) (model.ObjectReference, bool) {
	ref, status, reason := parseAddressLiteral(text)
	switch status {
	case litValid:
	case litMasked:
		ip.diags.Add(diag.InvalidAddressLiteral, line, ip.rule, "%q: %s", text, reason)
	case litInvalid:
		if name == "" {
			name = strings.TrimSpace(text)
		}
		return ip.invalid(name, text, line, reason), true
	case litUnsupported:
		if name == "" {
			name = strings.TrimSpace(text)
		}
		ref = model.ObjectReference{Kind: model.RefUnresolved, Note: reason}
	default:
		return model.ObjectReference{}, false
	}
	ref.Name = name
	ref.Line = line
	return ref, true
}

// displayNameAddress recovers the address embedded in object names such as
// OBJ-10.83.185.128_27 or range-10.220.240.100-124.
func displayNameAddress(name string) (model.ObjectReference, bool) {
	candidates := []string{}
	if m := embeddedCIDR.FindStringSubmatch(name); m != nil {
		candidates = append(candidates, m[1]+"/"+m[2])
	}
	if m := embeddedRange.FindStringSubmatch(name); m != nil {
		candidates = append(candidates, m[1]+"-"+m[2])
	}
	if m := embeddedHost.FindStringSubmatch(name); m != nil {
		candidates = append(candidates, m[1])
	}
	for _, c := range candidates {
		ref, status, _ := parseAddressLiteral(c)
		if status == litValid || status == litMasked {
			ref.Name = name
			return ref, true
		}
	}
	return model.ObjectReference{}, false
}

// networkItem parses one network object line that is not a "(group)" header.
// lookup reports a bare name that may be defined with members elsewhere.
func (ip *itemParser) networkItem(text string, line int) (ref model.ObjectReference, lookup bool) {
	if m := missingItem.FindStringSubmatch(text); m != nil {
		return ip.missing(m[1], line), false
	}

	if m := parenItem.FindStringSubmatch(text); m != nil {
		name, inner := strings.TrimSpace(m[1]), m[2]
		var members []model.ObjectReference
		recognised := true
		for _, part := range splitList(inner) {
			member, ok := ip.literal("", part, line)
			if !ok {
				recognised = false
				break
			}
			members = append(members, member)
		}
		switch {
		case recognised && len(members) == 1:
			members[0].Name = name
			return members[0], false
		case recognised && len(members) > 1:
			return model.ObjectReference{Kind: model.RefGroup, Name: name, Line: line, Members: members}, false
		}
		if ref, ok := displayNameAddress(name); ok {
			ref.Line = line
			return ref, false
		}
		if hostnameLike.MatchString(strings.TrimSpace(inner)) {
			return model.ObjectReference{Kind: model.RefUnresolved, Name: name, Line: line, Note: "FQDN is not resolved"}, false
		}
		return ip.invalid(name, text, line, "unrecognised object value"), false
	}

	if ref, ok := ip.literal("", text, line); ok {
		return ref, false
	}
	if ref, ok := displayNameAddress(text); ok {
		ref.Line = line
		return ref, false
	}
	if hostnameLike.MatchString(text) {
		return model.ObjectReference{Kind: model.RefUnresolved, Name: text, Line: line, Note: "FQDN is not resolved"}, false
	}
	return model.ObjectReference{Kind: model.RefUnresolved, Name: text, Line: line, Note: noteUnknownObject}, true
}

// portItem parses one port object line that is not a "(group)" header.
func (ip *itemParser) portItem(text string, line int) (ref model.ObjectReference, lookup bool) {
	if m := missingItem.FindStringSubmatch(text); m != nil {
		return ip.missing(m[1], line), false
	}
	if m := parenItem.FindStringSubmatch(text); m != nil && strings.HasPrefix(strings.ToLower(strings.TrimSpace(m[2])), "protocol") {
		return ip.protocolSpec(strings.TrimSpace(m[1]), m[2], text, line), false
	}
	if strings.HasPrefix(strings.ToLower(text), "protocol ") {
		return ip.protocolSpec("", text, text, line), false
	}
	if m := adhocService.FindStringSubmatch(text); m != nil {
		proto, _ := wellknown.GetProtocol(m[1])
		spec := m[2]
		if m[3] != "" {
			spec += "-" + m[3]
		}
		lo, hi, err := parsePortRange(spec)
		if err != nil {
			return ip.invalid(text, text, line, err.Error()), false
		}
		return portRef(text, proto, lo, hi, line), false
	}
	if strings.EqualFold(text, "any") {
		return protocolRef(text, model.AnyProtocol, line), false
	}
	if entries, ok := wellknown.GetService(text); ok {
		if len(entries) == 1 {
			return portRef(text, entries[0].Protocol, entries[0].Port, entries[0].Port, line), false
		}
		group := model.ObjectReference{Kind: model.RefGroup, Name: text, Line: line}
		for _, e := range entries {
			group.Members = append(group.Members, portRef("", e.Protocol, e.Port, e.Port, line))
		}
		return group, false
	}
	if proto, ok := wellknown.GetProtocol(text); ok {
		if proto == model.TCP || proto == model.UDP {
			return portRef(text, proto, 0, 65535, line), false
		}
		return protocolRef(text, proto, line), false
	}
	return model.ObjectReference{Kind: model.RefUnresolved, Name: text, Line: line, Note: noteUnknownService}, true
}

// protocolSpec parses "protocol P[, port N[-M]][, type T][, code C]".
func (ip *itemParser) protocolSpec(name, spec, text string, line int) model.ObjectReference {
	proto := model.AnyProtocol
	icmpType, icmpCode := model.AnyCode, model.AnyCode
	var typeNote string
	var lo, hi uint16
	hasPort := false

	for _, part := range splitList(spec) {
		word, value, _ := strings.Cut(strings.TrimSpace(part), " ")
		value = strings.TrimSpace(value)
		switch strings.ToLower(word) {
		case "protocol":
			p, ok := wellknown.GetProtocol(value)
			if !ok {
				return ip.invalid(name, text, line, "unknown protocol "+value)
			}
			proto = p
		case "port":
			var err error
			if lo, hi, err = parsePortRange(value); err != nil {
				return ip.invalid(name, text, line, err.Error())
			}
			hasPort = true
		case "type", "code":
			n := model.AnyCode
			if !strings.EqualFold(value, "any") {
				v, err := strconv.Atoi(value)
				if err != nil {
					typeNote = strings.TrimSpace(typeNote + " " + word + " " + value)
				} else {
					n = v
				}
			}
			if strings.EqualFold(word, "type") {
				icmpType = n
			} else {
				icmpCode = n
			}
		default:
			return ip.invalid(name, text, line, "unrecognised service attribute "+word)
		}
	}

	switch {
	case hasPort && proto == model.AnyProtocol:
		return model.ObjectReference{Kind: model.RefGroup, Name: name, Line: line, Members: []model.ObjectReference{
			portRef("", model.TCP, lo, hi, line),
			portRef("", model.UDP, lo, hi, line),
		}}
	case hasPort:
		return portRef(name, proto, lo, hi, line)
	case proto == model.TCP || proto == model.UDP:
		return portRef(name, proto, 0, 65535, line)
	}
	ref := protocolRef(name, proto, line)
	ref.ICMPType = icmpType
	ref.ICMPCode = icmpCode
	ref.Note = typeNote
	return ref
}

func portRef(name string, proto model.Protocol, lo, hi uint16, line int) model.ObjectReference {
	kind := model.RefPortRange
	if lo == hi {
		kind = model.RefPort
	}
	return model.ObjectReference{Kind: kind, Name: name, Line: line, Protocol: proto, PortLow: lo, PortHigh: hi}
}

func protocolRef(name string, proto model.Protocol, line int) model.ObjectReference {
	return model.ObjectReference{
		Kind:     model.RefProtocol,
		Name:     name,
		Line:     line,
		Protocol: proto,
		ICMPType: model.AnyCode,
		ICMPCode: model.AnyCode,
	}
}

func parsePortRange(s string) (uint16, uint16, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "any") {
		return 0, 65535, nil
	}
	start, end, isRange := strings.Cut(s, "-")
	lo, err := strconv.ParseUint(strings.TrimSpace(start), 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad port %q", start)
	}
	hi := lo
	if isRange {
		if hi, err = strconv.ParseUint(strings.TrimSpace(end), 10, 16); err != nil {
			return 0, 0, fmt.Errorf("bad port %q", end)
		}
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("port range %d-%d is reversed", lo, hi)
	}
	return uint16(lo), uint16(hi), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
