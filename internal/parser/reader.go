package parser

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrEmptyInput is returned when the transcript is empty or cannot be read.
var ErrEmptyInput = errors.New("empty or unreadable input")

type LineKind int

const (
	LineBlank LineKind = iota
	LineNoise
	LineSectionHeader
	LineRuleHeader
	LineFieldStart
	LineContinuation
)

func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "Blank"
	case LineNoise:
		return "Noise"
	case LineSectionHeader:
		return "SectionHeader"
	case LineRuleHeader:
		return "RuleHeader"
	case LineFieldStart:
		return "FieldStart"
	default:
		return "Continuation"
	}
}

// LogicalLine is one record of the transcript after wrapped physical lines
// have been joined back together.
type LogicalLine struct {
	Number int
	Indent int
	Raw    string
	Text   string
	Kind   LineKind

	// Title is set for section and rule headers.
	Title string

	// Key, Value and ValueColumn are set for field starts.
	Key         string
	Value       string
	ValueColumn int
}

const maxJoins = 4

var (
	csiSequence   = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	escSequence   = regexp.MustCompile(`\x1b[@-Z\\-_]`)
	pagerMarker   = regexp.MustCompile(`(?i)<?-{2,}\s*more\s*-{2,}>?`)
	ruleHeader    = regexp.MustCompile(`^-+\[\s*Rule:\s*(.*?)\s*(?:\]-*)?$`)
	sectionHeader = regexp.MustCompile(`^=+\[\s*(.*?)\s*(?:\]=*)?$`)
	minorHeader   = regexp.MustCompile(`^-+\[\s*(.*?)\s*\]-*$`)
	separatorRow  = regexp.MustCompile(`^[=\-*_#~]{3,}$`)
	promptEcho    = regexp.MustCompile(`^\S*[>#]\s*show\s`)
	barePrompt    = regexp.MustCompile(`^\S*[>#]\s*$`)
	genericField  = regexp.MustCompile(`^([A-Z][\w ./()&'-]*?)\s+:(?:\s+(.*))?$`)
	partialAddr   = regexp.MustCompile(`\d[./-]$`)
)

// Keys recognised even when the device prints them without padding before the colon.
var knownFields = []string{
	"Source Networks",
	"Destination Networks",
	"Source Ports",
	"Destination Ports",
	"Source Zones",
	"Destination Zones",
	"Source ISE Metadata",
	"Action",
	"Default Action",
	"Applications",
	"Users",
	"URLs",
	"VLAN Tags",
	"Intrusion Policy",
	"File Policy",
	"Variable Set",
	"Safe Search",
	"Rule Hits",
	"Time Range",
	"Comments",
	"Logging Configuration",
	"Logging",
}

// Keys that may appear alone on a line and own the deeper fields below them.
var headerOnlyFields = map[string]bool{
	"Logging Configuration": true,
	"Logging":               true,
	"Safe Search":           true,
	"Comments":              true,
}

// ReadLines sanitizes a transcript and splits it into classified logical lines.
func ReadLines(r io.Reader) ([]LogicalLine, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyInput, err)
	}

	physical := strings.Split(strings.ToValidUTF8(string(data), ""), "\n")
	if len(physical) > 1 && physical[len(physical)-1] == "" {
		// final newline, not a blank line
		physical = physical[:len(physical)-1]
	}
	clean := make([]string, len(physical))
	empty := true
	for i, p := range physical {
		clean[i] = sanitize(p)
		if strings.TrimSpace(clean[i]) != "" {
			empty = false
		}
	}
	if empty {
		return nil, ErrEmptyInput
	}

	var out []LogicalLine
	for i := 0; i < len(clean); i++ {
		number := i + 1
		line := classify(number, clean[i])
		if line.Kind != LineFieldStart && line.Kind != LineContinuation {
			out = append(out, line)
			continue
		}

		joined := clean[i]
		for joins := 0; joins < maxJoins && i+1 < len(clean); joins++ {
			next := classify(i+2, clean[i+1])
			if next.Kind != LineContinuation {
				break
			}
			sep, ok := joint(joined, next)
			if !ok {
				break
			}
			joined = strings.TrimRight(joined, " ") + sep + next.Text
			i++
		}
		out = append(out, classify(number, joined))
	}
	return out, nil
}

// joint decides whether next continues the value on cur and returns the
// separator to put between them.
func joint(cur string, next LogicalLine) (string, bool) {
	tail := strings.TrimRight(cur, " ")
	if tail == "" || next.Text == "" {
		return "", false
	}
	last := tail[len(tail)-1]
	first := next.Text[0]
	switch {
	case strings.Count(tail, "(") > strings.Count(tail, ")"):
		if isAddrChar(last) && isAddrChar(first) {
			return "", true
		}
		return " ", true
	case partialAddr.MatchString(tail) && first >= '0' && first <= '9':
		return "", true
	case next.Indent == 0 && indentOf(cur) > 0 && isAddrChar(last) && isAddrChar(first):
		// terminal wrap restarts at column zero
		return "", true
	}
	return "", false
}

func isAddrChar(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '/' || c == '-'
}

func indentOf(s string) int {
	return len(s) - len(strings.TrimLeft(s, " "))
}

func classify(number int, raw string) LogicalLine {
	text := strings.TrimSpace(raw)
	line := LogicalLine{
		Number: number,
		Indent: indentOf(raw),
		Raw:    raw,
		Text:   text,
	}

	if text == "" {
		line.Kind = LineBlank
		return line
	}
	if m := ruleHeader.FindStringSubmatch(text); m != nil {
		line.Kind = LineRuleHeader
		line.Title = m[1]
		return line
	}
	if m := sectionHeader.FindStringSubmatch(text); m != nil && m[1] != "" {
		line.Kind = LineSectionHeader
		line.Title = m[1]
		return line
	}
	if m := minorHeader.FindStringSubmatch(text); m != nil && m[1] != "" {
		line.Kind = LineSectionHeader
		line.Title = m[1]
		return line
	}
	if separatorRow.MatchString(text) || promptEcho.MatchString(text) || barePrompt.MatchString(text) {
		line.Kind = LineNoise
		return line
	}
	if key, value, offset, ok := splitField(text); ok {
		line.Kind = LineFieldStart
		line.Key = key
		line.Value = value
		line.ValueColumn = line.Indent + offset
		return line
	}
	line.Kind = LineContinuation
	return line
}

// splitField recognises "Key : value" and returns the byte offset of value in text.
func splitField(text string) (key, value string, offset int, ok bool) {
	for _, k := range knownFields {
		if !strings.HasPrefix(text, k) {
			continue
		}
		rest := text[len(k):]
		trimmed := strings.TrimLeft(rest, " ")
		if trimmed == "" {
			if headerOnlyFields[k] {
				return k, "", len(text), true
			}
			continue
		}
		if trimmed[0] != ':' {
			continue
		}
		after := trimmed[1:]
		value = strings.TrimSpace(after)
		offset = len(text) - len(strings.TrimLeft(after, " "))
		return k, value, offset, true
	}

	m := genericField.FindStringSubmatchIndex(text)
	if m == nil {
		return "", "", 0, false
	}
	key = strings.TrimSpace(text[m[2]:m[3]])
	if m[4] < 0 {
		return key, "", len(text), true
	}
	return key, strings.TrimSpace(text[m[4]:m[5]]), m[4], true
}

// sanitize replays terminal control output so the line reads the way it was
// displayed: escape sequences and pager prompts vanish, carriage returns and
// backspaces move the cursor, tabs expand to 8 columns.
func sanitize(s string) string {
	s = csiSequence.ReplaceAllString(s, "")
	s = escSequence.ReplaceAllString(s, "")
	s = pagerMarker.ReplaceAllString(s, "")

	buf := make([]rune, 0, len(s))
	cursor := 0
	put := func(r rune) {
		if cursor < len(buf) {
			buf[cursor] = r
		} else {
			buf = append(buf, r)
		}
		cursor++
	}
	for _, r := range s {
		switch {
		case r == '\r':
			cursor = 0
		case r == '\b':
			if cursor > 0 {
				cursor--
			}
		case r == '\t':
			for n := 8 - cursor%8; n > 0; n-- {
				put(' ')
			}
		case r < 0x20 || r == 0x7f:
		default:
			put(r)
		}
	}
	return strings.TrimRight(string(buf), " ")
}
