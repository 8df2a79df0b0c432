package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"strings"
	"testing"

	"acp-capacity-analyzer/internal/diag"
	"acp-capacity-analyzer/internal/engine"
	"acp-capacity-analyzer/internal/parser"
)

func sampleReport(t *testing.T) *engine.Report {
	t.Helper()
	f, err := os.Open("../parser/testdata/acp_sample.txt")
	if err != nil {
		t.Fatalf("failed to open sample transcript: %v", err)
	}
	defer f.Close()

	diags := diag.NewCollector()
	policy, err := parser.Load(f, diags)
	if err != nil {
		t.Fatalf("failed to load sample transcript: %v", err)
	}
	return engine.Optimize(policy, diags, engine.Options{Workers: 1})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"TEXT", FormatText, false},
		{"csv", FormatCSV, false},
		{"json", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestWriteCapacityText(t *testing.T) {
	rep := sampleReport(t)
	var buf bytes.Buffer
	if err := WriteCapacity(&buf, FormatText, rep, rep.Results); err != nil {
		t.Fatalf("WriteCapacity failed: %v", err)
	}
	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header, 3 rules and a total, got:\n%s", out)
	}
	for _, want := range []string{"Custom_rule2 | FM-15046", ">=4.50", "web-farm", "4.00", "Default"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	total := strings.Fields(lines[4])
	if len(total) != 4 || total[0] != "TOTAL" || total[1] != "45" || total[2] != "12" || total[3] != ">=3.75" {
		t.Errorf("unexpected total line %q", lines[4])
	}
}

func TestWriteCapacityCSV(t *testing.T) {
	rep := sampleReport(t)
	var buf bytes.Buffer
	if err := WriteCapacity(&buf, FormatCSV, rep, rep.Results); err != nil {
		t.Fatalf("WriteCapacity failed: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 4 || len(records[0]) != len(capacityHeader) {
		t.Fatalf("expected header plus 3 rows, got %v", records)
	}
	first := records[1]
	if first[1] != "Custom_rule2" || first[2] != "FM-15046" || first[4] != "3/2" || first[8] != "27" || first[9] != "6" || first[11] != "true" {
		t.Errorf("unexpected first row %v", first)
	}
}

func TestWriteAnalysisText(t *testing.T) {
	rep := sampleReport(t)
	var buf bytes.Buffer
	if err := WriteAnalysis(&buf, FormatText, rep, rep.Results); err != nil {
		t.Fatalf("WriteAnalysis failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Rule Custom_rule2 | FM-15046 (Mandatory): 27 -> 6 ACEs",
		"192.168.168.0/24",
		"OBJ-192.168.168.0_25 ADJOINS OBJ-192.168.168.128_25",
		"10.0.0.0/8 SHADOWS OBJ-10.138.0.0_16",
		"(unresolved)",
		"tcp/443",
		"icmp type 8",
		"Source Ports",
		"UnparsedSection",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in analysis:\n%s", want, out)
		}
	}
}

func TestWriteAnalysisSelectionFiltersDiagnostics(t *testing.T) {
	rep := sampleReport(t)
	selected, err := engine.SelectRules(rep.Results, "block-bad")
	if err != nil {
		t.Fatalf("SelectRules failed: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteAnalysis(&buf, FormatText, rep, selected); err != nil {
		t.Fatalf("WriteAnalysis failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "InvalidAddressLiteral") {
		t.Errorf("expected the rule's own diagnostics:\n%s", out)
	}
	if strings.Contains(out, "UnparsedSection") || strings.Contains(out, "Custom_rule2") {
		t.Errorf("expected other findings to be left out:\n%s", out)
	}
}

func TestWriteAnalysisCSV(t *testing.T) {
	rep := sampleReport(t)
	var buf bytes.Buffer
	if err := WriteAnalysis(&buf, FormatCSV, rep, rep.Results); err != nil {
		t.Fatalf("WriteAnalysis failed: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	found := false
	for _, r := range records[1:] {
		if r[2] == "Destination Networks" && r[4] == "SHADOWS" && r[3] == "10.0.0.0/8" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the /8 shadow merge in %v", records)
	}
}

func TestWriteJSON(t *testing.T) {
	rep := sampleReport(t)
	var buf bytes.Buffer
	if err := WriteAnalysis(&buf, FormatJSON, rep, rep.Results); err != nil {
		t.Fatalf("WriteAnalysis failed: %v", err)
	}

	var doc document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if doc.Policy != "Corp-Edge-ACP" || doc.CountMode != "entries" || doc.AcesBefore != 45 || doc.AcesAfter != 12 {
		t.Errorf("unexpected document header %+v", doc)
	}
	if len(doc.Rules) != 3 || len(doc.Rules[0].Slots) != 4 {
		t.Fatalf("expected 3 rules with slot detail, got %+v", doc.Rules)
	}
	if doc.Rules[1].Slots[2].Absent != true {
		t.Errorf("expected web-farm source ports to be absent")
	}
	if len(doc.Diagnostics) != len(rep.Diagnostics) {
		t.Errorf("expected %d diagnostics, got %d", len(rep.Diagnostics), len(doc.Diagnostics))
	}

	buf.Reset()
	if err := WriteCapacity(&buf, FormatJSON, rep, rep.Results); err != nil {
		t.Fatalf("WriteCapacity failed: %v", err)
	}
	if strings.Contains(buf.String(), `"slots"`) || strings.Contains(buf.String(), `"diagnostics"`) {
		t.Errorf("capacity JSON should not carry slot detail:\n%s", buf.String())
	}
}

func TestWriteDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDiagnostics(&buf, []diag.Diagnostic{
		{Kind: diag.TruncatedRule, Line: 12, Rule: "r1", Message: "rule \"r1\" is not terminated"},
	})
	if err != nil {
		t.Fatalf("WriteDiagnostics failed: %v", err)
	}
	if !strings.Contains(buf.String(), "TruncatedRule") || !strings.Contains(buf.String(), "12") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
