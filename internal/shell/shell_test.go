package shell

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"acp-capacity-analyzer/internal/diag"
	"acp-capacity-analyzer/internal/engine"
	"acp-capacity-analyzer/internal/parser"
)

func newTestShell(t *testing.T) (*Shell, *bytes.Buffer) {
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
	var out bytes.Buffer
	return New(engine.Optimize(policy, diags, engine.Options{Workers: 1}), &out, 2), &out
}

func TestExecute(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		notWant []string
	}{
		{"rules", []string{"Custom_rule2 | FM-15046", "web-farm", "block-bad", "TOTAL"}, nil},
		{"rules web-*", []string{"web-farm"}, []string{"block-bad"}},
		{"show Custom_rule2 | FM-15046", []string{"27 -> 6 ACEs", "SHADOWS"}, []string{"web-farm"}},
		{"top capacity", []string{"Custom_rule2", "web-farm"}, []string{"block-bad"}},
		{"top optimization 1", []string{"Custom_rule2"}, []string{"web-farm"}},
		{"diagnostics", []string{"UnresolvedObjectReference", "InvalidAddressLiteral"}, nil},
		{"totals", []string{"rules 3, ACEs 45 -> 12, factor 3.75 (lower bound)"}, nil},
		{"help", []string{"Commands:", "top capacity|optimization"}, nil},
		{"   ", nil, []string{"error"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			sh, out := newTestShell(t)
			if err := sh.Execute(tt.line); err != nil {
				t.Fatalf("Execute(%q) failed: %v", tt.line, err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("expected %q in output:\n%s", w, out.String())
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(out.String(), nw) {
					t.Errorf("did not expect %q in output:\n%s", nw, out.String())
				}
			}
		})
	}
}

func TestExecuteErrors(t *testing.T) {
	sh, _ := newTestShell(t)
	for _, line := range []string{"show", "show nothing-here", "top", "top sideways", "top capacity zero", "format xml", "frobnicate"} {
		if err := sh.Execute(line); err == nil || err == errExit {
			t.Errorf("expected an error for %q, got %v", line, err)
		}
	}
	for _, line := range []string{"exit", "quit"} {
		if err := sh.Execute(line); err != errExit {
			t.Errorf("expected %q to leave the shell, got %v", line, err)
		}
	}
}

func TestExecuteFormatSwitch(t *testing.T) {
	sh, out := newTestShell(t)
	if err := sh.Execute("format json"); err != nil {
		t.Fatalf("format json failed: %v", err)
	}
	if err := sh.Execute("rules block-bad"); err != nil {
		t.Fatalf("rules failed: %v", err)
	}
	if !strings.Contains(out.String(), `"name": "block-bad"`) {
		t.Errorf("expected JSON output, got:\n%s", out.String())
	}

	out.Reset()
	sh.Execute("format")
	if strings.TrimSpace(out.String()) != "format is json" {
		t.Errorf("unexpected format echo %q", out.String())
	}
}
