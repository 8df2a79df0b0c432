// Package shell implements an interactive prompt for exploring one analysis.
package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"acp-capacity-analyzer/internal/engine"
	"acp-capacity-analyzer/internal/report"
)

var errExit = errors.New("exit")

// Shell answers queries against a finished report.
type Shell struct {
	rl     *readline.Instance
	rep    *engine.Report
	out    io.Writer
	format report.Format
	topK   int
}

func New(rep *engine.Report, out io.Writer, topK int) *Shell {
	if topK <= 0 {
		topK = 10
	}
	return &Shell{
		rep:    rep,
		out:    out,
		format: report.FormatText,
		topK:   topK,
	}
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("rules"),
	readline.PcItem("show"),
	readline.PcItem("top",
		readline.PcItem("capacity"),
		readline.PcItem("optimization"),
	),
	readline.PcItem("diagnostics"),
	readline.PcItem("totals"),
	readline.PcItem("format",
		readline.PcItem("text"),
		readline.PcItem("csv"),
		readline.PcItem("json"),
	),
	readline.PcItem("help"),
	readline.PcItem("exit"),
)

// Run starts the interactive loop. It returns on exit, quit or EOF.
func (s *Shell) Run() error {
	var err error
	s.rl, err = readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     filepath.Join(os.TempDir(), "acp_analyzer_history"),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          s.out,
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer s.rl.Close()

	fmt.Fprintf(s.out, "%d rules loaded, %d -> %d ACEs\n", len(s.rep.Results), s.rep.TotalBefore, s.rep.TotalAfter)
	fmt.Fprintln(s.out, "Type '?' for help")

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			return err
		}

		if err := s.Execute(line); err != nil {
			if err == errExit {
				return nil
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	return nil
}

func (s *Shell) prompt() string {
	name := "acp"
	if s.rep.Policy != nil && s.rep.Policy.Name != "" {
		name = s.rep.Policy.Name
	}
	return name + "> "
}

// Execute runs a single command line.
func (s *Shell) Execute(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), parts[0]))

	switch parts[0] {
	case "rules":
		results := s.rep.Results
		if rest != "" {
			var err error
			if results, err = engine.SelectRules(results, rest); err != nil {
				return err
			}
		}
		return report.WriteCapacity(s.out, s.format, s.rep, results)

	case "show":
		if rest == "" {
			return fmt.Errorf("usage: show <rule|pattern>")
		}
		results, err := engine.SelectRules(s.rep.Results, rest)
		if err != nil {
			return err
		}
		return report.WriteAnalysis(s.out, s.format, s.rep, results)

	case "top":
		return s.top(parts[1:])

	case "diagnostics":
		if len(s.rep.Diagnostics) == 0 {
			fmt.Fprintln(s.out, "no diagnostics")
			return nil
		}
		return report.WriteDiagnostics(s.out, s.rep.Diagnostics)

	case "totals":
		bound := ""
		if s.rep.LowerBound() {
			bound = " (lower bound)"
		}
		fmt.Fprintf(s.out, "rules %d, ACEs %d -> %d, factor %.2f%s\n",
			len(s.rep.Results), s.rep.TotalBefore, s.rep.TotalAfter, s.rep.Factor(), bound)
		return nil

	case "format":
		if len(parts) != 2 {
			fmt.Fprintf(s.out, "format is %s\n", s.format)
			return nil
		}
		f, err := report.ParseFormat(parts[1])
		if err != nil {
			return err
		}
		s.format = f
		return nil

	case "help", "?":
		s.help()
		return nil

	case "exit", "quit":
		return errExit

	default:
		return fmt.Errorf("unknown command %q, type '?' for help", parts[0])
	}
}

func (s *Shell) top(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: top capacity|optimization [k]")
	}
	k := s.topK
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid k %q", args[1])
		}
		k = n
	}

	switch args[0] {
	case "capacity":
		return report.WriteCapacity(s.out, s.format, s.rep, engine.TopByCapacity(s.rep.Results, k))
	case "optimization":
		return report.WriteCapacity(s.out, s.format, s.rep, engine.TopByOptimization(s.rep.Results, k))
	default:
		return fmt.Errorf("unknown ranking %q", args[0])
	}
}

func (s *Shell) help() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  rules [pattern]                   ACE counts per rule")
	fmt.Fprintln(s.out, "  show <rule|pattern>               merges and diagnostics of matching rules")
	fmt.Fprintln(s.out, "  top capacity|optimization [k]     largest or most reducible rules")
	fmt.Fprintln(s.out, "  diagnostics                       parser findings")
	fmt.Fprintln(s.out, "  totals                            policy-wide ACE estimate")
	fmt.Fprintln(s.out, "  format [text|csv|json]            show or set the output format")
	fmt.Fprintln(s.out, "  exit                              leave the shell")
}
