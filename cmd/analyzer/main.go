package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"acp-capacity-analyzer/internal/config"
	"acp-capacity-analyzer/internal/diag"
	"acp-capacity-analyzer/internal/engine"
	"acp-capacity-analyzer/internal/metrics"
	"acp-capacity-analyzer/internal/model"
	"acp-capacity-analyzer/internal/parser"
	"acp-capacity-analyzer/internal/report"
	"acp-capacity-analyzer/internal/shell"

	"github.com/spf13/cobra"
)

type options struct {
	configPath  string
	file        string
	provider    string
	dsn         string
	device      string
	logLevel    string
	logFile     string
	workers     int
	countMode   string
	format      string
	metricsFile string
}

// session is the outcome of one analysis run shared by every subcommand.
type session struct {
	cfg    *config.Config
	format report.Format
	rep    *engine.Report
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "acp-analyzer",
		Short: "Access-control policy capacity analyzer",
		Long: `acp-analyzer reads the output of "show access-control-config", estimates
how many ACEs every rule expands to and recommends smaller equivalent rules by
merging shadowed, overlapping and adjacent networks and ports.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	pf.StringVarP(&opts.file, "file", "f", "", "Transcript of show access-control-config (for 'file' provider)")
	pf.StringVar(&opts.provider, "provider", "", "Transcript provider: 'file' or 'mariadb' (default file)")
	pf.StringVar(&opts.dsn, "db", "", "Database connection string (for 'mariadb' provider)")
	pf.StringVar(&opts.device, "device", "", "Device whose newest snapshot is analyzed (for 'mariadb' provider)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR) (default INFO)")
	pf.StringVar(&opts.logFile, "log-file", "", "Log file path (default: stderr)")
	pf.IntVarP(&opts.workers, "workers", "w", 0, "Number of concurrent optimizer workers (default: number of CPUs)")
	pf.StringVar(&opts.countMode, "count-mode", "", "Network slot sizing: 'entries' or 'prefixes' (default entries)")
	pf.StringVar(&opts.format, "format", "", "Output format: text, csv or json (default text)")
	pf.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus text-format metrics to this file")

	rootCmd.AddCommand(
		newACPCmd(opts),
		newRuleCmd(opts),
		newTopKCmd(opts),
		newShellCmd(opts),
	)
	return rootCmd
}

func newACPCmd(opts *options) *cobra.Command {
	acpCmd := &cobra.Command{
		Use:   "acp",
		Short: "Report on the whole policy",
	}
	acpCmd.AddCommand(
		&cobra.Command{
			Use:   "capacity",
			Short: "ACE count of every rule before and after merging",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := opts.analyze(cmd)
				if err != nil {
					return err
				}
				return report.WriteCapacity(cmd.OutOrStdout(), s.format, s.rep, s.rep.Results)
			},
		},
		&cobra.Command{
			Use:   "analysis",
			Short: "Per-slot merges of every rule plus diagnostics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := opts.analyze(cmd)
				if err != nil {
					return err
				}
				return report.WriteAnalysis(cmd.OutOrStdout(), s.format, s.rep, s.rep.Results)
			},
		},
	)
	return acpCmd
}

func newRuleCmd(opts *options) *cobra.Command {
	ruleCmd := &cobra.Command{
		Use:   "rule",
		Short: "Report on rules selected by name, 'name | tag' or glob",
	}

	selected := func(cmd *cobra.Command, args []string) (*session, []model.RuleOptimizationResult, error) {
		s, err := opts.analyze(cmd)
		if err != nil {
			return nil, nil, err
		}
		results, err := engine.SelectRules(s.rep.Results, strings.Join(args, " "))
		if err != nil {
			return nil, nil, err
		}
		return s, results, nil
	}

	ruleCmd.AddCommand(
		&cobra.Command{
			Use:   "capacity <rule>",
			Short: "ACE count of the selected rules",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, results, err := selected(cmd, args)
				if err != nil {
					return err
				}
				return report.WriteCapacity(cmd.OutOrStdout(), s.format, s.rep, results)
			},
		},
		&cobra.Command{
			Use:   "analysis <rule>",
			Short: "Merges and diagnostics of the selected rules",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, results, err := selected(cmd, args)
				if err != nil {
					return err
				}
				return report.WriteAnalysis(cmd.OutOrStdout(), s.format, s.rep, results)
			},
		},
	)
	return ruleCmd
}

func newTopKCmd(opts *options) *cobra.Command {
	var k int
	topkCmd := &cobra.Command{
		Use:   "topk",
		Short: "Rank rules",
	}
	topkCmd.PersistentFlags().IntVarP(&k, "limit", "k", 0, "Number of rules to list (default from config, 10)")

	rank := func(cmd *cobra.Command, by func([]model.RuleOptimizationResult, int) []model.RuleOptimizationResult) error {
		s, err := opts.analyze(cmd)
		if err != nil {
			return err
		}
		n := s.cfg.TopK
		if cmd.Flags().Changed("limit") {
			if k <= 0 {
				return fmt.Errorf("-k must be positive, got %d", k)
			}
			n = k
		}
		return report.WriteCapacity(cmd.OutOrStdout(), s.format, s.rep, by(s.rep.Results, n))
	}

	topkCmd.AddCommand(
		&cobra.Command{
			Use:   "capacity",
			Short: "Rules with the most ACEs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return rank(cmd, engine.TopByCapacity)
			},
		},
		&cobra.Command{
			Use:   "optimization",
			Short: "Rules with the largest reduction factor",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return rank(cmd, engine.TopByOptimization)
			},
		},
	)
	return topkCmd
}

func newShellCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Explore the analysis interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.analyze(cmd)
			if err != nil {
				return err
			}
			return shell.New(s.rep, cmd.OutOrStdout(), s.cfg.TopK).Run()
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfig loads the config file, if any, and lets explicitly set flags
// override it.
func (o *options) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("file") {
		cfg.Rules = o.file
	}
	if flags.Changed("provider") {
		cfg.Provider = o.provider
	}
	if flags.Changed("db") {
		cfg.MariaDB.DSN = o.dsn
	}
	if flags.Changed("device") {
		cfg.MariaDB.Device = o.device
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(o.logLevel)
	}
	if flags.Changed("log-file") {
		cfg.LogFile = o.logFile
	}
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Changed("count-mode") {
		cfg.CountMode = o.countMode
	}
	if flags.Changed("format") {
		cfg.Format = strings.ToLower(o.format)
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = o.metricsFile
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateSource(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) analyze(cmd *cobra.Command) (*session, error) {
	cfg, err := o.resolveConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(logger)

	startTime := time.Now()
	slog.Info("Loading access-control policy", "provider", cfg.Provider)
	diags := diag.NewCollector()
	policy, err := loadPolicy(cmd.Context(), cfg, diags)
	if err != nil {
		slog.Error("Failed to load policy", "error", err)
		return nil, err
	}
	slog.Info("Successfully loaded policy", "policy", policy.Name, "rule_sets", len(policy.RuleSets), "rules", policy.RuleCount(), "diagnostics", diags.Len())

	mode, err := engine.ParseCountMode(cfg.CountMode)
	if err != nil {
		return nil, err
	}
	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	rep := engine.Optimize(policy, diags, engine.Options{Workers: cfg.Workers, Mode: mode})
	elapsed := time.Since(startTime)
	slog.Info("Analysis complete", "aces_before", rep.TotalBefore, "aces_after", rep.TotalAfter, "duration", elapsed)

	if cfg.MetricsFile != "" {
		rec := metrics.NewRecorder()
		rec.Observe(rep, elapsed)
		if err := rec.WriteFile(cfg.MetricsFile); err != nil {
			slog.Error("Failed to write metrics file", "path", cfg.MetricsFile, "error", err)
			return nil, fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	return &session{cfg: cfg, format: format, rep: rep}, nil
}

func setupLogger(level, logFilePath string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logWriter = f
		}
		// the logger is not set up yet, so a bad path silently falls back to stderr
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}

func loadPolicy(ctx context.Context, cfg *config.Config, diags *diag.Collector) (*model.Policy, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch cfg.Provider {
	case "file":
		file, err := os.Open(cfg.Rules)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return parser.Load(file, diags)
	case "mariadb":
		store, err := parser.NewSnapshotStore(cfg.MariaDB.DSN)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		if cfg.MariaDB.Device == "" {
			devices, err := store.Devices(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list devices: %w", err)
			}
			return nil, fmt.Errorf("provider mariadb needs --device, stored devices: %s", strings.Join(devices, ", "))
		}
		return store.LoadLatest(ctx, cfg.MariaDB.Device, diags)
	default:
		return nil, fmt.Errorf("unknown transcript provider: %s", cfg.Provider)
	}
}
