// Package main provides the CLI entrypoint for trialshape.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/verte-zerg/trialshape/internal/batch"
	"github.com/verte-zerg/trialshape/internal/browse"
	"github.com/verte-zerg/trialshape/internal/config"
	"github.com/verte-zerg/trialshape/internal/grid"
	"github.com/verte-zerg/trialshape/internal/model"
	"github.com/verte-zerg/trialshape/internal/reshape"
	"github.com/verte-zerg/trialshape/internal/stats"
	"github.com/verte-zerg/trialshape/internal/store"
)

var (
	logger  *zap.Logger
	verbose bool

	runInputDir  string
	runOutputDir string
	runStartRow  int
	runRows      int
	runKeepGoing bool
	runXLSX      bool
	runNoHistory bool
	runDatasets  []string

	datasetsInputDir string

	browseNoHistory bool

	historyDataset string
	historySince   string
	historyLast    int
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trialshape [repo-dir]",
		Short: "Reshape per-trial CSV data into per-participant summaries",
		Long: `trialshape reads wide per-trial CSV files from <repo-dir>/data/original,
aggregates each participant's trials per condition and part, and writes
", "-separated tables to <repo-dir>/data/reshaped.

Run without arguments to print this help.`,
		Args:              cobra.MaximumNArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: initLogger,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: runBatchCmd,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.Flags().StringVar(&runInputDir, "input-dir", batch.DefaultInputDir, "input directory relative to repo-dir")
	rootCmd.Flags().StringVar(&runOutputDir, "output-dir", batch.DefaultOutputDir, "output directory relative to repo-dir")
	rootCmd.Flags().IntVar(&runStartRow, "start-row", reshape.DefaultDataStartRow, "index of the first data row")
	rootCmd.Flags().IntVar(&runRows, "rows", reshape.DefaultNumDataRows, "number of data rows to reshape")
	rootCmd.Flags().BoolVar(&runKeepGoing, "keep-going", false, "process remaining datasets after a failure")
	rootCmd.Flags().BoolVar(&runXLSX, "xlsx", false, "also write an .xlsx workbook next to each output")
	rootCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "do not record runs in the history database")
	rootCmd.Flags().StringArrayVar(&runDatasets, "dataset", nil, "dataset to process as name[:agg[,agg]] (repeatable)")

	rootCmd.AddCommand(newDatasetsCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newBrowseCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func initLogger(_ *cobra.Command, _ []string) error {
	var err error
	logger, err = loggerConfig(verbose).Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loggerConfig attaches stack traces to error logs only with --verbose.
func loggerConfig(verbose bool) zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = !verbose
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg
}

func runBatchCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return printUsage(cmd)
	}

	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "input-dir", &runInputDir, fileCfg.Reshape.InputDir)
	applyStringConfig(cmd, "output-dir", &runOutputDir, fileCfg.Reshape.OutputDir)
	applyIntConfig(cmd, "start-row", &runStartRow, fileCfg.Reshape.DataStartRow)
	applyIntConfig(cmd, "rows", &runRows, fileCfg.Reshape.NumDataRows)
	applyBoolConfig(cmd, "keep-going", &runKeepGoing, fileCfg.Reshape.KeepGoing)
	applyBoolConfig(cmd, "xlsx", &runXLSX, fileCfg.Reshape.XLSX)
	applyHistoryConfig(cmd, "no-history", &runNoHistory, fileCfg.Reshape.History)

	datasets, err := resolveDatasets(runDatasets, fileCfg.Datasets)
	if err != nil {
		return err
	}

	opts := batch.Options{
		RepoDir:         args[0],
		InputDir:        runInputDir,
		OutputDir:       runOutputDir,
		Datasets:        datasets,
		DataStartRow:    runStartRow,
		NumDataRows:     runRows,
		ContinueOnError: runKeepGoing,
		XLSX:            runXLSX,
	}
	if err := opts.Validate(); err != nil {
		var missing *batch.MissingArgumentError
		if errors.As(err, &missing) {
			return printUsage(cmd)
		}
		return err
	}
	if abs, err := filepath.Abs(opts.RepoDir); err == nil {
		opts.RepoDir = abs
	}

	var history batch.History
	if !runNoHistory {
		st, err := store.Open(config.DefaultDBPath())
		if err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logErrf("failed to close db: %v\n", cerr)
			}
		}()
		history = st
	}

	driver, err := batch.NewDriver(opts, logger, history)
	if err != nil {
		return err
	}
	summary, runErr := driver.Run(cmd.Context())
	if err := printSummary(cmd, summary); err != nil {
		return err
	}
	return runErr
}

func printUsage(cmd *cobra.Command) error {
	if _, err := fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func printSummary(cmd *cobra.Command, summary batch.Summary) error {
	out := cmd.OutOrStdout()
	for _, res := range summary.Results {
		var err error
		if res.Err != nil {
			_, err = fmt.Fprintf(out, "%s (%s): failed\n", res.Dataset, res.Aggregation)
		} else {
			_, err = fmt.Fprintf(out, "%s (%s): %d participants -> %s\n", res.Dataset, res.Aggregation, res.Participants, res.OutputPath)
		}
		if err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if res.XLSXPath != "" {
			if _, err := fmt.Fprintf(out, "  workbook -> %s\n", res.XLSXPath); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
	}
	if failed := summary.Failed(); failed > 0 {
		logErrf("%d of %d runs failed\n", failed, len(summary.Results))
	}
	return nil
}

// resolveDatasets picks datasets from --dataset flags, then the config file,
// then the built-in default.
func resolveDatasets(specs []string, fromFile []config.DatasetConfig) ([]batch.Dataset, error) {
	if len(specs) > 0 {
		out := make([]batch.Dataset, 0, len(specs))
		for _, spec := range specs {
			ds, err := batch.ParseDatasetSpec(spec)
			if err != nil {
				return nil, fmt.Errorf("invalid --dataset %q: %w", spec, err)
			}
			out = append(out, ds)
		}
		return out, nil
	}
	if len(fromFile) > 0 {
		out := make([]batch.Dataset, 0, len(fromFile))
		for _, dc := range fromFile {
			aggs := dc.Aggregations
			if len(aggs) == 0 {
				aggs = []string{reshape.Mean.String()}
			}
			ds, err := batch.NewDataset(dc.Name, aggs)
			if err != nil {
				return nil, fmt.Errorf("invalid dataset %q in config: %w", dc.Name, err)
			}
			out = append(out, ds)
		}
		return out, nil
	}
	return batch.DefaultDatasets(), nil
}

func newDatasetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets <repo-dir>",
		Short: "List input datasets",
		Args:  cobra.ExactArgs(1),
		RunE:  runDatasetsCmd,
	}
	cmd.Flags().StringVar(&datasetsInputDir, "input-dir", batch.DefaultInputDir, "input directory relative to repo-dir")
	return cmd
}

func runDatasetsCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "input-dir", &datasetsInputDir, fileCfg.Reshape.InputDir)

	names, err := batch.ListDatasets(args[0], datasetsInputDir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		logErrf("No .csv files in %s\n", filepath.Join(args[0], datasetsInputDir))
		return nil
	}
	for _, name := range names {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <reshaped.csv>",
		Short: "Print a reshaped table with per-column statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowCmd,
	}
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	g, err := loadReshaped(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := stats.RenderGrid(out, g); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if _, err := fmt.Fprintln(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderSummary(out, stats.SummarizeColumns(g)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if fileCfg.Reshape.History != nil && !*fileCfg.Reshape.History {
		return nil
	}
	return printLastRun(cmd, args[0])
}

func printLastRun(cmd *cobra.Command, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	run, ok, err := st.LastRun(cmd.Context(), abs)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Last written %s by %s run %s (%s)\n",
		run.EndedAt.Local().Format("2006-01-02 15:04"), run.Aggregation, run.ID, run.Status)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse <reshaped.csv>",
		Short: "Browse a reshaped table interactively",
		Args:  cobra.ExactArgs(1),
		RunE:  runBrowseCmd,
	}
	cmd.Flags().BoolVar(&browseNoHistory, "no-history", false, "do not load run history")
	return cmd
}

func runBrowseCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyHistoryConfig(cmd, "no-history", &browseNoHistory, fileCfg.Reshape.History)

	g, err := loadReshaped(args[0])
	if err != nil {
		return err
	}

	var runs browse.RunLister
	if !browseNoHistory {
		st, err := store.Open(config.DefaultDBPath())
		if err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logErrf("failed to close db: %v\n", cerr)
			}
		}()
		runs = st
	}

	m := browse.NewModel(args[0], g, runs)
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run browser: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyDataset, "dataset", "", "dataset filter")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N runs")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if historyLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	filter := model.RunFilter{Dataset: historyDataset, Last: historyLast}
	if historySince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", historySince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &parsed
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	runs, err := st.ListRuns(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if err := stats.RenderRuns(cmd.OutOrStdout(), runs); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := ensureConfigFile(path); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func ensureConfigFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}
	return nil
}

func loadReshaped(path string) (grid.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &batch.FileNotFoundError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logErrf("failed to close %s: %v\n", path, cerr)
		}
	}()
	g, err := grid.Parse(f, grid.OutputSeparator, "\n")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return g, nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

// applyHistoryConfig maps the positive "history" config key onto a --no-history flag.
func applyHistoryConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = !*value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# trialshape configuration
# Uncomment a value to enable it. CLI flags override config values.

[reshape]
# input-dir = %q    # Input directory relative to repo-dir
# output-dir = %q   # Output directory relative to repo-dir
# start-row = %d               # Index of the first data row
# rows = %d                   # Number of data rows (participants)
# keep-going = false          # Process remaining datasets after a failure
# xlsx = false                # Also write .xlsx workbooks
# history = true              # Record runs in the history database

# Datasets to process when no --dataset flag is given.
# Aggregations: mean, sum, count. Count writes <name>_totals.csv.
#
# [[dataset]]
# name = "attempt_times"
# aggregations = ["mean"]
#
# [[dataset]]
# name = "errors"
# aggregations = ["sum", "count"]
`,
		batch.DefaultInputDir,
		batch.DefaultOutputDir,
		reshape.DefaultDataStartRow,
		reshape.DefaultNumDataRows,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
