// Package batch runs the reshaper over a repository's configured datasets.
package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verte-zerg/trialshape/internal/export"
	"github.com/verte-zerg/trialshape/internal/grid"
	"github.com/verte-zerg/trialshape/internal/model"
	"github.com/verte-zerg/trialshape/internal/reshape"
)

const (
	inputSeparator  = ","
	inputTerminator = "\n"
)

// History records finished runs.
type History interface {
	InsertRun(ctx context.Context, run model.RunRecord) error
}

// Result is the outcome of one (dataset, aggregation) unit.
type Result struct {
	Dataset      string
	Aggregation  reshape.Aggregation
	InputPath    string
	OutputPath   string
	XLSXPath     string
	Participants int
	Err          error
}

// Summary collects the results of a batch run in processing order.
type Summary struct {
	Results []Result
}

// Failed returns the number of failed units.
func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Driver reshapes each configured dataset once per aggregation.
//
// By default the driver stops at the first failing unit. With
// ContinueOnError it processes every unit and returns the failures joined.
type Driver struct {
	opts     Options
	reshaper *reshape.Reshaper
	logger   *zap.Logger
	history  History
	now      func() time.Time
	newID    func() string
}

// NewDriver validates opts and returns a Driver. logger and history may be nil.
func NewDriver(opts Options, logger *zap.Logger, history History) (*Driver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		opts:     opts,
		reshaper: reshape.New(reshape.DefaultLayout()),
		logger:   logger,
		history:  history,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Run processes every (dataset, aggregation) unit.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	var errs []error
	for _, ds := range d.opts.Datasets {
		for _, agg := range ds.Aggregations {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				return summary, errors.Join(errs...)
			}
			res := d.runOne(ctx, ds.Name, agg)
			summary.Results = append(summary.Results, res)
			if res.Err == nil {
				continue
			}
			errs = append(errs, &DatasetError{Dataset: ds.Name, Aggregation: agg.String(), Err: res.Err})
			if !d.opts.ContinueOnError {
				return summary, errors.Join(errs...)
			}
		}
	}
	return summary, errors.Join(errs...)
}

func (d *Driver) runOne(ctx context.Context, dataset string, agg reshape.Aggregation) Result {
	res := Result{
		Dataset:     dataset,
		Aggregation: agg,
		InputPath:   d.opts.InputPath(dataset),
		OutputPath:  d.opts.OutputPath(dataset, agg),
	}
	log := d.logger.With(
		zap.String("dataset", dataset),
		zap.String("aggregation", agg.String()),
	)
	started := d.now()
	log.Info("reshaping", zap.String("input", res.InputPath))

	xlsxPath := ""
	if d.opts.XLSX {
		xlsxPath = strings.TrimSuffix(res.OutputPath, ".csv") + ".xlsx"
	}
	table, err := d.reshapeFile(res.InputPath, agg)
	if err == nil {
		res.Participants = len(table.Rows)
		err = writeOutputs(res.OutputPath, xlsxPath, table)
	}
	if err == nil {
		res.XLSXPath = xlsxPath
	}
	res.Err = err

	if err != nil {
		log.Error("reshape failed", zap.Error(err))
	} else {
		log.Info("wrote output",
			zap.String("output", res.OutputPath),
			zap.Int("participants", res.Participants),
			zap.Duration("elapsed", d.now().Sub(started)))
	}
	d.record(ctx, log, res, started)
	return res
}

func (d *Driver) reshapeFile(path string, agg reshape.Aggregation) (reshape.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reshape.Table{}, &FileNotFoundError{Path: path, Err: err}
		}
		return reshape.Table{}, fmt.Errorf("failed to open input: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only input.
			_ = cerr
		}
	}()

	g, err := grid.Parse(file, inputSeparator, inputTerminator)
	if err != nil {
		return reshape.Table{}, err
	}
	d.logger.Debug("parsed grid", zap.String("input", path), zap.Int("rows", len(g)))
	return d.reshaper.Run(g, d.opts.DataStartRow, d.opts.NumDataRows, agg)
}

func (d *Driver) record(ctx context.Context, log *zap.Logger, res Result, started time.Time) {
	if d.history == nil {
		return
	}
	run := model.RunRecord{
		ID:           d.newID(),
		Dataset:      res.Dataset,
		Aggregation:  res.Aggregation.String(),
		InputPath:    res.InputPath,
		OutputPath:   res.OutputPath,
		StartedAt:    started,
		EndedAt:      d.now(),
		Participants: res.Participants,
		Status:       model.RunStatusOK,
	}
	if res.Err != nil {
		run.Status = model.RunStatusFailed
		run.Error = res.Err.Error()
	}
	if err := d.history.InsertRun(ctx, run); err != nil {
		log.Warn("failed to record run", zap.Error(err))
	}
}

// writeOutputs stages the CSV and, when xlsxPath is set, the workbook as temp
// files next to their targets. The workbook is renamed into place first and the
// CSV last, so the CSV is only replaced once every output of the unit exists.
func writeOutputs(csvPath, xlsxPath string, table reshape.Table) error {
	csvTmp, err := stageFile(csvPath, "reshaped-*.csv", func(w io.Writer) error {
		return grid.Write(w, table.Cells())
	})
	if err != nil {
		return err
	}
	defer func() {
		// No-op once renamed.
		_ = os.Remove(csvTmp)
	}()

	if xlsxPath != "" {
		xlsxTmp, err := stageFile(xlsxPath, "reshaped-*.xlsx", func(w io.Writer) error {
			return export.WriteXLSX(w, table)
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = os.Remove(xlsxTmp)
		}()
		if err := os.Rename(xlsxTmp, xlsxPath); err != nil {
			return fmt.Errorf("failed to write workbook: %w", err)
		}
	}

	if err := os.Rename(csvTmp, csvPath); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// stageFile writes a temp file in the directory of path and returns its name.
// The temp file is removed when writing fails.
func stageFile(path, pattern string, write func(io.Writer) error) (_ string, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(path), pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp output: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if err != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	writer := bufio.NewWriter(tmpFile)
	if err := write(writer); err != nil {
		return "", err
	}
	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush output: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close output: %w", err)
	}
	return tmpPath, nil
}

// ListDatasets returns the names of the CSV inputs under repoDir/inputDir.
func ListDatasets(repoDir, inputDir string) ([]string, error) {
	dir := filepath.Join(repoDir, inputDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &FileNotFoundError{Path: dir, Err: err}
		}
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".csv") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".csv"))
	}
	sort.Strings(names)
	return names, nil
}
