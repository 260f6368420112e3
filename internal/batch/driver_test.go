package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/verte-zerg/trialshape/internal/export"
	"github.com/verte-zerg/trialshape/internal/grid"
	"github.com/verte-zerg/trialshape/internal/model"
	"github.com/verte-zerg/trialshape/internal/reshape"
)

type memHistory struct {
	runs []model.RunRecord
}

func (h *memHistory) InsertRun(_ context.Context, run model.RunRecord) error {
	h.runs = append(h.runs, run)
	return nil
}

func trialCSV(ids ...string) string {
	var b strings.Builder
	b.WriteString("id,trial,\n,,\n")
	for _, id := range ids {
		cells := []string{id}
		for c := 0; c < 3; c++ {
			for i := 1; i <= 15; i++ {
				cells = append(cells, strconv.Itoa(i))
			}
		}
		b.WriteString(strings.Join(cells, ",") + ",\n")
	}
	return b.String()
}

func writeInput(t *testing.T, repo, name, body string) {
	t.Helper()
	dir := filepath.Join(repo, DefaultInputDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(body), 0o644))
}

func testOptions(repo string, datasets ...Dataset) Options {
	opts := DefaultOptions(repo)
	opts.NumDataRows = 2
	opts.Datasets = datasets
	return opts
}

func TestDriverWritesMeanOutput(t *testing.T) {
	repo := t.TempDir()
	writeInput(t, repo, "attempt_times", trialCSV("P01", "P02"))
	hist := &memHistory{}

	opts := DefaultOptions(repo)
	opts.NumDataRows = 2
	d, err := NewDriver(opts, zap.NewNop(), hist)
	require.NoError(t, err)

	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, 0, summary.Failed())
	assert.Equal(t, 2, summary.Results[0].Participants)

	out, err := os.ReadFile(filepath.Join(repo, DefaultOutputDir, "attempt_times.csv"))
	require.NoError(t, err)
	g, err := grid.ParseString(string(out), grid.OutputSeparator, "\n")
	require.NoError(t, err)
	require.Len(t, g, 3)
	assert.Equal(t, []string{"P01", "5.5", "13.0", "5.5", "13.0", "5.5", "13.0"}, g[1])

	require.Len(t, hist.runs, 1)
	assert.Equal(t, model.RunStatusOK, hist.runs[0].Status)
	assert.NotEmpty(t, hist.runs[0].ID)
}

func TestDriverSumAndCountTotals(t *testing.T) {
	repo := t.TempDir()
	writeInput(t, repo, "errors", trialCSV("P01", "P02"))

	ds, err := NewDataset("errors", []string{"sum", "count"})
	require.NoError(t, err)
	d, err := NewDriver(testOptions(repo, ds), nil, nil)
	require.NoError(t, err)

	_, err = d.Run(context.Background())
	require.NoError(t, err)

	sum, err := os.ReadFile(filepath.Join(repo, DefaultOutputDir, "errors.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(sum), "P01, 55.0, 65.0")

	totals, err := os.ReadFile(filepath.Join(repo, DefaultOutputDir, "errors_totals.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(totals), "P02, 10, 5, 10, 5, 10, 5")
}

func TestDriverMissingInputAborts(t *testing.T) {
	repo := t.TempDir()
	writeInput(t, repo, "second", trialCSV("P01", "P02"))
	hist := &memHistory{}

	d, err := NewDriver(testOptions(repo,
		Dataset{Name: "first", Aggregations: []reshape.Aggregation{reshape.Mean}},
		Dataset{Name: "second", Aggregations: []reshape.Aggregation{reshape.Mean}},
	), nil, hist)
	require.NoError(t, err)

	summary, err := d.Run(context.Background())
	var notFound *FileNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Len(t, summary.Results, 1)
	assert.NoFileExists(t, filepath.Join(repo, DefaultOutputDir, "second.csv"))

	require.Len(t, hist.runs, 1)
	assert.Equal(t, model.RunStatusFailed, hist.runs[0].Status)
}

func TestDriverContinueOnError(t *testing.T) {
	repo := t.TempDir()
	writeInput(t, repo, "broken", "a\nb\nP01,1,2\n")
	writeInput(t, repo, "good", trialCSV("P01", "P02"))

	opts := testOptions(repo,
		Dataset{Name: "broken", Aggregations: []reshape.Aggregation{reshape.Mean}},
		Dataset{Name: "good", Aggregations: []reshape.Aggregation{reshape.Mean}},
	)
	opts.ContinueOnError = true
	d, err := NewDriver(opts, nil, nil)
	require.NoError(t, err)

	summary, err := d.Run(context.Background())
	var malformed *grid.MalformedInputError
	require.ErrorAs(t, err, &malformed)
	var dsErr *DatasetError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, "broken", dsErr.Dataset)

	assert.Len(t, summary.Results, 2)
	assert.Equal(t, 1, summary.Failed())
	assert.FileExists(t, filepath.Join(repo, DefaultOutputDir, "good.csv"))
	assert.NoFileExists(t, filepath.Join(repo, DefaultOutputDir, "broken.csv"))
}

func TestDriverFailureKeepsPreviousOutput(t *testing.T) {
	repo := t.TempDir()
	outDir := filepath.Join(repo, DefaultOutputDir)
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "attempt_times.csv"), []byte("old\n"), 0o644))

	body := trialCSV("P01", "P02")
	body = strings.Replace(body, "P02,1,", "P02,x,", 1)
	writeInput(t, repo, "attempt_times", body)

	d, err := NewDriver(testOptions(repo, DefaultDatasets()...), nil, nil)
	require.NoError(t, err)
	_, err = d.Run(context.Background())
	var perr *reshape.NumericParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.Row)

	out, err := os.ReadFile(filepath.Join(outDir, "attempt_times.csv"))
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(out))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDriverXLSXExport(t *testing.T) {
	repo := t.TempDir()
	writeInput(t, repo, "attempt_times", trialCSV("P01", "P02"))
	opts := testOptions(repo, DefaultDatasets()...)
	opts.XLSX = true

	d, err := NewDriver(opts, nil, nil)
	require.NoError(t, err)
	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(repo, DefaultOutputDir, "attempt_times.xlsx"), summary.Results[0].XLSXPath)
	assert.FileExists(t, summary.Results[0].XLSXPath)

	f, err := excelize.OpenFile(summary.Results[0].XLSXPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = f.Close()
	})
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestDriverWorkbookFailureKeepsPreviousCSV(t *testing.T) {
	repo := t.TempDir()
	outDir := filepath.Join(repo, DefaultOutputDir)
	require.NoError(t, os.MkdirAll(filepath.Join(outDir, "attempt_times.xlsx"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "attempt_times.csv"), []byte("old\n"), 0o644))
	writeInput(t, repo, "attempt_times", trialCSV("P01", "P02"))
	hist := &memHistory{}

	opts := testOptions(repo, DefaultDatasets()...)
	opts.XLSX = true
	d, err := NewDriver(opts, nil, hist)
	require.NoError(t, err)

	summary, err := d.Run(context.Background())
	require.Error(t, err)
	require.Len(t, summary.Results, 1)
	assert.Empty(t, summary.Results[0].XLSXPath)

	out, err := os.ReadFile(filepath.Join(outDir, "attempt_times.csv"))
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(out))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"attempt_times.csv", "attempt_times.xlsx"}, names)

	require.Len(t, hist.runs, 1)
	assert.Equal(t, model.RunStatusFailed, hist.runs[0].Status)
}

func TestDriverStopsOnCancelledContext(t *testing.T) {
	repo := t.TempDir()
	writeInput(t, repo, "attempt_times", trialCSV("P01", "P02"))
	d, err := NewDriver(testOptions(repo, DefaultDatasets()...), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Results)
}

func TestNewDriverValidation(t *testing.T) {
	_, err := NewDriver(DefaultOptions(""), nil, nil)
	var missing *MissingArgumentError
	require.ErrorAs(t, err, &missing)

	opts := DefaultOptions(t.TempDir())
	opts.NumDataRows = -1
	_, err = NewDriver(opts, nil, nil)
	assert.Error(t, err)

	opts = DefaultOptions(t.TempDir())
	opts.Datasets = []Dataset{{Name: "x"}}
	_, err = NewDriver(opts, nil, nil)
	assert.Error(t, err)

	opts = DefaultOptions(t.TempDir())
	opts.Datasets = []Dataset{{Name: "x", Aggregations: []reshape.Aggregation{reshape.Mean, reshape.Sum}}}
	_, err = NewDriver(opts, nil, nil)
	assert.ErrorContains(t, err, "both write x.csv")
}

func TestParseDatasetSpec(t *testing.T) {
	ds, err := ParseDatasetSpec("errors.csv:sum,count")
	require.NoError(t, err)
	assert.Equal(t, "errors", ds.Name)
	assert.Equal(t, []reshape.Aggregation{reshape.Sum, reshape.Count}, ds.Aggregations)

	ds, err = ParseDatasetSpec("attempt_times")
	require.NoError(t, err)
	assert.Equal(t, []reshape.Aggregation{reshape.Mean}, ds.Aggregations)

	_, err = ParseDatasetSpec(":mean")
	assert.Error(t, err)
	_, err = ParseDatasetSpec("x:median")
	assert.Error(t, err)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "errors_totals.csv", OutputName("errors", reshape.Count))
	assert.Equal(t, "errors.csv", OutputName("errors.csv", reshape.Sum))
}

func TestListDatasets(t *testing.T) {
	repo := t.TempDir()
	writeInput(t, repo, "zeta", "")
	writeInput(t, repo, "alpha", "")
	require.NoError(t, os.WriteFile(filepath.Join(repo, DefaultInputDir, "notes.txt"), nil, 0o644))

	names, err := ListDatasets(repo, DefaultInputDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)

	_, err = ListDatasets(t.TempDir(), DefaultInputDir)
	var notFound *FileNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
