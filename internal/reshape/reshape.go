package reshape

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/verte-zerg/trialshape/internal/grid"
)

const (
	// DefaultDataStartRow skips the two header/metadata rows of the exports.
	DefaultDataStartRow = 2
	// DefaultNumDataRows is the participant count of the study exports.
	DefaultNumDataRows = 20
)

// OutputRow is one participant's aggregated values in layout order.
type OutputRow struct {
	ParticipantID string
	Values        []float64
}

// Table is the reshaped result: header plus one row per participant.
type Table struct {
	Header      []string
	Rows        []OutputRow
	Aggregation Aggregation
}

// Cells stringifies the table, header first.
func (t Table) Cells() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Header...))
	for _, r := range t.Rows {
		row := make([]string, 0, len(r.Values)+1)
		row = append(row, r.ParticipantID)
		for _, v := range r.Values {
			row = append(row, t.Aggregation.Format(v))
		}
		out = append(out, row)
	}
	return out
}

// Reshaper applies a Layout to grids.
type Reshaper struct {
	layout Layout
	width  int
}

// New returns a Reshaper for the layout.
func New(layout Layout) *Reshaper {
	return &Reshaper{layout: layout, width: layout.RequiredWidth()}
}

// Layout returns the reshaper's column layout.
func (r *Reshaper) Layout() Layout {
	return r.layout
}

// Run aggregates rows [start, start+count) of g.
func (r *Reshaper) Run(g grid.Grid, start, count int, agg Aggregation) (Table, error) {
	if start < 0 {
		return Table{}, fmt.Errorf("data start row must be >= 0, got %d", start)
	}
	if count < 0 {
		return Table{}, fmt.Errorf("data row count must be >= 0, got %d", count)
	}
	if count > math.MaxInt-start {
		return Table{}, fmt.Errorf("data rows %d+%d exceed the addressable range", start, count)
	}
	table := Table{
		Header:      r.layout.Headers(),
		Rows:        make([]OutputRow, 0, min(count, len(g))),
		Aggregation: agg,
	}
	for rowIdx := start; rowIdx < start+count; rowIdx++ {
		row, err := g.Row(rowIdx, r.width)
		if err != nil {
			return Table{}, err
		}
		out, err := r.reshapeRow(rowIdx, row, agg)
		if err != nil {
			return Table{}, err
		}
		table.Rows = append(table.Rows, out)
	}
	return table, nil
}

func (r *Reshaper) reshapeRow(rowIdx int, row []string, agg Aggregation) (OutputRow, error) {
	out := OutputRow{
		ParticipantID: row[ParticipantColumn],
		Values:        make([]float64, 0, len(r.layout.conditions)*len(r.layout.parts)),
	}
	for _, c := range r.layout.conditions {
		for _, p := range r.layout.parts {
			cols, err := r.layout.Resolve(c.Name, p.Name)
			if err != nil {
				return OutputRow{}, err
			}
			values, err := sliceValues(rowIdx, row, cols, c.Name, p.Name)
			if err != nil {
				return OutputRow{}, err
			}
			v, err := agg.Reduce(values)
			if err != nil {
				var empty *EmptyAggregationError
				if errors.As(err, &empty) {
					empty.Row = rowIdx
					empty.Condition = c.Name
					empty.Part = p.Name
				}
				return OutputRow{}, err
			}
			out.Values = append(out.Values, v)
		}
	}
	return out, nil
}

// sliceValues parses the non-blank cells at cols.
func sliceValues(rowIdx int, row []string, cols []int, condition, part string) ([]float64, error) {
	values := make([]float64, 0, len(cols))
	for _, col := range cols {
		cell := strings.TrimSpace(row[col])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, &NumericParseError{
				Row:       rowIdx,
				Column:    col,
				Condition: condition,
				Part:      part,
				Value:     row[col],
				Err:       err,
			}
		}
		values = append(values, v)
	}
	return values, nil
}

// Options controls Reshape.
type Options struct {
	Separator    string
	Terminator   string
	DataStartRow int
	NumDataRows  int
}

// DefaultOptions matches the study CSV exports.
func DefaultOptions() Options {
	return Options{
		Separator:    ",",
		Terminator:   "\n",
		DataStartRow: DefaultDataStartRow,
		NumDataRows:  DefaultNumDataRows,
	}
}

// Reshape parses in, reshapes it with the default layout and writes the table to out.
func Reshape(in io.Reader, out io.Writer, agg Aggregation, opts Options) (Table, error) {
	g, err := grid.Parse(in, opts.Separator, opts.Terminator)
	if err != nil {
		return Table{}, err
	}
	table, err := New(DefaultLayout()).Run(g, opts.DataStartRow, opts.NumDataRows, agg)
	if err != nil {
		return Table{}, err
	}
	if err := grid.Write(out, table.Cells()); err != nil {
		return Table{}, err
	}
	return table, nil
}
