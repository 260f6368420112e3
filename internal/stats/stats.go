// Package stats contains column summaries and text rendering for reshaped tables.
package stats

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/verte-zerg/trialshape/internal/grid"
	"github.com/verte-zerg/trialshape/internal/model"
)

const sparkChars = " .:-=+*#%@"

// SummarizeColumns computes per-column statistics for a reshaped grid. Row 0
// is the header and column 0 the participant id; blank or non-numeric cells
// count as missing.
func SummarizeColumns(g grid.Grid) []model.ColumnSummary {
	if len(g) == 0 {
		return nil
	}
	header := g[0]
	if len(header) < 2 {
		return nil
	}
	out := make([]model.ColumnSummary, 0, len(header)-1)
	for col := 1; col < len(header); col++ {
		sum := model.ColumnSummary{Name: strings.TrimSpace(header[col])}
		for _, row := range g[1:] {
			if col >= len(row) {
				sum.Missing++
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
			if err != nil {
				sum.Missing++
				continue
			}
			sum.Values = append(sum.Values, v)
		}
		sum.Count = len(sum.Values)
		if sum.Count > 0 {
			sum.Min = floats.Min(sum.Values)
			sum.Max = floats.Max(sum.Values)
			sum.Mean, sum.StdDev = stat.PopMeanStdDev(sum.Values, nil)
		}
		out = append(out, sum)
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := floats.Min(values)
	maxVal := floats.Max(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderGrid prints a grid as an aligned table with right-aligned value columns.
func RenderGrid(w io.Writer, g grid.Grid) error {
	if len(g) == 0 {
		_, err := fmt.Fprintln(w, "Empty table.")
		return err
	}
	headers := trimCells(g[0])
	rows := make([][]string, 0, len(g)-1)
	for _, row := range g[1:] {
		rows = append(rows, trimCells(row))
	}
	rightAlign := map[int]bool{}
	for i := 1; i < len(headers); i++ {
		rightAlign[i] = true
	}
	return writeLines(w, formatTable(headers, rows, rightAlign))
}

// RenderSummary prints per-column statistics with a sparkline across participants.
func RenderSummary(w io.Writer, summaries []model.ColumnSummary) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No columns found.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Summary"); err != nil {
		return err
	}
	headers := []string{"Column", "N", "Missing", "Min", "Mean", "Max", "Std Dev", "Participants"}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		if s.Count == 0 {
			rows = append(rows, []string{s.Name, "0", strconv.Itoa(s.Missing), "-", "-", "-", "-", ""})
			continue
		}
		rows = append(rows, []string{
			s.Name,
			strconv.Itoa(s.Count),
			strconv.Itoa(s.Missing),
			fmt.Sprintf("%.2f", s.Min),
			fmt.Sprintf("%.2f", s.Mean),
			fmt.Sprintf("%.2f", s.Max),
			fmt.Sprintf("%.2f", s.StdDev),
			Sparkline(s.Values),
		})
	}
	rightAlign := map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true}
	if err := writeLines(w, formatTable(headers, rows, rightAlign)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderRuns prints run history, oldest first.
func RenderRuns(w io.Writer, runs []model.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	headers := []string{"Ended", "Dataset", "Agg", "Rows", "Took", "Status", "Output"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := r.Status
		if r.Error != "" {
			status += ": " + r.Error
		}
		rows = append(rows, []string{
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			r.Dataset,
			r.Aggregation,
			strconv.Itoa(r.Participants),
			r.Duration().Round(time.Millisecond).String(),
			status,
			r.OutputPath,
		})
	}
	return writeLines(w, formatTable(headers, rows, map[int]bool{3: true, 4: true}))
}

func writeLines(w io.Writer, lines []string) error {
	width := terminalWidth(w)
	for _, line := range lines {
		if width > 0 {
			line = truncate(line, width)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func trimCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
