// Package grid parses and writes separator-delimited text grids.
package grid

import (
	"fmt"
	"io"
	"strings"
)

// OutputSeparator joins cells when writing a grid.
const OutputSeparator = ", "

// Grid is a row-major table of string cells.
type Grid [][]string

// MalformedInputError reports a row that is missing or too short for the
// columns a caller needs.
type MalformedInputError struct {
	Row  int
	Have int
	Need int
}

func (e *MalformedInputError) Error() string {
	if e.Have < 0 {
		return fmt.Sprintf("row %d: missing (need %d cells)", e.Row, e.Need)
	}
	return fmt.Sprintf("row %d: has %d cells, need at least %d", e.Row, e.Have, e.Need)
}

// Parse reads all of r and splits it into lines on term and cells on sep.
// Cells are not unquoted; they must not contain sep or term.
func Parse(r io.Reader, sep, term string) (Grid, error) {
	if sep == "" {
		return nil, fmt.Errorf("separator is empty")
	}
	if term == "" {
		return nil, fmt.Errorf("line terminator is empty")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return ParseString(string(data), sep, term)
}

// ParseString is Parse over an in-memory string.
func ParseString(text, sep, term string) (Grid, error) {
	if sep == "" {
		return nil, fmt.Errorf("separator is empty")
	}
	if term == "" {
		return nil, fmt.Errorf("line terminator is empty")
	}
	if text == "" {
		return Grid{}, nil
	}
	lines := strings.Split(text, term)
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	g := make(Grid, 0, len(lines))
	for _, line := range lines {
		if term == "\n" {
			line = strings.TrimSuffix(line, "\r")
		}
		g = append(g, strings.Split(line, sep))
	}
	return g, nil
}

// Row returns row i, failing when it does not exist or has fewer than need cells.
func (g Grid) Row(i, need int) ([]string, error) {
	if i < 0 || i >= len(g) {
		return nil, &MalformedInputError{Row: i, Have: -1, Need: need}
	}
	row := g[i]
	if len(row) < need {
		return nil, &MalformedInputError{Row: i, Have: len(row), Need: need}
	}
	return row, nil
}

// Write serializes rows joined by OutputSeparator, one row per line.
func Write(w io.Writer, rows [][]string) error {
	for _, row := range rows {
		if _, err := io.WriteString(w, strings.Join(row, OutputSeparator)+"\n"); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}
