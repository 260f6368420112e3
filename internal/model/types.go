// Package model defines shared data structures.
package model

import "time"

// Run statuses recorded in history.
const (
	RunStatusOK     = "ok"
	RunStatusFailed = "failed"
)

// RunRecord captures one (dataset, aggregation) batch run.
type RunRecord struct {
	ID           string
	Dataset      string
	Aggregation  string
	InputPath    string
	OutputPath   string
	StartedAt    time.Time
	EndedAt      time.Time
	Participants int
	Status       string
	Error        string
}

// Duration is the wall time of the run.
func (r RunRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// RunFilter selects runs from history.
type RunFilter struct {
	Dataset    string
	OutputPath string
	Since      *time.Time
	Last       int
}

// ColumnSummary describes one numeric column of a reshaped table.
type ColumnSummary struct {
	Name    string
	Values  []float64
	Count   int
	Missing int
	Min     float64
	Max     float64
	Mean    float64
	StdDev  float64
}
