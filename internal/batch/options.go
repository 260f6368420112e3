package batch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/verte-zerg/trialshape/internal/reshape"
)

const (
	// DefaultInputDir is relative to the repository root.
	DefaultInputDir = "data/original"
	// DefaultOutputDir is relative to the repository root.
	DefaultOutputDir = "data/reshaped"
	// TotalsSuffix marks outputs produced by a count aggregation.
	TotalsSuffix = "_totals"
)

// Dataset is one input file and the aggregations to run over it.
type Dataset struct {
	Name         string                `validate:"required"`
	Aggregations []reshape.Aggregation `validate:"min=1"`
}

// Options configures a Driver.
type Options struct {
	RepoDir         string    `validate:"required"`
	InputDir        string    `validate:"required"`
	OutputDir       string    `validate:"required"`
	Datasets        []Dataset `validate:"min=1,dive"`
	DataStartRow    int       `validate:"gte=0"`
	NumDataRows     int       `validate:"gte=0"`
	ContinueOnError bool
	XLSX            bool
}

// DefaultDatasets is the study's hardcoded dataset list.
func DefaultDatasets() []Dataset {
	return []Dataset{
		{Name: "attempt_times", Aggregations: []reshape.Aggregation{reshape.Mean}},
	}
}

// DefaultOptions returns options for repoDir with the study defaults.
func DefaultOptions(repoDir string) Options {
	return Options{
		RepoDir:      repoDir,
		InputDir:     DefaultInputDir,
		OutputDir:    DefaultOutputDir,
		Datasets:     DefaultDatasets(),
		DataStartRow: reshape.DefaultDataStartRow,
		NumDataRows:  reshape.DefaultNumDataRows,
	}
}

var validate = validator.New()

// Validate checks option values and rejects datasets whose outputs collide.
func (o Options) Validate() error {
	if strings.TrimSpace(o.RepoDir) == "" {
		return &MissingArgumentError{Name: "repo-dir"}
	}
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	seen := map[string]string{}
	for _, ds := range o.Datasets {
		for _, agg := range ds.Aggregations {
			out := OutputName(ds.Name, agg)
			key := ds.Name + "/" + agg.String()
			if prev, ok := seen[out]; ok {
				return fmt.Errorf("%s and %s both write %s", prev, key, out)
			}
			seen[out] = key
		}
	}
	return nil
}

// OutputName is the reshaped file name for a dataset and aggregation.
func OutputName(dataset string, agg reshape.Aggregation) string {
	name := datasetBase(dataset)
	if agg == reshape.Count {
		name += TotalsSuffix
	}
	return name + ".csv"
}

// InputPath is where the driver reads a dataset.
func (o Options) InputPath(dataset string) string {
	return filepath.Join(o.RepoDir, o.InputDir, datasetBase(dataset)+".csv")
}

// OutputPath is where the driver writes a dataset's reshaped output.
func (o Options) OutputPath(dataset string, agg reshape.Aggregation) string {
	return filepath.Join(o.RepoDir, o.OutputDir, OutputName(dataset, agg))
}

// ParseDatasetSpec parses "name:agg[,agg...]"; a bare name means mean.
func ParseDatasetSpec(spec string) (Dataset, error) {
	name, aggs, hasAggs := strings.Cut(strings.TrimSpace(spec), ":")
	name = datasetBase(strings.TrimSpace(name))
	if name == "" {
		return Dataset{}, fmt.Errorf("dataset name is empty in %q", spec)
	}
	if !hasAggs {
		return Dataset{Name: name, Aggregations: []reshape.Aggregation{reshape.Mean}}, nil
	}
	return NewDataset(name, strings.Split(aggs, ","))
}

// NewDataset builds a Dataset from aggregation names.
func NewDataset(name string, aggNames []string) (Dataset, error) {
	ds := Dataset{Name: datasetBase(name)}
	for _, n := range aggNames {
		if strings.TrimSpace(n) == "" {
			continue
		}
		agg, err := reshape.ParseAggregation(n)
		if err != nil {
			return Dataset{}, fmt.Errorf("dataset %s: %w", name, err)
		}
		ds.Aggregations = append(ds.Aggregations, agg)
	}
	if len(ds.Aggregations) == 0 {
		return Dataset{}, fmt.Errorf("dataset %s: no aggregations", name)
	}
	return ds, nil
}

func datasetBase(name string) string {
	return strings.TrimSuffix(name, ".csv")
}
