package batch

import "fmt"

// MissingArgumentError reports a required command-line argument that was not given.
type MissingArgumentError struct {
	Name string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing argument: %s", e.Name)
}

// FileNotFoundError reports an input dataset that does not exist.
type FileNotFoundError struct {
	Path string
	Err  error
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("input file not found: %s", e.Path)
}

func (e *FileNotFoundError) Unwrap() error {
	return e.Err
}

// DatasetError ties a failure to the (dataset, aggregation) unit that produced it.
type DatasetError struct {
	Dataset     string
	Aggregation string
	Err         error
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Dataset, e.Aggregation, e.Err)
}

func (e *DatasetError) Unwrap() error {
	return e.Err
}
