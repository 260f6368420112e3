package reshape

import "fmt"

// NumericParseError reports a non-blank cell that is not a number.
type NumericParseError struct {
	Row       int
	Column    int
	Condition string
	Part      string
	Value     string
	Err       error
}

func (e *NumericParseError) Error() string {
	return fmt.Sprintf("row %d, %s %s (column %d): cannot parse %q as a number",
		e.Row, e.Condition, e.Part, e.Column, e.Value)
}

func (e *NumericParseError) Unwrap() error {
	return e.Err
}

// EmptyAggregationError reports an aggregation that needs at least one value.
type EmptyAggregationError struct {
	Row         int
	Condition   string
	Part        string
	Aggregation string
}

func (e *EmptyAggregationError) Error() string {
	if e.Condition == "" {
		return fmt.Sprintf("%s of an empty sequence is undefined", e.Aggregation)
	}
	return fmt.Sprintf("row %d, %s %s: %s of an empty sequence is undefined",
		e.Row, e.Condition, e.Part, e.Aggregation)
}

// UnknownColumnBlockError reports a condition or part the layout does not define.
type UnknownColumnBlockError struct {
	Kind string
	Name string
}

func (e *UnknownColumnBlockError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
}
