package reshape

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Aggregation reduces the numeric cells of one (condition, part) slice.
type Aggregation int

const (
	// Mean is the arithmetic mean; undefined for an empty slice.
	Mean Aggregation = iota
	// Sum adds the values; zero for an empty slice.
	Sum
	// Count is the number of non-blank cells.
	Count
)

var aggregationNames = map[Aggregation]string{
	Mean:  "mean",
	Sum:   "sum",
	Count: "count",
}

// String implements fmt.Stringer.
func (a Aggregation) String() string {
	if name, ok := aggregationNames[a]; ok {
		return name
	}
	return fmt.Sprintf("aggregation(%d)", int(a))
}

// ParseAggregation maps a name such as "mean" to an Aggregation.
func ParseAggregation(name string) (Aggregation, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	for agg, n := range aggregationNames {
		if n == name {
			return agg, nil
		}
	}
	return 0, fmt.Errorf("unknown aggregation %q (want mean, sum or count)", name)
}

// Reduce applies the aggregation to values.
func (a Aggregation) Reduce(values []float64) (float64, error) {
	switch a {
	case Mean:
		if len(values) == 0 {
			return 0, &EmptyAggregationError{Aggregation: a.String()}
		}
		return stat.Mean(values, nil), nil
	case Sum:
		return floats.Sum(values), nil
	case Count:
		return float64(len(values)), nil
	default:
		return 0, fmt.Errorf("unsupported aggregation %d", int(a))
	}
}

// Format renders a reduced value. Counts are integers; mean and sum keep a
// decimal point even for integral values.
func (a Aggregation) Format(v float64) string {
	if a == Count {
		return strconv.FormatInt(int64(v), 10)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
