package reshape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanOfEmptyFails(t *testing.T) {
	_, err := Mean.Reduce(nil)
	var empty *EmptyAggregationError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, "mean", empty.Aggregation)
}

func TestReduce(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	cases := []struct {
		agg  Aggregation
		want float64
	}{
		{Mean, 2.5},
		{Sum, 10},
		{Count, 4},
	}
	for _, tc := range cases {
		got, err := tc.agg.Reduce(values)
		require.NoError(t, err, tc.agg.String())
		assert.Equal(t, tc.want, got, tc.agg.String())
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		agg  Aggregation
		v    float64
		want string
	}{
		{Mean, 5.5, "5.5"},
		{Mean, 2, "2.0"},
		{Sum, 55, "55.0"},
		{Sum, -0.25, "-0.25"},
		{Count, 10, "10"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.agg.Format(tc.v), "%s.Format(%v)", tc.agg, tc.v)
	}
}

func TestParseAggregation(t *testing.T) {
	for _, name := range []string{"mean", " Sum ", "COUNT"} {
		_, err := ParseAggregation(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseAggregation("median")
	assert.Error(t, err)
}
