package reshape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMonitorP2(t *testing.T) {
	cols, err := DefaultLayout().Resolve("monitor", "P2")
	require.NoError(t, err)
	assert.Equal(t, []int{26, 27, 28, 29, 30}, cols)
}

func TestResolveBaselineP1StartsAfterParticipantColumn(t *testing.T) {
	cols, err := DefaultLayout().Resolve("baseline", "P1")
	require.NoError(t, err)
	require.Len(t, cols, 10)
	assert.Equal(t, 1, cols[0])
	assert.Equal(t, 10, cols[9])
}

func TestResolveUnknownBlock(t *testing.T) {
	var unknown *UnknownColumnBlockError

	_, err := DefaultLayout().Resolve("robot", "P1")
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "condition", unknown.Kind)

	_, err = DefaultLayout().Resolve("oculus", "P3")
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "part", unknown.Kind)
}

func TestRequiredWidth(t *testing.T) {
	assert.Equal(t, 46, DefaultLayout().RequiredWidth())
}

func TestNewLayoutCopiesBlocks(t *testing.T) {
	parts := []PartBlock{{Name: "P1", Offsets: []int{0, 1}}}
	l := NewLayout([]ConditionBlock{{Name: "a", Start: 1}}, parts)
	parts[0].Offsets[0] = 99

	cols, err := l.Resolve("a", "P1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, cols, "layout must not share the caller's slices")
}
