// Package reshape turns wide condition-by-trial grids into per-participant tables.
package reshape

// ParticipantColumn holds the participant identifier in every data row.
const ParticipantColumn = 0

// ParticipantHeader names the identifier column in reshaped output.
const ParticipantHeader = "participant_id"

// ConditionBlock maps a condition to its first column in the source grid.
type ConditionBlock struct {
	Name  string
	Start int
}

// PartBlock maps a part to column offsets within a condition block.
type PartBlock struct {
	Name    string
	Offsets []int
}

// Layout describes where each (condition, part) slice lives in a row.
// Iteration order is conditions outer, parts inner.
type Layout struct {
	conditions []ConditionBlock
	parts      []PartBlock
}

// DefaultLayout is the 3 conditions x 15 columns layout of the trial exports.
func DefaultLayout() Layout {
	return NewLayout(
		[]ConditionBlock{
			{Name: "baseline", Start: 1},
			{Name: "monitor", Start: 16},
			{Name: "oculus", Start: 31},
		},
		[]PartBlock{
			{Name: "P1", Offsets: offsetRange(0, 10)},
			{Name: "P2", Offsets: offsetRange(10, 15)},
		},
	)
}

// NewLayout copies the given blocks into an immutable Layout.
func NewLayout(conditions []ConditionBlock, parts []PartBlock) Layout {
	l := Layout{
		conditions: append([]ConditionBlock(nil), conditions...),
		parts:      make([]PartBlock, len(parts)),
	}
	for i, p := range parts {
		l.parts[i] = PartBlock{Name: p.Name, Offsets: append([]int(nil), p.Offsets...)}
	}
	return l
}

// Conditions returns condition names in iteration order.
func (l Layout) Conditions() []string {
	out := make([]string, len(l.conditions))
	for i, c := range l.conditions {
		out[i] = c.Name
	}
	return out
}

// Parts returns part names in iteration order.
func (l Layout) Parts() []string {
	out := make([]string, len(l.parts))
	for i, p := range l.parts {
		out[i] = p.Name
	}
	return out
}

// Resolve returns the absolute column indices of a (condition, part) slice.
func (l Layout) Resolve(condition, part string) ([]int, error) {
	start, ok := l.conditionStart(condition)
	if !ok {
		return nil, &UnknownColumnBlockError{Kind: "condition", Name: condition}
	}
	offsets, ok := l.partOffsets(part)
	if !ok {
		return nil, &UnknownColumnBlockError{Kind: "part", Name: part}
	}
	cols := make([]int, len(offsets))
	for i, off := range offsets {
		cols[i] = start + off
	}
	return cols, nil
}

// Headers returns the reshaped header row.
func (l Layout) Headers() []string {
	headers := make([]string, 0, 1+len(l.conditions)*len(l.parts))
	headers = append(headers, ParticipantHeader)
	for _, c := range l.conditions {
		for _, p := range l.parts {
			headers = append(headers, headerName(c.Name, p.Name))
		}
	}
	return headers
}

// RequiredWidth is the minimum number of cells a data row must have.
func (l Layout) RequiredWidth() int {
	maxCol := ParticipantColumn
	for _, c := range l.conditions {
		for _, p := range l.parts {
			for _, off := range p.Offsets {
				if col := c.Start + off; col > maxCol {
					maxCol = col
				}
			}
		}
	}
	return maxCol + 1
}

func (l Layout) conditionStart(name string) (int, bool) {
	for _, c := range l.conditions {
		if c.Name == name {
			return c.Start, true
		}
	}
	return 0, false
}

func (l Layout) partOffsets(name string) ([]int, bool) {
	for _, p := range l.parts {
		if p.Name == name {
			return p.Offsets, true
		}
	}
	return nil, false
}

func headerName(condition, part string) string {
	return condition + "_" + part
}

func offsetRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
