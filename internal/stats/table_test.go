package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"participant_id", "baseline_P1", "oculus_P2"}
	rows := [][]string{
		{"P01", "5.5", "13.0"},
		{"P1000", "12.25", "7.0"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "participant_id  baseline_P1  oculus_P2" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "P01                     5.5       13.0" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "P1000                 12.25        7.0" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatTableWideRunes(t *testing.T) {
	lines := formatTable([]string{"id", "v"}, [][]string{{"参加者", "1"}}, nil)
	if lines[0] != "id      v" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
