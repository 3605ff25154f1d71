package math

import "testing"

func TestMaximum(t *testing.T) {
	if got := Maximum(3, 7); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if got := Maximum(7, 3); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

func TestMinimum(t *testing.T) {
	if got := Minimum(3, 7); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := Minimum(7, 3); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

func TestAdjustment(t *testing.T) {
	if got := Adjustment(50, 10); got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
}

func TestSelectionCount(t *testing.T) {
	tests := []struct {
		candidates int
		percentage int
		want       int
	}{
		{10, 25, 3},
		{10, 30, 3},
		{10, 31, 4},
		{10, 100, 10},
		{1, 1, 1},
		{0, 25, 0},
		{10, 0, 0},
		{3, 50, 2},
	}
	for _, tt := range tests {
		if got := SelectionCount(tt.candidates, tt.percentage); got != tt.want {
			t.Errorf("SelectionCount(%d, %d) = %d, want %d", tt.candidates, tt.percentage, got, tt.want)
		}
	}
}
