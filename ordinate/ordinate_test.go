package ordinate_test

import (
	"testing"

	"github.com/permaweb/ao-cu/ordinate"
)

func TestCompareIntegers(t *testing.T) {
	if !ordinate.Before("2", "10") {
		t.Fatalf("expected 2 < 10 under big-integer comparison")
	}
	if ordinate.Before("10", "2") {
		t.Fatalf("10 should not be before 2")
	}
}

func TestCompareComposite(t *testing.T) {
	a := ordinate.Ordinate("100:5:abc")
	b := ordinate.Ordinate("100:5:abd")
	if !ordinate.Before(a, b) {
		t.Fatalf("expected suffix tiebreak: %q < %q", a, b)
	}
	c := ordinate.Ordinate("99:999:zzz")
	if !ordinate.Before(c, a) {
		t.Fatalf("expected block-height prefix to dominate suffix: %q < %q", c, a)
	}
}

func TestSortKeyMatchesCompare(t *testing.T) {
	pairs := []ordinate.Ordinate{"2", "10", "100:5:abc", "100:5:abd", "99:999:zzz"}
	for i := range pairs {
		for j := range pairs {
			want := ordinate.Compare(pairs[i], pairs[j])
			got := 0
			a, b := ordinate.SortKey(pairs[i]), ordinate.SortKey(pairs[j])
			switch {
			case a < b:
				got = -1
			case a > b:
				got = 1
			}
			if (want < 0) != (got < 0) || (want > 0) != (got > 0) {
				t.Fatalf("SortKey order mismatch for %q vs %q: Compare=%d sortkey-cmp=%d", pairs[i], pairs[j], want, got)
			}
		}
	}
}

func TestMaxAndZero(t *testing.T) {
	if !ordinate.Zero.IsZero() {
		t.Fatalf("Zero should report IsZero")
	}
	if ordinate.Max("3", "7") != "7" {
		t.Fatalf("expected Max(3,7) == 7")
	}
}
