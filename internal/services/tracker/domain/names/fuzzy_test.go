package names

import "testing"

func TestEditDistanceWithin(t *testing.T) {
	tests := []struct {
		a, b     string
		max      int
		wantDist int
		wantOK   bool
	}{
		{"luna", "luna", 0, 0, true},
		{"luna", "lune", 1, 1, true},
		{"luna", "lunna", 1, 1, true},
		{"luna", "lua", 1, 1, true},
		{"luna", "nalu", 1, 0, false},
		{"john", "jon", 1, 1, true},
		{"john", "joan", 2, 1, true},
		{"blackwood", "blackwod", 2, 1, true},
		{"short", "entirely-different", 2, 0, false},
		{"", "ab", 2, 2, true},
		{"", "abc", 2, 0, false},
		{"zoë", "zoe", 1, 1, true}, // rune-based, not byte-based
	}
	for _, tc := range tests {
		dist, ok := editDistanceWithin(tc.a, tc.b, tc.max)
		if ok != tc.wantOK {
			t.Errorf("editDistanceWithin(%q, %q, %d) ok = %v, want %v", tc.a, tc.b, tc.max, ok, tc.wantOK)
			continue
		}
		if ok && dist != tc.wantDist {
			t.Errorf("editDistanceWithin(%q, %q, %d) = %d, want %d", tc.a, tc.b, tc.max, dist, tc.wantDist)
		}
	}
}

func TestFuzzyAllowanceScalesWithLength(t *testing.T) {
	if got := fuzzyAllowance("luna"); got != 1 {
		t.Errorf("fuzzyAllowance(luna) = %d, want 1", got)
	}
	if got := fuzzyAllowance("abcde"); got != 1 {
		t.Errorf("fuzzyAllowance(5 runes) = %d, want 1", got)
	}
	if got := fuzzyAllowance("abcdef"); got != 2 {
		t.Errorf("fuzzyAllowance(6 runes) = %d, want 2", got)
	}
	if got := fuzzyAllowance("blackwood"); got != 2 {
		t.Errorf("fuzzyAllowance(blackwood) = %d, want 2", got)
	}
}
