package game

import (
	"testing"
)

func TestParseOutcome(t *testing.T) {
	for _, valid := range []string{"P", "B", "T"} {
		o, err := ParseOutcome(valid)
		if err != nil {
			t.Errorf("ParseOutcome(%q) returned error: %v", valid, err)
		}
		if string(o) != valid {
			t.Errorf("ParseOutcome(%q) = %q", valid, o)
		}
	}

	for _, invalid := range []string{"", "p", "X", "PB"} {
		if _, err := ParseOutcome(invalid); err == nil {
			t.Errorf("ParseOutcome(%q) expected error, got nil", invalid)
		}
	}
}

func TestWindowValid(t *testing.T) {
	tests := []struct {
		name string
		w    Window
		max  int
		want bool
	}{
		{"valid", Window{Player, Banker, Tie}, 10, true},
		{"empty", Window{}, 10, false},
		{"too long", Window{Player, Banker, Tie}, 2, false},
		{"bad label", Window{Player, "X"}, 10, false},
		{"no max", Window{Player, Banker}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Valid(tt.max); got != tt.want {
				t.Errorf("Valid(%d) = %v, want %v", tt.max, got, tt.want)
			}
		})
	}
}

func TestWindowStreak(t *testing.T) {
	tests := []struct {
		name    string
		w       Window
		outcome Outcome
		run     int
	}{
		{"empty", Window{}, "", 0},
		{"single", Window{Banker}, Banker, 1},
		{"run of three", Window{Player, Banker, Banker, Banker}, Banker, 3},
		{"broken run", Window{Banker, Banker, Player}, Player, 1},
		{"full window", Window{Tie, Tie}, Tie, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, run := tt.w.Streak()
			if outcome != tt.outcome || run != tt.run {
				t.Errorf("Streak() = (%q, %d), want (%q, %d)", outcome, run, tt.outcome, tt.run)
			}
		})
	}
}

func TestWindowCounts(t *testing.T) {
	w := Window{Player, Banker, Player, Tie, Player}
	counts := w.Counts()
	if counts[Player] != 3 || counts[Banker] != 1 || counts[Tie] != 1 {
		t.Errorf("Counts() = %v", counts)
	}
}
