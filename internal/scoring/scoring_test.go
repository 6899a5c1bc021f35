package scoring

import (
	"errors"
	"math"
	"testing"

	"math-problem-service/internal/domain"
)

func TestEvaluateTolerance(t *testing.T) {
	out, err := Evaluate(100, 100.0000000001, domain.DifficultyEasy, false)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.IsCorrect {
		t.Fatalf("expected float noise to be absorbed")
	}

	out, err = Evaluate(100, 100.1, domain.DifficultyEasy, false)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.IsCorrect {
		t.Fatalf("expected 100.1 to be wrong")
	}
}

func TestEvaluateTable(t *testing.T) {
	tests := []struct {
		name       string
		correct    float64
		user       float64
		difficulty domain.Difficulty
		hint       bool
		want       Outcome
	}{
		{"easy correct", 5, 5, domain.DifficultyEasy, false, Outcome{true, 1}},
		{"easy correct hint", 5, 5, domain.DifficultyEasy, true, Outcome{true, 0}},
		{"easy wrong", 50, 49, domain.DifficultyEasy, false, Outcome{false, 0}},
		{"easy wrong hint", 5, 4, domain.DifficultyEasy, true, Outcome{false, -1}},
		{"medium correct", 5, 5, domain.DifficultyMedium, false, Outcome{true, 2}},
		{"medium correct hint", 5, 5, domain.DifficultyMedium, true, Outcome{true, 1}},
		{"medium wrong", 5, 4, domain.DifficultyMedium, false, Outcome{false, 0}},
		{"medium wrong hint", 50, 49, domain.DifficultyMedium, true, Outcome{false, -1}},
		{"hard correct", 5, 5, domain.DifficultyHard, false, Outcome{true, 3}},
		{"hard correct hint", 50, 50, domain.DifficultyHard, true, Outcome{true, 2}},
		{"hard wrong", 5, 4, domain.DifficultyHard, false, Outcome{false, 0}},
		{"hard wrong hint", 5, 4, domain.DifficultyHard, true, Outcome{false, -1}},
		{"decimal answer", 12.5, 12.5, domain.DifficultyMedium, false, Outcome{true, 2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Evaluate(tc.correct, tc.user, tc.difficulty, tc.hint)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestEvaluateRejectsUnknownDifficulty(t *testing.T) {
	_, err := Evaluate(1, 1, domain.Difficulty("legendary"), false)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEqualNonFinite(t *testing.T) {
	if Equal(1, math.NaN()) {
		t.Fatalf("NaN must never match")
	}
	if Equal(math.Inf(1), math.Inf(1)) {
		t.Fatalf("infinities must never match")
	}
}
