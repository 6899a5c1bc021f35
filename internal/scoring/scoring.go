// Package scoring decides answer correctness and the point delta a submission earns.
package scoring

import (
	"fmt"
	"math"

	"math-problem-service/internal/domain"
)

// Tolerance absorbs float noise from answers that went through JSON or text round-trips.
const Tolerance = 1e-9

// Outcome is the result of grading one answer.
type Outcome struct {
	IsCorrect bool `json:"isCorrect"`
	Delta     int  `json:"delta"`
}

type row struct {
	correct     int
	correctHint int
	wrong       int
	wrongHint   int
}

var table = map[domain.Difficulty]row{
	domain.DifficultyEasy:   {correct: 1, correctHint: 0, wrong: 0, wrongHint: -1},
	domain.DifficultyMedium: {correct: 2, correctHint: 1, wrong: 0, wrongHint: -1},
	domain.DifficultyHard:   {correct: 3, correctHint: 2, wrong: 0, wrongHint: -1},
}

// Equal reports whether two answers match within Tolerance. Non-finite values never match.
func Equal(correctAnswer, userAnswer float64) bool {
	if math.IsNaN(userAnswer) || math.IsInf(userAnswer, 0) {
		return false
	}
	if math.IsNaN(correctAnswer) || math.IsInf(correctAnswer, 0) {
		return false
	}
	return math.Abs(correctAnswer-userAnswer) <= Tolerance
}

// Evaluate grades userAnswer against correctAnswer and looks up the delta for the difficulty.
func Evaluate(correctAnswer, userAnswer float64, difficulty domain.Difficulty, hintUsed bool) (Outcome, error) {
	r, ok := table[difficulty]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: no score row for difficulty %q", domain.ErrInvalidInput, difficulty)
	}

	correct := Equal(correctAnswer, userAnswer)
	var delta int
	switch {
	case correct && !hintUsed:
		delta = r.correct
	case correct && hintUsed:
		delta = r.correctHint
	case !correct && !hintUsed:
		delta = r.wrong
	default:
		delta = r.wrongHint
	}
	return Outcome{IsCorrect: correct, Delta: delta}, nil
}
