package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Difficulty is the closed set of problem difficulty levels.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists every valid difficulty in ascending order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Valid reports whether d is one of Difficulties.
func (d Difficulty) Valid() bool {
	for _, known := range Difficulties {
		if d == known {
			return true
		}
	}
	return false
}

// ParseDifficulty maps raw input to a Difficulty. Unknown values fail with ErrInvalidInput.
func ParseDifficulty(raw string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(raw)))
	if d.Valid() {
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, raw)
}

// Topic is the closed set of arithmetic operations a problem may focus on.
type Topic string

const (
	TopicAddition       Topic = "addition"
	TopicSubtraction    Topic = "subtraction"
	TopicMultiplication Topic = "multiplication"
	TopicDivision       Topic = "division"
	TopicMixed          Topic = "mixed"
)

// Topics lists every valid topic.
var Topics = []Topic{TopicAddition, TopicSubtraction, TopicMultiplication, TopicDivision, TopicMixed}

// Valid reports whether t is one of Topics.
func (t Topic) Valid() bool {
	for _, known := range Topics {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTopic maps raw input to a Topic. Unknown values fail with ErrInvalidInput.
func ParseTopic(raw string) (Topic, error) {
	t := Topic(strings.ToLower(strings.TrimSpace(raw)))
	if t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown topic %q", ErrInvalidInput, raw)
}

// Problem is a validated problem payload produced by the text provider.
type Problem struct {
	Text          string
	FinalAnswer   float64
	Hint          string
	SolutionSteps string
}

// Session is one generated problem with its ground-truth answer, owned by the
// account its submission will be credited to. Immutable once stored; hint
// reveals are recorded beside it.
type Session struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"accountId"`
	ProblemText   string     `json:"problemText"`
	CorrectAnswer float64    `json:"correctAnswer"`
	Difficulty    Difficulty `json:"difficulty"`
	Topic         Topic      `json:"topic"`
	Hint          string     `json:"hint"`
	SolutionSteps string     `json:"solutionSteps"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Submission is the single authoritative answer recorded against a Session.
type Submission struct {
	SessionID        string    `json:"sessionId"`
	AccountID        string    `json:"accountId"`
	UserAnswer       float64   `json:"userAnswer"`
	HintUsed         bool      `json:"hintUsed"`
	IsCorrect        bool      `json:"isCorrect"`
	ScoreDelta       int       `json:"scoreDelta"`
	FeedbackText     string    `json:"feedbackText"`
	FeedbackFallback bool      `json:"feedbackFallback"`
	CreatedAt        time.Time `json:"createdAt"`
}

// AnonymousPrefix marks account ids minted by the server for visitors
// without an account. Anonymous accounts stay off the leaderboard.
const AnonymousPrefix = "anon-"

// NewAnonymousAccount mints a fresh anonymous account id.
func NewAnonymousAccount() string {
	return AnonymousPrefix + uuid.NewString()
}

// IsAnonymous reports whether accountID was minted by NewAnonymousAccount.
func IsAnonymous(accountID string) bool {
	return strings.HasPrefix(accountID, AnonymousPrefix)
}

// CreditedAccount picks the account a submission scores for: the session
// owner when the session has one, otherwise the submission's own account.
func CreditedAccount(sessionOwner, submissionAccount string) (string, error) {
	if owner := strings.TrimSpace(sessionOwner); owner != "" {
		return owner, nil
	}
	if acct := strings.TrimSpace(submissionAccount); acct != "" {
		return acct, nil
	}
	return "", fmt.Errorf("%w: submission has no account", ErrInvalidInput)
}

// ScoreAccount is the durable running total of score deltas for one account.
type ScoreAccount struct {
	AccountID    string    `json:"accountId"`
	Total        int       `json:"total"`
	Attempts     int       `json:"attempts"`
	CorrectCount int       `json:"correctCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Apply folds an accepted submission into the account.
func (a ScoreAccount) Apply(sub Submission) ScoreAccount {
	a.AccountID = sub.AccountID
	a.Total += sub.ScoreDelta
	a.Attempts++
	if sub.IsCorrect {
		a.CorrectCount++
	}
	a.UpdatedAt = sub.CreatedAt
	return a
}

// HistoryEntry is a Session joined with its Submission, if one exists.
type HistoryEntry struct {
	Session    Session     `json:"session"`
	Submission *Submission `json:"submission,omitempty"`
}
