package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"math-problem-service/internal/domain"
	"math-problem-service/internal/problem"
	"math-problem-service/internal/scoring"
	"math-problem-service/internal/validate"
)

const (
	// DefaultHistoryLimit applies when callers ask for a non-positive limit.
	DefaultHistoryLimit = 10
	// MaxHistoryLimit caps a single history read.
	MaxHistoryLimit = 100
)

// SessionRepository abstracts where sessions, submissions and score accounts live
// (in-memory, SQLite, Postgres). Implementations must make InsertSubmission
// atomic: the submission row and the score account change commit together, and
// a second submission for the same session fails with domain.ErrDuplicateSubmission.
// InsertSubmission credits the session owner when the session has one.
//
// ListRecent and TopAccounts return an empty, non-nil slice for limit <= 0.
// Callers wanting a default page size go through NormalizeLimit first.
type SessionRepository interface {
	InsertSession(ctx context.Context, session domain.Session) (domain.Session, error)
	GetSession(ctx context.Context, id string) (domain.Session, error)
	InsertSubmission(ctx context.Context, sub domain.Submission) (domain.Submission, domain.ScoreAccount, error)
	// RevealHint records that the session's hint was shown. Repeats are no-ops.
	RevealHint(ctx context.Context, sessionID string) (domain.Session, error)
	HintRevealed(ctx context.Context, sessionID string) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
	GetScoreAccount(ctx context.Context, accountID string) (domain.ScoreAccount, error)
	TopAccounts(ctx context.Context, limit int) ([]domain.ScoreAccount, error)
}

// ProblemProvider produces raw, untrusted problem and feedback text.
type ProblemProvider interface {
	GenerateProblem(ctx context.Context, difficulty domain.Difficulty, topic domain.Topic) (string, error)
	GenerateFeedback(ctx context.Context, in problem.FeedbackInput) (string, error)
}

// ScorePublisher announces a committed score account change.
type ScorePublisher interface {
	Publish(acct domain.ScoreAccount)
}

// SubmitRequest is one answer attempt. Hint use and the credited account come
// from the stored session, never from the caller.
type SubmitRequest struct {
	SessionID string
	Answer    float64
}

// SubmitResult is what the caller shows the student after an answer.
type SubmitResult struct {
	AccountID        string  `json:"accountId"`
	IsCorrect        bool    `json:"isCorrect"`
	HintUsed         bool    `json:"hintUsed"`
	Feedback         string  `json:"feedback"`
	FeedbackFallback bool    `json:"feedbackFallback"`
	CorrectAnswer    float64 `json:"correctAnswer"`
	ScoreDelta       int     `json:"scoreDelta"`
	TotalScore       int     `json:"totalScore"`
	SolutionSteps    string  `json:"solutionSteps"`
}

// ProblemService runs the session lifecycle: generate, answer once, score, give feedback.
type ProblemService struct {
	sessions  SessionRepository
	provider  ProblemProvider
	feed      *ScoreFeed
	publisher ScorePublisher
	logger    *log.Logger
}

func NewProblemService(sessions SessionRepository, provider ProblemProvider, feed *ScoreFeed) *ProblemService {
	if feed == nil {
		feed = NewScoreFeed()
	}
	return &ProblemService{
		sessions:  sessions,
		provider:  provider,
		feed:      feed,
		publisher: feed,
		logger:    log.Default(),
	}
}

// WithPublisher routes score updates through p instead of straight to the
// local feed, e.g. to fan out across instances.
func (s *ProblemService) WithPublisher(p ScorePublisher) *ProblemService {
	s.publisher = p
	return s
}

// WithLogger replaces the standard logger, mostly for tests.
func (s *ProblemService) WithLogger(logger *log.Logger) *ProblemService {
	s.logger = logger
	return s
}

// CreateSession creates a session owned by a freshly minted anonymous account.
func (s *ProblemService) CreateSession(ctx context.Context, difficulty domain.Difficulty, topic domain.Topic) (domain.Session, error) {
	return s.CreateSessionFor(ctx, "", difficulty, topic)
}

// CreateSessionFor generates, validates and stores a new problem owned by
// accountID; an empty id gets a new anonymous account. Nothing is stored
// unless both the provider and the validator succeed.
func (s *ProblemService) CreateSessionFor(ctx context.Context, accountID string, difficulty domain.Difficulty, topic domain.Topic) (domain.Session, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		accountID = domain.NewAnonymousAccount()
	}
	if !difficulty.Valid() {
		return domain.Session{}, fmt.Errorf("%w: unknown difficulty %q", domain.ErrInvalidInput, difficulty)
	}
	if !topic.Valid() {
		return domain.Session{}, fmt.Errorf("%w: unknown topic %q", domain.ErrInvalidInput, topic)
	}

	raw, err := s.provider.GenerateProblem(ctx, difficulty, topic)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrProblemGenerationFailed, err)
	}

	p, err := validate.ParseProblem(raw)
	if err != nil {
		s.logger.Printf("rejected generated problem difficulty=%s topic=%s: %v", difficulty, topic, err)
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrProblemGenerationFailed, err)
	}

	return s.sessions.InsertSession(ctx, domain.Session{
		AccountID:     accountID,
		ProblemText:   p.Text,
		CorrectAnswer: p.FinalAnswer,
		Difficulty:    difficulty,
		Topic:         topic,
		Hint:          p.Hint,
		SolutionSteps: p.SolutionSteps,
	})
}

// SubmitAnswer grades the first answer for a session and records it. Any later
// answer for the same session fails with domain.ErrAlreadySubmitted.
func (s *ProblemService) SubmitAnswer(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return SubmitResult{}, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	if math.IsNaN(req.Answer) || math.IsInf(req.Answer, 0) {
		return SubmitResult{}, fmt.Errorf("%w: answer must be a finite number", domain.ErrInvalidInput)
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}

	hintUsed, err := s.sessions.HintRevealed(ctx, session.ID)
	if err != nil {
		return SubmitResult{}, err
	}

	outcome, err := scoring.Evaluate(session.CorrectAnswer, req.Answer, session.Difficulty, hintUsed)
	if err != nil {
		return SubmitResult{}, err
	}

	feedback, fallback := s.feedback(ctx, session, req.Answer, outcome)

	sub, account, err := s.sessions.InsertSubmission(ctx, domain.Submission{
		SessionID:        session.ID,
		AccountID:        session.AccountID,
		UserAnswer:       req.Answer,
		HintUsed:         hintUsed,
		IsCorrect:        outcome.IsCorrect,
		ScoreDelta:       outcome.Delta,
		FeedbackText:     feedback,
		FeedbackFallback: fallback,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateSubmission) {
			return SubmitResult{}, fmt.Errorf("%w: session %s", domain.ErrAlreadySubmitted, session.ID)
		}
		return SubmitResult{}, err
	}

	s.publisher.Publish(account)

	return SubmitResult{
		AccountID:        sub.AccountID,
		IsCorrect:        sub.IsCorrect,
		HintUsed:         sub.HintUsed,
		Feedback:         sub.FeedbackText,
		FeedbackFallback: sub.FeedbackFallback,
		CorrectAnswer:    session.CorrectAnswer,
		ScoreDelta:       sub.ScoreDelta,
		TotalScore:       account.Total,
		SolutionSteps:    session.SolutionSteps,
	}, nil
}

// RevealHint returns the hint of a session and records that it was shown, so
// the eventual submission scores as hint-assisted.
func (s *ProblemService) RevealHint(ctx context.Context, sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.Hint == "" {
		return "", fmt.Errorf("%w: session %s has no hint", domain.ErrInvalidInput, sessionID)
	}
	if _, err := s.sessions.RevealHint(ctx, sessionID); err != nil {
		return "", err
	}
	return session.Hint, nil
}

// ListRecentSessions returns the newest sessions with their submissions.
func (s *ProblemService) ListRecentSessions(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	return s.sessions.ListRecent(ctx, NormalizeLimit(limit))
}

// ScoreAccount reads the durable running score for an account.
func (s *ProblemService) ScoreAccount(ctx context.Context, accountID string) (domain.ScoreAccount, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.ScoreAccount{}, fmt.Errorf("%w: account id is required", domain.ErrInvalidInput)
	}
	return s.sessions.GetScoreAccount(ctx, accountID)
}

// Leaderboard returns the highest running totals, ties going to whoever got
// there first. Anonymous accounts are left out.
func (s *ProblemService) Leaderboard(ctx context.Context, limit int) ([]domain.ScoreAccount, error) {
	return s.sessions.TopAccounts(ctx, NormalizeLimit(limit))
}

// SubscribeScore streams score updates for an account, starting with the
// current snapshot. The caller must invoke the returned cancel function.
func (s *ProblemService) SubscribeScore(ctx context.Context, accountID string) (<-chan domain.ScoreAccount, func(), error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, nil, fmt.Errorf("%w: account id is required", domain.ErrInvalidInput)
	}
	ch, cancel := s.feed.Subscribe(accountID)

	current, err := s.sessions.GetScoreAccount(ctx, accountID)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	s.feed.Publish(current)
	return ch, cancel, nil
}

// NormalizeLimit clamps a requested history size into [1, MaxHistoryLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// feedback asks the provider for prose. Provider or format failures fall back
// to a templated message so the graded outcome is still recorded.
func (s *ProblemService) feedback(ctx context.Context, session domain.Session, answer float64, outcome scoring.Outcome) (string, bool) {
	raw, err := s.provider.GenerateFeedback(ctx, problem.FeedbackInput{
		ProblemText:   session.ProblemText,
		CorrectAnswer: session.CorrectAnswer,
		UserAnswer:    answer,
		IsCorrect:     outcome.IsCorrect,
	})
	if err == nil {
		var text string
		text, err = validate.ParseFeedback(raw)
		if err == nil {
			return text, false
		}
	}
	s.logger.Printf("feedback fallback session=%s: %v", session.ID, err)
	return FallbackFeedback(session.CorrectAnswer, outcome.IsCorrect), true
}

// FallbackFeedback is the templated message used when the provider cannot give feedback.
func FallbackFeedback(correctAnswer float64, isCorrect bool) string {
	if isCorrect {
		return "Great job! Your answer is correct."
	}
	return fmt.Sprintf("Not quite. The correct answer is %s. Read the problem again and try the steps one at a time.",
		strconv.FormatFloat(correctAnswer, 'f', -1, 64))
}
