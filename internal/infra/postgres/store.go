package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"math-problem-service/internal/domain"
)

// Store implements app.SessionRepository on Postgres. Tables are created by
// the bun migrations in the migrations package.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InsertSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	session.ID = uuid.NewString()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO math_problem_sessions (id, account_id, problem_text, correct_answer, difficulty, topic, hint, solution_steps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		session.ID, session.AccountID, session.ProblemText, session.CorrectAnswer, string(session.Difficulty), string(session.Topic),
		session.Hint, session.SolutionSteps).Scan(&session.CreatedAt)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: insert session: %v", domain.ErrPersistence, err)
	}
	session.CreatedAt = session.CreatedAt.UTC()
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var (
		session    domain.Session
		difficulty string
		topic      string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, account_id, problem_text, correct_answer, difficulty, topic, hint, solution_steps, created_at
		FROM math_problem_sessions WHERE id = $1`, id).
		Scan(&session.ID, &session.AccountID, &session.ProblemText, &session.CorrectAnswer, &difficulty, &topic,
			&session.Hint, &session.SolutionSteps, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: get session: %v", domain.ErrPersistence, err)
	}
	session.Difficulty = domain.Difficulty(difficulty)
	session.Topic = domain.Topic(topic)
	session.CreatedAt = session.CreatedAt.UTC()
	return session, nil
}

// InsertSubmission writes the submission and the score account change in one
// transaction. Racing submitters block on the session_id unique index; the
// loser's ON CONFLICT DO NOTHING returns no row.
func (s *Store) InsertSubmission(ctx context.Context, sub domain.Submission) (domain.Submission, domain.ScoreAccount, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: begin: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	var owner string
	err = tx.QueryRow(ctx, `SELECT account_id FROM math_problem_sessions WHERE id = $1`, sub.SessionID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sub.SessionID)
	}
	if err != nil {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: lookup session: %v", domain.ErrPersistence, err)
	}

	account, err := domain.CreditedAccount(owner, sub.AccountID)
	if err != nil {
		return domain.Submission{}, domain.ScoreAccount{}, err
	}
	sub.AccountID = account
	err = tx.QueryRow(ctx, `
		INSERT INTO math_problem_submissions
			(session_id, account_id, user_answer, hint_used, is_correct, score_delta, feedback_text, feedback_fallback)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING created_at`,
		sub.SessionID, sub.AccountID, sub.UserAnswer, sub.HintUsed, sub.IsCorrect, sub.ScoreDelta,
		sub.FeedbackText, sub.FeedbackFallback).Scan(&sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: %s", domain.ErrDuplicateSubmission, sub.SessionID)
	}
	if err != nil {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: insert submission: %v", domain.ErrPersistence, err)
	}
	sub.CreatedAt = sub.CreatedAt.UTC()

	correct := 0
	if sub.IsCorrect {
		correct = 1
	}
	acct := domain.ScoreAccount{AccountID: sub.AccountID}
	err = tx.QueryRow(ctx, `
		INSERT INTO score_accounts (account_id, total, attempts, correct_count, updated_at)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (account_id) DO UPDATE SET
			total = score_accounts.total + EXCLUDED.total,
			attempts = score_accounts.attempts + 1,
			correct_count = score_accounts.correct_count + EXCLUDED.correct_count,
			updated_at = EXCLUDED.updated_at
		RETURNING total, attempts, correct_count, updated_at`,
		sub.AccountID, sub.ScoreDelta, correct, sub.CreatedAt).
		Scan(&acct.Total, &acct.Attempts, &acct.CorrectCount, &acct.UpdatedAt)
	if err != nil {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: update score: %v", domain.ErrPersistence, err)
	}
	acct.UpdatedAt = acct.UpdatedAt.UTC()

	if err := tx.Commit(ctx); err != nil {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: commit: %v", domain.ErrPersistence, err)
	}
	return sub, acct, nil
}

// RevealHint records the first reveal of a session's hint and returns the session.
func (s *Store) RevealHint(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO math_problem_hint_reveals (session_id) VALUES ($1)
		ON CONFLICT (session_id) DO NOTHING`, sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: reveal hint: %v", domain.ErrPersistence, err)
	}
	return session, nil
}

func (s *Store) HintRevealed(ctx context.Context, sessionID string) (bool, error) {
	var revealed bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM math_problem_hint_reveals h WHERE h.session_id = s.id)
		FROM math_problem_sessions s WHERE s.id = $1`, sessionID).Scan(&revealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return false, fmt.Errorf("%w: hint revealed: %v", domain.ErrPersistence, err)
	}
	return revealed, nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		return []domain.HistoryEntry{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.account_id, s.problem_text, s.correct_answer, s.difficulty, s.topic, s.hint, s.solution_steps, s.created_at,
			sub.account_id, sub.user_answer, sub.hint_used, sub.is_correct, sub.score_delta,
			sub.feedback_text, sub.feedback_fallback, sub.created_at
		FROM math_problem_sessions s
		LEFT JOIN math_problem_submissions sub ON sub.session_id = s.id
		ORDER BY s.created_at DESC, s.seq DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			session    domain.Session
			difficulty string
			topic      string
			account    *string
			answer     *float64
			hintUsed   *bool
			isCorrect  *bool
			delta      *int
			feedback   *string
			fallback   *bool
			subCreated *time.Time
		)
		if err := rows.Scan(&session.ID, &session.AccountID, &session.ProblemText, &session.CorrectAnswer, &difficulty, &topic,
			&session.Hint, &session.SolutionSteps, &session.CreatedAt,
			&account, &answer, &hintUsed, &isCorrect, &delta, &feedback, &fallback, &subCreated); err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", domain.ErrPersistence, err)
		}
		session.Difficulty = domain.Difficulty(difficulty)
		session.Topic = domain.Topic(topic)
		session.CreatedAt = session.CreatedAt.UTC()

		entry := domain.HistoryEntry{Session: session}
		if account != nil {
			entry.Submission = &domain.Submission{
				SessionID:        session.ID,
				AccountID:        *account,
				UserAnswer:       *answer,
				HintUsed:         *hintUsed,
				IsCorrect:        *isCorrect,
				ScoreDelta:       *delta,
				FeedbackText:     *feedback,
				FeedbackFallback: *fallback,
				CreatedAt:        subCreated.UTC(),
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", domain.ErrPersistence, err)
	}
	return entries, nil
}

func (s *Store) GetScoreAccount(ctx context.Context, accountID string) (domain.ScoreAccount, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.ScoreAccount{}, fmt.Errorf("%w: account id is required", domain.ErrInvalidInput)
	}
	acct := domain.ScoreAccount{AccountID: accountID}
	err := s.pool.QueryRow(ctx, `
		SELECT total, attempts, correct_count, updated_at FROM score_accounts WHERE account_id = $1`, accountID).
		Scan(&acct.Total, &acct.Attempts, &acct.CorrectCount, &acct.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScoreAccount{AccountID: accountID}, nil
	}
	if err != nil {
		return domain.ScoreAccount{}, fmt.Errorf("%w: get score: %v", domain.ErrPersistence, err)
	}
	acct.UpdatedAt = acct.UpdatedAt.UTC()
	return acct, nil
}

// TopAccounts excludes anonymous accounts.
func (s *Store) TopAccounts(ctx context.Context, limit int) ([]domain.ScoreAccount, error) {
	if limit <= 0 {
		return []domain.ScoreAccount{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT account_id, total, attempts, correct_count, updated_at FROM score_accounts
		WHERE account_id NOT LIKE $1
		ORDER BY total DESC, updated_at ASC, account_id ASC
		LIMIT $2`, domain.AnonymousPrefix+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("%w: top accounts: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	out := make([]domain.ScoreAccount, 0, limit)
	for rows.Next() {
		var acct domain.ScoreAccount
		if err := rows.Scan(&acct.AccountID, &acct.Total, &acct.Attempts, &acct.CorrectCount, &acct.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan account: %v", domain.ErrPersistence, err)
		}
		acct.UpdatedAt = acct.UpdatedAt.UTC()
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: top accounts: %v", domain.ErrPersistence, err)
	}
	return out, nil
}
