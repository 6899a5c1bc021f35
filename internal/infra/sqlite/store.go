// Package sqlite persists sessions, submissions and score accounts in a local
// SQLite file, for single-node deployments without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"math-problem-service/internal/domain"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Store implements app.SessionRepository on SQLite.
type Store struct {
	db *sql.DB
}

// Open connects to the database at path, applies pragmas and creates the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS math_problem_sessions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			account_id TEXT NOT NULL DEFAULT '',
			problem_text TEXT NOT NULL,
			correct_answer REAL NOT NULL,
			difficulty TEXT NOT NULL,
			topic TEXT NOT NULL,
			hint TEXT NOT NULL DEFAULT '',
			solution_steps TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON math_problem_sessions(created_at DESC, seq DESC)`,
		`CREATE TABLE IF NOT EXISTS math_problem_submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE REFERENCES math_problem_sessions(id) ON DELETE CASCADE,
			account_id TEXT NOT NULL,
			user_answer REAL NOT NULL,
			hint_used INTEGER NOT NULL,
			is_correct INTEGER NOT NULL,
			score_delta INTEGER NOT NULL,
			feedback_text TEXT NOT NULL,
			feedback_fallback INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS math_problem_hint_reveals (
			session_id TEXT PRIMARY KEY REFERENCES math_problem_sessions(id) ON DELETE CASCADE,
			revealed_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS score_accounts (
			account_id TEXT PRIMARY KEY,
			total INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			correct_count INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return ensureColumn(db, "math_problem_sessions", "account_id", `TEXT NOT NULL DEFAULT ''`)
}

// ensureColumn adds column to table when a file created by an older build
// lacks it.
func ensureColumn(db *sql.DB, table, column, decl string) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()
	_, err = db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
	return err
}

// InsertSession reads the clock and inserts in one transaction so concurrent
// inserts cannot share a created_at.
func (s *Store) InsertSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: begin: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	session.ID = uuid.NewString()
	created, err := s.nextTimestamp(ctx, tx, "math_problem_sessions")
	if err != nil {
		return domain.Session{}, err
	}
	session.CreatedAt = created

	_, err = tx.ExecContext(ctx, `
		INSERT INTO math_problem_sessions (id, account_id, problem_text, correct_answer, difficulty, topic, hint, solution_steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.AccountID, session.ProblemText, session.CorrectAnswer, string(session.Difficulty), string(session.Topic),
		session.Hint, session.SolutionSteps, created.UnixNano())
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: insert session: %v", domain.ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, fmt.Errorf("%w: commit: %v", domain.ErrPersistence, err)
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, problem_text, correct_answer, difficulty, topic, hint, solution_steps, created_at
		FROM math_problem_sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: get session: %v", domain.ErrPersistence, err)
	}
	return session, nil
}

// InsertSubmission writes the submission and folds it into the score account
// in one transaction. The UNIQUE session_id constraint decides races.
func (s *Store) InsertSubmission(ctx context.Context, sub domain.Submission) (domain.Submission, domain.ScoreAccount, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: begin: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT account_id FROM math_problem_sessions WHERE id = ?`, sub.SessionID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
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
	created, err := s.nextTimestamp(ctx, tx, "math_problem_submissions")
	if err != nil {
		return domain.Submission{}, domain.ScoreAccount{}, err
	}
	sub.CreatedAt = created

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO math_problem_submissions
			(session_id, account_id, user_answer, hint_used, is_correct, score_delta, feedback_text, feedback_fallback, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
		RETURNING id`,
		sub.SessionID, sub.AccountID, sub.UserAnswer, sub.HintUsed, sub.IsCorrect, sub.ScoreDelta,
		sub.FeedbackText, sub.FeedbackFallback, created.UnixNano()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: %s", domain.ErrDuplicateSubmission, sub.SessionID)
	}
	if err != nil {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: insert submission: %v", domain.ErrPersistence, err)
	}

	correct := 0
	if sub.IsCorrect {
		correct = 1
	}
	var (
		acct    = domain.ScoreAccount{AccountID: sub.AccountID}
		updated int64
	)
	err = tx.QueryRowContext(ctx, `
		INSERT INTO score_accounts (account_id, total, attempts, correct_count, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			total = total + excluded.total,
			attempts = attempts + 1,
			correct_count = correct_count + excluded.correct_count,
			updated_at = excluded.updated_at
		RETURNING total, attempts, correct_count, updated_at`,
		sub.AccountID, sub.ScoreDelta, correct, created.UnixNano()).Scan(&acct.Total, &acct.Attempts, &acct.CorrectCount, &updated)
	if err != nil {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: update score: %v", domain.ErrPersistence, err)
	}
	acct.UpdatedAt = fromNanos(updated)

	if err := tx.Commit(); err != nil {
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO math_problem_hint_reveals (session_id, revealed_at) VALUES (?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		sessionID, time.Now().UTC().UnixNano())
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: reveal hint: %v", domain.ErrPersistence, err)
	}
	return session, nil
}

func (s *Store) HintRevealed(ctx context.Context, sessionID string) (bool, error) {
	var revealed bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM math_problem_hint_reveals WHERE session_id = s.id)
		FROM math_problem_sessions s WHERE s.id = ?`, sessionID).Scan(&revealed)
	if errors.Is(err, sql.ErrNoRows) {
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.account_id, s.problem_text, s.correct_answer, s.difficulty, s.topic, s.hint, s.solution_steps, s.created_at,
			sub.account_id, sub.user_answer, sub.hint_used, sub.is_correct, sub.score_delta,
			sub.feedback_text, sub.feedback_fallback, sub.created_at
		FROM math_problem_sessions s
		LEFT JOIN math_problem_submissions sub ON sub.session_id = s.id
		ORDER BY s.created_at DESC, s.seq DESC
		LIMIT ?`, limit)
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
			created    int64
			account    sql.NullString
			answer     sql.NullFloat64
			hintUsed   sql.NullBool
			isCorrect  sql.NullBool
			delta      sql.NullInt64
			feedback   sql.NullString
			fallback   sql.NullBool
			subCreated sql.NullInt64
		)
		if err := rows.Scan(&session.ID, &session.AccountID, &session.ProblemText, &session.CorrectAnswer, &difficulty, &topic,
			&session.Hint, &session.SolutionSteps, &created,
			&account, &answer, &hintUsed, &isCorrect, &delta, &feedback, &fallback, &subCreated); err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", domain.ErrPersistence, err)
		}
		session.Difficulty = domain.Difficulty(difficulty)
		session.Topic = domain.Topic(topic)
		session.CreatedAt = fromNanos(created)

		entry := domain.HistoryEntry{Session: session}
		if account.Valid {
			entry.Submission = &domain.Submission{
				SessionID:        session.ID,
				AccountID:        account.String,
				UserAnswer:       answer.Float64,
				HintUsed:         hintUsed.Bool,
				IsCorrect:        isCorrect.Bool,
				ScoreDelta:       int(delta.Int64),
				FeedbackText:     feedback.String,
				FeedbackFallback: fallback.Bool,
				CreatedAt:        fromNanos(subCreated.Int64),
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
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT total, attempts, correct_count, updated_at FROM score_accounts WHERE account_id = ?`, accountID).
		Scan(&acct.Total, &acct.Attempts, &acct.CorrectCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return acct, nil
	}
	if err != nil {
		return domain.ScoreAccount{}, fmt.Errorf("%w: get score: %v", domain.ErrPersistence, err)
	}
	acct.UpdatedAt = fromNanos(updated)
	return acct, nil
}

func (s *Store) TopAccounts(ctx context.Context, limit int) ([]domain.ScoreAccount, error) {
	if limit <= 0 {
		return []domain.ScoreAccount{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, total, attempts, correct_count, updated_at FROM score_accounts
		WHERE account_id NOT LIKE ?
		ORDER BY total DESC, updated_at ASC, account_id ASC
		LIMIT ?`, domain.AnonymousPrefix+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("%w: top accounts: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	out := make([]domain.ScoreAccount, 0, limit)
	for rows.Next() {
		var (
			acct    domain.ScoreAccount
			updated int64
		)
		if err := rows.Scan(&acct.AccountID, &acct.Total, &acct.Attempts, &acct.CorrectCount, &updated); err != nil {
			return nil, fmt.Errorf("%w: scan account: %v", domain.ErrPersistence, err)
		}
		acct.UpdatedAt = fromNanos(updated)
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: top accounts: %v", domain.ErrPersistence, err)
	}
	return out, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nextTimestamp returns now, bumped past the newest created_at in table so
// rows inserted within one clock tick still order strictly.
func (s *Store) nextTimestamp(ctx context.Context, q queryer, table string) (time.Time, error) {
	now := time.Now().UTC().UnixNano()
	var last sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(created_at) FROM `+table).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("%w: read clock: %v", domain.ErrPersistence, err)
	}
	if last.Valid && now <= last.Int64 {
		now = last.Int64 + 1
	}
	return fromNanos(now), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		session    domain.Session
		difficulty string
		topic      string
		created    int64
	)
	if err := row.Scan(&session.ID, &session.AccountID, &session.ProblemText, &session.CorrectAnswer, &difficulty, &topic,
		&session.Hint, &session.SolutionSteps, &created); err != nil {
		return domain.Session{}, err
	}
	session.Difficulty = domain.Difficulty(difficulty)
	session.Topic = domain.Topic(topic)
	session.CreatedAt = fromNanos(created)
	return session, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
