package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"math-problem-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// A single mutex is the atomicity boundary for submissions and score accounts.
type SessionStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	last        time.Time
	sessions    map[string]domain.Session
	order       []string
	submissions map[string]domain.Submission
	hints       map[string]time.Time
	accounts    map[string]domain.ScoreAccount
}

func NewSessionStore() *SessionStore {
	return NewSessionStoreWithClock(time.Now)
}

// NewSessionStoreWithClock allows deterministic timestamps in tests.
func NewSessionStoreWithClock(now func() time.Time) *SessionStore {
	return &SessionStore{
		now:         now,
		sessions:    make(map[string]domain.Session),
		submissions: make(map[string]domain.Submission),
		hints:       make(map[string]time.Time),
		accounts:    make(map[string]domain.ScoreAccount),
	}
}

func (s *SessionStore) InsertSession(_ context.Context, session domain.Session) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.ID = uuid.NewString()
	session.CreatedAt = s.tickLocked()
	s.sessions[session.ID] = session
	s.order = append(s.order, session.ID)
	return session, nil
}

func (s *SessionStore) GetSession(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return session, nil
}

func (s *SessionStore) InsertSubmission(_ context.Context, sub domain.Submission) (domain.Submission, domain.ScoreAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sub.SessionID]
	if !ok {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sub.SessionID)
	}
	if _, ok := s.submissions[sub.SessionID]; ok {
		return domain.Submission{}, domain.ScoreAccount{}, fmt.Errorf("%w: %s", domain.ErrDuplicateSubmission, sub.SessionID)
	}
	account, err := domain.CreditedAccount(session.AccountID, sub.AccountID)
	if err != nil {
		return domain.Submission{}, domain.ScoreAccount{}, err
	}

	sub.AccountID = account
	sub.CreatedAt = s.tickLocked()
	s.submissions[sub.SessionID] = sub

	acct := s.accounts[sub.AccountID].Apply(sub)
	s.accounts[sub.AccountID] = acct
	return sub, acct, nil
}

// RevealHint records that the hint of a session was shown. Repeated reveals
// keep the first timestamp.
func (s *SessionStore) RevealHint(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if _, ok := s.hints[sessionID]; !ok {
		s.hints[sessionID] = s.tickLocked()
	}
	return session, nil
}

func (s *SessionStore) HintRevealed(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	_, ok := s.hints[sessionID]
	return ok, nil
}

func (s *SessionStore) ListRecent(_ context.Context, limit int) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return []domain.HistoryEntry{}, nil
	}
	if limit > len(s.order) {
		limit = len(s.order)
	}
	entries := make([]domain.HistoryEntry, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(entries) < limit; i-- {
		session := s.sessions[s.order[i]]
		entry := domain.HistoryEntry{Session: session}
		if sub, ok := s.submissions[session.ID]; ok {
			sub := sub
			entry.Submission = &sub
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *SessionStore) GetScoreAccount(_ context.Context, accountID string) (domain.ScoreAccount, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.ScoreAccount{}, fmt.Errorf("%w: account id is required", domain.ErrInvalidInput)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return domain.ScoreAccount{AccountID: accountID}, nil
	}
	return acct, nil
}

// TopAccounts returns accounts ordered by total desc, then earliest update, then id.
// Anonymous accounts are excluded.
func (s *SessionStore) TopAccounts(_ context.Context, limit int) ([]domain.ScoreAccount, error) {
	if limit <= 0 {
		return []domain.ScoreAccount{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ScoreAccount, 0, len(s.accounts))
	for _, acct := range s.accounts {
		if domain.IsAnonymous(acct.AccountID) {
			continue
		}
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return strings.Compare(out[i].AccountID, out[j].AccountID) < 0
	})
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// tickLocked returns a timestamp strictly after every previous one so
// created_at ordering never ties.
func (s *SessionStore) tickLocked() time.Time {
	now := s.now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}
