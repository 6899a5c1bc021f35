package app

import (
	"sync"

	"math-problem-service/internal/domain"
)

// ScoreFeed fans out score account updates to in-process subscribers.
type ScoreFeed struct {
	mu          sync.Mutex
	subscribers map[string]map[*scoreSubscriber]struct{}
}

type scoreSubscriber struct {
	ch       chan domain.ScoreAccount
	attempts int
	sent     bool
}

func NewScoreFeed() *ScoreFeed {
	return &ScoreFeed{subscribers: make(map[string]map[*scoreSubscriber]struct{})}
}

// Subscribe registers interest in one account. The caller must invoke cancel.
func (f *ScoreFeed) Subscribe(accountID string) (<-chan domain.ScoreAccount, func()) {
	sub := &scoreSubscriber{ch: make(chan domain.ScoreAccount, 8)}

	f.mu.Lock()
	if f.subscribers[accountID] == nil {
		f.subscribers[accountID] = make(map[*scoreSubscriber]struct{})
	}
	f.subscribers[accountID][sub] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subscribers[accountID]
		if _, ok := subs[sub]; !ok {
			return
		}
		delete(subs, sub)
		if len(subs) == 0 {
			delete(f.subscribers, accountID)
		}
		close(sub.ch)
	}
	return sub.ch, cancel
}

// Publish delivers an account snapshot to every subscriber of that account
// that has not already seen it. Attempts only grows, so it orders snapshots.
func (f *ScoreFeed) Publish(acct domain.ScoreAccount) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subscribers[acct.AccountID] {
		if sub.sent && acct.Attempts <= sub.attempts {
			continue
		}
		sub.sent = true
		sub.attempts = acct.Attempts
		select {
		case sub.ch <- acct:
		default:
			// Slow subscriber: drop the stale snapshot so the newest one fits.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- acct
		}
	}
}

// Subscribers reports how many subscribers an account has.
func (f *ScoreFeed) Subscribers(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers[accountID])
}
