package app

import (
	"testing"

	"math-problem-service/internal/domain"
)

func TestScoreFeedDeliversPerAccount(t *testing.T) {
	feed := NewScoreFeed()
	alice, cancelAlice := feed.Subscribe("alice")
	defer cancelAlice()
	bob, cancelBob := feed.Subscribe("bob")
	defer cancelBob()

	feed.Publish(domain.ScoreAccount{AccountID: "alice", Total: 2, Attempts: 1})

	if got := <-alice; got.Total != 2 {
		t.Fatalf("expected alice update, got %+v", got)
	}
	select {
	case got := <-bob:
		t.Fatalf("bob must not see alice's update, got %+v", got)
	default:
	}
}

func TestScoreFeedSkipsStaleSnapshots(t *testing.T) {
	feed := NewScoreFeed()
	ch, cancel := feed.Subscribe("u1")
	defer cancel()

	feed.Publish(domain.ScoreAccount{AccountID: "u1", Total: 5, Attempts: 3})
	feed.Publish(domain.ScoreAccount{AccountID: "u1", Total: 4, Attempts: 2})

	if got := <-ch; got.Attempts != 3 {
		t.Fatalf("expected newest snapshot, got %+v", got)
	}
	select {
	case got := <-ch:
		t.Fatalf("stale snapshot delivered: %+v", got)
	default:
	}
}

func TestScoreFeedDropsOldestForSlowSubscriber(t *testing.T) {
	feed := NewScoreFeed()
	ch, cancel := feed.Subscribe("u1")
	defer cancel()

	for i := 1; i <= 20; i++ {
		feed.Publish(domain.ScoreAccount{AccountID: "u1", Total: i, Attempts: i})
	}

	var last domain.ScoreAccount
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Attempts != 20 {
		t.Fatalf("expected newest snapshot to survive, got %+v", last)
	}
}

func TestScoreFeedCancelClosesChannel(t *testing.T) {
	feed := NewScoreFeed()
	ch, cancel := feed.Subscribe("u1")
	if feed.Subscribers("u1") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if feed.Subscribers("u1") != 0 {
		t.Fatalf("expected subscriber removed")
	}
}
