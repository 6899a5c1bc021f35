package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"math-problem-service/internal/domain"
	"math-problem-service/internal/infra/memory"
)

func TestSessionCacheReadsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	backing := &countingRepo{SessionStore: memory.NewSessionStore()}
	cache := NewSessionCache(newClient(mr), backing, time.Minute)
	ctx := context.Background()

	saved, err := cache.InsertSession(ctx, sampleSession())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !mr.Exists("math:session:" + saved.ID) {
		t.Fatalf("expected session written to cache on insert")
	}

	mr.FlushAll()
	got, err := cache.GetSession(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CorrectAnswer != 42 || backing.gets != 1 {
		t.Fatalf("expected backing read on miss, got %+v gets=%d", got, backing.gets)
	}

	// Second call should hit cache, backing not incremented.
	got, _ = cache.GetSession(ctx, saved.ID)
	if backing.gets != 1 {
		t.Fatalf("expected cache hit, backing gets=%d", backing.gets)
	}
	if !got.CreatedAt.Equal(saved.CreatedAt) || got.ProblemText != saved.ProblemText {
		t.Fatalf("cached session differs: %+v", got)
	}
}

func TestSessionCacheAppliesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewSessionCache(newClient(mr), memory.NewSessionStore(), time.Minute)
	saved, _ := cache.InsertSession(context.Background(), sampleSession())

	ttl := mr.TTL("math:session:" + saved.ID)
	if ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with up to 10%% jitter, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists("math:session:" + saved.ID) {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestSessionCacheDoesNotCacheMisses(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewSessionCache(newClient(mr), memory.NewSessionStore(), time.Minute)
	_, err = cache.GetSession(context.Background(), "missing")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected no keys, got %v", mr.Keys())
	}
}

func TestSessionCacheSurvivesRedisOutage(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	backing := memory.NewSessionStore()
	saved, _ := backing.InsertSession(context.Background(), sampleSession())
	mr.Close()

	cache := NewSessionCache(client, backing, time.Minute)
	got, err := cache.GetSession(context.Background(), saved.ID)
	if err != nil {
		t.Fatalf("expected backing store to answer, got %v", err)
	}
	if got.ID != saved.ID {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestSessionCacheDelegatesSubmissions(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	cache := NewSessionCache(newClient(mr), memory.NewSessionStore(), time.Minute)
	saved, _ := cache.InsertSession(ctx, sampleSession())

	if _, _, err := cache.InsertSubmission(ctx, domain.Submission{SessionID: saved.ID, AccountID: "u1", IsCorrect: true, ScoreDelta: 2}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := cache.InsertSubmission(ctx, domain.Submission{SessionID: saved.ID, AccountID: "u1"}); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	acct, _ := cache.GetScoreAccount(ctx, "u1")
	if acct.Total != 2 {
		t.Fatalf("expected score 2, got %+v", acct)
	}
}

type countingRepo struct {
	*memory.SessionStore
	mu   sync.Mutex
	gets int
}

func (r *countingRepo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	r.mu.Lock()
	r.gets++
	r.mu.Unlock()
	return r.SessionStore.GetSession(ctx, id)
}

func sampleSession() domain.Session {
	return domain.Session{
		ProblemText:   "A class has 6 rows of 7 desks. How many desks?",
		CorrectAnswer: 42,
		Difficulty:    domain.DifficultyMedium,
		Topic:         domain.TopicMultiplication,
		Hint:          "Rows times desks",
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
