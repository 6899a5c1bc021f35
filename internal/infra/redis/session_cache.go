package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"math-problem-service/internal/app"
	"math-problem-service/internal/domain"
)

// SessionCache puts a read-through Redis cache in front of a SessionRepository.
// Sessions never change once stored, so only GetSession is cached:
//
//	SET math:session:{id} <session json> EX ttl
//
// Everything else goes straight to the backing repository. Redis failures are
// logged and the backing repository answers instead.
type SessionCache struct {
	app.SessionRepository

	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	logger *log.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSessionCache(client *redis.Client, backing app.SessionRepository, ttl time.Duration) *SessionCache {
	return &SessionCache{
		SessionRepository: backing,
		client:            client,
		ttl:               ttl,
		logger:            log.Default(),
		rnd:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *SessionCache) InsertSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	saved, err := c.SessionRepository.InsertSession(ctx, session)
	if err != nil {
		return domain.Session{}, err
	}
	c.store(ctx, saved)
	return saved, nil
}

func (c *SessionCache) GetSession(ctx context.Context, id string) (domain.Session, error) {
	if session, ok := c.lookup(ctx, id); ok {
		return session, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if session, ok := c.lookup(ctx, id); ok {
			return session, nil
		}
		session, err := c.SessionRepository.GetSession(ctx, id)
		if err != nil {
			return domain.Session{}, err
		}
		c.store(ctx, session)
		return session, nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	return result.(domain.Session), nil
}

func (c *SessionCache) lookup(ctx context.Context, id string) (domain.Session, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Printf("session cache get id=%s: %v", id, err)
		}
		return domain.Session{}, false
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		c.logger.Printf("session cache decode id=%s: %v", id, err)
		return domain.Session{}, false
	}
	return session, true
}

func (c *SessionCache) store(ctx context.Context, session domain.Session) {
	raw, err := json.Marshal(session)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(session.ID), raw, c.ttlWithJitter()).Err(); err != nil {
		c.logger.Printf("session cache set id=%s: %v", session.ID, err)
	}
}

func (c *SessionCache) key(id string) string {
	return "math:session:" + id
}

func (c *SessionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
