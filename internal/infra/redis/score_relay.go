package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"math-problem-service/internal/app"
	"math-problem-service/internal/domain"
)

const scoreChannelPrefix = "math:score:"

// ScoreRelay fans score account updates out across service instances.
// Publish delivers to the local feed and sends the snapshot on
// math:score:{account}; Run delivers snapshots from other instances seen on
// math:score:* to the local feed.
type ScoreRelay struct {
	client *redis.Client
	feed   *app.ScoreFeed
	logger *log.Logger
	origin string

	retryInitial time.Duration
	retryMax     time.Duration
}

type relayMessage struct {
	Origin  string              `json:"origin"`
	Account domain.ScoreAccount `json:"account"`
}

func NewScoreRelay(client *redis.Client, feed *app.ScoreFeed) *ScoreRelay {
	return &ScoreRelay{
		client:       client,
		feed:         feed,
		logger:       log.Default(),
		origin:       uuid.NewString(),
		retryInitial: 500 * time.Millisecond,
		retryMax:     30 * time.Second,
	}
}

// WithRetry sets the subscribe backoff bounds.
func (r *ScoreRelay) WithRetry(initial, maxInterval time.Duration) *ScoreRelay {
	r.retryInitial = initial
	r.retryMax = maxInterval
	return r
}

// Publish never depends on Redis for local subscribers.
func (r *ScoreRelay) Publish(acct domain.ScoreAccount) {
	r.feed.Publish(acct)

	raw, err := json.Marshal(relayMessage{Origin: r.origin, Account: acct})
	if err == nil {
		err = r.client.Publish(context.Background(), scoreChannelPrefix+acct.AccountID, raw).Err()
	}
	if err != nil {
		r.logger.Printf("score relay publish account=%s: %v", acct.AccountID, err)
	}
}

// Run forwards relayed snapshots to the local feed until ctx is done,
// resubscribing with exponential backoff whenever the subscription fails.
func (r *ScoreRelay) Run(ctx context.Context) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.retryInitial
	eb.MaxInterval = r.retryMax
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(eb, ctx)

	for {
		err := r.consume(ctx, b.Reset)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		r.logger.Printf("score relay subscription: %v; retrying in %s", err, wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// consume holds one subscription until it fails. subscribed runs once the
// server has confirmed the pattern.
func (r *ScoreRelay) consume(ctx context.Context, subscribed func()) error {
	sub := r.client.PSubscribe(ctx, scoreChannelPrefix+"*")
	defer sub.Close()

	// Wait for the subscription so updates published after this point are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	subscribed()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription closed")
			}
			r.deliver(msg.Channel, msg.Payload)
		}
	}
}

// deliver publishes a relayed snapshot locally unless this instance sent it.
func (r *ScoreRelay) deliver(channel, payload string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Printf("score relay decode channel=%s: %v", channel, err)
		return
	}
	if msg.Origin == r.origin {
		return
	}
	if msg.Account.AccountID == "" {
		msg.Account.AccountID = strings.TrimPrefix(channel, scoreChannelPrefix)
	}
	r.feed.Publish(msg.Account)
}
