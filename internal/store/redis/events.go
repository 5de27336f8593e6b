// Package redis publishes signal lifecycle events and the latest market
// snapshots. Delivery is best-effort: a Redis outage must never block or
// roll back a lifecycle transition, so failures are counted, logged and
// dropped, with a circuit breaker keeping a dead server from stalling
// scan cycles on connection timeouts.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signal-enginev1/internal/model"
)

const (
	eventStream       = "signals:events"
	eventStreamMaxLen = 10000
	defaultLatestTTL  = 30 * time.Minute
)

// Lifecycle event names carried in the stream.
const (
	EventCreated   = "created"
	EventTriggered = "triggered"
	EventExpired   = "expired"
	EventClosed    = "closed"
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes lifecycle events and latest-state snapshots.
type Publisher struct {
	client  *goredis.Client
	breaker *CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// NewPublisher connects and pings the server.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{
		client:  client,
		breaker: NewCircuitBreaker(5, 10*time.Second),
	}, nil
}

// Breaker exposes the circuit breaker for metrics wiring.
func (p *Publisher) Breaker() *CircuitBreaker { return p.breaker }

// PublishEvent appends a lifecycle event to the capped event stream and
// publishes it for live subscribers. The signal snapshot is read-only.
func (p *Publisher) PublishEvent(ctx context.Context, event string, sig *model.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal %s: %w", sig.ID, err)
	}
	jsonData := string(data)

	return p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: eventStream,
			MaxLen: eventStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"event": event,
				"data":  jsonData,
			},
		})
		pipe.Publish(ctx, "pub:signal:"+sig.Symbol+":"+sig.Timeframe, jsonData)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("[redis] event pipeline error for %s %s: %v", event, sig.ID, err)
			return err
		}
		return nil
	})
}

// SetLatestState caches the most recent market snapshot per
// symbol/timeframe with a TTL, for dashboards and debugging.
func (p *Publisher) SetLatestState(ctx context.Context, state *model.MarketState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state %s/%s: %w", state.Symbol, state.Timeframe, err)
	}

	key := "state:latest:" + state.Symbol + ":" + state.Timeframe
	return p.breaker.Execute(func() error {
		if err := p.client.Set(ctx, key, string(data), defaultLatestTTL).Err(); err != nil {
			log.Printf("[redis] set latest state %s: %v", key, err)
			return err
		}
		return nil
	})
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
