// Package redis publishes live pipeline state for downstream consumers:
// latest tick per symbol as a TTL'd key, tick pubsub for dashboards, and
// fired signals on a capped stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"options-signals/internal/model"
)

const (
	signalStreamKey    = "signals:fired"
	signalStreamMaxLen = 1000
	defaultLatestTTL   = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes ticks and fired signals to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
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
	return &Writer{client: client}, nil
}

// Run reads ticks from tickCh and writes them to Redis.
// Blocks until ctx is cancelled or tickCh is closed.
func (w *Writer) Run(ctx context.Context, tickCh <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-tickCh:
			if !ok {
				return
			}
			w.writeTick(ctx, tick)
		}
	}
}

// writeTick performs pipelined writes for one tick: SET latest with TTL and
// PUBLISH for real-time subscribers.
func (w *Writer) writeTick(ctx context.Context, tick model.Tick) {
	data, err := json.Marshal(tick)
	if err != nil {
		log.Printf("[redis] marshal tick %s: %v", tick.Symbol, err)
		return
	}
	jsonData := string(data)

	pipe := w.client.Pipeline()
	pipe.Set(ctx, "px:latest:"+tick.Symbol, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, "pub:tick:"+tick.Symbol, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] tick pipeline error for %s: %v", tick.Symbol, err)
	}
}

// PublishSignal records a fired signal: XADD to the capped signal stream
// plus PUBLISH for live subscribers.
func (w *Writer) PublishSignal(ctx context.Context, sig model.StrategySignal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal %s: %w", sig.ID, err)
	}
	jsonData := string(data)

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: signalStreamKey,
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, "pub:signals", jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis signal pipeline: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
