// Package stream owns the long-lived WebSocket subscription to the tick
// provider. It normalizes inbound messages into model.Tick, drops and counts
// malformed ones, and reconnects with capped exponential backoff, re-issuing
// the subscription for the full symbol set on every (re)connect.
//
// Ticks lost during an outage are not backfilled here; historical recovery
// is the REST side's job.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"options-signals/internal/model"
)

// Config holds the ingestor settings.
type Config struct {
	URL     string
	Symbols []string

	ReconnectMin time.Duration // initial backoff delay
	ReconnectMax time.Duration // backoff cap
	// MaxConnectAttempts bounds consecutive failed connects before Run gives
	// up (process-fatal upstream). 0 means retry forever.
	MaxConnectAttempts int
}

// Handler receives each valid tick in arrival order.
type Handler func(model.Tick)

// Ingestor maintains the provider subscription.
type Ingestor struct {
	cfg     Config
	handler Handler
	dialer  *websocket.Dialer

	// Optional metrics/health hooks.
	OnConnected func(bool) // true after a successful subscribe, false on drop
	OnReconnect func()     // counted once per successful re-subscribe after a drop
	OnMalformed func()     // malformed message dropped
}

// New creates an Ingestor delivering ticks to handler.
func New(cfg Config, handler Handler) *Ingestor {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &Ingestor{
		cfg:     cfg,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run connects, subscribes, and pumps ticks until ctx is cancelled. Returns
// nil on graceful shutdown, or an error once MaxConnectAttempts consecutive
// connects have failed.
func (ing *Ingestor) Run(ctx context.Context) error {
	attempts := 0
	connectedBefore := false

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := ing.connect(ctx)
		if err != nil {
			attempts++
			if ing.cfg.MaxConnectAttempts > 0 && attempts >= ing.cfg.MaxConnectAttempts {
				return fmt.Errorf("stream: giving up after %d connect attempts: %w", attempts, err)
			}
			delay := ing.backoff(attempts)
			log.Printf("[stream] connect failed (attempt %d): %v, retrying in %v", attempts, err, delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		attempts = 0
		if connectedBefore && ing.OnReconnect != nil {
			ing.OnReconnect()
		}
		connectedBefore = true
		if ing.OnConnected != nil {
			ing.OnConnected(true)
		}
		log.Printf("[stream] subscribed to %d symbols", len(ing.cfg.Symbols))

		ing.readLoop(ctx, conn)

		if ing.OnConnected != nil {
			ing.OnConnected(false)
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Println("[stream] connection lost, reconnecting")
	}
}

// connect dials the provider and sends the subscribe request for the full
// configured symbol set.
func (ing *Ingestor) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := ing.dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ing.cfg.URL, err)
	}

	sub := struct {
		Type    string   `json:"type"`
		Symbols []string `json:"symbols"`
	}{Type: "subscribe", Symbols: ing.cfg.Symbols}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return conn, nil
}

// readLoop pumps messages until the connection breaks or ctx is cancelled.
func (ing *Ingestor) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		tick, err := parseTick(data)
		if err != nil {
			if ing.OnMalformed != nil {
				ing.OnMalformed()
			}
			log.Printf("[stream] dropping malformed message: %v", err)
			continue
		}
		ing.handler(tick)
	}
}

// backoff returns the delay before connect attempt n (1-based): exponential
// from ReconnectMin, capped at ReconnectMax, with up to 25% jitter.
func (ing *Ingestor) backoff(attempt int) time.Duration {
	d := ing.cfg.ReconnectMin << uint(attempt-1)
	if d <= 0 || d > ing.cfg.ReconnectMax {
		d = ing.cfg.ReconnectMax
	}
	if quarter := int64(d / 4); quarter > 0 {
		d += time.Duration(rand.Int63n(quarter))
	}
	if d > ing.cfg.ReconnectMax {
		d = ing.cfg.ReconnectMax
	}
	return d
}

// wireTick is the provider's tick message shape.
type wireTick struct {
	Symbol    string   `json:"symbol"`
	Price     *float64 `json:"price"`
	Timestamp string   `json:"timestamp"`
}

// parseTick validates and converts a raw provider message into a model.Tick.
func parseTick(data []byte) (model.Tick, error) {
	var w wireTick
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Tick{}, fmt.Errorf("decode: %w", err)
	}
	if w.Symbol == "" {
		return model.Tick{}, fmt.Errorf("missing symbol")
	}
	if w.Price == nil {
		return model.Tick{}, fmt.Errorf("missing price")
	}
	if *w.Price <= 0 || math.IsNaN(*w.Price) || math.IsInf(*w.Price, 0) {
		return model.Tick{}, fmt.Errorf("invalid price %v", *w.Price)
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return model.Tick{}, fmt.Errorf("invalid timestamp %q: %w", w.Timestamp, err)
	}
	return model.Tick{Symbol: w.Symbol, Price: *w.Price, Timestamp: ts.UTC()}, nil
}
