package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"options-signals/internal/model"
)

// fakeProvider is a test WebSocket endpoint that records subscriptions and
// feeds scripted frames to each connection.
type fakeProvider struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu        sync.Mutex
	subs      [][]string // one entry per received subscribe request
	script    [][]string // frames to send to connection i
	connCount int
}

func newFakeProvider(t *testing.T, script [][]string) *fakeProvider {
	return &fakeProvider{t: t, script: script}
}

func (p *fakeProvider) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var sub struct {
		Type    string   `json:"type"`
		Symbols []string `json:"symbols"`
	}
	if err := conn.ReadJSON(&sub); err != nil || sub.Type != "subscribe" {
		p.t.Errorf("expected subscribe request, got %+v err=%v", sub, err)
		conn.Close()
		return
	}

	p.mu.Lock()
	idx := p.connCount
	p.connCount++
	p.subs = append(p.subs, sub.Symbols)
	var frames []string
	if idx < len(p.script) {
		frames = p.script[idx]
	}
	p.mu.Unlock()

	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			return
		}
	}
	// Drop the connection once the script is exhausted, unless this is the
	// last scripted connection, which stays open.
	p.mu.Lock()
	last := idx == len(p.script)-1
	p.mu.Unlock()
	if !last {
		conn.Close()
	}
}

func (p *fakeProvider) subscriptions() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]string, len(p.subs))
	copy(out, p.subs)
	return out
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func tickFrame(symbol string, price float64, sec int) string {
	ts := time.Date(2026, 8, 1, 14, 30, sec, 0, time.UTC)
	b, _ := json.Marshal(map[string]interface{}{
		"symbol": symbol, "price": price, "timestamp": ts.Format(time.RFC3339Nano),
	})
	return string(b)
}

func collectTicks() (Handler, func() []model.Tick) {
	var mu sync.Mutex
	var ticks []model.Tick
	h := func(t model.Tick) {
		mu.Lock()
		ticks = append(ticks, t)
		mu.Unlock()
	}
	get := func() []model.Tick {
		mu.Lock()
		defer mu.Unlock()
		out := make([]model.Tick, len(ticks))
		copy(out, ticks)
		return out
	}
	return h, get
}

func TestIngestor_SubscribesAndDeliversInOrder(t *testing.T) {
	p := newFakeProvider(t, [][]string{{
		tickFrame("AAPL", 187.5, 0),
		tickFrame("AAPL", 187.6, 1),
		tickFrame("MSFT", 402.1, 1),
	}})
	srv := httptest.NewServer(http.HandlerFunc(p.handler))
	defer srv.Close()

	handler, got := collectTicks()
	ing := New(Config{
		URL:          wsURL(srv),
		Symbols:      []string{"AAPL", "MSFT"},
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	}, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	waitFor(t, func() bool { return len(got()) == 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	ticks := got()
	subs := p.subscriptions()
	if len(subs) != 1 || len(subs[0]) != 2 {
		t.Fatalf("expected one subscribe with 2 symbols, got %v", subs)
	}
	if ticks[0].Price != 187.5 || ticks[1].Price != 187.6 {
		t.Errorf("ticks out of arrival order: %+v", ticks)
	}
	if ticks[0].Timestamp.Location() != time.UTC {
		t.Error("timestamps must be normalized to UTC")
	}
}

func TestIngestor_MalformedDroppedAndCounted(t *testing.T) {
	p := newFakeProvider(t, [][]string{{
		`{"price": 10, "timestamp": "2026-08-01T14:30:00Z"}`,       // missing symbol
		`{"symbol": "AAPL", "timestamp": "2026-08-01T14:30:00Z"}`,  // missing price
		`{"symbol": "AAPL", "price": "abc", "timestamp": "x"}`,     // non-numeric price
		`{"symbol": "AAPL", "price": -4, "timestamp": "2026-08-01T14:30:00Z"}`,
		`{"symbol": "AAPL", "price": 10, "timestamp": "yesterday"}`,
		tickFrame("AAPL", 187.5, 0),
	}})
	srv := httptest.NewServer(http.HandlerFunc(p.handler))
	defer srv.Close()

	handler, got := collectTicks()
	ing := New(Config{
		URL:          wsURL(srv),
		Symbols:      []string{"AAPL"},
		ReconnectMin: 10 * time.Millisecond,
	}, handler)

	var mu sync.Mutex
	malformed := 0
	ing.OnMalformed = func() {
		mu.Lock()
		malformed++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go ing.Run(ctx)
	defer cancel()

	waitFor(t, func() bool { return len(got()) == 1 })
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return malformed == 5
	})
}

func TestIngestor_ReconnectResubscribesFullSet(t *testing.T) {
	// First connection delivers two ticks then drops; the ingestor must
	// reconnect and re-issue the full original symbol set exactly once.
	p := newFakeProvider(t, [][]string{
		{tickFrame("AAPL", 1, 0), tickFrame("AAPL", 2, 1)},
		{tickFrame("AAPL", 3, 2)},
	})
	srv := httptest.NewServer(http.HandlerFunc(p.handler))
	defer srv.Close()

	handler, got := collectTicks()
	ing := New(Config{
		URL:          wsURL(srv),
		Symbols:      []string{"AAPL", "MSFT", "TSLA"},
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	}, handler)

	var mu sync.Mutex
	reconnects := 0
	ing.OnReconnect = func() {
		mu.Lock()
		reconnects++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go ing.Run(ctx)
	defer cancel()

	waitFor(t, func() bool { return len(got()) == 3 })

	subs := p.subscriptions()
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscribe requests, got %d", len(subs))
	}
	for i, s := range subs {
		if len(s) != 3 {
			t.Errorf("subscribe %d: expected full 3-symbol set, got %v", i, s)
		}
	}

	// No duplicate delivery of pre-drop ticks.
	prices := []float64{}
	for _, tk := range got() {
		prices = append(prices, tk.Price)
	}
	if prices[0] != 1 || prices[1] != 2 || prices[2] != 3 {
		t.Errorf("expected prices [1 2 3], got %v", prices)
	}

	mu.Lock()
	defer mu.Unlock()
	if reconnects != 1 {
		t.Errorf("expected exactly 1 reconnect, got %d", reconnects)
	}
}

func TestIngestor_GivesUpAfterMaxAttempts(t *testing.T) {
	ing := New(Config{
		URL:                "ws://127.0.0.1:1", // nothing listening
		Symbols:            []string{"AAPL"},
		ReconnectMin:       time.Millisecond,
		ReconnectMax:       2 * time.Millisecond,
		MaxConnectAttempts: 3,
	}, func(model.Tick) {})

	err := ing.Run(context.Background())
	if err == nil {
		t.Fatal("expected terminal error after exhausting connect attempts")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 3s")
}
