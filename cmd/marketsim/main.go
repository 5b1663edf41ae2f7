// cmd/marketsim — Demo market data provider.
// Serves simulated underlying ticks over WebSocket and synthetic option
// chains over REST, so sigengine can run end-to-end without a real provider.
//
// Wire shapes match what sigengine expects:
//
//	tick:  {"symbol":"AAPL","price":187.32,"timestamp":"2026-03-09T10:00:00Z"}
//	chain: GET /options/{symbol} → [{"expiration":"2026-04-17","strike":185,...}]
//
// Config (env vars):
//
//	SIM_ADDR         — listen address (default: ":8081")
//	SIM_SYMBOLS      — comma-separated SYMBOL:STARTPRICE pairs (default: "AAPL:185,MSFT:410")
//	SIM_INTERVAL_MS  — tick interval milliseconds (default: "250")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// tickMsg is the tick wire shape sigengine's ingestor parses.
type tickMsg struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// contractMsg is one option contract in the chain response.
type contractMsg struct {
	Expiration string  `json:"expiration"`
	Strike     float64 `json:"strike"`
	Type       string  `json:"type"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	ImpliedVol float64 `json:"implied_vol"`
}

// book holds the simulated per-symbol market state.
type book struct {
	mu     sync.RWMutex
	prices map[string]float64
	ivs    map[string]float64
}

func newBook(start map[string]float64) *book {
	ivs := make(map[string]float64, len(start))
	for sym := range start {
		ivs[sym] = 0.20 + rand.Float64()*0.15
	}
	return &book{prices: start, ivs: ivs}
}

// walk applies a tiny random walk (±0.1% price, ±1% vol) to every symbol.
func (b *book) walk() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sym, px := range b.prices {
		pct := (rand.Float64()*0.2 - 0.1) / 100.0
		next := px * (1 + pct)
		if next < 0.01 {
			next = 0.01
		}
		b.prices[sym] = next

		iv := b.ivs[sym] * (1 + (rand.Float64()*2-1)/100.0)
		if iv < 0.05 {
			iv = 0.05
		}
		b.ivs[sym] = iv
	}
}

func (b *book) price(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	px, ok := b.prices[symbol]
	return px, ok
}

func (b *book) iv(symbol string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ivs[symbol]
}

func (b *book) symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.prices))
	for sym := range b.prices {
		out = append(out, sym)
	}
	return out
}

// client is one WebSocket consumer with its subscription set.
type client struct {
	ch chan []byte

	mu      sync.Mutex
	symbols map[string]bool
}

func (c *client) subscribed(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.symbols[symbol]
}

func (c *client) subscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbols {
		c.symbols[s] = true
	}
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *hub) register(conn *websocket.Conn) *client {
	c := &client{ch: make(chan []byte, 256), symbols: make(map[string]bool)}
	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()
	return c
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if c, ok := h.clients[conn]; ok {
		close(c.ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// broadcast delivers a tick to every client subscribed to its symbol.
func (h *hub) broadcast(symbol string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.subscribed(symbol) {
			continue
		}
		select {
		case c.ch <- msg:
		default: // slow client — drop tick
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// subscribeMsg is the inbound subscription request shape.
type subscribeMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

func streamHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[marketsim] upgrade error: %v", err)
			return
		}
		log.Printf("[marketsim] client connected: %s", r.RemoteAddr)

		c := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[marketsim] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends tick JSON to this client.
		go func() {
			for msg := range c.ch {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		// Read pump: accepts subscribe requests.
		for {
			var sub subscribeMsg
			if err := conn.ReadJSON(&sub); err != nil {
				return
			}
			if sub.Type != "subscribe" || len(sub.Symbols) == 0 {
				log.Printf("[marketsim] ignoring message type %q from %s", sub.Type, r.RemoteAddr)
				continue
			}
			c.subscribe(sub.Symbols)
			log.Printf("[marketsim] %s subscribed to %v", r.RemoteAddr, sub.Symbols)
		}
	}
}

// chainHandler serves a synthetic option chain: calls and puts at five
// strikes bracketing the current price, expiring the next two monthlies.
func chainHandler(b *book) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := mux.Vars(r)["symbol"]
		px, ok := b.price(symbol)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown symbol %q", symbol), http.StatusNotFound)
			return
		}
		iv := b.iv(symbol)

		step := strikeStep(px)
		atm := math.Round(px/step) * step
		expiries := []string{
			thirdFriday(time.Now().UTC().AddDate(0, 1, 0)).Format("2006-01-02"),
			thirdFriday(time.Now().UTC().AddDate(0, 2, 0)).Format("2006-01-02"),
		}

		var contracts []contractMsg
		for _, expiry := range expiries {
			for off := -2; off <= 2; off++ {
				strike := atm + float64(off)*step
				if strike <= 0 {
					continue
				}
				// Rough smile: vol rises away from the money.
				skew := iv * (1 + 0.04*math.Abs(float64(off)))
				mid := math.Max(0.05, px*skew*0.1)
				for _, typ := range []string{"call", "put"} {
					contracts = append(contracts, contractMsg{
						Expiration: expiry,
						Strike:     strike,
						Type:       typ,
						Bid:        round2(mid * 0.98),
						Ask:        round2(mid * 1.02),
						ImpliedVol: round4(skew),
					})
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(contracts)
	}
}

// strikeStep picks a chain strike spacing appropriate to the price level.
func strikeStep(px float64) float64 {
	switch {
	case px < 25:
		return 0.5
	case px < 100:
		return 1
	case px < 250:
		return 2.5
	default:
		return 5
	}
}

// thirdFriday returns the third Friday of t's month.
func thirdFriday(t time.Time) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+14)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func runGenerator(h *hub, b *book, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		b.walk()
		for _, sym := range b.symbols() {
			px, _ := b.price(sym)
			msg := tickMsg{
				Symbol:    sym,
				Price:     round2(px),
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(sym, data)
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[marketsim] starting demo market data provider...")

	addr := envOrDefault("SIM_ADDR", ":8081")
	symbolsEnv := envOrDefault("SIM_SYMBOLS", "AAPL:185,MSFT:410")
	intervalMs := envIntOrDefault("SIM_INTERVAL_MS", 250)

	start := parseSymbols(symbolsEnv)
	if len(start) == 0 {
		log.Fatalf("[marketsim] no symbols configured via SIM_SYMBOLS")
	}
	log.Printf("[marketsim] symbols: %v", start)
	log.Printf("[marketsim] tick interval: %dms", intervalMs)

	b := newBook(start)
	h := newHub()

	go runGenerator(h, b, intervalMs)

	r := mux.NewRouter()
	r.HandleFunc("/stream", streamHandler(h))
	r.HandleFunc("/options/{symbol}", chainHandler(b)).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"marketsim"}`)
	}).Methods(http.MethodGet)

	log.Printf("[marketsim] listening on %s  (WebSocket: ws://localhost%s/stream)", addr, addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("[marketsim] server error: %v", err)
	}
}

// parseSymbols parses "SYMBOL:STARTPRICE,..." into the starting price map.
func parseSymbols(s string) map[string]float64 {
	out := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seg := strings.SplitN(part, ":", 2)
		sym := strings.TrimSpace(seg[0])
		if sym == "" {
			continue
		}
		px := 100.0
		if len(seg) == 2 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(seg[1]), 64); err == nil && v > 0 {
				px = v
			} else {
				log.Printf("[marketsim] bad start price in %q, using %v", part, px)
			}
		}
		out[sym] = px
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
