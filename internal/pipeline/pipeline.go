// Package pipeline runs the per-tick evaluation chain: rolling-window
// append, indicator computation, crossover update, and signal evaluation as
// one synchronous unit per symbol.
//
// Ticks are routed to shard workers by symbol hash, so ticks for one symbol
// are always processed in arrival order by the same worker, while distinct
// symbols evaluate concurrently under bounded capacity. Each symbol's
// window and crossover state live behind that symbol's own lock — the chain
// syncer writes IV into the same window from another goroutine.
package pipeline

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"options-signals/internal/crossover"
	"options-signals/internal/indicator"
	"options-signals/internal/model"
	"options-signals/internal/strategy"
	"options-signals/internal/window"
)

// Config sizes the per-symbol state and the worker pool.
type Config struct {
	Indicator      indicator.Config
	MaxLookback    int // price window capacity, must exceed indicator warmup
	IVLookbackDays int // IV window capacity, one sample per day
	Shards         int // worker count
	ShardBuffer    int // per-worker queue capacity
}

// symbolState is everything the pipeline tracks for one symbol. Guarded by
// its own mutex so symbols stay independent.
type symbolState struct {
	mu        sync.Mutex
	win       *window.Window
	cross     crossover.Tracker
	currentIV float64
	contract  *model.OptionQuote // nearest-the-money, from the last chain sync
}

// Engine owns the symbol table and the shard workers.
type Engine struct {
	cfg       Config
	evaluator *strategy.Evaluator

	shards []chan model.Tick
	wg     sync.WaitGroup

	mu     sync.RWMutex
	states map[string]*symbolState

	// Optional observability hooks.
	OnShardFull func()                         // tick dropped, worker queue full
	OnStaleTick func()                         // tick older than window head, dropped
	OnEvalError func(symbol string, err error) // evaluator surfaced an error
	OnEvaluated func(elapsed time.Duration)
}

// New creates an Engine. Zero Shards/ShardBuffer get defaults (4, 1024).
func New(cfg Config, evaluator *strategy.Evaluator) *Engine {
	if cfg.Shards <= 0 {
		cfg.Shards = 4
	}
	if cfg.ShardBuffer <= 0 {
		cfg.ShardBuffer = 1024
	}
	e := &Engine{
		cfg:       cfg,
		evaluator: evaluator,
		states:    make(map[string]*symbolState),
		shards:    make([]chan model.Tick, cfg.Shards),
	}
	for i := range e.shards {
		e.shards[i] = make(chan model.Tick, cfg.ShardBuffer)
	}
	return e
}

// Run starts the shard workers and routes ticks from tickCh until ctx is
// cancelled or the channel closes. Queued ticks are drained before return,
// so an in-flight evaluation is never cut mid-chain.
func (e *Engine) Run(ctx context.Context, tickCh <-chan model.Tick) {
	for i := range e.shards {
		e.wg.Add(1)
		go func(ch <-chan model.Tick) {
			defer e.wg.Done()
			for tick := range ch {
				e.process(tick)
			}
		}(e.shards[i])
	}

	defer func() {
		for _, ch := range e.shards {
			close(ch)
		}
		e.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-tickCh:
			if !ok {
				return
			}
			shard := e.shards[e.shardFor(tick.Symbol)]
			select {
			case shard <- tick:
			default:
				if e.OnShardFull != nil {
					e.OnShardFull()
				}
				log.Printf("[pipeline] shard full, dropping tick %s", tick.Symbol)
			}
		}
	}
}

func (e *Engine) shardFor(symbol string) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(len(e.shards)))
}

// state returns the symbol's state, creating it on first sight.
func (e *Engine) state(symbol string) *symbolState {
	e.mu.RLock()
	st, ok := e.states[symbol]
	e.mu.RUnlock()
	if ok {
		return st
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok = e.states[symbol]; ok {
		return st
	}
	st = &symbolState{
		win: window.New(e.cfg.MaxLookback, e.cfg.IVLookbackDays),
	}
	e.states[symbol] = st
	return st
}

// process runs the full evaluation unit for one tick under the symbol lock:
// no other tick for this symbol can interleave between the window write and
// the indicator read.
func (e *Engine) process(t model.Tick) {
	start := time.Now()
	st := e.state(t.Symbol)

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.win.AppendPrice(t.Timestamp, t.Price) {
		if e.OnStaleTick != nil {
			e.OnStaleTick()
		}
		return
	}

	snap := indicator.Compute(e.cfg.Indicator, st.win.Prices(), st.currentIV, st.win.IVHistory())
	event := st.cross.Observe(snap.MACDLine, snap.MACDSignal)

	if _, err := e.evaluator.Evaluate(t.Symbol, snap, event, t.Price, st.contract); err != nil {
		log.Printf("[pipeline] %s: evaluation halted: %v", t.Symbol, err)
		if e.OnEvalError != nil {
			e.OnEvalError(t.Symbol, err)
		}
	}

	if e.OnEvaluated != nil {
		e.OnEvaluated(time.Since(start))
	}
}

// ApplyChain ingests one symbol's fresh option chain snapshot: picks the
// nearest-the-money contract, records its implied vol as the symbol's
// current IV, and appends it to the IV history keyed by fetch day (repeat
// syncs within a day replace rather than duplicate).
func (e *Engine) ApplyChain(symbol string, quotes []model.OptionQuote, fetchedAt time.Time) {
	if len(quotes) == 0 {
		return
	}
	st := e.state(symbol)

	st.mu.Lock()
	defer st.mu.Unlock()

	ref, ok := st.win.LastPrice()
	if !ok {
		// No trade seen yet: center on the chain itself.
		for _, q := range quotes {
			ref += q.Strike
		}
		ref /= float64(len(quotes))
	}

	nearest := quotes[0]
	for _, q := range quotes[1:] {
		if abs(q.Strike-ref) < abs(nearest.Strike-ref) {
			nearest = q
		}
	}

	st.contract = &nearest
	st.currentIV = nearest.ImpliedVol
	st.win.AppendIV(fetchedAt.UTC().Truncate(24*time.Hour), nearest.ImpliedVol)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
