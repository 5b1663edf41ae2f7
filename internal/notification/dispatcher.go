package notification

import (
	"context"
	"log"
	"sync"
	"time"

	"options-signals/internal/model"
)

const (
	defaultSendTimeout  = 10 * time.Second
	defaultDrainTimeout = 5 * time.Second
	dedupSweepThreshold = 256
)

// DispatcherConfig configures dedup and queue behavior.
type DispatcherConfig struct {
	DedupWindow  time.Duration // minimum interval between alerts for one instrument
	QueueSize    int           // bounded outbound queue capacity
	SendTimeout  time.Duration // per-send deadline against the channel
	DrainTimeout time.Duration // shutdown budget for queued alerts
}

// Dispatcher deduplicates fired signals per (ticker, strike, expiry) and
// forwards them to the notifier from a bounded queue. On queue overflow the
// OLDEST alert is dropped: an alert describing a stale condition has little
// value, so freshness wins over completeness.
//
// The dedup timestamp is recorded before forwarding and never rolled back
// on a send failure. That makes delivery at-most-once per window and keeps
// a flaky channel from being hammered by retry storms.
type Dispatcher struct {
	notifier Notifier
	cfg      DispatcherConfig

	mu       sync.Mutex
	lastSent map[model.DedupKey]time.Time
	queue    chan model.StrategySignal

	now func() time.Time

	// Optional observability hooks.
	OnDeduped   func()
	OnQueueDrop func()
	OnSent      func(err error)
}

// NewDispatcher creates a Dispatcher. Zero config fields get defaults
// (15m window, queue of 64).
func NewDispatcher(notifier Notifier, cfg DispatcherConfig) *Dispatcher {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 15 * time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	return &Dispatcher{
		notifier: notifier,
		cfg:      cfg,
		lastSent: make(map[model.DedupKey]time.Time),
		queue:    make(chan model.StrategySignal, cfg.QueueSize),
		now:      time.Now,
	}
}

// Dispatch enqueues a signal for delivery unless an alert for the same
// instrument went out within the dedup window. Returns true when the signal
// was queued. Never blocks the caller.
func (d *Dispatcher) Dispatch(sig model.StrategySignal) bool {
	d.mu.Lock()
	now := d.now()
	key := sig.Key()

	if sent, ok := d.lastSent[key]; ok && now.Sub(sent) < d.cfg.DedupWindow {
		d.mu.Unlock()
		if d.OnDeduped != nil {
			d.OnDeduped()
		}
		return false
	}
	d.lastSent[key] = now
	d.sweepLocked(now)

	// Bounded enqueue with drop-oldest. Held under mu so two concurrent
	// dispatches cannot both pop.
	for {
		select {
		case d.queue <- sig:
			d.mu.Unlock()
			return true
		default:
		}
		select {
		case stale := <-d.queue:
			log.Printf("[dispatch] queue full, dropping oldest alert %s", stale.Ticker)
			if d.OnQueueDrop != nil {
				d.OnQueueDrop()
			}
		default:
		}
	}
}

// sweepLocked lazily evicts dedup entries whose window elapsed. Called with
// d.mu held; only bothers once the table has grown.
func (d *Dispatcher) sweepLocked(now time.Time) {
	if len(d.lastSent) < dedupSweepThreshold {
		return
	}
	for key, sent := range d.lastSent {
		if now.Sub(sent) >= d.cfg.DedupWindow {
			delete(d.lastSent, key)
		}
	}
}

// Run forwards queued alerts to the notifier. Blocks until ctx is
// cancelled, then drains what is queued within the drain timeout.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case sig := <-d.queue:
			d.send(sig)
		}
	}
}

func (d *Dispatcher) drain() {
	deadline := time.Now().Add(d.cfg.DrainTimeout)
	for {
		select {
		case sig := <-d.queue:
			if time.Now().After(deadline) {
				log.Printf("[dispatch] drain timeout, dropping alert %s", sig.Ticker)
				if d.OnQueueDrop != nil {
					d.OnQueueDrop()
				}
				continue
			}
			d.send(sig)
		default:
			return
		}
	}
}

func (d *Dispatcher) send(sig model.StrategySignal) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	err := d.notifier.Send(ctx, sig.Text())
	if err != nil {
		log.Printf("[dispatch] send failed for %s: %v", sig.Ticker, err)
	}
	if d.OnSent != nil {
		d.OnSent(err)
	}
}
