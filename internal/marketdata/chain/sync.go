package chain

import (
	"context"
	"log"
	"time"

	"options-signals/internal/model"
)

const perSymbolFetchTimeout = 15 * time.Second

// Applier consumes one symbol's fresh chain snapshot.
type Applier func(symbol string, quotes []model.OptionQuote, fetchedAt time.Time)

// Syncer pulls option chains for every configured symbol on a fixed
// interval, and on demand via TriggerNow. One symbol's failed pull never
// aborts the rest of the cycle.
type Syncer struct {
	client   *Client
	symbols  []string
	interval time.Duration
	apply    Applier
	trigger  chan struct{}

	// Optional observability hooks.
	OnCycle func(elapsed time.Duration) // a full cycle completed
	OnError func(symbol string, err error)
}

// NewSyncer creates a Syncer delivering snapshots to apply.
func NewSyncer(client *Client, symbols []string, interval time.Duration, apply Applier) *Syncer {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Syncer{
		client:   client,
		symbols:  symbols,
		interval: interval,
		apply:    apply,
		trigger:  make(chan struct{}, 1),
	}
}

// TriggerNow requests an immediate sync cycle. Coalesces if one is already
// pending; never blocks.
func (s *Syncer) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run performs an initial cycle, then syncs on every interval tick or
// trigger until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	s.syncAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncAll(ctx)
		case <-s.trigger:
			s.syncAll(ctx)
		}
	}
}

func (s *Syncer) syncAll(ctx context.Context) {
	start := time.Now()
	for _, symbol := range s.symbols {
		if ctx.Err() != nil {
			return
		}
		fetchCtx, cancel := context.WithTimeout(ctx, perSymbolFetchTimeout)
		quotes, err := s.client.FetchChain(fetchCtx, symbol)
		cancel()
		if err != nil {
			log.Printf("[chain] sync %s failed: %v", symbol, err)
			if s.OnError != nil {
				s.OnError(symbol, err)
			}
			continue
		}
		s.apply(symbol, quotes, time.Now().UTC())
	}
	if s.OnCycle != nil {
		s.OnCycle(time.Since(start))
	}
}
