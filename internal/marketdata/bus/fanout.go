// Package bus fans normalized ticks out from the ingestor to independent
// consumers (evaluation pipeline, persistence sinks).
package bus

import (
	"context"
	"log"
	"sync"

	"options-signals/internal/model"
)

// FanOut broadcasts ticks from a single input channel to N output channels.
// If an output channel is full, the tick is dropped for that consumer so a
// slow sink cannot block ingestion for the others.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.Tick
	names   []string
	bufSize int

	// OnDrop is called with the slow consumer's subscription name when a
	// tick is dropped for it.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new output channel. The name identifies
// the consumer in drop reporting.
func (f *FanOut) Subscribe(name string) <-chan model.Tick {
	ch := make(chan model.Tick, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.names = append(f.names, name)
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed; output channels are
// closed on return.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Tick) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- tick:
				default:
					if f.OnDrop != nil {
						f.OnDrop(f.names[i])
					} else {
						log.Printf("[bus] %s channel full, dropping tick %s", f.names[i], tick.Symbol)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}
