// Package notification delivers fired strategy signals to an external
// channel (Telegram, generic webhooks) with per-instrument deduplication
// and a bounded outbound queue.
package notification

import (
	"context"
	"log"
)

// Notifier is the interface to the outbound alert channel: it accepts
// pre-formatted text and reports success or failure. Failures are
// non-fatal and reportable; the channel's own retry policy is its concern.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// LogNotifier writes alerts to the process log (useful for development and
// for running without channel credentials).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, text string) error {
	log.Printf("[notify] %s", text)
	return nil
}
