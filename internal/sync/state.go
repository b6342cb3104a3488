package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrJamesThe3rd/finsync/internal/ledger"
	"github.com/MrJamesThe3rd/finsync/internal/notify"
)

type State int32

const (
	StateIdle State = iota
	StateListening
	StateReceiving
	StatePushing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateReceiving:
		return "receiving"
	case StatePushing:
		return "pushing"
	case StateStopped:
		return "stopped"
	}

	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Option func(*Engine)

func WithNotifier(n ledger.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithGate shares the device lock with the ledger so a remote snapshot never
// lands in the middle of a commit.
func WithGate(g ledger.Gate) Option {
	return func(e *Engine) { e.gate = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRetryDelay sets the first resubscribe delay and its ceiling; the delay
// doubles after every consecutive failure.
func WithRetryDelay(initial, ceiling time.Duration) Option {
	return func(e *Engine) {
		e.retryDelay = initial
		e.maxRetryDelay = ceiling
	}
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, notify.Event) error { return nil }

type nopGate struct{}

func (nopGate) Shared() func()    { return func() {} }
func (nopGate) Exclusive() func() { return func() {} }
