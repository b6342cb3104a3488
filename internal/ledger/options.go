package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/finsync/internal/notify"
)

// Notifier receives the events produced by ledger operations.
type Notifier interface {
	Publish(ctx context.Context, e notify.Event) error
}

// Gate coordinates ledger writes with whole-dataset replacement. Ledger
// commits hold it shared; reset holds it exclusively.
type Gate interface {
	Shared() (release func())
	Exclusive() (release func())
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithGate(g Gate) Option {
	return func(s *Service) { s.gate = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLowBalanceThreshold enables low-balance alerts for expenses that leave a
// non-credit account below threshold.
func WithLowBalanceThreshold(threshold decimal.Decimal) Option {
	return func(s *Service) { s.lowBalance = threshold }
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, notify.Event) error { return nil }

type nopGate struct{}

func (nopGate) Shared() func()    { return func() {} }
func (nopGate) Exclusive() func() { return func() {} }
