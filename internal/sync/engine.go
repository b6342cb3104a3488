// Package sync mirrors the local dataset through a remote.Store. Each device
// pushes its whole snapshot into its own document and listens for snapshots
// other devices write there; the newer snapshot wins.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrJamesThe3rd/finsync/internal/database"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
	"github.com/MrJamesThe3rd/finsync/internal/notify"
	"github.com/MrJamesThe3rd/finsync/internal/remote"
)

var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrAlreadyStarted    = errors.New("sync engine already started")
	ErrStopped           = errors.New("sync engine stopped")
	ErrSchemaMismatch    = errors.New("remote snapshot has a different schema version")
	errSubscriptionEnded = errors.New("remote subscription ended")
)

// Local is the device-local dataset the engine reads from and replaces.
type Local interface {
	Snapshot(ctx context.Context) (*ledger.Snapshot, error)
	Restore(ctx context.Context, snap *ledger.Snapshot) error
	UpdatedAt(ctx context.Context) (time.Time, error)
}

type Engine struct {
	deviceID string
	local    Local
	remote   remote.Store
	notifier ledger.Notifier
	gate     ledger.Gate
	log      *slog.Logger
	now      func() time.Time

	retryDelay    time.Duration
	maxRetryDelay time.Duration

	state   atomic.Int32
	started atomic.Bool
	stopped atomic.Bool
	pushes  chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func NewEngine(deviceID string, local Local, store remote.Store, opts ...Option) *Engine {
	e := &Engine{
		deviceID:      deviceID,
		local:         local,
		remote:        store,
		notifier:      nopNotifier{},
		gate:          nopGate{},
		log:           slog.Default(),
		now:           time.Now,
		retryDelay:    time.Second,
		maxRetryDelay: time.Minute,
		pushes:        make(chan struct{}, 1),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) DeviceID() string { return e.deviceID }

func (e *Engine) State() State { return State(e.state.Load()) }

// enter moves the engine into s for the duration of an operation; the returned
// func restores the previous state unless Stop happened meanwhile.
func (e *Engine) enter(s State) func() {
	prev := State(e.state.Swap(int32(s)))
	if prev == StateStopped {
		e.state.Store(int32(StateStopped))
		return func() {}
	}

	return func() { e.state.CompareAndSwap(int32(s), int32(prev)) }
}

// Start registers the device and begins listening to its remote document
// in the background. Failures after Start returns are reported as
// SyncFailed notifications and retried.
func (e *Engine) Start(ctx context.Context) error {
	if e.stopped.Load() {
		return ErrStopped
	}

	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := e.remote.Register(ctx, e.deviceID, e.now().UTC()); err != nil {
		e.log.Warn("failed to register device", "device_id", e.deviceID, "error", err)
	}

	e.state.CompareAndSwap(int32(StateIdle), int32(StateListening))

	go e.run(ctx)

	return nil
}

// Stop ends the subscription and waits for the background loop. It is safe
// to call more than once; once it returns no remote update is applied.
func (e *Engine) Stop() {
	if !e.stopped.CompareAndSwap(false, true) {
		return
	}

	close(e.quit)

	if e.started.Load() {
		<-e.done
	}

	e.state.Store(int32(StateStopped))
}

// SchedulePush asks the background loop to push the local dataset. Requests
// made while one is pending are coalesced.
func (e *Engine) SchedulePush() {
	select {
	case e.pushes <- struct{}{}:
	default:
	}
}

func (e *Engine) run(parent context.Context) {
	defer close(e.done)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		updates <-chan remote.Update
		retry   <-chan time.Time
		delay   = e.retryDelay
	)

	backoff := func(err error) {
		e.failed(ctx, err)

		retry = time.After(delay)
		delay = min(delay*2, e.maxRetryDelay)
	}

	subscribe := func() {
		ch, err := e.remote.Subscribe(ctx, e.deviceID)
		if err != nil {
			backoff(err)
			return
		}

		updates = ch
	}

	select {
	case <-e.quit:
		return
	default:
	}

	subscribe()

	for {
		select {
		case <-e.quit:
			return
		default:
		}

		select {
		case <-e.quit:
			return
		case <-ctx.Done():
			return
		case <-retry:
			retry = nil
			subscribe()
		case u, ok := <-updates:
			if !ok {
				updates = nil

				if ctx.Err() != nil {
					return
				}

				backoff(errSubscriptionEnded)

				continue
			}

			if u.Err != nil {
				e.failed(ctx, u.Err)
				continue
			}

			delay = e.retryDelay

			if _, err := e.Reconcile(ctx, u.Envelope); err != nil {
				e.failed(ctx, err)
			}
		case <-e.pushes:
			// Push reports its own failure.
			_ = e.Push(ctx)
		}
	}
}

// Reconcile applies env to the local dataset when it comes from another
// device and is newer than the local data. It reports whether the local
// dataset was replaced.
func (e *Engine) Reconcile(ctx context.Context, env *remote.Envelope) (bool, error) {
	if env == nil || env.DeviceID == "" || env.DeviceID == e.deviceID || !env.HasData() {
		return false, nil
	}

	var snap ledger.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		return false, fmt.Errorf("decoding snapshot from %s: %w", env.DeviceID, err)
	}

	if err := snap.Check(); err != nil {
		return false, fmt.Errorf("decoding snapshot from %s: %w", env.DeviceID, err)
	}

	if snap.SchemaVersion != database.SchemaVersion {
		return false, fmt.Errorf("%w: got %d, want %d", ErrSchemaMismatch, snap.SchemaVersion, database.SchemaVersion)
	}

	release := e.gate.Exclusive()
	defer release()

	local, err := e.local.UpdatedAt(ctx)
	if err != nil {
		return false, fmt.Errorf("reading local timestamp: %w", err)
	}

	if !local.IsZero() && !env.Timestamp.After(local) {
		e.log.Debug("ignoring older remote snapshot",
			"from", env.DeviceID, "remote", env.Timestamp, "local", local)

		return false, nil
	}

	defer e.enter(StateReceiving)()

	snap.Timestamp = env.Timestamp
	if err := e.local.Restore(ctx, &snap); err != nil {
		return false, fmt.Errorf("applying snapshot from %s: %w", env.DeviceID, err)
	}

	if err := e.remote.Touch(ctx, e.deviceID, e.now().UTC()); err != nil {
		e.log.Warn("failed to touch device", "device_id", e.deviceID, "error", err)
	}

	e.log.Info("applied remote snapshot", "from", env.DeviceID, "timestamp", env.Timestamp)
	e.publish(ctx, notify.SyncCompleted{DeviceID: env.DeviceID, Source: notify.SourceRemote, Timestamp: env.Timestamp})

	return true, nil
}

func (e *Engine) snapshot(ctx context.Context) (*ledger.Snapshot, error) {
	release := e.gate.Shared()
	defer release()

	snap, err := e.local.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading local snapshot: %w", err)
	}

	return snap, nil
}

// Push writes the current local dataset into this device's document.
func (e *Engine) Push(ctx context.Context) error {
	snap, err := e.snapshot(ctx)
	if err != nil {
		e.failed(ctx, err)
		return err
	}

	return e.SyncData(ctx, snap)
}

// SyncData writes snap into this device's document.
func (e *Engine) SyncData(ctx context.Context, snap *ledger.Snapshot) error {
	defer e.enter(StatePushing)()

	if err := e.write(ctx, e.deviceID, snap); err != nil {
		e.failed(ctx, err)
		return err
	}

	if err := e.remote.Touch(ctx, e.deviceID, e.now().UTC()); err != nil {
		e.log.Warn("failed to touch device", "device_id", e.deviceID, "error", err)
	}

	e.publish(ctx, notify.SyncCompleted{DeviceID: e.deviceID, Source: notify.SourceLocal, Timestamp: e.now().UTC()})

	return nil
}

// RequestSync sends the local dataset to target. The target applies it if it
// is newer than its own data.
func (e *Engine) RequestSync(ctx context.Context, target string) error {
	if _, err := e.remote.Get(ctx, target); err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, target)
		}

		return fmt.Errorf("looking up device %s: %w", target, err)
	}

	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}

	defer e.enter(StatePushing)()

	if err := e.write(ctx, target, snap); err != nil {
		e.failed(ctx, err)
		return err
	}

	e.publish(ctx, notify.SyncCompleted{DeviceID: target, Source: notify.SourceLocal, Timestamp: e.now().UTC()})

	return nil
}

func (e *Engine) write(ctx context.Context, docID string, snap *ledger.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	now := e.now().UTC()

	err = e.remote.Merge(ctx, docID, remote.Fields{
		DeviceID:  &e.deviceID,
		Timestamp: &now,
		Data:      data,
		LastSync:  &now,
	})
	if err != nil {
		return fmt.Errorf("writing snapshot to %s: %w", docID, err)
	}

	return nil
}

func (e *Engine) failed(ctx context.Context, err error) {
	e.log.Error("sync failed", "device_id", e.deviceID, "error", err)
	e.publish(ctx, notify.SyncFailed{DeviceID: e.deviceID, Error: err.Error()})
}

func (e *Engine) publish(ctx context.Context, ev notify.Event) {
	if err := e.notifier.Publish(ctx, ev); err != nil {
		e.log.Warn("failed to publish notification", "kind", ev.Kind(), "error", err)
	}
}
