package sync_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/finsync/internal/database"
	"github.com/MrJamesThe3rd/finsync/internal/device"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
	"github.com/MrJamesThe3rd/finsync/internal/ledger/store"
	"github.com/MrJamesThe3rd/finsync/internal/notify"
	"github.com/MrJamesThe3rd/finsync/internal/remote"
	"github.com/MrJamesThe3rd/finsync/internal/remote/memstore"
	finsync "github.com/MrJamesThe3rd/finsync/internal/sync"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)

	return nil
}

func (r *recorder) count(kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, e := range r.events {
		if e.Kind() == kind {
			n++
		}
	}

	return n
}

func (r *recorder) last(kind notify.Kind) notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind() == kind {
			return r.events[i]
		}
	}

	return nil
}

type localDevice struct {
	svc   *ledger.Service
	store *store.Store
	gate  *device.Lock
}

func newLocal(t *testing.T) *localDevice {
	t.Helper()

	db, err := database.OpenLocal(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	gate := &device.Lock{}

	return &localDevice{svc: ledger.NewService(st, ledger.WithGate(gate)), store: st, gate: gate}
}

func (d *localDevice) account(t *testing.T, name string, balance int64) {
	t.Helper()

	_, err := d.svc.CreateAccount(context.Background(), ledger.CreateAccountParams{
		Name:     name,
		Type:     ledger.AccountChecking,
		Balance:  decimal.NewFromInt(balance),
		Currency: "SAR",
	})
	require.NoError(t, err)
}

func (d *localDevice) accountNames(t *testing.T) []string {
	t.Helper()

	accounts, err := d.svc.ListAccounts(context.Background())
	require.NoError(t, err)

	names := make([]string, len(accounts))
	for i, a := range accounts {
		names[i] = a.Name
	}

	return names
}

func envelopeFrom(t *testing.T, d *localDevice, deviceID string, at time.Time) *remote.Envelope {
	t.Helper()

	snap, err := d.store.Snapshot(context.Background())
	require.NoError(t, err)

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	return &remote.Envelope{DeviceID: deviceID, Timestamp: at, Data: data}
}

func TestEngine_Reconcile(t *testing.T) {
	type testCase struct {
		name        string
		seedLocal   bool
		from        string
		at          func(localUpdated time.Time) time.Time
		wantApplied bool
	}

	tests := []testCase{
		{
			name:        "NewerRemoteWins",
			seedLocal:   true,
			from:        "dev-a",
			at:          func(local time.Time) time.Time { return local.Add(time.Hour) },
			wantApplied: true,
		},
		{
			name:      "OlderRemoteIgnored",
			seedLocal: true,
			from:      "dev-a",
			at:        func(local time.Time) time.Time { return local.Add(-time.Hour) },
		},
		{
			name:      "SameTimestampIgnored",
			seedLocal: true,
			from:      "dev-a",
			at:        func(local time.Time) time.Time { return local },
		},
		{
			name:      "OwnEchoIgnored",
			seedLocal: true,
			from:      "dev-b",
			at:        func(local time.Time) time.Time { return local.Add(time.Hour) },
		},
		{
			name:        "EmptyLocalAlwaysApplies",
			from:        "dev-a",
			at:          func(time.Time) time.Time { return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC) },
			wantApplied: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			a := newLocal(t)
			a.account(t, "Remote", 100)

			b := newLocal(t)
			if tt.seedLocal {
				b.account(t, "Local", 5)
			}

			localUpdated, err := b.store.UpdatedAt(ctx)
			require.NoError(t, err)

			rec := &recorder{}
			engine := finsync.NewEngine("dev-b", b.store, memstore.New(),
				finsync.WithNotifier(rec), finsync.WithGate(b.gate))

			env := envelopeFrom(t, a, tt.from, tt.at(localUpdated))

			applied, err := engine.Reconcile(ctx, env)
			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, applied)

			if !tt.wantApplied {
				after, err := b.store.UpdatedAt(ctx)
				require.NoError(t, err)
				assert.True(t, after.Equal(localUpdated))
				assert.Zero(t, rec.count(notify.KindSyncComplete))

				return
			}

			assert.Equal(t, []string{"Remote"}, b.accountNames(t))

			after, err := b.store.UpdatedAt(ctx)
			require.NoError(t, err)
			assert.True(t, after.Equal(env.Timestamp))

			ev, ok := rec.last(notify.KindSyncComplete).(notify.SyncCompleted)
			require.True(t, ok)
			assert.Equal(t, notify.SourceRemote, ev.Source)
			assert.Equal(t, "dev-a", ev.DeviceID)
		})
	}
}

func TestEngine_ReconcileRejectsOtherSchema(t *testing.T) {
	b := newLocal(t)
	engine := finsync.NewEngine("dev-b", b.store, memstore.New())

	data, err := json.Marshal(ledger.Snapshot{SchemaVersion: database.SchemaVersion - 1})
	require.NoError(t, err)

	applied, err := engine.Reconcile(context.Background(), &remote.Envelope{
		DeviceID:  "dev-a",
		Timestamp: time.Now(),
		Data:      data,
	})
	assert.False(t, applied)
	assert.ErrorIs(t, err, finsync.ErrSchemaMismatch)
}

func TestEngine_ReconcileRejectsNullRecords(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "Account", data: `{"accounts":[null]}`},
		{name: "Transaction", data: `{"accounts":[],"transactions":[null]}`},
		{name: "Document", data: `{"documents":[{"id":"7d6c4c1e-0f0a-4c4e-9a1b-2b3c4d5e6f70"},null]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			b := newLocal(t)
			b.account(t, "Local", 5)

			engine := finsync.NewEngine("dev-b", b.store, memstore.New())

			var body map[string]any
			require.NoError(t, json.Unmarshal([]byte(tt.data), &body))
			body["schemaVersion"] = database.SchemaVersion

			data, err := json.Marshal(body)
			require.NoError(t, err)

			applied, err := engine.Reconcile(ctx, &remote.Envelope{
				DeviceID:  "dev-a",
				Timestamp: time.Now().Add(time.Hour),
				Data:      data,
			})
			assert.False(t, applied)
			assert.ErrorIs(t, err, ledger.ErrMalformedSnapshot)
			assert.Equal(t, []string{"Local"}, b.accountNames(t))
		})
	}
}

func TestEngine_Push(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	rec := &recorder{}

	a := newLocal(t)
	a.account(t, "Main", 100)

	engine := finsync.NewEngine("dev-a", a.store, mem, finsync.WithNotifier(rec))
	require.NoError(t, engine.Push(ctx))

	env, err := mem.Get(ctx, "dev-a")
	require.NoError(t, err)
	assert.Equal(t, "dev-a", env.DeviceID)
	assert.False(t, env.LastSync.IsZero())

	var snap ledger.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.Len(t, snap.Accounts, 1)
	assert.Equal(t, "Main", snap.Accounts[0].Name)

	ev, ok := rec.last(notify.KindSyncComplete).(notify.SyncCompleted)
	require.True(t, ok)
	assert.Equal(t, notify.SourceLocal, ev.Source)
}

func TestEngine_RequestSyncUnknownDevice(t *testing.T) {
	a := newLocal(t)
	engine := finsync.NewEngine("dev-a", a.store, memstore.New())

	err := engine.RequestSync(context.Background(), "dev-missing")
	assert.ErrorIs(t, err, finsync.ErrDeviceNotFound)
}

func TestEngine_RequestSyncReachesListeningDevice(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	a := newLocal(t)
	a.account(t, "Shared", 250)

	b := newLocal(t)
	recB := &recorder{}

	engineB := finsync.NewEngine("dev-b", b.store, mem, finsync.WithNotifier(recB), finsync.WithGate(b.gate))
	require.NoError(t, engineB.Start(ctx))
	assert.Equal(t, finsync.StateListening, engineB.State())

	engineA := finsync.NewEngine("dev-a", a.store, mem)
	require.NoError(t, engineA.RequestSync(ctx, "dev-b"))

	require.Eventually(t, func() bool {
		return recB.count(notify.KindSyncComplete) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"Shared"}, b.accountNames(t))

	devices, err := mem.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev-b", devices[0].ID)

	engineB.Stop()
	engineB.Stop()
	assert.Equal(t, finsync.StateStopped, engineB.State())
	assert.ErrorIs(t, engineB.Start(ctx), finsync.ErrStopped)
}

func TestEngine_CatchesUpOnStart(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	b := newLocal(t)
	b.account(t, "Stale", 5)
	recB := &recorder{}

	// dev-b registered earlier and is offline now.
	require.NoError(t, mem.Register(ctx, "dev-b", time.Now().Add(-time.Hour)))

	a := newLocal(t)
	a.account(t, "Shared", 250)

	engineA := finsync.NewEngine("dev-a", a.store, mem)
	require.NoError(t, engineA.RequestSync(ctx, "dev-b"))

	engineB := finsync.NewEngine("dev-b", b.store, mem, finsync.WithNotifier(recB), finsync.WithGate(b.gate))
	require.NoError(t, engineB.Start(ctx))
	defer engineB.Stop()

	require.Eventually(t, func() bool {
		return recB.count(notify.KindSyncComplete) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"Shared"}, b.accountNames(t))

	env, err := mem.Get(ctx, "dev-b")
	require.NoError(t, err)
	assert.Equal(t, "dev-a", env.DeviceID, "registration keeps the last writer")
}

func TestEngine_SchedulePush(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()

	a := newLocal(t)
	a.account(t, "Main", 10)

	engine := finsync.NewEngine("dev-a", a.store, mem)
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	engine.SchedulePush()

	require.Eventually(t, func() bool {
		env, err := mem.Get(ctx, "dev-a")
		return err == nil && env.HasData()
	}, 2*time.Second, 10*time.Millisecond)
}

type flakyStore struct {
	*memstore.Store
	failures atomic.Int32
	attempts atomic.Int32
}

func (f *flakyStore) Subscribe(ctx context.Context, deviceID string) (<-chan remote.Update, error) {
	f.attempts.Add(1)

	if f.failures.Add(-1) >= 0 {
		return nil, assert.AnError
	}

	return f.Store.Subscribe(ctx, deviceID)
}

func TestEngine_ResubscribesAfterFailure(t *testing.T) {
	ctx := context.Background()

	flaky := &flakyStore{Store: memstore.New()}
	flaky.failures.Store(2)

	b := newLocal(t)
	rec := &recorder{}

	engine := finsync.NewEngine("dev-b", b.store, flaky,
		finsync.WithNotifier(rec),
		finsync.WithRetryDelay(time.Millisecond, 5*time.Millisecond))
	require.NoError(t, engine.Start(ctx))
	defer engine.Stop()

	require.Eventually(t, func() bool {
		return flaky.attempts.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, rec.count(notify.KindSyncFailed))

	a := newLocal(t)
	a.account(t, "Late", 1)

	require.NoError(t, finsync.NewEngine("dev-a", a.store, flaky).RequestSync(ctx, "dev-b"))

	require.Eventually(t, func() bool {
		return rec.count(notify.KindSyncComplete) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
