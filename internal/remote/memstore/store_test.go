package memstore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/finsync/internal/remote"
	"github.com/MrJamesThe3rd/finsync/internal/remote/memstore"
)

func receive(t *testing.T, updates <-chan remote.Update) *remote.Envelope {
	t.Helper()

	select {
	case u, ok := <-updates:
		require.True(t, ok, "subscription closed")
		require.NoError(t, u.Err)

		return u.Envelope
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
		return nil
	}
}

func TestStore_MergeKeepsUntouchedFields(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	_, err := s.Get(ctx, "dev-a")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	at := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

	deviceID := "dev-a"

	require.NoError(t, s.Merge(ctx, "dev-a", remote.Fields{
		DeviceID:  &deviceID,
		Timestamp: &at,
		Data:      json.RawMessage(`{"x":1}`),
	}))
	require.NoError(t, s.Merge(ctx, "dev-a", remote.Fields{LastSync: &at}))

	env, err := s.Get(ctx, "dev-a")
	require.NoError(t, err)
	assert.Equal(t, "dev-a", env.DeviceID)
	assert.True(t, env.Timestamp.Equal(at))
	assert.JSONEq(t, `{"x":1}`, string(env.Data))
	assert.True(t, env.LastSync.Equal(at))
}

func TestStore_Subscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := memstore.New()
	require.NoError(t, s.Merge(ctx, "dev-a", remote.Fields{Data: json.RawMessage(`1`)}))

	updates, err := s.Subscribe(ctx, "dev-a")
	require.NoError(t, err)

	assert.JSONEq(t, `1`, string(receive(t, updates).Data), "current document first")

	require.NoError(t, s.Merge(ctx, "dev-a", remote.Fields{Data: json.RawMessage(`2`)}))
	assert.JSONEq(t, `2`, string(receive(t, updates).Data))

	cancel()

	select {
	case _, ok := <-updates:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed on cancel")
	}
}

func TestStore_Registry(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	first := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	require.NoError(t, s.Register(ctx, "dev-b", first))
	require.NoError(t, s.Register(ctx, "dev-a", first))
	require.NoError(t, s.Register(ctx, "dev-b", later))
	require.NoError(t, s.Merge(ctx, "unregistered", remote.Fields{Data: json.RawMessage(`{}`)}))

	devices, err := s.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, "dev-a", devices[0].ID)
	assert.Equal(t, "dev-b", devices[1].ID)
	assert.True(t, devices[1].RegisteredAt.Equal(first), "registration time is kept")
	assert.True(t, devices[1].LastActive.Equal(later))
}

func TestStore_RegisterKeepsWriter(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	at := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	deviceID := "dev-a"

	require.NoError(t, s.Merge(ctx, "dev-b", remote.Fields{
		DeviceID:  &deviceID,
		Timestamp: &at,
		Data:      json.RawMessage(`{"x":1}`),
	}))
	require.NoError(t, s.Register(ctx, "dev-b", at.Add(time.Hour)))
	require.NoError(t, s.Touch(ctx, "dev-b", at.Add(2*time.Hour)))

	env, err := s.Get(ctx, "dev-b")
	require.NoError(t, err)
	assert.Equal(t, "dev-a", env.DeviceID)
	assert.True(t, env.Timestamp.Equal(at))
	assert.JSONEq(t, `{"x":1}`, string(env.Data))
}
