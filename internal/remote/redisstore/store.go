package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/MrJamesThe3rd/finsync/internal/remote"
)

const (
	keyPrefix  = "finsync:device:"
	devicesKey = "finsync:devices"
)

const (
	fieldDeviceID     = "deviceId"
	fieldTimestamp    = "timestamp"
	fieldData         = "data"
	fieldLastSync     = "lastSync"
	fieldRegisteredAt = "registeredAt"
	fieldLastActive   = "lastActive"
)

// Store keeps each device document in a Redis hash and announces changes on
// a per-device pub/sub channel.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func documentKey(deviceID string) string {
	return keyPrefix + deviceID
}

func changesChannel(deviceID string) string {
	return keyPrefix + deviceID + ":changes"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(fields map[string]string, name string) (time.Time, error) {
	v, ok := fields[name]
	if !ok || v == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", name, err)
	}

	return t, nil
}

func (s *Store) Get(ctx context.Context, deviceID string) (*remote.Envelope, error) {
	fields, err := s.rdb.HGetAll(ctx, documentKey(deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading device document: %w", err)
	}

	if len(fields) == 0 {
		return nil, remote.ErrNotFound
	}

	env := &remote.Envelope{DeviceID: fields[fieldDeviceID]}

	if env.Timestamp, err = parseTime(fields, fieldTimestamp); err != nil {
		return nil, err
	}

	if env.LastSync, err = parseTime(fields, fieldLastSync); err != nil {
		return nil, err
	}

	if data, ok := fields[fieldData]; ok {
		env.Data = []byte(data)
	}

	return env, nil
}

func (s *Store) Merge(ctx context.Context, deviceID string, f remote.Fields) error {
	var values []interface{}

	if f.DeviceID != nil {
		values = append(values, fieldDeviceID, *f.DeviceID)
	}

	if f.Timestamp != nil {
		values = append(values, fieldTimestamp, formatTime(*f.Timestamp))
	}

	if f.Data != nil {
		values = append(values, fieldData, string(f.Data))
	}

	if f.LastSync != nil {
		values = append(values, fieldLastSync, formatTime(*f.LastSync))
	}

	if len(values) == 0 {
		return nil
	}

	if err := s.rdb.HSet(ctx, documentKey(deviceID), values...).Err(); err != nil {
		return fmt.Errorf("writing device document: %w", err)
	}

	if err := s.rdb.Publish(ctx, changesChannel(deviceID), deviceID).Err(); err != nil {
		return fmt.Errorf("announcing device document change: %w", err)
	}

	return nil
}

// Subscribe delivers the current document first, then every change announced on the channel.
func (s *Store) Subscribe(ctx context.Context, deviceID string) (<-chan remote.Update, error) {
	pubsub := s.rdb.Subscribe(ctx, changesChannel(deviceID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to device document: %w", err)
	}

	out := make(chan remote.Update)

	go func() {
		defer close(out)
		defer pubsub.Close()

		deliver := func() bool {
			env, err := s.Get(ctx, deviceID)
			if errors.Is(err, remote.ErrNotFound) {
				return true
			}

			select {
			case out <- remote.Update{Envelope: env, Err: err}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !deliver() {
			return
		}

		msgs := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok || !deliver() {
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *Store) Register(ctx context.Context, deviceID string, at time.Time) error {
	key := documentKey(deviceID)

	if err := s.rdb.HSetNX(ctx, key, fieldRegisteredAt, formatTime(at)).Err(); err != nil {
		return fmt.Errorf("registering device: %w", err)
	}

	if err := s.rdb.HSet(ctx, key, fieldLastActive, formatTime(at)).Err(); err != nil {
		return fmt.Errorf("registering device: %w", err)
	}

	if err := s.rdb.SAdd(ctx, devicesKey, deviceID).Err(); err != nil {
		return fmt.Errorf("adding device to registry: %w", err)
	}

	return nil
}

func (s *Store) Touch(ctx context.Context, deviceID string, at time.Time) error {
	if err := s.rdb.HSet(ctx, documentKey(deviceID), fieldLastActive, formatTime(at)).Err(); err != nil {
		return fmt.Errorf("touching device: %w", err)
	}

	return nil
}

func (s *Store) Devices(ctx context.Context) ([]remote.Device, error) {
	ids, err := s.rdb.SMembers(ctx, devicesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	sort.Strings(ids)

	devices := make([]remote.Device, 0, len(ids))

	for _, id := range ids {
		fields, err := s.rdb.HGetAll(ctx, documentKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("reading device %s: %w", id, err)
		}

		if len(fields) == 0 {
			continue
		}

		d := remote.Device{ID: id}

		if d.RegisteredAt, err = parseTime(fields, fieldRegisteredAt); err != nil {
			return nil, err
		}

		if d.LastActive, err = parseTime(fields, fieldLastActive); err != nil {
			return nil, err
		}

		devices = append(devices, d)
	}

	return devices, nil
}
