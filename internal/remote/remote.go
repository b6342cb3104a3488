// Package remote defines the document store that mirrors each device's dataset.
// The store keeps one document per device and notifies subscribers when it changes.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("device document not found")

// Envelope is a device document as read from the remote store.
// Data is the serialized dataset and is opaque to the store.
type Envelope struct {
	DeviceID  string
	Timestamp time.Time
	Data      json.RawMessage
	LastSync  time.Time
}

// HasData reports whether the document carries a dataset.
func (e *Envelope) HasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}

// Fields is a partial document write; nil fields are left untouched.
type Fields struct {
	DeviceID  *string
	Timestamp *time.Time
	Data      json.RawMessage
	LastSync  *time.Time
}

// Update is delivered on a subscription channel: either a fresh envelope or a read failure.
type Update struct {
	Envelope *Envelope
	Err      error
}

// Device is an entry of the device registry.
type Device struct {
	ID           string    `json:"deviceId"`
	RegisteredAt time.Time `json:"registeredAt"`
	LastActive   time.Time `json:"lastActive"`
}

type Store interface {
	// Get returns the document of deviceID or ErrNotFound.
	Get(ctx context.Context, deviceID string) (*Envelope, error)
	// Merge writes the non-nil fields into the document, creating it if needed.
	Merge(ctx context.Context, deviceID string, fields Fields) error
	// Subscribe delivers the document of deviceID each time it changes. The
	// channel is closed when ctx is cancelled or the subscription is lost.
	Subscribe(ctx context.Context, deviceID string) (<-chan Update, error)

	// Register and Touch write registry fields only. They leave the
	// document's deviceId alone, which names the last writer of Data.
	Register(ctx context.Context, deviceID string, at time.Time) error
	Touch(ctx context.Context, deviceID string, at time.Time) error
	Devices(ctx context.Context) ([]Device, error)
}
