package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Lock is the device-wide reader/writer lock over the local dataset.
// Ordinary writes share it; replacing the dataset wholesale takes it exclusively.
type Lock struct {
	mu sync.RWMutex
}

func (l *Lock) Shared() (release func()) {
	l.mu.RLock()
	return l.mu.RUnlock
}

func (l *Lock) Exclusive() (release func()) {
	l.mu.Lock()
	return l.mu.Unlock
}

const metaKey = "device_id"

// MetaStore is the local key/value storage holding the device identity.
type MetaStore interface {
	Meta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// LoadID returns this device's identifier, generating and storing one on first use.
func LoadID(ctx context.Context, store MetaStore) (string, error) {
	id, ok, err := store.Meta(ctx, metaKey)
	if err != nil {
		return "", fmt.Errorf("reading device id: %w", err)
	}

	if ok && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := store.SetMeta(ctx, metaKey, id); err != nil {
		return "", fmt.Errorf("storing device id: %w", err)
	}

	return id, nil
}
