package secret

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

// KeySize is the length of an AES-256 key.
const KeySize = 32

var ErrInvalidDeviceID = errors.New("invalid device id")

// KeyProvider returns the symmetric key used to seal data for a device.
type KeyProvider interface {
	Key(ctx context.Context, deviceID string) ([]byte, error)
}

// FileKeyStore keeps one random key per device as a hex file under dir.
// A bundle sealed with it can only be opened on the same device.
type FileKeyStore struct {
	dir string

	mu   sync.Mutex
	keys map[string][]byte
}

func NewFileKeyStore(dir string) (*FileKeyStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}

	return &FileKeyStore{dir: dir, keys: make(map[string][]byte)}, nil
}

func (f *FileKeyStore) Key(_ context.Context, deviceID string) ([]byte, error) {
	if _, err := uuid.Parse(deviceID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDeviceID, deviceID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if key, ok := f.keys[deviceID]; ok {
		return key, nil
	}

	path := filepath.Join(f.dir, deviceID+".key")

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, err := hex.DecodeString(string(raw))
		if err != nil || len(key) != KeySize {
			return nil, fmt.Errorf("corrupt key file %s", path)
		}

		f.keys[deviceID] = key

		return key, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}

	f.keys[deviceID] = key

	return key, nil
}

// DerivedKey stretches a shared master secret with Argon2id. Every device
// configured with the same secret and salt derives the same key, which lets
// bundles move between them.
type DerivedKey struct {
	key []byte
}

func NewDerivedKey(masterSecret, salt string) (*DerivedKey, error) {
	if masterSecret == "" {
		return nil, errors.New("master secret must not be empty")
	}

	if len(salt) < 8 {
		return nil, errors.New("salt must be at least 8 bytes")
	}

	key := argon2.IDKey([]byte(masterSecret), []byte(salt), 3, 32*1024, 4, KeySize)

	return &DerivedKey{key: key}, nil
}

func (d *DerivedKey) Key(context.Context, string) ([]byte, error) {
	return d.key, nil
}
