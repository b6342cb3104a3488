package migration

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrJamesThe3rd/finsync/internal/database"
	"github.com/MrJamesThe3rd/finsync/internal/encoding"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
	"github.com/MrJamesThe3rd/finsync/internal/secret"
)

var (
	ErrExport              = errors.New("export failed")
	ErrDecrypt             = errors.New("bundle could not be decrypted")
	ErrInvalidBundle       = errors.New("invalid bundle")
	ErrIncompatibleVersion = errors.New("incompatible bundle version")
	ErrBusy                = errors.New("another migration is in progress")
)

// maxBackupSuffix bounds the _2, _3, ... suffixes tried when backups share a millisecond.
const maxBackupSuffix = 100

// bundleAAD binds sealed bundles to their purpose.
var bundleAAD = []byte("finsync-bundle")

const defaultMaxBundleSize = 64 << 20

type Metadata struct {
	Version    int       `json:"version"`
	ExportDate time.Time `json:"exportDate"`
	DeviceID   string    `json:"deviceId"`
}

// Bundle is the plaintext of an exported dataset.
type Bundle struct {
	Data     *ledger.Snapshot `json:"data"`
	Metadata *Metadata        `json:"metadata"`
}

//go:generate mockgen -source=service.go -destination=dataset_mock.go -package=migration
type Dataset interface {
	Snapshot(ctx context.Context) (*ledger.Snapshot, error)
	Restore(ctx context.Context, snap *ledger.Snapshot) error
	SaveBackup(ctx context.Context, name string, createdAt time.Time, data []byte) error
	ListBackups(ctx context.Context) ([]*ledger.Backup, error)
	GetBackup(ctx context.Context, name string) ([]byte, error)
}

type Service struct {
	deviceID string
	data     Dataset
	keys     secret.KeyProvider
	gate     ledger.Gate
	now      func() time.Time
	maxSize  int64

	running  atomic.Bool
	mu       sync.Mutex
	progress Progress
}

type Option func(*Service)

// WithGate makes imports replace the dataset under the device lock.
func WithGate(g ledger.Gate) Option {
	return func(s *Service) { s.gate = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMaxBundleSize(n int64) Option {
	return func(s *Service) { s.maxSize = n }
}

func NewService(deviceID string, data Dataset, keys secret.KeyProvider, opts ...Option) *Service {
	s := &Service{
		deviceID: deviceID,
		data:     data,
		keys:     keys,
		gate:     nopGate{},
		now:      time.Now,
		maxSize:  defaultMaxBundleSize,
		progress: Progress{Total: progressTotal, Status: StatusPending},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Export seals the whole local dataset into a base64 bundle that Import on
// a device holding the same key can restore.
func (s *Service) Export(ctx context.Context) ([]byte, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.running.Store(false)

	s.begin()

	out, err := s.export(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrExport, err)
		s.fail(err)
		slog.Error("failed to export dataset", "error", err)

		return nil, err
	}

	s.complete()

	return out, nil
}

func (s *Service) export(ctx context.Context) ([]byte, error) {
	release := s.gate.Shared()
	snap, err := s.data.Snapshot(ctx)
	release()

	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	s.advance(25)

	plain, err := json.Marshal(Bundle{
		Data: snap,
		Metadata: &Metadata{
			Version:    database.SchemaVersion,
			ExportDate: s.now().UTC(),
			DeviceID:   s.deviceID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding bundle: %w", err)
	}

	s.advance(50)

	key, err := s.keys.Key(ctx, s.deviceID)
	if err != nil {
		return nil, fmt.Errorf("loading device key: %w", err)
	}

	sealed, err := secret.Seal(key, plain, bundleAAD)
	if err != nil {
		return nil, fmt.Errorf("sealing bundle: %w", err)
	}

	s.advance(75)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)

	return out, nil
}

// Import replaces the local dataset with the bundle read from r. The current
// dataset is kept as a backup first; nothing is changed if any step before
// the restore fails.
func (s *Service) Import(ctx context.Context, r io.Reader) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.running.Store(false)

	s.begin()

	if err := s.importBundle(ctx, r); err != nil {
		s.fail(err)
		slog.Error("failed to import bundle", "error", err)

		return err
	}

	s.complete()

	return nil
}

func (s *Service) importBundle(ctx context.Context, r io.Reader) error {
	text, err := encoding.ReadText(r, s.maxSize)
	if err != nil {
		return fmt.Errorf("%w: reading bundle: %w", ErrInvalidBundle, err)
	}

	s.advance(10)

	sealed, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(text), ""))
	if err != nil {
		return fmt.Errorf("%w: not base64: %w", ErrInvalidBundle, err)
	}

	s.advance(20)

	key, err := s.keys.Key(ctx, s.deviceID)
	if err != nil {
		return fmt.Errorf("loading device key: %w", err)
	}

	plain, err := secret.Open(key, sealed, bundleAAD)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecrypt, err)
	}

	s.advance(40)

	bundle, err := parseBundle(plain)
	if err != nil {
		return err
	}

	s.advance(60)

	release := s.gate.Exclusive()
	defer release()

	if err := s.backup(ctx); err != nil {
		return err
	}

	s.advance(80)

	bundle.Data.SchemaVersion = database.SchemaVersion
	bundle.Data.Timestamp = s.now().UTC()

	if err := s.data.Restore(ctx, bundle.Data); err != nil {
		return fmt.Errorf("restoring dataset: %w", err)
	}

	slog.Info("imported bundle",
		"from_device", bundle.Metadata.DeviceID,
		"exported_at", bundle.Metadata.ExportDate,
		"accounts", len(bundle.Data.Accounts),
		"transactions", len(bundle.Data.Transactions),
	)

	return nil
}

func parseBundle(plain []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(plain, &b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}

	if b.Metadata == nil {
		return nil, fmt.Errorf("%w: missing metadata", ErrInvalidBundle)
	}

	if b.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrInvalidBundle)
	}

	if err := b.Data.Check(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}

	if b.Metadata.Version != database.SchemaVersion {
		return nil, fmt.Errorf("%w: bundle has version %d, this device uses %d",
			ErrIncompatibleVersion, b.Metadata.Version, database.SchemaVersion)
	}

	return &b, nil
}

// backup stores the current dataset unless it is empty. Callers hold the gate.
func (s *Service) backup(ctx context.Context) error {
	current, err := s.data.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("reading dataset for backup: %w", err)
	}

	if current.Empty() {
		return nil
	}

	raw, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encoding backup: %w", err)
	}

	now := s.now().UTC()
	base := fmt.Sprintf("backup_%d", now.UnixMilli())

	for i := 1; i <= maxBackupSuffix; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s_%d", base, i)
		}

		err := s.data.SaveBackup(ctx, name, now, raw)
		if err == nil {
			return nil
		}

		if !errors.Is(err, ledger.ErrBackupExists) {
			return fmt.Errorf("saving backup: %w", err)
		}
	}

	return fmt.Errorf("saving backup: %w: %s", ledger.ErrBackupExists, base)
}

func (s *Service) Backups(ctx context.Context) ([]*ledger.Backup, error) {
	return s.data.ListBackups(ctx)
}

// RestoreBackup puts a backup back in place of the current dataset. Like Import,
// it first backs up the dataset it replaces.
func (s *Service) RestoreBackup(ctx context.Context, name string) error {
	raw, err := s.data.GetBackup(ctx, name)
	if err != nil {
		return err
	}

	var snap ledger.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decoding backup %s: %w", name, err)
	}

	if err := snap.Check(); err != nil {
		return fmt.Errorf("decoding backup %s: %w", name, err)
	}

	release := s.gate.Exclusive()
	defer release()

	if err := s.backup(ctx); err != nil {
		return err
	}

	snap.Timestamp = s.now().UTC()

	if err := s.data.Restore(ctx, &snap); err != nil {
		return fmt.Errorf("restoring backup %s: %w", name, err)
	}

	return nil
}

type nopGate struct{}

func (nopGate) Shared() func()    { return func() {} }
func (nopGate) Exclusive() func() { return func() {} }
