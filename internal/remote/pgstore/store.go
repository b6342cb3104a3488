package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrJamesThe3rd/finsync/internal/remote"
)

const channel = "finsync_devices"

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	device_id  TEXT PRIMARY KEY,
	doc        JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertQuery = `
INSERT INTO devices (device_id, doc, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (device_id) DO UPDATE SET doc = devices.doc || EXCLUDED.doc, updated_at = now()`

// registeredAt is written once; later registrations only refresh the rest.
const registerQuery = `
INSERT INTO devices (device_id, doc, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (device_id) DO UPDATE SET doc = devices.doc || (EXCLUDED.doc - 'registeredAt'), updated_at = now()`

const notifyQuery = `SELECT pg_notify($1, $2)`

type document struct {
	DeviceID     string          `json:"deviceId"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data"`
	LastSync     time.Time       `json:"lastSync"`
	RegisteredAt time.Time       `json:"registeredAt"`
	LastActive   time.Time       `json:"lastActive"`
}

// Store keeps device documents as JSONB rows and announces changes with
// LISTEN/NOTIFY. connStr is used to open the dedicated listening connection.
type Store struct {
	db      *sql.DB
	connStr string
}

func New(db *sql.DB, connStr string) *Store {
	return &Store{db: db, connStr: connStr}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating devices table: %w", err)
	}

	return nil
}

func (s *Store) load(ctx context.Context, deviceID string) (*document, error) {
	var raw []byte

	err := s.db.QueryRowContext(ctx, `SELECT doc FROM devices WHERE device_id = $1`, deviceID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, remote.ErrNotFound
		}

		return nil, fmt.Errorf("reading device document: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding device document: %w", err)
	}

	return &doc, nil
}

func (s *Store) Get(ctx context.Context, deviceID string) (*remote.Envelope, error) {
	doc, err := s.load(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	return &remote.Envelope{
		DeviceID:  doc.DeviceID,
		Timestamp: doc.Timestamp,
		Data:      doc.Data,
		LastSync:  doc.LastSync,
	}, nil
}

func (s *Store) upsert(ctx context.Context, query, deviceID string, patch map[string]any) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encoding document patch: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, deviceID, string(body)); err != nil {
		return fmt.Errorf("writing device document: %w", err)
	}

	return nil
}

func (s *Store) Merge(ctx context.Context, deviceID string, f remote.Fields) error {
	patch := map[string]any{}

	if f.DeviceID != nil {
		patch["deviceId"] = *f.DeviceID
	}

	if f.Timestamp != nil {
		patch["timestamp"] = f.Timestamp.UTC()
	}

	if f.Data != nil {
		patch["data"] = f.Data
	}

	if f.LastSync != nil {
		patch["lastSync"] = f.LastSync.UTC()
	}

	if len(patch) == 0 {
		return nil
	}

	if err := s.upsert(ctx, upsertQuery, deviceID, patch); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, notifyQuery, channel, deviceID); err != nil {
		return fmt.Errorf("announcing device document change: %w", err)
	}

	return nil
}

// Subscribe opens a dedicated connection that listens for change
// notifications and re-reads the document whenever deviceID is announced.
func (s *Store) Subscribe(ctx context.Context, deviceID string) (<-chan remote.Update, error) {
	conn, err := pgx.Connect(ctx, s.connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting listener: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("listening for device changes: %w", err)
	}

	out := make(chan remote.Update)

	go func() {
		defer close(out)
		defer conn.Close(context.Background())

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

		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				return
			}

			if n.Payload != deviceID {
				continue
			}

			if !deliver() {
				return
			}
		}
	}()

	return out, nil
}

func (s *Store) Register(ctx context.Context, deviceID string, at time.Time) error {
	at = at.UTC()

	return s.upsert(ctx, registerQuery, deviceID, map[string]any{
		"registeredAt": at,
		"lastActive":   at,
	})
}

func (s *Store) Touch(ctx context.Context, deviceID string, at time.Time) error {
	return s.upsert(ctx, upsertQuery, deviceID, map[string]any{"lastActive": at.UTC()})
}

func (s *Store) Devices(ctx context.Context) ([]remote.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, doc FROM devices
		WHERE doc->>'registeredAt' IS NOT NULL
		ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []remote.Device

	for rows.Next() {
		var (
			id  string
			raw []byte
			doc document
		)

		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}

		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decoding device %s: %w", id, err)
		}

		devices = append(devices, remote.Device{
			ID:           id,
			RegisteredAt: doc.RegisteredAt,
			LastActive:   doc.LastActive,
		})
	}

	return devices, rows.Err()
}
