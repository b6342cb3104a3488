package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrJamesThe3rd/finsync/internal/database"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
)

const keyUpdatedAt = "dataset_updated_at"

// touch advances the dataset timestamp to now. The marker never moves
// backwards, so a local write always outranks the snapshot it was made on.
func touch(ctx context.Context, q queryer) error {
	current, err := updatedAt(ctx, q)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if !now.After(current) {
		now = current.Add(time.Microsecond)
	}

	return setMeta(ctx, q, keyUpdatedAt, database.FormatTime(now))
}

func updatedAt(ctx context.Context, q queryer) (time.Time, error) {
	v, ok, err := getMeta(ctx, q, keyUpdatedAt)
	if err != nil || !ok {
		return time.Time{}, err
	}

	t, err := database.ParseTime(v)
	if err != nil {
		return time.Time{}, storageErr("reading dataset timestamp", err)
	}

	return t, nil
}

// UpdatedAt is the time of the last local write or of the snapshot last restored.
// The zero time means the dataset has never been written.
func (s *Store) UpdatedAt(ctx context.Context) (time.Time, error) {
	return updatedAt(ctx, s.db)
}

// Snapshot reads the whole dataset in one consistent read.
func (s *Store) Snapshot(ctx context.Context) (*ledger.Snapshot, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning snapshot", err)
	}
	defer dbTx.Rollback()

	snap := &ledger.Snapshot{SchemaVersion: database.SchemaVersion}

	if snap.Timestamp, err = updatedAt(ctx, dbTx); err != nil {
		return nil, err
	}

	if snap.Accounts, err = listAccounts(ctx, dbTx); err != nil {
		return nil, err
	}

	if snap.Transactions, err = listTransactions(ctx, dbTx, ledger.ListFilter{}); err != nil {
		return nil, err
	}

	if snap.Customers, err = listCustomers(ctx, dbTx); err != nil {
		return nil, err
	}

	if snap.Vendors, err = listVendors(ctx, dbTx); err != nil {
		return nil, err
	}

	if snap.Documents, err = listDocuments(ctx, dbTx); err != nil {
		return nil, err
	}

	return snap, nil
}

var datasetTables = []string{"accounts", "transactions", "customers", "vendors", "documents"}

// Restore replaces the whole dataset with snap in one transaction and sets the
// dataset timestamp to snap.Timestamp.
func (s *Store) Restore(ctx context.Context, snap *ledger.Snapshot) error {
	if err := snap.Check(); err != nil {
		return err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("beginning restore", err)
	}
	defer dbTx.Rollback()

	for _, table := range datasetTables {
		if _, err := dbTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return storageErr("clearing "+table, err)
		}
	}

	for _, a := range snap.Accounts {
		if err := insertAccount(ctx, dbTx, a, "INSERT OR REPLACE"); err != nil {
			return err
		}
	}

	for _, tx := range snap.Transactions {
		if err := insertTransaction(ctx, dbTx, tx, "INSERT OR REPLACE"); err != nil {
			return err
		}
	}

	for _, c := range snap.Customers {
		if err := putCustomer(ctx, dbTx, c); err != nil {
			return err
		}
	}

	for _, v := range snap.Vendors {
		if err := putVendor(ctx, dbTx, v); err != nil {
			return err
		}
	}

	for _, d := range snap.Documents {
		if err := putDocument(ctx, dbTx, d); err != nil {
			return err
		}
	}

	if err := setMeta(ctx, dbTx, keyUpdatedAt, database.FormatTime(snap.Timestamp)); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return storageErr("committing restore", err)
	}

	return nil
}

// ResetAll deletes every record, notification and backup. Device identity survives.
func (s *Store) ResetAll(ctx context.Context) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("beginning reset", err)
	}
	defer dbTx.Rollback()

	for _, table := range append(datasetTables, "notifications", "backups") {
		if _, err := dbTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return storageErr("clearing "+table, err)
		}
	}

	if err := touch(ctx, dbTx); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return storageErr("committing reset", err)
	}

	return nil
}

// SaveBackup stores a new backup. An existing backup with the same name is
// left untouched and ledger.ErrBackupExists is returned.
func (s *Store) SaveBackup(ctx context.Context, name string, createdAt time.Time, data []byte) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (name, created_at, data) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING`,
		name, database.FormatTime(createdAt), data,
	)
	if err != nil {
		return storageErr("saving backup", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("saving backup", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrBackupExists, name)
	}

	return nil
}

func (s *Store) ListBackups(ctx context.Context) ([]*ledger.Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, created_at, length(data) FROM backups ORDER BY created_at DESC`)
	if err != nil {
		return nil, storageErr("listing backups", err)
	}
	defer rows.Close()

	backups := []*ledger.Backup{}

	for rows.Next() {
		var (
			b         ledger.Backup
			createdAt string
		)

		if err := rows.Scan(&b.Name, &createdAt, &b.Size); err != nil {
			return nil, storageErr("scanning backup", err)
		}

		if b.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, storageErr("scanning backup", err)
		}

		backups = append(backups, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("listing backups", err)
	}

	return backups, nil
}

// ErrBackupNotFound is returned by GetBackup for unknown names.
var ErrBackupNotFound = errors.New("backup not found")

func (s *Store) GetBackup(ctx context.Context, name string) ([]byte, error) {
	var data []byte

	err := s.db.QueryRowContext(ctx, `SELECT data FROM backups WHERE name = ?`, name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBackupNotFound
		}

		return nil, storageErr("getting backup", err)
	}

	return data, nil
}

// Meta reads a value from the key/value table used for device-level settings.
func (s *Store) Meta(ctx context.Context, key string) (string, bool, error) {
	return getMeta(ctx, s.db, key)
}

func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return setMeta(ctx, s.db, key, value)
}

func getMeta(ctx context.Context, q queryer, key string) (string, bool, error) {
	var value string

	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}

		return "", false, storageErr("reading "+key, err)
	}

	return value, true, nil
}

func setMeta(ctx context.Context, q queryer, key, value string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return storageErr("writing "+key, err)
	}

	return nil
}
