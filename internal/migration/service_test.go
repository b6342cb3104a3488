package migration_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/finsync/internal/database"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
	"github.com/MrJamesThe3rd/finsync/internal/ledger/store"
	"github.com/MrJamesThe3rd/finsync/internal/migration"
	"github.com/MrJamesThe3rd/finsync/internal/secret"
)

func newKeys(t *testing.T, master string) secret.KeyProvider {
	t.Helper()

	keys, err := secret.NewDerivedKey(master, "finsync-test-salt")
	require.NoError(t, err)

	return keys
}

func newStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := database.OpenLocal(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return store.New(db)
}

func seed(t *testing.T, st *store.Store) (*ledger.Account, *ledger.Transaction) {
	t.Helper()

	ctx := context.Background()
	svc := ledger.NewService(st)

	account, err := svc.CreateAccount(ctx, ledger.CreateAccountParams{
		Name:     "Main",
		Type:     ledger.AccountChecking,
		Balance:  decimal.NewFromInt(100),
		Currency: "SAR",
	})
	require.NoError(t, err)

	tx, err := svc.CreateTransaction(ctx, ledger.CreateTransactionParams{
		AccountID:   account.ID,
		Amount:      decimal.NewFromInt(30),
		Type:        ledger.TypeExpense,
		Category:    "groceries",
		Description: "Weekly shop",
	})
	require.NoError(t, err)

	return account, tx
}

func TestService_ExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	keys := newKeys(t, "shared secret")

	src := newStore(t)
	account, tx := seed(t, src)

	exporter := migration.NewService("dev-a", src, keys)

	blob, err := exporter.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, migration.Progress{Total: 100, Current: 100, Status: migration.StatusCompleted}, exporter.Progress())

	_, err = base64.StdEncoding.DecodeString(string(blob))
	require.NoError(t, err, "bundle is base64 text")
	assert.NotContains(t, string(blob), "Weekly shop")

	dst := newStore(t)
	importer := migration.NewService("dev-a", dst, keys)

	require.NoError(t, importer.Import(ctx, bytes.NewReader(blob)))
	assert.Equal(t, migration.StatusCompleted, importer.Progress().Status)

	accounts, err := dst.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, account.ID, accounts[0].ID)
	assert.Equal(t, "Main", accounts[0].Name)
	assert.True(t, decimal.NewFromInt(70).Equal(accounts[0].Balance))

	txs, err := dst.ListTransactions(ctx, ledger.ListFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, tx.ID, txs[0].ID)
	assert.True(t, tx.Amount.Equal(txs[0].Amount))
	assert.Equal(t, "Weekly shop", txs[0].Description)

	backups, err := importer.Backups(ctx)
	require.NoError(t, err)
	assert.Empty(t, backups, "an empty dataset is not backed up")

	require.NoError(t, importer.Import(ctx, bytes.NewReader(blob)))

	backups, err = importer.Backups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.True(t, strings.HasPrefix(backups[0].Name, "backup_"))
	assert.Positive(t, backups[0].Size)

	require.NoError(t, importer.RestoreBackup(ctx, backups[0].Name))

	accounts, err = dst.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	backups, err = importer.Backups(ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 2, "restoring a backup keeps the dataset it replaced")
}

func TestService_BackupsShareClockTick(t *testing.T) {
	ctx := context.Background()
	keys := newKeys(t, "shared secret")
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	src := newStore(t)
	seed(t, src)

	blob, err := migration.NewService("dev-a", src, keys).Export(ctx)
	require.NoError(t, err)

	dst := newStore(t)
	seed(t, dst)

	svc := migration.NewService("dev-a", dst, keys, migration.WithClock(func() time.Time { return now }))

	require.NoError(t, svc.Import(ctx, bytes.NewReader(blob)))
	require.NoError(t, svc.Import(ctx, bytes.NewReader(blob)))
	require.NoError(t, svc.RestoreBackup(ctx, "backup_1719835200000"))

	backups, err := svc.Backups(ctx)
	require.NoError(t, err)

	names := make([]string, 0, len(backups))
	for _, b := range backups {
		names = append(names, b.Name)
	}

	assert.ElementsMatch(t, []string{
		"backup_1719835200000",
		"backup_1719835200000_2",
		"backup_1719835200000_3",
	}, names)
}

func TestService_RestoreBackup(t *testing.T) {
	ctx := context.Background()
	keys := newKeys(t, "shared secret")
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	src := newStore(t)
	seed(t, src)

	current, err := src.Snapshot(ctx)
	require.NoError(t, err)

	saved, err := json.Marshal(current)
	require.NoError(t, err)

	tests := []struct {
		name      string
		setupMock func(data *migration.MockDataset)
		wantErr   error
	}{
		{
			name: "BacksUpBeforeRestore",
			setupMock: func(data *migration.MockDataset) {
				gomock.InOrder(
					data.EXPECT().GetBackup(gomock.Any(), "backup_1").Return(saved, nil),
					data.EXPECT().Snapshot(gomock.Any()).Return(current, nil),
					data.EXPECT().SaveBackup(gomock.Any(), "backup_1719835200000", now, gomock.Any()).Return(nil),
					data.EXPECT().Restore(gomock.Any(), gomock.Any()).Return(nil),
				)
			},
		},
		{
			name: "NameTaken",
			setupMock: func(data *migration.MockDataset) {
				gomock.InOrder(
					data.EXPECT().GetBackup(gomock.Any(), "backup_1").Return(saved, nil),
					data.EXPECT().Snapshot(gomock.Any()).Return(current, nil),
					data.EXPECT().SaveBackup(gomock.Any(), "backup_1719835200000", now, gomock.Any()).
						Return(ledger.ErrBackupExists),
					data.EXPECT().SaveBackup(gomock.Any(), "backup_1719835200000_2", now, gomock.Any()).Return(nil),
					data.EXPECT().Restore(gomock.Any(), gomock.Any()).Return(nil),
				)
			},
		},
		{
			name: "BackupFails",
			setupMock: func(data *migration.MockDataset) {
				gomock.InOrder(
					data.EXPECT().GetBackup(gomock.Any(), "backup_1").Return(saved, nil),
					data.EXPECT().Snapshot(gomock.Any()).Return(current, nil),
					data.EXPECT().SaveBackup(gomock.Any(), "backup_1719835200000", now, gomock.Any()).
						Return(ledger.ErrStorage),
				)
			},
			wantErr: ledger.ErrStorage,
		},
		{
			name: "NullEntry",
			setupMock: func(data *migration.MockDataset) {
				data.EXPECT().GetBackup(gomock.Any(), "backup_1").Return([]byte(`{"vendors":[null]}`), nil)
			},
			wantErr: ledger.ErrMalformedSnapshot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			data := migration.NewMockDataset(ctrl)
			tt.setupMock(data)

			svc := migration.NewService("dev-a", data, keys, migration.WithClock(func() time.Time { return now }))

			err := svc.RestoreBackup(ctx, "backup_1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestService_ImportFailures(t *testing.T) {
	ctx := context.Background()
	keys := newKeys(t, "shared secret")

	src := newStore(t)
	seed(t, src)

	blob, err := migration.NewService("dev-a", src, keys).Export(ctx)
	require.NoError(t, err)

	key, err := keys.Key(ctx, "dev-a")
	require.NoError(t, err)

	sealBundle := func(t *testing.T, v any) []byte {
		t.Helper()

		plain, err := json.Marshal(v)
		require.NoError(t, err)

		sealed, err := secret.Seal(key, plain, []byte("finsync-bundle"))
		require.NoError(t, err)

		return []byte(base64.StdEncoding.EncodeToString(sealed))
	}

	type testCase struct {
		name    string
		keys    secret.KeyProvider
		input   []byte
		wantErr error
	}

	tests := []testCase{
		{
			name:    "WrongKey",
			keys:    newKeys(t, "other secret"),
			input:   blob,
			wantErr: migration.ErrDecrypt,
		},
		{
			name:    "NotBase64",
			keys:    keys,
			input:   []byte("this is not a bundle!"),
			wantErr: migration.ErrInvalidBundle,
		},
		{
			name:    "Truncated",
			keys:    keys,
			input:   blob[:len(blob)-1],
			wantErr: migration.ErrInvalidBundle,
		},
		{
			name: "MissingMetadata",
			keys: keys,
			input: sealBundle(t, map[string]any{
				"data": ledger.Snapshot{},
			}),
			wantErr: migration.ErrInvalidBundle,
		},
		{
			name: "MissingData",
			keys: keys,
			input: sealBundle(t, map[string]any{
				"metadata": migration.Metadata{Version: database.SchemaVersion},
			}),
			wantErr: migration.ErrInvalidBundle,
		},
		{
			name: "NullAccount",
			keys: keys,
			input: sealBundle(t, map[string]any{
				"data":     map[string]any{"accounts": []any{nil}},
				"metadata": migration.Metadata{Version: database.SchemaVersion, DeviceID: "dev-a"},
			}),
			wantErr: migration.ErrInvalidBundle,
		},
		{
			name: "NullTransaction",
			keys: keys,
			input: sealBundle(t, map[string]any{
				"data":     map[string]any{"transactions": []any{nil}},
				"metadata": migration.Metadata{Version: database.SchemaVersion, DeviceID: "dev-a"},
			}),
			wantErr: ledger.ErrMalformedSnapshot,
		},
		{
			name: "IncompatibleVersion",
			keys: keys,
			input: sealBundle(t, migration.Bundle{
				Data:     &ledger.Snapshot{},
				Metadata: &migration.Metadata{Version: database.SchemaVersion + 1, DeviceID: "dev-a"},
			}),
			wantErr: migration.ErrIncompatibleVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := newStore(t)
			existing, _ := seed(t, dst)

			svc := migration.NewService("dev-a", dst, tt.keys)

			err := svc.Import(ctx, bytes.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			progress := svc.Progress()
			assert.Equal(t, migration.StatusFailed, progress.Status)
			assert.NotEmpty(t, progress.Error)

			accounts, err := dst.ListAccounts(ctx)
			require.NoError(t, err)
			require.Len(t, accounts, 1)
			assert.Equal(t, existing.ID, accounts[0].ID)

			backups, err := dst.ListBackups(ctx)
			require.NoError(t, err)
			assert.Empty(t, backups)
		})
	}
}

func TestService_ExportFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	data := migration.NewMockDataset(ctrl)
	data.EXPECT().Snapshot(gomock.Any()).Return(nil, errors.New("disk gone"))

	svc := migration.NewService("dev-a", data, newKeys(t, "s"))

	_, err := svc.Export(context.Background())
	assert.ErrorIs(t, err, migration.ErrExport)

	progress := svc.Progress()
	assert.Equal(t, migration.StatusFailed, progress.Status)
	assert.Contains(t, progress.Error, "disk gone")
}

func TestService_ImportBacksUpBeforeRestore(t *testing.T) {
	ctx := context.Background()
	keys := newKeys(t, "s")
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	src := newStore(t)
	seed(t, src)

	blob, err := migration.NewService("dev-a", src, keys).Export(ctx)
	require.NoError(t, err)

	current, err := src.Snapshot(ctx)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	data := migration.NewMockDataset(ctrl)

	gomock.InOrder(
		data.EXPECT().Snapshot(gomock.Any()).Return(current, nil),
		data.EXPECT().SaveBackup(gomock.Any(), "backup_1719835200000", now, gomock.Any()).Return(nil),
		data.EXPECT().Restore(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, snap *ledger.Snapshot) error {
				assert.True(t, snap.Timestamp.Equal(now))
				assert.Len(t, snap.Accounts, 1)

				return errors.New("restore failed")
			}),
	)

	svc := migration.NewService("dev-a", data, keys, migration.WithClock(func() time.Time { return now }))

	err = svc.Import(ctx, bytes.NewReader(blob))
	require.Error(t, err)
	assert.Equal(t, migration.StatusFailed, svc.Progress().Status)
	assert.Equal(t, 80, svc.Progress().Current)
}
