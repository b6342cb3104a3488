package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/finsync/internal/database"
	"github.com/MrJamesThe3rd/finsync/internal/device"
	finsyncHttp "github.com/MrJamesThe3rd/finsync/internal/http"
	accountHandler "github.com/MrJamesThe3rd/finsync/internal/http/account"
	"github.com/MrJamesThe3rd/finsync/internal/http/auth"
	contactHandler "github.com/MrJamesThe3rd/finsync/internal/http/contact"
	deviceHandler "github.com/MrJamesThe3rd/finsync/internal/http/device"
	migrationHandler "github.com/MrJamesThe3rd/finsync/internal/http/migration"
	notificationHandler "github.com/MrJamesThe3rd/finsync/internal/http/notification"
	syncHandler "github.com/MrJamesThe3rd/finsync/internal/http/sync"
	txHandler "github.com/MrJamesThe3rd/finsync/internal/http/transaction"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
	ledgerStore "github.com/MrJamesThe3rd/finsync/internal/ledger/store"
	"github.com/MrJamesThe3rd/finsync/internal/migration"
	"github.com/MrJamesThe3rd/finsync/internal/notify"
	notifyStore "github.com/MrJamesThe3rd/finsync/internal/notify/store"
	"github.com/MrJamesThe3rd/finsync/internal/remote/memstore"
	"github.com/MrJamesThe3rd/finsync/internal/secret"
	finsync "github.com/MrJamesThe3rd/finsync/internal/sync"
)

const deviceID = "3f1e2d4c-5b6a-4798-8a9b-0c1d2e3f4a5b"

type server struct {
	handler http.Handler
	token   string
	writes  atomic.Int32
	remote  *memstore.Store
}

func newServer(t *testing.T, withSync bool) *server {
	t.Helper()

	db, err := database.OpenLocal(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	keys, err := secret.NewDerivedKey("router-test", "router-test-salt")
	require.NoError(t, err)

	var (
		st        = ledgerStore.New(db)
		gate      = &device.Lock{}
		manager   = notify.NewManager(notifyStore.New(db))
		ledgerSvc = ledger.NewService(st, ledger.WithNotifier(manager), ledger.WithGate(gate))
		migSvc    = migration.NewService(deviceID, st, keys, migration.WithGate(gate))
		authn     = auth.New("router-test-secret", time.Hour)
		s         = &server{remote: memstore.New()}
		engine    *finsync.Engine
	)

	if withSync {
		engine = finsync.NewEngine(deviceID, st, s.remote, finsync.WithNotifier(manager), finsync.WithGate(gate))
	}

	s.handler = finsyncHttp.New(finsyncHttp.Handlers{
		Accounts:      accountHandler.NewHandler(ledgerSvc),
		Transactions:  txHandler.NewHandler(ledgerSvc),
		Contacts:      contactHandler.NewHandler(ledgerSvc),
		Notifications: notificationHandler.NewHandler(manager),
		Sync:          syncHandler.NewHandler(engine),
		Migration:     migrationHandler.NewHandler(migSvc, ledgerSvc),
		Device:        deviceHandler.NewHandler(deviceID, s.remote),
	}, finsyncHttp.Options{
		Auth:    authn,
		OnWrite: func() { s.writes.Add(1) },
	})

	s.token, err = authn.Issue(deviceID)
	require.NoError(t, err)

	return s
}

func (s *server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var (
		reader      io.Reader
		contentType string
	)

	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "text/plain"
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+s.token)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newServer(t, false)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_LedgerFlow(t *testing.T) {
	s := newServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/v1/accounts", map[string]any{
		"name": "Main", "type": "checking", "balance": "100", "currency": "SAR",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	account := decode[map[string]any](t, rec)
	accountID := account["id"].(string)

	rec = s.do(t, http.MethodPost, "/api/v1/transactions", map[string]any{
		"account_id": accountID, "amount": "30", "type": "expense",
		"category": "groceries", "description": "Weekly shop",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	expense := decode[map[string]any](t, rec)

	rec = s.do(t, http.MethodPost, "/api/v1/transactions", map[string]any{
		"account_id": accountID, "amount": "1000", "type": "expense",
		"category": "rent", "description": "Too much",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/transactions", map[string]any{
		"account_id": accountID, "amount": "50", "type": "income", "category": "salary",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/transactions", map[string]any{
		"amount": "50", "type": "income", "category": "salary", "description": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/accounts/"+accountID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "70", decode[map[string]any](t, rec)["balance"])

	rec = s.do(t, http.MethodGet, "/api/v1/transactions?type=expense&account_id="+accountID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/v1/transactions?type=transfer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/transactions?start_date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/transactions/"+expense["id"].(string)+"/reverse", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, expense["id"], decode[map[string]any](t, rec)["reversal_of"])

	rec = s.do(t, http.MethodPost, "/api/v1/transactions/"+expense["id"].(string)+"/reverse", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/accounts/"+accountID+"/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/api/v1/transactions/8c0a1f9e-0000-4000-8000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/transactions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// account, expense and reversal
	assert.Equal(t, int32(3), s.writes.Load())

	rec = s.do(t, http.MethodGet, "/api/v1/notifications?kind=transaction_failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/api/v1/notifications?kind=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/notifications/read", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]map[string]any](t, rec))
}

func TestRouter_Contacts(t *testing.T) {
	s := newServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/v1/customers", map[string]any{"name": "Acme", "email": "ap@acme.test"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	id := decode[map[string]any](t, rec)["id"].(string)

	rec = s.do(t, http.MethodGet, "/api/v1/customers/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", decode[map[string]any](t, rec)["total_revenue"])

	rec = s.do(t, http.MethodPost, "/api/v1/vendors", map[string]any{"name": "Shop", "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/documents", map[string]any{
		"name": "invoice.pdf", "mime_type": "application/pdf", "size": 1024, "category": "invoice",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/documents?category=receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]map[string]any](t, rec))

	rec = s.do(t, http.MethodGet, "/api/v1/documents?category=invoice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)
}

func TestRouter_MigrationRoundTrip(t *testing.T) {
	s := newServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/v1/accounts", map[string]any{
		"name": "Savings", "type": "savings", "balance": "10.50", "currency": "EUR",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/migration/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/migration/export?format=xml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xml")

	blob := rec.Body.Bytes()

	rec = s.do(t, http.MethodPost, "/api/v1/migration/reset", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/migration/reset?confirm=true", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/accounts", nil)
	assert.Empty(t, decode[[]map[string]any](t, rec))

	rec = s.do(t, http.MethodPost, "/api/v1/migration/import", blob)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "completed", decode[map[string]any](t, rec)["status"])

	rec = s.do(t, http.MethodGet, "/api/v1/accounts", nil)
	accounts := decode[[]map[string]any](t, rec)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Savings", accounts[0]["name"])

	rec = s.do(t, http.MethodPost, "/api/v1/migration/import", []byte("garbage"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/migration/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", decode[map[string]any](t, rec)["status"])

	rec = s.do(t, http.MethodPost, "/api/v1/migration/backups/missing/restore", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_SyncAndDevice(t *testing.T) {
	ctx := context.Background()

	rec := newServer(t, false).do(t, http.MethodGet, "/api/v1/sync", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s := newServer(t, true)

	rec = s.do(t, http.MethodGet, "/api/v1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"device_id": deviceID, "state": "idle"}, decode[map[string]any](t, rec))

	rec = s.do(t, http.MethodPost, "/api/v1/sync/request", map[string]any{"target_device_id": "nobody"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/sync/push", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	env, err := s.remote.Get(ctx, deviceID)
	require.NoError(t, err)
	assert.True(t, env.HasData())

	require.NoError(t, s.remote.Register(ctx, deviceID, time.Now()))
	require.NoError(t, s.remote.Register(ctx, "other-device", time.Now()))

	rec = s.do(t, http.MethodGet, "/api/v1/device/registry", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	devices := decode[[]map[string]any](t, rec)
	require.Len(t, devices, 2)
	assert.Equal(t, true, devices[0]["current"])

	rec = s.do(t, http.MethodGet, "/api/v1/device/pairing.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = s.do(t, http.MethodGet, "/api/v1/device/pairing.png?size=5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
