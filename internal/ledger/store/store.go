package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/finsync/internal/database"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
)

// Store is the SQLite-backed ledger. It implements ledger.Repository and the
// whole-dataset operations used by sync and migration.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func storageErr(op string, err error) error {
	return &ledger.StorageError{Op: op, Err: err}
}

const selectAccountColumns = `id, name, type, balance, currency, last_sync`

// scanAccount expects columns in selectAccountColumns order.
func scanAccount(s scanner) (*ledger.Account, error) {
	var a ledger.Account

	var typ, lastSync string

	if err := s.Scan(&a.ID, &a.Name, &typ, &a.Balance, &a.Currency, &lastSync); err != nil {
		return nil, err
	}

	a.Type = ledger.AccountType(typ)

	t, err := database.ParseTime(lastSync)
	if err != nil {
		return nil, err
	}

	a.LastSync = t

	return &a, nil
}

const selectTransactionColumns = `
	id, account_id, date, amount, type, category, description, tags,
	customer_id, vendor_id, reversal_of, created_at
`

// scanTransaction expects columns in selectTransactionColumns order.
func scanTransaction(s scanner) (*ledger.Transaction, error) {
	var tx ledger.Transaction

	var typ, date, tags, createdAt string

	var customerID, vendorID, reversalOf *uuid.UUID

	if err := s.Scan(
		&tx.ID, &tx.AccountID, &date, &tx.Amount, &typ, &tx.Category, &tx.Description, &tags,
		&customerID, &vendorID, &reversalOf, &createdAt,
	); err != nil {
		return nil, err
	}

	tx.Type = ledger.TransactionType(typ)
	tx.CustomerID = customerID
	tx.VendorID = vendorID
	tx.ReversalOf = reversalOf

	var err error
	if tx.Date, err = database.ParseTime(date); err != nil {
		return nil, err
	}

	if tx.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &tx.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}

	return &tx, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}

	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}

	return string(b), nil
}

// CreateAccount inserts a new account and fails if the id is taken.
func (s *Store) CreateAccount(ctx context.Context, a *ledger.Account) error {
	return insertAccount(ctx, s.db, a, "INSERT")
}

// PutAccount inserts a or overwrites the account with the same id.
func (s *Store) PutAccount(ctx context.Context, a *ledger.Account) error {
	if err := insertAccount(ctx, s.db, a, "INSERT OR REPLACE"); err != nil {
		return err
	}

	return touch(ctx, s.db)
}

func insertAccount(ctx context.Context, q queryer, a *ledger.Account, verb string) error {
	query := verb + ` INTO accounts (` + selectAccountColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		a.ID, a.Name, a.Type, a.Balance.String(), a.Currency, database.FormatTime(a.LastSync),
	)
	if err != nil {
		return storageErr("putting account", err)
	}

	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, q queryer, id uuid.UUID) (*ledger.Account, error) {
	query := `SELECT ` + selectAccountColumns + ` FROM accounts WHERE id = ?`

	a, err := scanAccount(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrAccountNotFound
		}

		return nil, storageErr("getting account", err)
	}

	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]*ledger.Account, error) {
	return listAccounts(ctx, s.db)
}

func listAccounts(ctx context.Context, q queryer) ([]*ledger.Account, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+selectAccountColumns+` FROM accounts ORDER BY name, id`)
	if err != nil {
		return nil, storageErr("listing accounts", err)
	}
	defer rows.Close()

	accounts := []*ledger.Account{}

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, storageErr("scanning account", err)
		}

		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("listing accounts", err)
	}

	return accounts, nil
}

// PutTransaction writes a transaction row as is, without touching balances.
// Ledger commits go through BeginCommit instead.
func (s *Store) PutTransaction(ctx context.Context, tx *ledger.Transaction) error {
	if err := insertTransaction(ctx, s.db, tx, "INSERT OR REPLACE"); err != nil {
		return err
	}

	return touch(ctx, s.db)
}

func insertTransaction(ctx context.Context, q queryer, tx *ledger.Transaction, verb string) error {
	tags, err := encodeTags(tx.Tags)
	if err != nil {
		return err
	}

	query := verb + ` INTO transactions (` + selectTransactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = q.ExecContext(ctx, query,
		tx.ID,
		tx.AccountID,
		database.FormatTime(tx.Date),
		tx.Amount.String(),
		tx.Type,
		tx.Category,
		tx.Description,
		tags,
		tx.CustomerID,
		tx.VendorID,
		tx.ReversalOf,
		database.FormatTime(tx.CreatedAt),
	)
	if err != nil {
		return storageErr("putting transaction", err)
	}

	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	return getTransaction(ctx, s.db, `WHERE id = ?`, id)
}

func getTransaction(ctx context.Context, q queryer, where string, arg any) (*ledger.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions ` + where

	tx, err := scanTransaction(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrTransactionNotFound
		}

		return nil, storageErr("getting transaction", err)
	}

	return tx, nil
}

// ListTransactions returns transactions matching filter, newest first.
func (s *Store) ListTransactions(ctx context.Context, filter ledger.ListFilter) ([]*ledger.Transaction, error) {
	return listTransactions(ctx, s.db, filter)
}

func listTransactions(ctx context.Context, q queryer, filter ledger.ListFilter) ([]*ledger.Transaction, error) {
	var (
		where []string
		args  []any
	)

	if filter.AccountID != nil {
		where = append(where, "account_id = ?")
		args = append(args, *filter.AccountID)
	}

	if filter.Category != nil {
		where = append(where, "category = ?")
		args = append(args, *filter.Category)
	}

	if filter.Type != nil {
		where = append(where, "type = ?")
		args = append(args, *filter.Type)
	}

	if filter.StartDate != nil {
		where = append(where, "date >= ?")
		args = append(args, database.FormatTime(*filter.StartDate))
	}

	if filter.EndDate != nil {
		where = append(where, "date <= ?")
		args = append(args, database.FormatTime(*filter.EndDate))
	}

	query := `SELECT ` + selectTransactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY date DESC, created_at DESC, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("listing transactions", err)
	}
	defer rows.Close()

	txs := []*ledger.Transaction{}

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, storageErr("scanning transaction", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("listing transactions", err)
	}

	return txs, nil
}

// BeginCommit opens an immediate SQLite transaction for a ledger commit.
func (s *Store) BeginCommit(ctx context.Context) (ledger.CommitTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning commit", err)
	}

	return &commitTx{tx: dbTx}, nil
}

func addDecimal(current string, delta decimal.Decimal) (string, error) {
	d, err := decimal.NewFromString(current)
	if err != nil {
		return "", fmt.Errorf("parsing stored amount %q: %w", current, err)
	}

	return d.Add(delta).String(), nil
}
