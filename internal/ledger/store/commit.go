package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/finsync/internal/database"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
)

// commitTx implements ledger.CommitTx on top of a single SQL transaction.
// Commit also advances the dataset timestamp used by sync.
type commitTx struct {
	tx *sql.Tx
}

func (c *commitTx) GetAccount(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	return getAccount(ctx, c.tx, id)
}

func (c *commitTx) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	return getTransaction(ctx, c.tx, `WHERE id = ?`, id)
}

func (c *commitTx) FindReversal(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	return getTransaction(ctx, c.tx, `WHERE reversal_of = ?`, id)
}

func (c *commitTx) InsertTransaction(ctx context.Context, tx *ledger.Transaction) error {
	return insertTransaction(ctx, c.tx, tx, "INSERT")
}

func (c *commitTx) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	res, err := c.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return storageErr("deleting transaction", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrTransactionNotFound
	}

	return nil
}

func (c *commitTx) UpdateBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal, at time.Time) error {
	res, err := c.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, last_sync = ? WHERE id = ?`,
		balance.String(), database.FormatTime(at), accountID,
	)
	if err != nil {
		return storageErr("updating balance", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ledger.ErrAccountNotFound
	}

	return nil
}

func (c *commitTx) AddCustomerRevenue(ctx context.Context, id uuid.UUID, delta decimal.Decimal, at time.Time) error {
	return c.addTotal(ctx, "customers", "total_revenue", ledger.ErrCustomerNotFound, id, delta, at)
}

func (c *commitTx) AddVendorExpense(ctx context.Context, id uuid.UUID, delta decimal.Decimal, at time.Time) error {
	return c.addTotal(ctx, "vendors", "total_expense", ledger.ErrVendorNotFound, id, delta, at)
}

// addTotal adjusts a running total in Go rather than SQL so that decimal
// precision is never lost to SQLite's floating point arithmetic.
func (c *commitTx) addTotal(
	ctx context.Context, table, column string, notFound error,
	id uuid.UUID, delta decimal.Decimal, at time.Time,
) error {
	var current string

	err := c.tx.QueryRowContext(ctx, `SELECT `+column+` FROM `+table+` WHERE id = ?`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound
		}

		return storageErr("reading "+table+" total", err)
	}

	total, err := addDecimal(current, delta)
	if err != nil {
		return storageErr("reading "+table+" total", err)
	}

	query := `UPDATE ` + table + ` SET ` + column + ` = ?, last_transaction = ? WHERE id = ?`
	if _, err := c.tx.ExecContext(ctx, query, total, database.FormatTime(at), id); err != nil {
		return storageErr("updating "+table+" total", err)
	}

	return nil
}

func (c *commitTx) Commit() error {
	if err := touch(context.Background(), c.tx); err != nil {
		return err
	}

	if err := c.tx.Commit(); err != nil {
		return storageErr("committing", err)
	}

	return nil
}

func (c *commitTx) Rollback() error {
	if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return storageErr("rolling back", err)
	}

	return nil
}
