package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/finsync/internal/notify"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=ledger
type Repository interface {
	PutAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	ListAccounts(ctx context.Context) ([]*Account, error)

	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]*Transaction, error)

	PutCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)
	ListCustomers(ctx context.Context) ([]*Customer, error)
	PutVendor(ctx context.Context, v *Vendor) error
	GetVendor(ctx context.Context, id uuid.UUID) (*Vendor, error)
	ListVendors(ctx context.Context) ([]*Vendor, error)
	PutDocument(ctx context.Context, d *Document) error
	ListDocuments(ctx context.Context) ([]*Document, error)

	ResetAll(ctx context.Context) error
	BeginCommit(ctx context.Context) (CommitTx, error)
}

// CommitTx is a single atomic unit against the store. Nothing is visible to
// other readers until Commit; Rollback after Commit is a no-op.
type CommitTx interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	FindReversal(ctx context.Context, id uuid.UUID) (*Transaction, error)
	InsertTransaction(ctx context.Context, tx *Transaction) error
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	UpdateBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal, at time.Time) error
	AddCustomerRevenue(ctx context.Context, id uuid.UUID, delta decimal.Decimal, at time.Time) error
	AddVendorExpense(ctx context.Context, id uuid.UUID, delta decimal.Decimal, at time.Time) error
	Commit() error
	Rollback() error
}

type Service struct {
	repo       Repository
	notifier   Notifier
	gate       Gate
	locks      *locker
	now        func() time.Time
	lowBalance decimal.Decimal
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		notifier: nopNotifier{},
		gate:     nopGate{},
		locks:    newLocker(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type CreateAccountParams struct {
	Name     string
	Type     AccountType
	Balance  decimal.Decimal
	Currency string
}

type CreateTransactionParams struct {
	AccountID   uuid.UUID
	Date        time.Time
	Amount      decimal.Decimal
	Type        TransactionType
	Category    string
	Description string
	Tags        []string
	CustomerID  *uuid.UUID
	VendorID    *uuid.UUID
}

type ListFilter struct {
	AccountID *uuid.UUID
	Category  *string
	Type      *TransactionType
	StartDate *time.Time
	EndDate   *time.Time
}

func (s *Service) CreateAccount(ctx context.Context, params CreateAccountParams) (*Account, error) {
	a := &Account{
		ID:       uuid.New(),
		Name:     strings.TrimSpace(params.Name),
		Type:     params.Type,
		Balance:  params.Balance,
		Currency: strings.ToUpper(strings.TrimSpace(params.Currency)),
		LastSync: s.now().UTC(),
	}
	if err := ValidateAccount(a); err != nil {
		return nil, err
	}

	release := s.gate.Shared()
	defer release()

	if err := s.repo.PutAccount(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetAccount(ctx, id)
}

func (s *Service) ListAccounts(ctx context.Context) ([]*Account, error) {
	return s.repo.ListAccounts(ctx)
}

// CreateTransaction validates params against the current account state and, on
// success, records the transaction and the new balance in one commit.
func (s *Service) CreateTransaction(ctx context.Context, params CreateTransactionParams) (*Transaction, error) {
	now := s.now().UTC()

	tx := &Transaction{
		ID:          uuid.New(),
		AccountID:   params.AccountID,
		Date:        params.Date,
		Amount:      params.Amount,
		Type:        params.Type,
		Category:    strings.TrimSpace(params.Category),
		Description: strings.TrimSpace(params.Description),
		Tags:        params.Tags,
		CustomerID:  params.CustomerID,
		VendorID:    params.VendorID,
		CreatedAt:   now,
	}
	if tx.Date.IsZero() {
		tx.Date = now
	}

	if tx.Tags == nil {
		tx.Tags = []string{}
	}

	unlock := s.locks.lock(tx.AccountID)
	defer unlock()

	release := s.gate.Shared()
	defer release()

	account, err := s.commit(ctx, tx, now)
	if err != nil {
		s.publish(ctx, notify.TransactionFailed{AccountID: params.AccountID, Reason: err.Error()})
		return nil, err
	}

	s.published(ctx, tx, account)

	return tx, nil
}

func (s *Service) commit(ctx context.Context, tx *Transaction, now time.Time) (*Account, error) {
	ctxTx, err := s.repo.BeginCommit(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin commit: %w", err)
	}
	defer ctxTx.Rollback()

	account, err := ctxTx.GetAccount(ctx, tx.AccountID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("loading account: %w", err)
	}

	if err := ValidateTransaction(tx, account); err != nil {
		return nil, err
	}

	if err := checkCounterparty(tx); err != nil {
		return nil, err
	}

	if err := ctxTx.InsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}

	account.Balance = account.Balance.Add(tx.Effect())
	account.LastSync = now

	if err := ctxTx.UpdateBalance(ctx, account.ID, account.Balance, now); err != nil {
		return nil, fmt.Errorf("updating balance: %w", err)
	}

	if err := applyCounterparty(ctx, ctxTx, tx, tx.Amount, tx.Date); err != nil {
		return nil, err
	}

	if err := ctxTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return account, nil
}

// ReverseTransaction records a compensating transaction of the opposite type.
// The original stays in place and a transaction can only be reversed once.
func (s *Service) ReverseTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	original, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(original.AccountID)
	defer unlock()

	release := s.gate.Shared()
	defer release()

	reversal, account, err := s.reverse(ctx, id, s.now().UTC())
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) && !errors.Is(err, ErrAlreadyReversed) {
			s.publish(ctx, notify.TransactionFailed{AccountID: original.AccountID, Reason: err.Error()})
		}

		return nil, err
	}

	s.published(ctx, reversal, account)

	return reversal, nil
}

// reverse runs the reversal commit unit. The unit is closed when it returns,
// so callers may touch the database again.
func (s *Service) reverse(ctx context.Context, id uuid.UUID, now time.Time) (*Transaction, *Account, error) {
	ctxTx, err := s.repo.BeginCommit(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin commit: %w", err)
	}
	defer ctxTx.Rollback()

	original, err := ctxTx.GetTransaction(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if original.ReversalOf != nil {
		return nil, nil, invalid(ErrAlreadyReversed, "reversals cannot be reversed")
	}

	_, err = ctxTx.FindReversal(ctx, id)
	switch {
	case err == nil:
		return nil, nil, invalid(ErrAlreadyReversed, "")
	case !errors.Is(err, ErrTransactionNotFound):
		return nil, nil, fmt.Errorf("finding reversal: %w", err)
	}

	account, err := ctxTx.GetAccount(ctx, original.AccountID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, nil, fmt.Errorf("loading account: %w", err)
	}

	reversal := &Transaction{
		ID:          uuid.New(),
		AccountID:   original.AccountID,
		Date:        now,
		Amount:      original.Amount,
		Type:        original.Type.Opposite(),
		Category:    original.Category,
		Description: "Reversal: " + original.Description,
		Tags:        []string{"reversal"},
		ReversalOf:  &original.ID,
		CreatedAt:   now,
	}

	if err := ValidateTransaction(reversal, account); err != nil {
		return nil, nil, err
	}

	if err := ctxTx.InsertTransaction(ctx, reversal); err != nil {
		return nil, nil, fmt.Errorf("inserting reversal: %w", err)
	}

	account.Balance = account.Balance.Add(reversal.Effect())
	account.LastSync = now

	if err := ctxTx.UpdateBalance(ctx, account.ID, account.Balance, now); err != nil {
		return nil, nil, fmt.Errorf("updating balance: %w", err)
	}

	if err := applyCounterparty(ctx, ctxTx, original, original.Amount.Neg(), now); err != nil {
		return nil, nil, err
	}

	if err := ctxTx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit reversal: %w", err)
	}

	return reversal, account, nil
}

// DeleteTransaction removes a transaction and undoes its effect on the balance
// and on customer or vendor totals.
func (s *Service) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	existing, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(existing.AccountID)
	defer unlock()

	release := s.gate.Shared()
	defer release()

	now := s.now().UTC()

	ctxTx, err := s.repo.BeginCommit(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer ctxTx.Rollback()

	existing, err = ctxTx.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	_, err = ctxTx.FindReversal(ctx, id)
	switch {
	case err == nil:
		return invalid(ErrAlreadyReversed, "delete the reversal first")
	case !errors.Is(err, ErrTransactionNotFound):
		return fmt.Errorf("finding reversal: %w", err)
	}

	account, err := ctxTx.GetAccount(ctx, existing.AccountID)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}

	delta := existing.Effect().Neg()
	if wouldOverdraw(account, delta) {
		return invalid(ErrInsufficientFunds, "deleting would leave a negative balance")
	}

	if err := ctxTx.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}

	if err := ctxTx.UpdateBalance(ctx, account.ID, account.Balance.Add(delta), now); err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}

	// A reversal carries no counterparty of its own; deleting it restores the
	// totals it took away from the original.
	counterparty, delta := existing, existing.Amount.Neg()
	if existing.ReversalOf != nil {
		if counterparty, err = ctxTx.GetTransaction(ctx, *existing.ReversalOf); err != nil {
			return fmt.Errorf("loading reversed transaction: %w", err)
		}

		delta = existing.Amount
	}

	if err := applyCounterparty(ctx, ctxTx, counterparty, delta, now); err != nil {
		return err
	}

	if err := ctxTx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	return nil
}

func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, ListFilter{AccountID: &accountID})
}

func (s *Service) ListByDateRange(ctx context.Context, start, end time.Time) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, ListFilter{StartDate: &start, EndDate: &end})
}

// Reset wipes every collection. It waits for in-flight commits to finish.
func (s *Service) Reset(ctx context.Context) error {
	release := s.gate.Exclusive()
	defer release()

	return s.repo.ResetAll(ctx)
}

func checkCounterparty(tx *Transaction) error {
	if tx.CustomerID != nil && tx.Type != TypeIncome {
		return invalid(ErrInvalidCustomer, "customers can only be attached to income")
	}

	if tx.VendorID != nil && tx.Type != TypeExpense {
		return invalid(ErrInvalidVendor, "vendors can only be attached to expenses")
	}

	return nil
}

func applyCounterparty(ctx context.Context, ctxTx CommitTx, tx *Transaction, delta decimal.Decimal, at time.Time) error {
	if tx.CustomerID != nil {
		if err := ctxTx.AddCustomerRevenue(ctx, *tx.CustomerID, delta, at); err != nil {
			if errors.Is(err, ErrCustomerNotFound) {
				return invalid(ErrCustomerNotFound, tx.CustomerID.String())
			}

			return fmt.Errorf("updating customer revenue: %w", err)
		}
	}

	if tx.VendorID != nil {
		if err := ctxTx.AddVendorExpense(ctx, *tx.VendorID, delta, at); err != nil {
			if errors.Is(err, ErrVendorNotFound) {
				return invalid(ErrVendorNotFound, tx.VendorID.String())
			}

			return fmt.Errorf("updating vendor expense: %w", err)
		}
	}

	return nil
}

// published emits the success notification and any alerts raised by the commit.
func (s *Service) published(ctx context.Context, tx *Transaction, account *Account) {
	s.publish(ctx, notify.TransactionSucceeded{
		TransactionID: tx.ID,
		AccountID:     account.ID,
		Type:          string(tx.Type),
		Amount:        tx.Amount,
		Currency:      account.Currency,
		Description:   tx.Description,
	})

	if risk := AssessRisk(tx); risk.Suspicious() {
		s.publish(ctx, notify.SecurityAlert{
			TransactionID: tx.ID,
			RiskLevel:     string(risk.Level),
			Reasons:       risk.Reasons,
			Amount:        tx.Amount,
			Currency:      account.Currency,
		})
	}

	if tx.Type == TypeExpense && account.Type != AccountCredit &&
		s.lowBalance.IsPositive() && account.Balance.LessThan(s.lowBalance) {
		s.publish(ctx, notify.LowBalance{
			AccountID:   account.ID,
			AccountName: account.Name,
			Balance:     account.Balance,
			Currency:    account.Currency,
		})
	}
}

func (s *Service) publish(ctx context.Context, e notify.Event) {
	if err := s.notifier.Publish(ctx, e); err != nil {
		slog.Warn("failed to publish notification", "kind", e.Kind(), "error", err)
	}
}
