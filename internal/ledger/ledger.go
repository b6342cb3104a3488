package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType represents the kind of account (checking, savings, credit or investment).
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCredit     AccountType = "credit"
	AccountInvestment AccountType = "investment"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCredit, AccountInvestment:
		return true
	}

	return false
}

// TransactionType represents the direction of a transaction (income or expense).
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

func (t TransactionType) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// Opposite returns the type that undoes t.
func (t TransactionType) Opposite() TransactionType {
	if t == TypeIncome {
		return TypeExpense
	}

	return TypeIncome
}

// Account holds a running balance in a single currency.
type Account struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Type     AccountType     `json:"type"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	LastSync time.Time       `json:"lastSync"`
}

// Transaction is an immutable record of money moving in or out of an account.
// Amount is always positive, the direction is carried by Type.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"accountId"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	CustomerID  *uuid.UUID      `json:"customerId,omitempty"`
	VendorID    *uuid.UUID      `json:"vendorId,omitempty"`
	ReversalOf  *uuid.UUID      `json:"reversalOf,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Effect is the signed change this transaction applies to its account balance.
func (t *Transaction) Effect() decimal.Decimal {
	if t.Type == TypeExpense {
		return t.Amount.Neg()
	}

	return t.Amount
}

type Customer struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	TotalRevenue    decimal.Decimal `json:"totalRevenue"`
	LastTransaction *time.Time      `json:"lastTransaction,omitempty"`
}

type Vendor struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	TotalExpense    decimal.Decimal `json:"totalExpense"`
	LastTransaction *time.Time      `json:"lastTransaction,omitempty"`
}

// DocumentCategory classifies stored document metadata.
type DocumentCategory string

const (
	DocumentInvoice  DocumentCategory = "invoice"
	DocumentReceipt  DocumentCategory = "receipt"
	DocumentContract DocumentCategory = "contract"
	DocumentReport   DocumentCategory = "report"
	DocumentImage    DocumentCategory = "image"
	DocumentOther    DocumentCategory = "other"
)

// Document is metadata about a file kept elsewhere; the ledger never stores file contents.
type Document struct {
	ID         uuid.UUID        `json:"id"`
	Name       string           `json:"name"`
	MimeType   string           `json:"mimeType"`
	Size       int64            `json:"size"`
	Category   DocumentCategory `json:"category"`
	UploadedAt time.Time        `json:"uploadedAt"`
	Tags       []string         `json:"tags"`
	URL        string           `json:"url,omitempty"`
}

// Snapshot is the whole local dataset at a point in time.
type Snapshot struct {
	SchemaVersion int            `json:"schemaVersion"`
	Timestamp     time.Time      `json:"timestamp"`
	Accounts      []*Account     `json:"accounts"`
	Transactions  []*Transaction `json:"transactions"`
	Customers     []*Customer    `json:"customers"`
	Vendors       []*Vendor      `json:"vendors"`
	Documents     []*Document    `json:"documents"`
}

// Empty reports whether the snapshot carries no records at all.
func (s *Snapshot) Empty() bool {
	return len(s.Accounts) == 0 &&
		len(s.Transactions) == 0 &&
		len(s.Customers) == 0 &&
		len(s.Vendors) == 0 &&
		len(s.Documents) == 0
}

// Check reports entries that cannot be restored, such as null records.
func (s *Snapshot) Check() error {
	counts := []struct {
		name  string
		nulls int
	}{
		{"accounts", countNil(s.Accounts)},
		{"transactions", countNil(s.Transactions)},
		{"customers", countNil(s.Customers)},
		{"vendors", countNil(s.Vendors)},
		{"documents", countNil(s.Documents)},
	}

	for _, c := range counts {
		if c.nulls > 0 {
			return fmt.Errorf("%w: %d null %s", ErrMalformedSnapshot, c.nulls, c.name)
		}
	}

	return nil
}

func countNil[T any](items []*T) int {
	n := 0

	for _, item := range items {
		if item == nil {
			n++
		}
	}

	return n
}

// Backup is a copy of the dataset taken before it was replaced by an import.
type Backup struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int       `json:"size"`
}
