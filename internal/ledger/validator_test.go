package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/finsync/internal/ledger"
)

func TestValidateTransaction(t *testing.T) {
	account := &ledger.Account{Type: ledger.AccountChecking, Balance: decimal.NewFromInt(100)}

	valid := func() *ledger.Transaction {
		return &ledger.Transaction{
			Amount:      decimal.NewFromInt(100),
			Type:        ledger.TypeExpense,
			Category:    "rent",
			Description: "May rent",
		}
	}

	tests := []struct {
		name    string
		mutate  func(tx *ledger.Transaction)
		account *ledger.Account
		wantErr error
	}{
		{name: "ExactBalanceIsAllowed", account: account},
		{name: "NilAccount", wantErr: ledger.ErrAccountNotFound},
		{
			name:    "ZeroAmount",
			mutate:  func(tx *ledger.Transaction) { tx.Amount = decimal.Zero },
			account: account,
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name:    "NegativeAmount",
			mutate:  func(tx *ledger.Transaction) { tx.Amount = decimal.NewFromInt(-5) },
			account: account,
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name:    "WhitespaceDescription",
			mutate:  func(tx *ledger.Transaction) { tx.Description = " \t" },
			account: account,
			wantErr: ledger.ErrMissingDescription,
		},
		{
			name:    "MissingCategory",
			mutate:  func(tx *ledger.Transaction) { tx.Category = "" },
			account: account,
			wantErr: ledger.ErrMissingCategory,
		},
		{
			name:    "UnknownType",
			mutate:  func(tx *ledger.Transaction) { tx.Type = "transfer" },
			account: account,
			wantErr: ledger.ErrInvalidType,
		},
		{
			name:    "Overdraft",
			mutate:  func(tx *ledger.Transaction) { tx.Amount = decimal.RequireFromString("100.01") },
			account: account,
			wantErr: ledger.ErrInsufficientFunds,
		},
		{
			name: "IncomeIgnoresBalance",
			mutate: func(tx *ledger.Transaction) {
				tx.Type = ledger.TypeIncome
				tx.Amount = decimal.NewFromInt(1_000_000)
			},
			account: account,
		},
		{
			name: "AmountCheckedBeforeDescription",
			mutate: func(tx *ledger.Transaction) {
				tx.Amount = decimal.Zero
				tx.Description = ""
			},
			account: account,
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name: "DescriptionCheckedBeforeCategory",
			mutate: func(tx *ledger.Transaction) {
				tx.Description = ""
				tx.Category = ""
			},
			account: account,
			wantErr: ledger.ErrMissingDescription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid()
			if tt.mutate != nil {
				tt.mutate(tx)
			}

			err := ledger.ValidateTransaction(tx, tt.account)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)

			var verr *ledger.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestValidateAccount_Reason(t *testing.T) {
	err := ledger.ValidateAccount(&ledger.Account{Name: "x", Type: ledger.AccountChecking, Currency: "us"})

	var verr *ledger.ValidationError
	if assert.ErrorAs(t, err, &verr) {
		assert.Equal(t, "currency failed len", verr.Reason)
	}
}

func TestValidateDocument(t *testing.T) {
	ok := &ledger.Document{Name: "a.pdf", Category: ledger.DocumentInvoice, Size: 10, URL: "https://files.test/a.pdf"}
	assert.NoError(t, ledger.ValidateDocument(ok))

	bad := &ledger.Document{Name: "a.pdf", Category: "poster"}
	assert.ErrorIs(t, ledger.ValidateDocument(bad), ledger.ErrInvalidDocument)
}

func TestValidateCustomer(t *testing.T) {
	assert.NoError(t, ledger.ValidateCustomer(&ledger.Customer{Name: "Acme"}))
	assert.ErrorIs(t, ledger.ValidateCustomer(&ledger.Customer{Name: "Acme", Email: "nope"}), ledger.ErrInvalidCustomer)
	assert.ErrorIs(t, ledger.ValidateVendor(&ledger.Vendor{}), ledger.ErrInvalidVendor)
}

func TestAssessRisk(t *testing.T) {
	at := func(hour int) time.Time { return time.Date(2024, 1, 1, hour, 15, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		amount int64
		date   time.Time
		want   ledger.RiskLevel
	}{
		{name: "Ordinary", amount: 100, date: at(12), want: ledger.RiskLow},
		{name: "Large", amount: 50001, date: at(12), want: ledger.RiskHigh},
		{name: "Threshold", amount: 50000, date: at(12), want: ledger.RiskLow},
		{name: "EarlyMorning", amount: 100, date: at(5), want: ledger.RiskMedium},
		{name: "LateNight", amount: 100, date: at(23), want: ledger.RiskMedium},
		{name: "SixAM", amount: 100, date: at(6), want: ledger.RiskLow},
		{name: "LargeAtNight", amount: 90000, date: at(2), want: ledger.RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ledger.AssessRisk(&ledger.Transaction{Amount: decimal.NewFromInt(tt.amount), Date: tt.date})
			assert.Equal(t, tt.want, got.Level)
			assert.Equal(t, tt.want != ledger.RiskLow, got.Suspicious())
		})
	}
}
