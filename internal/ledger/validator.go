package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// ValidateTransaction checks tx against the account it will be applied to.
// Rules run in a fixed order and the first failure wins: the account must exist,
// the amount must be positive, description and category must be present and an
// expense may not exceed the current balance.
func ValidateTransaction(tx *Transaction, account *Account) error {
	if account == nil {
		return invalid(ErrAccountNotFound, "")
	}

	if !tx.Amount.IsPositive() {
		return invalid(ErrInvalidAmount, "")
	}

	if strings.TrimSpace(tx.Description) == "" {
		return invalid(ErrMissingDescription, "")
	}

	if strings.TrimSpace(tx.Category) == "" {
		return invalid(ErrMissingCategory, "")
	}

	if !tx.Type.Valid() {
		return invalid(ErrInvalidType, string(tx.Type))
	}

	if tx.Type == TypeExpense && tx.Amount.GreaterThan(account.Balance) {
		return invalid(ErrInsufficientFunds, fmt.Sprintf("balance %s, requested %s", account.Balance, tx.Amount))
	}

	return nil
}

type accountRules struct {
	Name     string `validate:"required,max=120"`
	Type     string `validate:"required,oneof=checking savings credit investment"`
	Currency string `validate:"required,len=3,uppercase"`
}

// ValidateAccount checks a new account before it is persisted.
func ValidateAccount(a *Account) error {
	rules := accountRules{
		Name:     strings.TrimSpace(a.Name),
		Type:     string(a.Type),
		Currency: a.Currency,
	}
	if err := validate.Struct(rules); err != nil {
		return invalid(ErrInvalidAccount, describe(err))
	}

	if money.GetCurrency(a.Currency) == nil {
		return invalid(ErrInvalidAccount, "unknown currency "+a.Currency)
	}

	if a.Balance.IsNegative() {
		return invalid(ErrInvalidAccount, "initial balance must not be negative")
	}

	return nil
}

type contactRules struct {
	Name  string `validate:"required,max=120"`
	Email string `validate:"omitempty,email"`
	Phone string `validate:"omitempty,max=32"`
}

func ValidateCustomer(c *Customer) error {
	err := validate.Struct(contactRules{Name: strings.TrimSpace(c.Name), Email: c.Email, Phone: c.Phone})
	if err != nil {
		return invalid(ErrInvalidCustomer, describe(err))
	}

	return nil
}

func ValidateVendor(v *Vendor) error {
	err := validate.Struct(contactRules{Name: strings.TrimSpace(v.Name), Email: v.Email, Phone: v.Phone})
	if err != nil {
		return invalid(ErrInvalidVendor, describe(err))
	}

	return nil
}

type documentRules struct {
	Name     string `validate:"required"`
	Category string `validate:"required,oneof=invoice receipt contract report image other"`
	Size     int64  `validate:"gte=0"`
	URL      string `validate:"omitempty,url"`
}

func ValidateDocument(d *Document) error {
	rules := documentRules{
		Name:     strings.TrimSpace(d.Name),
		Category: string(d.Category),
		Size:     d.Size,
		URL:      d.URL,
	}
	if err := validate.Struct(rules); err != nil {
		return invalid(ErrInvalidDocument, describe(err))
	}

	return nil
}

// describe turns the first validator failure into a short reason such as "currency failed len".
func describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag())
	}

	return err.Error()
}

// wouldOverdraw reports whether moving balance by delta leaves a non-credit account negative.
func wouldOverdraw(account *Account, delta decimal.Decimal) bool {
	if account.Type == AccountCredit {
		return false
	}

	return account.Balance.Add(delta).IsNegative()
}
