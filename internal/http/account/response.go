package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/finsync/internal/ledger"
)

type accountResponse struct {
	ID       uuid.UUID          `json:"id"`
	Name     string             `json:"name"`
	Type     ledger.AccountType `json:"type"`
	Balance  decimal.Decimal    `json:"balance"`
	Currency string             `json:"currency"`
	LastSync *time.Time         `json:"last_sync,omitempty"`
}

type transactionSummary struct {
	ID          uuid.UUID              `json:"id"`
	Date        time.Time              `json:"date"`
	Amount      decimal.Decimal        `json:"amount"`
	Type        ledger.TransactionType `json:"type"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
}

func toResponse(a *ledger.Account) accountResponse {
	resp := accountResponse{
		ID:       a.ID,
		Name:     a.Name,
		Type:     a.Type,
		Balance:  a.Balance,
		Currency: a.Currency,
	}

	if !a.LastSync.IsZero() {
		lastSync := a.LastSync
		resp.LastSync = &lastSync
	}

	return resp
}
