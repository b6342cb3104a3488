package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/finsync/internal/ledger"
)

type transactionResponse struct {
	ID          uuid.UUID              `json:"id"`
	AccountID   uuid.UUID              `json:"account_id"`
	Date        time.Time              `json:"date"`
	Amount      decimal.Decimal        `json:"amount"`
	Type        ledger.TransactionType `json:"type"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Tags        []string               `json:"tags"`
	CustomerID  *uuid.UUID             `json:"customer_id,omitempty"`
	VendorID    *uuid.UUID             `json:"vendor_id,omitempty"`
	ReversalOf  *uuid.UUID             `json:"reversal_of,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

func toResponse(tx *ledger.Transaction) transactionResponse {
	tags := tx.Tags
	if tags == nil {
		tags = []string{}
	}

	return transactionResponse{
		ID:          tx.ID,
		AccountID:   tx.AccountID,
		Date:        tx.Date,
		Amount:      tx.Amount,
		Type:        tx.Type,
		Category:    tx.Category,
		Description: tx.Description,
		Tags:        tags,
		CustomerID:  tx.CustomerID,
		VendorID:    tx.VendorID,
		ReversalOf:  tx.ReversalOf,
		CreatedAt:   tx.CreatedAt,
	}
}

func toResponseList(txs []*ledger.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toResponse(tx)
	}

	return resp
}
