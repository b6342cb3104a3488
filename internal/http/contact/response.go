package contact

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/finsync/internal/ledger"
)

type customerResponse struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	LastTransaction *time.Time      `json:"last_transaction,omitempty"`
}

type vendorResponse struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	TotalExpense    decimal.Decimal `json:"total_expense"`
	LastTransaction *time.Time      `json:"last_transaction,omitempty"`
}

type documentResponse struct {
	ID         uuid.UUID               `json:"id"`
	Name       string                  `json:"name"`
	MimeType   string                  `json:"mime_type"`
	Size       int64                   `json:"size"`
	Category   ledger.DocumentCategory `json:"category"`
	UploadedAt time.Time               `json:"uploaded_at"`
	Tags       []string                `json:"tags"`
	URL        string                  `json:"url,omitempty"`
}

func toCustomerResponse(c *ledger.Customer) customerResponse {
	return customerResponse{
		ID:              c.ID,
		Name:            c.Name,
		Email:           c.Email,
		Phone:           c.Phone,
		TotalRevenue:    c.TotalRevenue,
		LastTransaction: c.LastTransaction,
	}
}

func toVendorResponse(v *ledger.Vendor) vendorResponse {
	return vendorResponse{
		ID:              v.ID,
		Name:            v.Name,
		Email:           v.Email,
		Phone:           v.Phone,
		TotalExpense:    v.TotalExpense,
		LastTransaction: v.LastTransaction,
	}
}

func toDocumentResponse(d *ledger.Document) documentResponse {
	return documentResponse{
		ID:         d.ID,
		Name:       d.Name,
		MimeType:   d.MimeType,
		Size:       d.Size,
		Category:   d.Category,
		UploadedAt: d.UploadedAt,
		Tags:       d.Tags,
		URL:        d.URL,
	}
}
