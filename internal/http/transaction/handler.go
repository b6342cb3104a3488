package transaction

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/finsync/internal/http/respond"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
)

var validate = validator.New()

type Handler struct {
	svc *ledger.Service
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/reverse", h.reverse)
	r.Delete("/{id}", h.delete)
}

type createTransactionRequest struct {
	AccountID   uuid.UUID              `json:"account_id" validate:"required"`
	Amount      decimal.Decimal        `json:"amount"`
	Type        ledger.TransactionType `json:"type"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Date        *time.Time             `json:"date,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	CustomerID  *uuid.UUID             `json:"customer_id,omitempty"`
	VendorID    *uuid.UUID             `json:"vendor_id,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}

	params := ledger.CreateTransactionParams{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Type:        req.Type,
		Category:    req.Category,
		Description: req.Description,
		Tags:        req.Tags,
		CustomerID:  req.CustomerID,
		VendorID:    req.VendorID,
	}

	if req.Date != nil {
		params.Date = *req.Date
	}

	tx, err := h.svc.CreateTransaction(r.Context(), params)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(tx))
}

type listQuery struct {
	AccountID string `validate:"omitempty,uuid"`
	Category  string
	Type      string `validate:"omitempty,oneof=income expense"`
	StartDate string `validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `validate:"omitempty,datetime=2006-01-02"`
}

func (q listQuery) filter() ledger.ListFilter {
	var f ledger.ListFilter

	if q.AccountID != "" {
		accountID := uuid.MustParse(q.AccountID)
		f.AccountID = &accountID
	}

	if q.Category != "" {
		category := q.Category
		f.Category = &category
	}

	if q.Type != "" {
		txType := ledger.TransactionType(q.Type)
		f.Type = &txType
	}

	if q.StartDate != "" {
		t, _ := time.Parse(time.DateOnly, q.StartDate)
		f.StartDate = &t
	}

	// The end date is inclusive.
	if q.EndDate != "" {
		t, _ := time.Parse(time.DateOnly, q.EndDate)
		end := t.Add(24*time.Hour - time.Nanosecond)
		f.EndDate = &end
	}

	return f
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	q := listQuery{
		AccountID: values.Get("account_id"),
		Category:  values.Get("category"),
		Type:      values.Get("type"),
		StartDate: values.Get("start_date"),
		EndDate:   values.Get("end_date"),
	}

	if err := validate.Struct(q); err != nil {
		http.Error(w, "invalid filter: "+err.Error(), http.StatusBadRequest)
		return
	}

	txs, err := h.svc.ListTransactions(r.Context(), q.filter())
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponseList(txs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	tx, err := h.svc.GetTransaction(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(tx))
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	tx, err := h.svc.ReverseTransaction(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(tx))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.svc.DeleteTransaction(r.Context(), id); err != nil {
		respond.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
