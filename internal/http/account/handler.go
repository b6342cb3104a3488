package account

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/finsync/internal/http/respond"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
)

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
	r.Get("/{id}/transactions", h.transactions)
}

type createAccountRequest struct {
	Name     string             `json:"name"`
	Type     ledger.AccountType `json:"type"`
	Balance  decimal.Decimal    `json:"balance"`
	Currency string             `json:"currency"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a, err := h.svc.CreateAccount(r.Context(), ledger.CreateAccountParams{
		Name:     req.Name,
		Type:     req.Type,
		Balance:  req.Balance,
		Currency: req.Currency,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(a))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		resp[i] = toResponse(a)
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	a, err := h.svc.GetAccount(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(a))
}

// transactions lists the account's history, newest first.
func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if _, err := h.svc.GetAccount(r.Context(), id); err != nil {
		respond.Error(w, err)
		return
	}

	txs, err := h.svc.ListByAccount(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]transactionSummary, len(txs))
	for i, tx := range txs {
		resp[i] = transactionSummary{
			ID:          tx.ID,
			Date:        tx.Date,
			Amount:      tx.Amount,
			Type:        tx.Type,
			Category:    tx.Category,
			Description: tx.Description,
		}
	}

	respond.JSON(w, http.StatusOK, resp)
}
