// Package contact serves customers, vendors and document metadata.
package contact

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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
	r.Route("/customers", func(r chi.Router) {
		r.Post("/", h.createCustomer)
		r.Get("/", h.listCustomers)
		r.Get("/{id}", h.getCustomer)
	})

	r.Route("/vendors", func(r chi.Router) {
		r.Post("/", h.createVendor)
		r.Get("/", h.listVendors)
		r.Get("/{id}", h.getVendor)
	})

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", h.addDocument)
		r.Get("/", h.listDocuments)
	})
}

type contactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func decodeContact(w http.ResponseWriter, r *http.Request) (ledger.CreateContactParams, bool) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return ledger.CreateContactParams{}, false
	}

	return ledger.CreateContactParams{Name: req.Name, Email: req.Email, Phone: req.Phone}, true
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}

	return id, true
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	params, ok := decodeContact(w, r)
	if !ok {
		return
	}

	c, err := h.svc.CreateCustomer(r.Context(), params)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toCustomerResponse(c))
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.svc.ListCustomers(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]customerResponse, len(customers))
	for i, c := range customers {
		resp[i] = toCustomerResponse(c)
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	c, err := h.svc.GetCustomer(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toCustomerResponse(c))
}

func (h *Handler) createVendor(w http.ResponseWriter, r *http.Request) {
	params, ok := decodeContact(w, r)
	if !ok {
		return
	}

	v, err := h.svc.CreateVendor(r.Context(), params)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toVendorResponse(v))
}

func (h *Handler) listVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.svc.ListVendors(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]vendorResponse, len(vendors))
	for i, v := range vendors {
		resp[i] = toVendorResponse(v)
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) getVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	v, err := h.svc.GetVendor(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toVendorResponse(v))
}

type documentRequest struct {
	Name     string                  `json:"name"`
	MimeType string                  `json:"mime_type"`
	Size     int64                   `json:"size"`
	Category ledger.DocumentCategory `json:"category"`
	Tags     []string                `json:"tags"`
	URL      string                  `json:"url"`
}

func (h *Handler) addDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d, err := h.svc.AddDocument(r.Context(), ledger.CreateDocumentParams{
		Name:     req.Name,
		MimeType: req.MimeType,
		Size:     req.Size,
		Category: req.Category,
		Tags:     req.Tags,
		URL:      req.URL,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toDocumentResponse(d))
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	category := ledger.DocumentCategory(r.URL.Query().Get("category"))

	resp := []documentResponse{}

	for _, d := range docs {
		if category != "" && d.Category != category {
			continue
		}

		resp = append(resp, toDocumentResponse(d))
	}

	respond.JSON(w, http.StatusOK, resp)
}
