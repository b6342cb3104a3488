package migration

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/finsync/internal/http/respond"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
	"github.com/MrJamesThe3rd/finsync/internal/migration"
)

// Bundle file extensions offered to clients. The content is the same for all.
var extensions = map[string]string{
	"json": "application/json",
	"csv":  "text/csv",
	"xml":  "application/xml",
}

type Handler struct {
	svc    *migration.Service
	ledger *ledger.Service
}

func NewHandler(svc *migration.Service, ledgerSvc *ledger.Service) *Handler {
	return &Handler{svc: svc, ledger: ledgerSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/export", h.export)
	r.Post("/import", h.importBundle)
	r.Get("/progress", h.progress)
	r.Get("/backups", h.backups)
	r.Post("/backups/{name}/restore", h.restore)
	r.Post("/reset", h.reset)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	ext := r.URL.Query().Get("format")
	if ext == "" {
		ext = "json"
	}

	contentType, ok := extensions[ext]
	if !ok {
		http.Error(w, "format must be json, csv or xml", http.StatusBadRequest)
		return
	}

	blob, err := h.svc.Export(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	filename := fmt.Sprintf("finsync-%s.%s", time.Now().UTC().Format("20060102-150405"), ext)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

func (h *Handler) importBundle(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Import(r.Context(), r.Body); err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, h.svc.Progress())
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.svc.Progress())
}

type backupResponse struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
}

func (h *Handler) backups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.svc.Backups(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]backupResponse, len(backups))
	for i, b := range backups {
		resp[i] = backupResponse{Name: b.Name, CreatedAt: b.CreatedAt, Size: b.Size}
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RestoreBackup(r.Context(), chi.URLParam(r, "name")); err != nil {
		respond.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		http.Error(w, "reset requires confirm=true", http.StatusBadRequest)
		return
	}

	if err := h.ledger.Reset(r.Context()); err != nil {
		respond.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
