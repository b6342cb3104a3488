package sync

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/finsync/internal/http/respond"
	finsync "github.com/MrJamesThe3rd/finsync/internal/sync"
)

type Handler struct {
	engine *finsync.Engine
}

// NewHandler accepts a nil engine; every route then answers 503.
func NewHandler(engine *finsync.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Routes(r chi.Router) {
	r.Use(h.requireEngine)

	r.Get("/", h.status)
	r.Post("/push", h.push)
	r.Post("/request", h.request)
}

func (h *Handler) requireEngine(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.engine == nil {
			http.Error(w, "remote sync is not configured", http.StatusServiceUnavailable)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusResponse struct {
	DeviceID string        `json:"device_id"`
	State    finsync.State `json:"state"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, statusResponse{
		DeviceID: h.engine.DeviceID(),
		State:    h.engine.State(),
	})
}

func (h *Handler) push(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Push(r.Context()); err != nil {
		http.Error(w, "push failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type requestSyncRequest struct {
	TargetDeviceID string `json:"target_device_id"`
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var req requestSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.TargetDeviceID == "" {
		http.Error(w, "target_device_id is required", http.StatusBadRequest)
		return
	}

	if err := h.engine.RequestSync(r.Context(), req.TargetDeviceID); err != nil {
		respond.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
