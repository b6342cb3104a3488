package notification

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/finsync/internal/http/respond"
	"github.com/MrJamesThe3rd/finsync/internal/notify"
)

type Handler struct {
	mgr *notify.Manager
}

func NewHandler(mgr *notify.Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Delete("/", h.clear)
	r.Post("/read", h.markAllRead)
	r.Post("/{id}/read", h.markRead)
}

type notificationResponse struct {
	ID        uuid.UUID       `json:"id"`
	Kind      notify.Kind     `json:"kind"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
	Read      bool            `json:"read"`
}

func toResponse(n *notify.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		Kind:      n.Kind,
		Title:     n.Title,
		Content:   n.Content,
		Payload:   n.Payload,
		CreatedAt: n.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Read:      n.Read,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := notify.ListOptions{UnreadOnly: q.Get("unread") == "true"}

	if k := q.Get("kind"); k != "" {
		kind := notify.Kind(k)
		if !kind.Valid() {
			http.Error(w, "unknown kind", http.StatusBadRequest)
			return
		}

		opts.Kind = &kind
	}

	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		opts.Limit = limit
	}

	ns, err := h.mgr.List(r.Context(), opts)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]notificationResponse, len(ns))
	for i, n := range ns {
		resp[i] = toResponse(n)
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	n, err := h.mgr.MarkAsRead(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(n))
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.MarkAllAsRead(r.Context()); err != nil {
		respond.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Clear(r.Context()); err != nil {
		respond.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stream pushes every new or updated notification as a server-sent event
// until the client goes away. It is mounted outside the request timeout.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := make(chan *notify.Notification, 16)

	unsubscribe := h.mgr.Subscribe(func(n *notify.Notification) {
		select {
		case events <- n:
		default:
			slog.Warn("dropping notification for slow stream client", "id", n.ID)
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case n := <-events:
			data, err := json.Marshal(toResponse(n))
			if err != nil {
				slog.Error("failed to encode notification", "error", err)
				continue
			}

			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Kind, data); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}
