package device

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"github.com/MrJamesThe3rd/finsync/internal/http/respond"
	"github.com/MrJamesThe3rd/finsync/internal/remote"
)

const (
	pairingPrefix = "finsync:device:"
	defaultQRSize = 256
	maxQRSize     = 1024
)

type Handler struct {
	deviceID string
	registry remote.Store
}

// NewHandler serves this device's identity. registry may be nil when no
// remote backend is configured.
func NewHandler(deviceID string, registry remote.Store) *Handler {
	return &Handler{deviceID: deviceID, registry: registry}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.info)
	r.Get("/pairing.png", h.pairing)
	r.Get("/registry", h.list)
}

type deviceResponse struct {
	DeviceID     string     `json:"device_id"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	LastActive   *time.Time `json:"last_active,omitempty"`
	Current      bool       `json:"current"`
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, deviceResponse{DeviceID: h.deviceID, Current: true})
}

// pairing renders a QR code carrying the device ID, for another device to
// scan before requesting a sync.
func (h *Handler) pairing(w http.ResponseWriter, r *http.Request) {
	size := defaultQRSize

	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 64 || n > maxQRSize {
			http.Error(w, "size must be between 64 and 1024", http.StatusBadRequest)
			return
		}

		size = n
	}

	png, err := qrcode.Encode(pairingPrefix+h.deviceID, qrcode.Medium, size)
	if err != nil {
		respond.Error(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		http.Error(w, "remote sync is not configured", http.StatusServiceUnavailable)
		return
	}

	devices, err := h.registry.Devices(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]deviceResponse, len(devices))
	for i, d := range devices {
		resp[i] = deviceResponse{
			DeviceID:     d.ID,
			RegisteredAt: timePtr(d.RegisteredAt),
			LastActive:   timePtr(d.LastActive),
			Current:      d.ID == h.deviceID,
		}
	}

	respond.JSON(w, http.StatusOK, resp)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}
