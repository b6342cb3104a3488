package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrJamesThe3rd/finsync/internal/ledger"
	"github.com/MrJamesThe3rd/finsync/internal/ledger/store"
	"github.com/MrJamesThe3rd/finsync/internal/migration"
	"github.com/MrJamesThe3rd/finsync/internal/notify"
	finsync "github.com/MrJamesThe3rd/finsync/internal/sync"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error writes err with the status code matching its kind. Unknown errors are
// logged and reported as internal errors.
func Error(w http.ResponseWriter, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		http.Error(w, "internal error", status)

		return
	}

	http.Error(w, err.Error(), status)
}

// Status maps err to an HTTP status. Sentinels are checked before the generic
// validation case since validation errors wrap them.
func Status(err error) int {
	var verr *ledger.ValidationError

	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, notify.ErrNotFound),
		errors.Is(err, store.ErrBackupNotFound),
		errors.Is(err, finsync.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, migration.ErrIncompatibleVersion),
		errors.Is(err, migration.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &verr),
		errors.Is(err, migration.ErrInvalidBundle),
		errors.Is(err, migration.ErrDecrypt):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}
