package respond_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/finsync/internal/http/respond"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
	"github.com/MrJamesThe3rd/finsync/internal/ledger/store"
	"github.com/MrJamesThe3rd/finsync/internal/migration"
	finsync "github.com/MrJamesThe3rd/finsync/internal/sync"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "Validation", err: &ledger.ValidationError{Err: ledger.ErrMissingCategory}, want: http.StatusBadRequest},
		{name: "InsufficientFunds", err: &ledger.ValidationError{Err: ledger.ErrInsufficientFunds}, want: http.StatusUnprocessableEntity},
		{name: "AlreadyReversed", err: &ledger.ValidationError{Err: ledger.ErrAlreadyReversed}, want: http.StatusConflict},
		{name: "MissingAccount", err: &ledger.ValidationError{Err: ledger.ErrAccountNotFound}, want: http.StatusNotFound},
		{name: "TransactionNotFound", err: ledger.ErrTransactionNotFound, want: http.StatusNotFound},
		{name: "Backup", err: fmt.Errorf("restoring: %w", store.ErrBackupNotFound), want: http.StatusNotFound},
		{name: "Device", err: finsync.ErrDeviceNotFound, want: http.StatusNotFound},
		{name: "Bundle", err: fmt.Errorf("%w: missing data", migration.ErrInvalidBundle), want: http.StatusBadRequest},
		{name: "Decrypt", err: migration.ErrDecrypt, want: http.StatusBadRequest},
		{name: "Version", err: migration.ErrIncompatibleVersion, want: http.StatusConflict},
		{name: "Busy", err: migration.ErrBusy, want: http.StatusConflict},
		{name: "Unknown", err: errors.New("disk on fire"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, respond.Status(tt.err))
		})
	}
}

func TestError_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	respond.Error(rec, errors.New("secret connection string"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}
