package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/finsync/internal/http/auth"
)

func TestMiddleware(t *testing.T) {
	a := auth.New("test-secret", time.Hour)

	valid, err := a.Issue("dev-a")
	require.NoError(t, err)

	expired, err := auth.New("test-secret", -time.Minute).Issue("dev-a")
	require.NoError(t, err)

	foreign, err := auth.New("other-secret", time.Hour).Issue("dev-a")
	require.NoError(t, err)

	var seen string

	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.DeviceID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	type testCase struct {
		name       string
		header     string
		wantStatus int
	}

	tests := []testCase{
		{name: "Valid", header: "Bearer " + valid, wantStatus: http.StatusNoContent},
		{name: "Missing", header: "", wantStatus: http.StatusUnauthorized},
		{name: "WrongScheme", header: "Basic " + valid, wantStatus: http.StatusUnauthorized},
		{name: "Expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "WrongSecret", header: "Bearer " + foreign, wantStatus: http.StatusUnauthorized},
		{name: "Garbage", header: "Bearer abc.def.ghi", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, "dev-a", seen)
			}
		})
	}
}
