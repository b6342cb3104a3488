package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/finsync/internal/http/account"
	"github.com/MrJamesThe3rd/finsync/internal/http/auth"
	"github.com/MrJamesThe3rd/finsync/internal/http/contact"
	"github.com/MrJamesThe3rd/finsync/internal/http/device"
	"github.com/MrJamesThe3rd/finsync/internal/http/migration"
	"github.com/MrJamesThe3rd/finsync/internal/http/notification"
	"github.com/MrJamesThe3rd/finsync/internal/http/sync"
	"github.com/MrJamesThe3rd/finsync/internal/http/transaction"
)

type Handlers struct {
	Accounts      *account.Handler
	Transactions  *transaction.Handler
	Contacts      *contact.Handler
	Notifications *notification.Handler
	Sync          *sync.Handler
	Migration     *migration.Handler
	Device        *device.Handler
}

type Options struct {
	// Auth guards /api/v1. Nil leaves the API open.
	Auth           *auth.Authenticator
	AllowedOrigins []string
	Timeout        time.Duration
	// OnWrite runs after every successful request that may have changed the dataset.
	OnWrite func()
}

func New(h Handlers, opts Options) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://*", "https://*"}
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	router.Route("/api/v1", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth.Middleware)
		}

		// Notification streams stay open; everything else is bounded.
		r.Get("/notifications/stream", h.Notifications.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))

			r.Group(func(r chi.Router) {
				r.Use(afterWrite(opts.OnWrite))

				r.Route("/accounts", func(r chi.Router) {
					r.Use(middleware.AllowContentType("application/json"))
					h.Accounts.Routes(r)
				})

				r.Route("/transactions", func(r chi.Router) {
					r.Use(middleware.AllowContentType("application/json"))
					h.Transactions.Routes(r)
				})

				r.Group(func(r chi.Router) {
					r.Use(middleware.AllowContentType("application/json"))
					h.Contacts.Routes(r)
				})

				r.Route("/migration", h.Migration.Routes)
			})

			r.Route("/notifications", h.Notifications.Routes)
			r.Route("/sync", h.Sync.Routes)
			r.Route("/device", h.Device.Routes)
		})
	})

	return router
}

func afterWrite(onWrite func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if onWrite == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if ww.Status() < http.StatusBadRequest {
				onWrite()
			}
		})
	}
}
