package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/finsync/internal/app"
	"github.com/MrJamesThe3rd/finsync/internal/config"
	finsyncHttp "github.com/MrJamesThe3rd/finsync/internal/http"
	accountHandler "github.com/MrJamesThe3rd/finsync/internal/http/account"
	"github.com/MrJamesThe3rd/finsync/internal/http/auth"
	contactHandler "github.com/MrJamesThe3rd/finsync/internal/http/contact"
	deviceHandler "github.com/MrJamesThe3rd/finsync/internal/http/device"
	migrationHandler "github.com/MrJamesThe3rd/finsync/internal/http/migration"
	notificationHandler "github.com/MrJamesThe3rd/finsync/internal/http/notification"
	syncHandler "github.com/MrJamesThe3rd/finsync/internal/http/sync"
	txHandler "github.com/MrJamesThe3rd/finsync/internal/http/transaction"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("starting sync: %w", err)
	}

	slog.Info("device ready", "device_id", a.DeviceID, "remote", cfg.Remote.Backend)

	opts := finsyncHttp.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Timeout:        cfg.Server.Timeout,
	}

	if cfg.Security.JWTSecret != "" {
		opts.Auth = auth.New(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	} else {
		slog.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	if cfg.Sync.AutoPush {
		opts.OnWrite = a.Changed
	}

	router := finsyncHttp.New(finsyncHttp.Handlers{
		Accounts:      accountHandler.NewHandler(a.Ledger),
		Transactions:  txHandler.NewHandler(a.Ledger),
		Contacts:      contactHandler.NewHandler(a.Ledger),
		Notifications: notificationHandler.NewHandler(a.Notifications),
		Sync:          syncHandler.NewHandler(a.Sync),
		Migration:     migrationHandler.NewHandler(a.Migration, a.Ledger),
		Device:        deviceHandler.NewHandler(a.DeviceID, a.Remote),
	}, opts)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		slog.Info("starting server", "port", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
