package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/racealert/race-alert/internal/alert"
	"github.com/racealert/race-alert/internal/api"
	"github.com/racealert/race-alert/internal/clock/system"
	"github.com/racealert/race-alert/internal/dispatcher"
	"github.com/racealert/race-alert/internal/email"
	uuidgen "github.com/racealert/race-alert/internal/id/uuid"
	"github.com/racealert/race-alert/internal/store/memory"
	"github.com/racealert/race-alert/internal/store/postgres"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion API and notification dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, err := buildProvider()
	if err != nil {
		return err
	}
	sender := email.NewSender(provider, cfg.Email.BaseURL, logger)
	clock := system.Clock{}
	dispatch := dispatcher.New(store, sender, clock, logger)
	server := api.NewServer(store, dispatch, sender, clock, cfg, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context) (alert.Store, error) {
	ids := uuidgen.New()
	if cfg.DB.DSN == "" {
		logger.Warn("no db.dsn configured, using in-memory store")
		return memory.New(ids), nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}, ids)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func buildProvider() (email.Provider, error) {
	switch cfg.Email.Provider {
	case "resend":
		return email.NewResendProvider(
			cfg.Email.APIKey, cfg.Email.FromAddr, cfg.Email.FromName, logger), nil
	case "mock":
		return email.NewMockProvider(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}
