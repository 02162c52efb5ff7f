// ABOUTME: till serve: runs the HTTP API and the change-log retention loop
// ABOUTME: Shuts down gracefully on SIGINT/SIGTERM, draining queued writes before exit

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2389/till/internal/api"
	"github.com/2389/till/internal/auth"
	"github.com/2389/till/internal/config"
	"github.com/2389/till/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", opts.configPath())
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s ", cfg.Store.Path())
	gray.Printf("(%s)\n", cfg.Store.Backend)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	if cfg.Auth.JWTSecret == "" {
		fmt.Print("Auth:      ")
		yellow.Println("disabled")
	} else {
		fmt.Println("Auth:      bearer JWT")
	}
	if cfg.Changes.Retention > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Retention: %s ", cfg.Changes.Retention)
		gray.Printf("(every %s)\n", cfg.Changes.PruneInterval)
	}
	fmt.Println()

	st := openStore(cfg, logger)
	if err := st.Open(ctx); err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return fmt.Errorf("configuring auth: %w", err)
		}
		verifier = v
	}

	apiServer := api.New(st, api.Options{
		Verifier:           verifier,
		IdempotencyTTL:     cfg.API.IdempotencyTTL,
		IdempotencyMaxKeys: cfg.API.IdempotencyMaxKeys,
		Logger:             logger,
	})
	defer apiServer.Close()

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           apiServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting till",
		"http_addr", cfg.Server.HTTPAddr,
		"store", cfg.Store.Path(),
		"backend", cfg.Store.Backend,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Changes.Retention > 0 {
		g.Go(func() error {
			runRetention(gctx, st, cfg.Changes, logger)
			return nil
		})
	}

	return g.Wait()
}

// runRetention prunes the change log on every tick until ctx is done.
func runRetention(ctx context.Context, st *store.Store, cfg config.ChangesConfig, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-cfg.Retention)
			if _, err := st.PruneChanges(ctx, cutoff); err != nil && ctx.Err() == nil {
				logger.Error("pruning change log", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
