package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guardianentry/sessiongate"
	"github.com/guardianentry/sessiongate/httpapi"
	"github.com/guardianentry/sessiongate/internal/config"
	"github.com/guardianentry/sessiongate/internal/token"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the expiry sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.HTTPAddr = serveAddr
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Sync()

		gate, b, err := openGate(cfg, logger)
		if err != nil {
			return err
		}
		defer b.closeAccounts()
		defer gate.Close()

		verifier, err := token.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
		if err != nil {
			return err
		}

		sweeper := sessiongate.NewSweeper(gate, cfg.SweepInterval)
		sweeper.Start(cmd.Context())
		defer sweeper.Stop()

		router := httpapi.NewRouter(httpapi.Options{
			Gate:           gate,
			Directory:      sessiongate.NewDirectory(b.accounts, logger),
			Verifier:       verifier,
			Logger:         logger,
			AllowedOrigins: cfg.Origins(),
			Dev:            cfg.IsDev(),
		})

		server := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.Info("server starting",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreDriver),
			zap.String("role_policy", cfg.RolePolicy),
			zap.Duration("session_timeout", cfg.SessionTimeout),
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down server", zap.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			logger.Info("server exited")
			return nil
		case err := <-done:
			return err
		}
	},
}

// openGate opens the configured backends and builds a Gate over them. The
// Gate owns the session store; the caller closes the account store.
func openGate(cfg *config.Config, logger *zap.Logger) (*sessiongate.Gate, *backends, error) {
	b, err := openBackends(cfg)
	if err != nil {
		return nil, nil, err
	}

	gateCfg := cfg.Gate()
	gateCfg.SessionStore = b.sessions
	gateCfg.Logger = logger

	gate, err := sessiongate.New(gateCfg)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return gate, b, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides HTTP_ADDR)")
}
