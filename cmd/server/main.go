package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/app"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:           "checkout-server",
		Short:         "Contribution checkout server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			log, err := newLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("configure logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.HTTP.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.HTTP.Addr, err)
			}
			return run(ctx, cfg, ln, log)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "checkout.yaml", "Path to the YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides http.addr")
	return cmd
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// run serves the checkout API on ln until ctx is cancelled, then shuts the
// server down gracefully.
func run(ctx context.Context, cfg config.Config, ln net.Listener, log *zap.Logger) error {
	a, err := app.New(cfg, log)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close storage", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Handler:           a.Handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.SweepSessions(gctx, time.Minute)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
