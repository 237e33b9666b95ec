// Package app wires the checkout server from its configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/checkout"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/config"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/guest"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/middleware"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/directory"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/order"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/payment"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/tracker"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/storage/memory"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/storage/sqlite"
	httptransport "github.com/gitarcode-test/opencollective-frontend-sub001/internal/transport/http"
)

// App is a wired checkout server.
type App struct {
	Handler  http.Handler
	Registry *checkout.Registry
	Tracker  *tracker.Tracker
	Guests   *guest.Store

	log     *zap.Logger
	closers []io.Closer
}

// New builds the collaborators, session registry and HTTP handler described
// by cfg.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Tracker: &tracker.Tracker{}, log: log}

	kv, err := a.persistence(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.Guests = guest.NewStore(kv, log.Named("guest"))

	sb := cfg.Sandbox
	dir := directory.New(sb.Catalog, sb.DelaysMS, log.Named("directory"))
	provider := payment.NewSandbox(cfg.Checkout.BaseURL, sb.ProviderAccount, sb.AllowedTypes, sb.DelaysMS, log.Named("payment"))
	orders := order.NewSandbox(sb.DelaysMS, sb.ProviderAccount, log.Named("order"))

	ccfg := checkout.Config{
		Rules:             checkout.Rules{TipMenu: cfg.Checkout.TipMenu()},
		BaseURL:           cfg.Checkout.BaseURL,
		SuccessRedirect:   cfg.Checkout.SuccessRedirect,
		CallTimeout:       cfg.Checkout.CallTimeout,
		MaxChargeAttempts: cfg.Checkout.MaxChargeAttempts,
	}
	deps := checkout.Deps{
		Orders:    orders,
		Provider:  provider,
		Directory: dir,
		Guests:    a.Guests,
		Identity:  dir,
		Tracker:   a.Tracker,
		Log:       log.Named("checkout"),
	}
	a.Registry = checkout.NewRegistry(ccfg, deps, cfg.Checkout.SessionTTL)

	h := httptransport.New(a.Registry, checkout.NewResumer(ccfg, deps), httptransport.Options{
		Users:          dir,
		Sandbox:        provider,
		Tracker:        a.Tracker,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Log:            log.Named("http"),
	})
	a.Handler = h.Router(middleware.Logging(log.Named("access")))
	return a, nil
}

func (a *App) persistence(s config.Storage) (guest.Persistence, error) {
	switch s.Driver {
	case config.DriverSQLite:
		kv, err := sqlite.Open(s.Path)
		if err != nil {
			return nil, fmt.Errorf("open guest storage: %w", err)
		}
		a.closers = append(a.closers, kv)
		return kv, nil
	case config.DriverMemory, "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", s.Driver)
	}
}

// SweepSessions drops idle sessions every interval until ctx is done.
func (a *App) SweepSessions(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := a.Registry.Sweep(); n > 0 {
				a.log.Debug("expired checkout sessions", zap.Int("count", n))
			}
		}
	}
}

// Close releases storage.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
