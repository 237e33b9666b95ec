// Package checkout runs the multi-step contribution checkout: it owns the
// wizard state of each session, gates navigation through step validation,
// and drives order creation, payment confirmation and redirect recovery
// against the order service and the payment provider.
package checkout

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/guest"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/tracker"
)

// ReturnPath is where the payment provider sends the browser back to.
const ReturnPath = "/checkouts/return"

var tracer = otel.Tracer("github.com/gitarcode-test/opencollective-frontend-sub001/internal/checkout")

// Config tunes the checkout.
type Config struct {
	Rules Rules
	// BaseURL prefixes every URL handed to the browser or the provider.
	BaseURL string
	// SuccessRedirect replaces the built-in success page when set.
	SuccessRedirect string
	// CallTimeout bounds each collaborator call. Zero means no bound.
	CallTimeout time.Duration
	// MaxChargeAttempts caps failed charges per order. Zero means no cap.
	MaxChargeAttempts int
	Now               func() time.Time
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Deps are the collaborators of a checkout.
type Deps struct {
	Orders    OrderService
	Provider  PaymentProvider
	Directory Directory
	Guests    *guest.Store
	// Identity is optional.
	Identity IdentityRefresher
	// Tracker is optional.
	Tracker *tracker.Tracker
	Log     *zap.Logger
}

type core struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

func newCore(cfg Config, deps Deps) core {
	if deps.Orders == nil || deps.Provider == nil || deps.Directory == nil || deps.Guests == nil {
		panic("checkout: missing collaborator")
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	if len(cfg.Rules.TipMenu.Percentages) == 0 {
		cfg.Rules.TipMenu = defaultTipMenu()
	}
	return core{cfg: cfg, deps: deps, log: log}
}

// call runs one collaborator call under the configured timeout, counted by
// the tracker and traced as a span.
func (c core) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "checkout."+name)
	defer span.End()

	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	err := c.deps.Tracker.Track(func() error { return fn(ctx) })
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Debug("collaborator call failed", zap.String("call", name), zap.Error(err))
	}
	return err
}

// userMessage extracts the text shown to the payer from a collaborator error.
func userMessage(err error) string {
	var se *ServiceError
	switch {
	case errors.As(err, &se) && se.Message != "":
		return se.Message
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out, please try again"
	case errors.Is(err, context.Canceled):
		return "The request was canceled"
	default:
		return err.Error()
	}
}

func (c core) url(path string, q url.Values) string {
	u := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// returnURL is handed to the provider for redirect-based confirmations. It
// carries what Resume needs to find the order again.
func (c core) returnURL(orderID, account string, chargeAttempt int) string {
	q := url.Values{}
	q.Set(paramOrderID, orderID)
	if account != "" {
		q.Set(paramAccount, account)
	}
	q.Set(paramChargeAttempt, strconv.Itoa(chargeAttempt))
	return c.url(ReturnPath, q)
}

// successOutcome picks the post-success destination: the tier's redirect,
// then the configured one, then the built-in success page.
func (c core) successOutcome(collectiveSlug string, tier *Tier, orderID string) Outcome {
	out := Outcome{Kind: OutcomeSuccess, OrderID: orderID}
	target := c.cfg.SuccessRedirect
	if tier != nil && tier.RedirectURL != "" {
		target = tier.RedirectURL
	}
	if target != "" {
		if u, err := url.Parse(target); err == nil {
			q := u.Query()
			q.Set(paramOrderID, orderID)
			u.RawQuery = q.Encode()
			out.RedirectURL = u.String()
			out.External = u.IsAbs() && (c.cfg.BaseURL == "" || !strings.HasPrefix(out.RedirectURL, c.cfg.BaseURL))
			return out
		}
		c.log.Warn("ignoring malformed success redirect", zap.String("redirect", target))
	}
	q := url.Values{}
	q.Set(paramOrderID, orderID)
	out.RedirectURL = c.url("/"+url.PathEscape(collectiveSlug)+"/donate/success", q)
	return out
}

// refetchIdentity refreshes the signed-in user's cached memberships. Failures
// are logged only; the contribution already went through.
func (c core) refetchIdentity(ctx context.Context, id *Identity) {
	if id == nil || c.deps.Identity == nil {
		return
	}
	err := c.call(ctx, "RefetchIdentity", func(ctx context.Context) error {
		return c.deps.Identity.Refetch(ctx, id.AccountID)
	})
	if err != nil {
		c.log.Warn("identity refetch failed", zap.String("account", id.AccountID), zap.Error(err))
	}
}
