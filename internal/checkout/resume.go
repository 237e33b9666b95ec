package checkout

import (
	"context"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
)

// Query parameters the provider appends to the return URL.
const (
	paramClientSecret   = "payment_intent_client_secret"
	paramRedirectStatus = "redirect_status"
	paramAccount        = "account"
)

// Resumer completes checkouts that came back from a redirect-based payment.
// It needs no session: everything is rebuilt from the return URL, the order
// service and the guest token store. Concurrent returns for the same order
// share one resolution.
type Resumer struct {
	core
	group singleflight.Group
}

// NewResumer returns a Resumer.
func NewResumer(cfg Config, deps Deps) *Resumer {
	return &Resumer{core: newCore(cfg, deps)}
}

// Resume inspects the return query. A confirmed payment yields the success
// outcome. Any failure yields a *apperr.RedirectRecoveryError whose
// RedirectURL reopens the checkout on the Payment step of the same order,
// with the provider's message and the next charge attempt; it is never
// swallowed.
func (r *Resumer) Resume(ctx context.Context, q url.Values) (Outcome, error) {
	orderID := q.Get(paramOrderID)
	if orderID == "" {
		return Outcome{}, &apperr.RedirectRecoveryError{
			Message:     "The payment could not be matched to an order",
			RedirectURL: r.url("/", nil),
		}
	}

	key := orderID + "|" + q.Get(paramClientSecret)
	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.resume(ctx, orderID, q)
	})
	if shared {
		r.log.Debug("redirect return shared", zap.String("order", orderID))
	}
	return v.(Outcome), err
}

func (r *Resumer) resume(ctx context.Context, orderID string, q url.Values) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "checkout.Resume")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.order", orderID))

	attempt, _ := strconv.Atoi(q.Get(paramChargeAttempt))
	tok, _ := r.deps.Guests.GetToken(ctx, orderID)

	msg := q.Get(paramError)
	if msg == "" && q.Get(paramRedirectStatus) == "failed" {
		msg = "The payment was not authorized"
	}
	if msg == "" {
		var res ConfirmResult
		err := r.call(ctx, "Retrieve", func(ctx context.Context) error {
			var err error
			res, err = r.deps.Provider.Retrieve(ctx, q.Get(paramClientSecret), q.Get(paramAccount))
			return err
		})
		switch {
		case err != nil:
			msg = userMessage(err)
		case res.Status == ConfirmSucceeded:
			msg = r.finalize(ctx, orderID, tok.Token)
		case res.Message != "":
			msg = res.Message
		default:
			msg = "The payment was not completed"
		}
	}
	if msg == "" {
		return r.succeeded(ctx, orderID, tok.Token)
	}

	span.SetAttributes(attribute.String("checkout.failure", msg))
	return Outcome{}, r.recovery(ctx, orderID, tok.Token, msg, attempt+1)
}

// finalize confirms the order and returns a failure message, or "".
func (r *Resumer) finalize(ctx context.Context, orderID, guestToken string) string {
	err := r.call(ctx, "ConfirmOrder", func(ctx context.Context) error {
		_, err := r.deps.Orders.ConfirmOrder(ctx, OrderRef{ID: orderID}, guestToken)
		return err
	})
	if err != nil {
		return userMessage(err)
	}
	return ""
}

func (r *Resumer) succeeded(ctx context.Context, orderID, guestToken string) (Outcome, error) {
	var order Order
	err := r.call(ctx, "GetOrder", func(ctx context.Context) error {
		var err error
		order, err = r.deps.Orders.GetOrder(ctx, OrderRef{ID: orderID}, guestToken)
		return err
	})
	if err != nil {
		// The payment went through; only the destination is unknown.
		r.log.Warn("confirmed order not readable", zap.String("order", orderID), zap.Error(err))
		return Outcome{Kind: OutcomeSuccess, OrderID: orderID, RedirectURL: r.url("/", url.Values{paramOrderID: {orderID}})}, nil
	}

	if !order.FromAccount.IsGuest && order.FromAccount.ID != "" {
		r.refetchIdentity(ctx, &Identity{AccountID: order.FromAccount.ID})
	}

	var tier *Tier
	if order.Tier != nil {
		err := r.call(ctx, "Tier", func(ctx context.Context) error {
			t, err := r.deps.Directory.Tier(ctx, order.ToAccount.Slug, order.Tier.ID)
			tier = &t
			return err
		})
		if err != nil {
			tier = nil
		}
	}
	r.log.Info("redirect payment confirmed", zap.String("order", orderID))
	return r.successOutcome(order.ToAccount.Slug, tier, orderID), nil
}

// recovery builds the error that sends the payer back to the Payment step.
func (r *Resumer) recovery(ctx context.Context, orderID, guestToken, msg string, attempt int) error {
	var order Order
	err := r.call(ctx, "GetOrder", func(ctx context.Context) error {
		var err error
		order, err = r.deps.Orders.GetOrder(ctx, OrderRef{ID: orderID}, guestToken)
		return err
	})
	if err != nil {
		r.log.Warn("order of failed redirect not readable", zap.String("order", orderID), zap.Error(err))
		return &apperr.RedirectRecoveryError{
			OrderID:     orderID,
			Message:     msg,
			RedirectURL: r.url("/", url.Values{paramError: {msg}}),
		}
	}

	rt := RecoveryRoute(order, msg, attempt)
	r.log.Info("redirect payment failed, recovering",
		zap.String("order", orderID),
		zap.Int("charge_attempt", attempt),
		zap.String("reason", msg),
	)
	return &apperr.RedirectRecoveryError{
		OrderID:     orderID,
		Message:     msg,
		RedirectURL: rt.URL(r.cfg.BaseURL),
	}
}
