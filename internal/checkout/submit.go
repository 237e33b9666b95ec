package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
)

// Submit creates (or reuses) the order and confirms its payment.
//
// The order is created at most once per logical submission: a failed
// confirmation keeps it, and the retry patches it with the current payment
// method instead of creating another. Guest tokens are persisted before any
// confirmation so a redirect can always find the order again. A second
// Submit while one is running fails with ErrSubmitInFlight.
func (o *Orchestrator) Submit(ctx context.Context) (Outcome, error) {
	if !o.busy.TryAcquire() {
		return Outcome{}, apperr.ErrSubmitInFlight
	}
	defer o.busy.Release()

	ctx, span := tracer.Start(ctx, "checkout.Submit")
	defer span.End()

	s, err := o.beginSubmit()
	if err != nil {
		return Outcome{}, err
	}
	span.SetAttributes(
		attribute.String("checkout.session", s.SessionID),
		attribute.String("checkout.payment_kind", string(s.Payment.Kind)),
		attribute.Int("checkout.charge_attempt", s.Payment.ChargeAttempt),
	)

	order, err := o.ensureOrder(ctx, s)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("checkout.order", order.ID))

	out, err := o.confirm(ctx, s, order)
	if err != nil {
		span.RecordError(err)
	}
	return out, err
}

func (o *Orchestrator) beginSubmit() (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.state
	if s.Submitted {
		return State{}, apperr.ErrAlreadySubmitted
	}
	seq := s.Steps(nil)
	if last := seq[len(seq)-1].Name; s.Step != last {
		return State{}, fmt.Errorf("submit from %s: %w", s.Step, apperr.ErrStepNotReachable)
	}
	for _, st := range seq {
		if !st.Completed {
			return State{}, apperr.Validation(string(st.Name), "", fmt.Sprintf("the %s step is incomplete", st.Name))
		}
	}
	if limit := o.cfg.MaxChargeAttempts; limit > 0 && s.Payment.ChargeAttempt >= limit {
		return State{}, apperr.ErrTooManyAttempts
	}

	key := s.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	o.apply(SubmitStarted{IdempotencyKey: key})
	return o.state, nil
}

func (o *Orchestrator) fail(err error, msg string, charged bool) (Outcome, error) {
	o.mu.Lock()
	o.apply(SubmitFailed{Message: msg, Charged: charged})
	attempt := o.state.Payment.ChargeAttempt
	o.mu.Unlock()

	o.log.Info("submission failed", zap.String("kind", apperr.Kind(err)), zap.Int("charge_attempt", attempt), zap.Error(err))
	return Outcome{}, err
}

func (o *Orchestrator) orderInput(s State) OrderInput {
	in := OrderInput{
		IdempotencyKey:    s.IdempotencyKey,
		Quantity:          s.Details.Quantity,
		Amount:            s.Details.UnitAmount,
		Currency:          s.Details.Currency,
		Frequency:         s.Details.Interval,
		PlatformTipAmount: s.Details.PlatformTip,
		Tax:               s.Tax,
		Total:             s.Total(),
		ToAccount:         s.Collective.Ref(),
		PaymentMethod:     s.Payment.input(),
		Tags:              s.Tags,
	}
	if s.Details.TaxAmount != nil {
		in.TaxAmount = *s.Details.TaxAmount
	}
	if s.Tier != nil {
		in.Tier = &TierRef{ID: s.Tier.ID, Slug: s.Tier.Slug}
	}
	switch p := s.Profile; {
	case p == nil:
	case p.Account != nil:
		a := *p.Account
		in.FromAccount = &a
	case p.Guest != nil:
		g := *p.Guest
		in.Guest = &g
	}
	return in
}

// ensureOrder returns the order to confirm: the pending one as is, the
// pending one patched with the current payment method, or a new one.
func (o *Orchestrator) ensureOrder(ctx context.Context, s State) (PendingOrder, error) {
	if s.Order != nil && !s.Order.Stale {
		return *s.Order, nil
	}

	if s.Order != nil {
		var res OrderResult
		err := o.call(ctx, "UpdateOrder", func(ctx context.Context) error {
			var err error
			res, err = o.deps.Orders.UpdateOrder(ctx, OrderRef{ID: s.Order.ID}, OrderPatch{PaymentMethod: s.Payment.input()})
			return err
		})
		if err != nil {
			msg := userMessage(err)
			_, err = o.fail(&apperr.ConfirmationError{OrderID: s.Order.ID, Message: msg, Err: err}, msg, false)
			return PendingOrder{}, err
		}
		pending := pendingFrom(res, s.Order.GuestToken)
		o.recordOrder(ctx, s, pending)
		return pending, nil
	}

	s, err := o.ensureIncognito(ctx, s)
	if err != nil {
		return PendingOrder{}, err
	}
	var res OrderResult
	err = o.call(ctx, "CreateOrder", func(ctx context.Context) error {
		var err error
		res, err = o.deps.Orders.CreateOrder(ctx, o.orderInput(s))
		return err
	})
	if err != nil {
		msg := userMessage(err)
		_, err = o.fail(&apperr.SubmissionError{Message: msg, Err: err}, msg, false)
		return PendingOrder{}, err
	}
	pending := pendingFrom(res, "")
	o.recordOrder(ctx, s, pending)
	o.log.Info("order created", zap.String("order", pending.ID), zap.String("status", string(pending.Status)))
	return pending, nil
}

// ensureIncognito creates the incognito profile of a session that asked for
// one but reached submission without it, as after a redirect recovery.
func (o *Orchestrator) ensureIncognito(ctx context.Context, s State) (State, error) {
	if s.Profile == nil || !s.Profile.Incognito || s.Identity == nil {
		return s, nil
	}
	var ref AccountRef
	err := o.call(ctx, "CreateIncognitoProfile", func(ctx context.Context) error {
		var err error
		ref, err = o.deps.Directory.CreateIncognitoProfile(ctx, *s.Identity)
		return err
	})
	if err != nil {
		msg := userMessage(err)
		_, err = o.fail(&apperr.SubmissionError{Message: msg, Err: err}, msg, false)
		return State{}, err
	}

	o.mu.Lock()
	o.apply(IncognitoCreated{Account: ref})
	s.Profile = o.state.Profile
	o.mu.Unlock()
	return s, nil
}

func pendingFrom(res OrderResult, guestToken string) PendingOrder {
	p := PendingOrder{
		ID:                 res.Order.ID,
		Status:             res.Order.Status,
		ConfirmationSecret: res.ConfirmationSecret,
		GuestToken:         res.GuestToken,
		ProviderAccount:    res.ProviderAccount,
	}
	if p.GuestToken == "" {
		p.GuestToken = guestToken
	}
	return p
}

// recordOrder stores the order on the session and persists its guest token.
func (o *Orchestrator) recordOrder(ctx context.Context, s State, p PendingOrder) {
	if p.GuestToken != "" && s.Profile != nil && s.Profile.Guest != nil {
		o.deps.Guests.SetToken(ctx, s.Profile.Guest.Email, p.ID, p.GuestToken)
	}
	o.mu.Lock()
	o.apply(OrderCreated{Order: p})
	o.mu.Unlock()
}

// confirm drives the provider for the selected payment kind.
func (o *Orchestrator) confirm(ctx context.Context, s State, order PendingOrder) (Outcome, error) {
	if order.Status.Settled() {
		return o.succeed(ctx, s, order)
	}
	if order.ConfirmationSecret == "" {
		return o.finalize(ctx, s, order)
	}

	opts := ConfirmOptions{
		ReturnURL: o.returnURL(order.ID, order.ProviderAccount, s.Payment.ChargeAttempt),
		Account:   order.ProviderAccount,
	}
	switch s.Payment.Kind {
	case PaymentStored:
		opts.MethodRef = s.Payment.Stored.ID
	case PaymentNewCard:
		opts.MethodRef = s.Payment.NewCard.Token
	case PaymentExternal:
		opts.MethodRef = string(s.Payment.External.Service)
	case PaymentNone:
		msg := "choose a payment method"
		return o.fail(&apperr.ConfirmationError{OrderID: order.ID, Message: msg}, msg, false)
	default:
		msg := fmt.Sprintf("unsupported payment kind %q", s.Payment.Kind)
		return o.fail(&apperr.ConfirmationError{OrderID: order.ID, Message: msg}, msg, false)
	}

	var res ConfirmResult
	err := o.call(ctx, "Confirm", func(ctx context.Context) error {
		var err error
		res, err = o.deps.Provider.Confirm(ctx, order.ConfirmationSecret, opts)
		return err
	})
	if err != nil {
		msg := userMessage(err)
		return o.fail(&apperr.ConfirmationError{OrderID: order.ID, Message: msg, Err: err}, msg, true)
	}

	switch res.Status {
	case ConfirmSucceeded:
		return o.finalize(ctx, s, order)
	case ConfirmRequiresRedirect:
		o.mu.Lock()
		o.apply(SubmitRedirected{})
		o.mu.Unlock()
		o.log.Info("payment continues at provider", zap.String("order", order.ID))
		return Outcome{Kind: OutcomeRedirect, RedirectURL: res.RedirectURL, OrderID: order.ID, External: true}, nil
	case ConfirmFailed:
		msg := res.Message
		if msg == "" {
			msg = "The payment failed"
		}
		return o.fail(&apperr.ConfirmationError{OrderID: order.ID, Message: msg}, msg, true)
	default:
		msg := fmt.Sprintf("unexpected payment status %q", res.Status)
		return o.fail(&apperr.ConfirmationError{OrderID: order.ID, Message: msg}, msg, false)
	}
}

// finalize tells the order service the payment went through.
func (o *Orchestrator) finalize(ctx context.Context, s State, order PendingOrder) (Outcome, error) {
	err := o.call(ctx, "ConfirmOrder", func(ctx context.Context) error {
		_, err := o.deps.Orders.ConfirmOrder(ctx, OrderRef{ID: order.ID}, order.GuestToken)
		return err
	})
	if err != nil {
		msg := userMessage(err)
		return o.fail(&apperr.ConfirmationError{OrderID: order.ID, Message: msg, Err: err}, msg, false)
	}
	return o.succeed(ctx, s, order)
}

func (o *Orchestrator) succeed(ctx context.Context, s State, order PendingOrder) (Outcome, error) {
	o.mu.Lock()
	o.apply(SubmitSucceeded{})
	o.mu.Unlock()

	o.refetchIdentity(ctx, s.Identity)
	out := o.successOutcome(s.Collective.Slug, s.Tier, order.ID)
	o.log.Info("checkout submitted", zap.String("order", order.ID), zap.Int64("total", s.Total()))
	return out, nil
}
