package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/amount"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/paymentmethod"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/pool"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/steps"
)

func defaultTipMenu() amount.TipMenu {
	return amount.NewTipMenu(nil, amount.DefaultTipIndex)
}

// NewCardKey selects a card entered on the Payment step.
const NewCardKey = "new_card"

// Orchestrator owns the state of one checkout session. All methods are safe
// for concurrent use; state changes are serialized and at most one Submit
// runs at a time.
type Orchestrator struct {
	core
	busy *pool.Pool

	mu    sync.Mutex
	state State
}

// Open builds a session from a checkout route. It resolves the collective
// and tier, lands on the furthest step the route may show, restores a
// stored payment method named by the route and the guest token of a pending
// order.
func Open(ctx context.Context, cfg Config, deps Deps, sessionID string, rt Route, id *Identity) (*Orchestrator, error) {
	c := newCore(cfg, deps)

	var collective Collective
	err := c.call(ctx, "Collective", func(ctx context.Context) error {
		var err error
		collective, err = deps.Directory.Collective(ctx, rt.CollectiveSlug)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open checkout for %q: %w", rt.CollectiveSlug, err)
	}

	var tier *Tier
	if rt.TierID != "" {
		err := c.call(ctx, "Tier", func(ctx context.Context) error {
			t, err := deps.Directory.Tier(ctx, collective.Slug, rt.TierID)
			tier = &t
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("open checkout for tier %q: %w", rt.TierID, err)
		}
	}

	s := c.cfg.Rules.Initial(collective, tier, id, rt)
	s.SessionID = sessionID
	s = s.Land(rt.Step)

	o := &Orchestrator{core: c, busy: pool.New(1), state: s}
	o.log = c.log.With(zap.String("session", sessionID))

	if rt.PaymentMethod != "" && rt.PaymentMethod != NewCardKey && s.Payment.Kind == PaymentNone {
		methods, err := o.storedMethods(ctx, s)
		if err != nil {
			o.log.Warn("stored payment methods unavailable", zap.Error(err))
		}
		o.state = c.cfg.Rules.Reduce(o.state, StoredMethodsLoaded{Key: rt.PaymentMethod, Methods: methods})
	}

	if s.Order != nil {
		if tok, ok := deps.Guests.GetToken(ctx, s.Order.ID); ok {
			o.state.Order.GuestToken = tok.Token
		}
	}

	o.log.Info("checkout opened",
		zap.String("collective", collective.Slug),
		zap.String("step", string(o.state.Step)),
		zap.Bool("guest", id == nil),
		zap.Bool("resumed_order", s.Order != nil),
	)
	return o, nil
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Route returns the URL state of the session.
func (o *Orchestrator) Route() Route {
	return routeOf(o.State())
}

func (o *Orchestrator) apply(e Event) {
	o.state = o.cfg.Rules.Reduce(o.state, e)
}

// editable reports whether step data may change now. Callers hold mu.
func (o *Orchestrator) editable(step steps.Name) error {
	switch {
	case o.state.Submitted:
		return apperr.ErrAlreadySubmitted
	case o.state.Submitting:
		return apperr.ErrSubmitInFlight
	case o.state.Step != step:
		return apperr.Validation(string(step), "", fmt.Sprintf("%s can only be changed on the %s step", step, step))
	}
	return nil
}

func (o *Orchestrator) mutate(step steps.Name, e Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.editable(step); err != nil {
		return err
	}
	o.apply(e)
	return nil
}

// UpdateDetails changes the contribution amount, quantity and interval, and
// the tip when e carries one. Nothing is applied if the tip is rejected.
func (o *Orchestrator) UpdateDetails(e DetailsChanged) error {
	if e.Tip != nil {
		if err := o.checkTip(*e.Tip); err != nil {
			return err
		}
	}
	return o.mutate(steps.Details, e)
}

// SelectTip records a choice in the platform tip menu.
func (o *Orchestrator) SelectTip(sel amount.TipSelection) error {
	if err := o.checkTip(sel); err != nil {
		return err
	}
	return o.mutate(steps.Details, TipSelected{Selection: sel})
}

func (o *Orchestrator) checkTip(sel amount.TipSelection) error {
	o.mu.Lock()
	enabled := o.state.Collective.PlatformTipEnabled
	o.mu.Unlock()
	if !enabled {
		return apperr.Validation(string(steps.Details), "platformTip", "platform tips are not enabled for this collective")
	}
	if sel.Key != amount.TipNone && sel.Key != amount.TipCustom {
		if _, ok := sel.Key.Percentage(); !ok {
			return apperr.Validation(string(steps.Details), "platformTip", "unknown tip option "+string(sel.Key))
		}
	}
	if sel.Key == amount.TipCustom && sel.CustomAmount < 0 {
		return apperr.Validation(string(steps.Details), "platformTip", "platform tip cannot be negative")
	}
	return nil
}

// UpdateProfile selects who contributes. Signed-in users pick their own
// account, one of their memberships, or incognito; guests give their details.
func (o *Orchestrator) UpdateProfile(p Profile) error {
	o.mu.Lock()
	id := o.state.Identity
	o.mu.Unlock()

	if err := checkProfile(id, &p); err != nil {
		return err
	}
	return o.mutate(steps.Profile, ProfileChanged{Profile: p})
}

func checkProfile(id *Identity, p *Profile) error {
	field := func(f, msg string) error { return apperr.Validation(string(steps.Profile), f, msg) }
	set := 0
	for _, b := range []bool{p.Account != nil, p.Guest != nil, p.Incognito} {
		if b {
			set++
		}
	}
	if set != 1 {
		return field("profile", "choose exactly one profile")
	}
	switch {
	case p.Guest != nil:
		if id != nil {
			return field("profile", "signed-in users cannot contribute as a guest")
		}
		p.Guest.Email = strings.TrimSpace(p.Guest.Email)
	case id == nil:
		return field("profile", "sign in to contribute with an account")
	case p.Account != nil:
		if p.Account.Slug == id.Slug || p.Account.ID == id.AccountID {
			ref := id.Ref()
			p.Account = &ref
			return nil
		}
		i := slices.IndexFunc(id.Memberships, func(m AccountRef) bool {
			return m.Slug == p.Account.Slug || (m.ID != "" && m.ID == p.Account.ID)
		})
		if i < 0 {
			return field("account", "you cannot contribute as this account")
		}
		m := id.Memberships[i]
		p.Account = &m
	}
	return nil
}

// UpdateSummary sets the tax information.
func (o *Orchestrator) UpdateSummary(t TaxInfo) error {
	return o.mutate(steps.Summary, TaxInfoChanged{Tax: t})
}

// PaymentSelection is a payment choice as sent by the browser: the key of a
// stored method, an external service key, or NewCardKey with a card.
type PaymentSelection struct {
	Key  string   `json:"key"`
	Card *NewCard `json:"card,omitempty"`
}

// SelectPayment resolves and records a payment choice. Stored methods must
// be among the enabled options for the current total.
func (o *Orchestrator) SelectPayment(ctx context.Context, sel PaymentSelection) error {
	field := func(msg string) error { return apperr.Validation(string(steps.Payment), "paymentMethod", msg) }

	var p Payment
	switch {
	case sel.Key == NewCardKey:
		if sel.Card == nil || sel.Card.Token == "" {
			return field("card details are incomplete")
		}
		card := *sel.Card
		p = Payment{Kind: PaymentNewCard, NewCard: &card}
	case strings.HasPrefix(sel.Key, "external-"):
		ext, ok := parseExternalKey(sel.Key)
		if !ok || ext.Service != paymentmethod.ServicePayPal {
			return field("unsupported payment service")
		}
		p = Payment{Kind: PaymentExternal, External: &ext}
	case sel.Key == "":
		return field("choose a payment method")
	default:
		opts, err := o.PaymentOptions(ctx)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(opts, func(opt paymentmethod.Option) bool { return opt.ID == sel.Key })
		if i < 0 {
			return field("unknown payment method")
		}
		if opts[i].Disabled {
			return field(opts[i].DisabledReason)
		}
		m := opts[i].PaymentMethod
		p = Payment{Kind: PaymentStored, Stored: &m}
	}
	return o.mutate(steps.Payment, PaymentSelected{Payment: p})
}

// PaymentOptions lists the stored payment methods of the contributing profile
// for the current total.
func (o *Orchestrator) PaymentOptions(ctx context.Context) ([]paymentmethod.Option, error) {
	s := o.State()
	methods, err := o.storedMethods(ctx, s)
	if err != nil {
		return nil, err
	}

	var intent *paymentmethod.Intent
	err = o.call(ctx, "Intent", func(ctx context.Context) error {
		in, err := o.deps.Provider.Intent(ctx, IntentRequest{Amount: s.Total(), Currency: s.Details.Currency, CollectiveID: s.Collective.ID})
		intent = &in
		return err
	})
	if err != nil {
		o.log.Warn("payment intent unavailable, showing unfiltered methods", zap.Error(err))
		intent = nil
	}

	return paymentmethod.Build(methods, paymentmethod.Input{
		Total:    s.Total(),
		Currency: s.Details.Currency,
		Intent:   intent,
		Now:      o.cfg.now(),
	}), nil
}

func (o *Orchestrator) storedMethods(ctx context.Context, s State) ([]paymentmethod.Method, error) {
	if s.Profile == nil || s.Profile.Account == nil {
		return nil, nil
	}
	var methods []paymentmethod.Method
	err := o.call(ctx, "PaymentMethods", func(ctx context.Context) error {
		var err error
		methods, err = o.deps.Directory.PaymentMethods(ctx, s.Profile.Account.ID)
		return err
	})
	return methods, err
}

// validators returns the step validators for s. Validators may produce
// events, which are collected into out and applied only if the validation
// result is still current.
func (o *Orchestrator) validators(s State, out *[]Event) map[steps.Name]steps.ValidateFunc {
	return map[steps.Name]steps.ValidateFunc{
		steps.Details: func(context.Context) error {
			if err := s.Details.Validate(s.Minimum()); err != nil {
				return apperr.Validation(string(steps.Details), "amount", err.Error())
			}
			return nil
		},
		steps.Profile: func(ctx context.Context) error {
			p := s.Profile
			switch {
			case p == nil:
				return apperr.Validation(string(steps.Profile), "profile", "choose who is contributing")
			case p.Guest != nil && !validEmail(p.Guest.Email):
				return apperr.Validation(string(steps.Profile), "email", "a valid email is required")
			case p.Incognito && s.Identity != nil:
				var ref AccountRef
				err := o.call(ctx, "CreateIncognitoProfile", func(ctx context.Context) error {
					var err error
					ref, err = o.deps.Directory.CreateIncognitoProfile(ctx, *s.Identity)
					return err
				})
				if err != nil {
					return apperr.Validation(string(steps.Profile), "profile", userMessage(err))
				}
				*out = append(*out, IncognitoCreated{Account: ref})
			}
			return nil
		},
		steps.Summary: func(context.Context) error {
			if s.Tax == nil || s.Tax.Country == "" {
				return apperr.Validation(string(steps.Summary), "country", "country is required")
			}
			return nil
		},
		steps.Payment: func(context.Context) error {
			if !s.Payment.complete() {
				return apperr.Validation(string(steps.Payment), "paymentMethod", "choose a payment method")
			}
			return nil
		},
	}
}

// Next validates the current step and advances. On the last step it only
// validates and returns the current step; Submit takes it from there. A
// validation result that arrives after the user navigated elsewhere is
// discarded with ErrStaleResult.
func (o *Orchestrator) Next(ctx context.Context) (steps.Name, error) {
	o.mu.Lock()
	if err := o.editable(o.state.Step); err != nil {
		o.mu.Unlock()
		return "", err
	}
	s := o.state
	o.mu.Unlock()

	var produced []Event
	next, last, err := s.Steps(o.validators(s, &produced)).Advance(ctx, s.Step)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Step != s.Step || o.state.NavSeq != s.NavSeq {
		o.log.Debug("discarding stale validation", zap.String("step", string(s.Step)))
		return "", fmt.Errorf("validate %s: %w", s.Step, apperr.ErrStaleResult)
	}
	if err != nil {
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			o.apply(ValidationFailed{Step: s.Step, Message: ve.Message})
		}
		return "", err
	}
	for _, e := range produced {
		o.apply(e)
	}
	if last {
		return s.Step, nil
	}
	o.apply(Navigated{To: next})
	return next, nil
}

// GoTo navigates explicitly to a step at or before the last visited one.
func (o *Orchestrator) GoTo(target steps.Name) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Submitting {
		return apperr.ErrSubmitInFlight
	}
	if err := o.state.Steps(nil).CanGoTo(target); err != nil {
		return err
	}
	o.apply(Navigated{To: target})
	return nil
}

// Back moves to the step before the current one.
func (o *Orchestrator) Back() (steps.Name, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.state.Submitted:
		return "", apperr.ErrAlreadySubmitted
	case o.state.Submitting:
		return "", apperr.ErrSubmitInFlight
	}
	prev, ok := o.state.Steps(nil).Previous(o.state.Step)
	if !ok {
		return "", fmt.Errorf("back from %s: %w", o.state.Step, apperr.ErrStepNotReachable)
	}
	o.apply(Navigated{To: prev})
	return prev, nil
}

// SetIdentity reacts to a sign-in, sign-out or account switch. A different
// identity resets the session to the first step.
func (o *Orchestrator) SetIdentity(id *Identity) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Submitting {
		return apperr.ErrSubmitInFlight
	}
	if sameIdentity(o.state.Identity, id) {
		return nil
	}
	o.apply(IdentityChanged{Identity: id})
	o.log.Info("identity changed, checkout reset", zap.Bool("guest", id == nil))
	return nil
}
