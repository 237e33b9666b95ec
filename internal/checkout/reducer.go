package checkout

import (
	"maps"
	"net/mail"
	"strings"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/amount"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/paymentmethod"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/steps"
)

// Rules holds the per-deployment knobs the state transitions depend on.
type Rules struct {
	TipMenu amount.TipMenu
}

// Event is a state transition. Events never mutate the State they receive.
type Event interface {
	apply(r Rules, s State) State
}

// Reduce applies e to s and returns the new state with every derived field
// (tip, tax) recomputed. s is not modified.
func (r Rules) Reduce(s State, e Event) State {
	return r.derive(e.apply(r, s))
}

// derive recomputes the tip and tax from the base amount.
func (r Rules) derive(s State) State {
	d := s.Details
	if s.Collective.PlatformTipEnabled {
		d.PlatformTipOption, d.PlatformTip = r.TipMenu.ResolveTip(d.Base(), s.Tip)
	} else {
		d.PlatformTipOption, d.PlatformTip = "", 0
	}
	if amount.TaxApplicable(d, s.Collective.Tax) {
		tax := amount.ComputeTax(d, s.Collective.Tax)
		d.TaxAmount = &tax
	} else {
		d.TaxAmount = nil
	}
	s.Details = d
	return s
}

// Minimum returns the minimum unit amount for s.
func (s State) Minimum() int64 {
	var p *amount.Pricing
	if s.Tier != nil {
		p = &s.Tier.Pricing
	}
	return amount.GetMinimumAmount(p, s.Details.Currency)
}

// Total is the amount that will be charged.
func (s State) Total() int64 {
	return amount.Total(s.Details)
}

// Steps derives the step sequence of s.
func (s State) Steps(validators map[steps.Name]steps.ValidateFunc) steps.Steps {
	return steps.Compute(steps.Input{
		DetailsComplete: s.Details.Validate(s.Minimum()) == nil,
		ProfileComplete: s.Profile.complete(),
		SummaryComplete: s.Tax != nil && s.Tax.Country != "",
		PaymentComplete: s.Payment.complete(),
		TaxApplicable:   s.Details.TaxAmount != nil,
		PaymentRequired: s.Total() > 0,
		LastVisited:     s.LastVisited,
		Submitted:       s.Submitted,
		Validators:      validators,
	})
}

func (p *Profile) complete() bool {
	switch {
	case p == nil:
		return false
	case p.Account != nil, p.Incognito:
		return true
	case p.Guest != nil:
		return validEmail(p.Guest.Email)
	}
	return false
}

func validEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == strings.TrimSpace(s)
}

func (p Payment) complete() bool {
	switch p.Kind {
	case PaymentStored:
		return p.Stored != nil
	case PaymentNewCard:
		return p.NewCard != nil && p.NewCard.Token != ""
	case PaymentExternal:
		return p.External != nil
	}
	return false
}

// Initial builds the state of a new session opened at rt. The requested step
// is not applied; see Land.
func (r Rules) Initial(c Collective, tier *Tier, id *Identity, rt Route) State {
	s := State{
		Collective:  c,
		Tier:        tier,
		Identity:    id,
		Tags:        rt.Tags,
		Step:        steps.Details,
		LastVisited: steps.Details,
		Error:       rt.Error,
		Initial:     rt,
	}

	d := amount.Details{Currency: c.Currency, Quantity: 1, Interval: rt.Interval, UnitAmount: rt.Amount}
	if rt.Quantity > 0 {
		d.Quantity = rt.Quantity
	}
	if tier != nil {
		if tier.Pricing.AmountType == amount.AmountFixed || d.UnitAmount == 0 {
			d.UnitAmount = tier.Pricing.DefaultAmount()
		}
		if tier.Interval != "" {
			d.Interval = tier.Interval
		}
	}
	if d.Interval == "" {
		d.Interval = amount.IntervalNone
	}
	s.Details = d

	switch {
	case rt.PlatformTipOption != "":
		sel := amount.TipSelection{Key: rt.PlatformTipOption}
		if rt.PlatformTip != nil {
			sel.CustomAmount = *rt.PlatformTip
		}
		s.Tip = &sel
	case rt.PlatformTip != nil:
		s.Tip = &amount.TipSelection{Key: amount.TipCustom, CustomAmount: *rt.PlatformTip}
	}

	s.Profile = profileFor(id, rt)
	if rt.Country != "" {
		s.Tax = &TaxInfo{Country: rt.Country, TaxID: rt.TaxID}
	}

	s.Payment.ChargeAttempt = rt.ChargeAttempt
	if e, ok := parseExternalKey(rt.PaymentMethod); ok {
		s.Payment.Kind, s.Payment.External = PaymentExternal, &e
	}
	if rt.OrderID != "" {
		s.Order = &PendingOrder{ID: rt.OrderID, Status: OrderPending, Stale: true}
	}
	return r.derive(s)
}

func profileFor(id *Identity, rt Route) *Profile {
	if id == nil {
		if rt.Email == "" && rt.Name == "" {
			return nil
		}
		g := &GuestInfo{Email: rt.Email, Name: rt.Name, LegalName: rt.LegalName}
		if rt.Country != "" {
			g.Location = &Location{Country: rt.Country}
		}
		return &Profile{Guest: g}
	}
	switch rt.ContributeAs {
	case ContributeAsIncognito:
		return &Profile{Incognito: true}
	case "", id.Slug:
	default:
		for _, m := range id.Memberships {
			if m.Slug == rt.ContributeAs {
				m := m
				return &Profile{Account: &m}
			}
		}
	}
	ref := id.Ref()
	return &Profile{Account: &ref}
}

// Land moves a fresh state to the step the URL asked for, or to the first
// step the user may actually be on.
func (s State) Land(requested steps.Name) State {
	if requested == "" {
		requested = steps.Details
	}
	st := s.Steps(nil).Resolve(requested)
	s.Step, s.LastVisited = st, st
	return s
}

// invalidate drops what a change of the contribution itself makes obsolete:
// the pending order and the idempotency key of the previous submission.
func invalidate(s State) State {
	s.Order = nil
	s.IdempotencyKey = ""
	return s
}

func clearStepError(s State, n steps.Name) State {
	if _, ok := s.StepErrors[n]; !ok {
		return s
	}
	errs := maps.Clone(s.StepErrors)
	delete(errs, n)
	s.StepErrors = errs
	return s
}

// DetailsChanged sets the contribution amount, quantity and interval.
type DetailsChanged struct {
	Quantity   int64
	UnitAmount int64
	Interval   amount.Interval
	// Tip, when set, is selected together with the new amount.
	Tip *amount.TipSelection
}

func (e DetailsChanged) apply(_ Rules, s State) State {
	d := s.Details
	d.Quantity, d.UnitAmount, d.Interval = e.Quantity, e.UnitAmount, e.Interval
	if s.Tier != nil {
		if s.Tier.Pricing.AmountType == amount.AmountFixed {
			d.UnitAmount = s.Tier.Pricing.Amount
		}
		if s.Tier.Interval != "" {
			d.Interval = s.Tier.Interval
		}
	}
	if d.Interval == "" {
		d.Interval = amount.IntervalNone
	}
	s.Details = d
	if e.Tip != nil {
		sel := *e.Tip
		s.Tip = &sel
	}
	return clearStepError(invalidate(s), steps.Details)
}

// TipSelected records an explicit choice in the tip menu.
type TipSelected struct {
	Selection amount.TipSelection
}

func (e TipSelected) apply(_ Rules, s State) State {
	sel := e.Selection
	s.Tip = &sel
	return invalidate(s)
}

// ProfileChanged replaces the contributing profile. A stored payment method
// belongs to the previous profile and is dropped.
type ProfileChanged struct {
	Profile Profile
}

func (e ProfileChanged) apply(_ Rules, s State) State {
	p := e.Profile
	s.Profile = &p
	if s.Payment.Kind == PaymentStored {
		s.Payment = Payment{ChargeAttempt: s.Payment.ChargeAttempt}
	}
	return clearStepError(invalidate(s), steps.Profile)
}

// TaxInfoChanged sets the Summary step data.
type TaxInfoChanged struct {
	Tax TaxInfo
}

func (e TaxInfoChanged) apply(_ Rules, s State) State {
	t := e.Tax
	t.Country = strings.ToUpper(strings.TrimSpace(t.Country))
	s.Tax = &t
	return clearStepError(invalidate(s), steps.Summary)
}

// PaymentSelected sets the payment selection. A pending order is kept and
// patched with the new method on the next attempt.
type PaymentSelected struct {
	Payment Payment
}

func (e PaymentSelected) apply(_ Rules, s State) State {
	p := e.Payment
	p.ChargeAttempt = s.Payment.ChargeAttempt
	s.Payment = p
	s.IdempotencyKey = ""
	if s.Order != nil {
		o := *s.Order
		o.Stale = true
		s.Order = &o
	}
	return clearStepError(s, steps.Payment)
}

// Navigated moves to a step that navigation rules already allowed.
type Navigated struct {
	To steps.Name
}

func (e Navigated) apply(_ Rules, s State) State {
	s = clearStepError(s, s.Step)
	s.Step = e.To
	if steps.Rank(e.To) > steps.Rank(s.LastVisited) {
		s.LastVisited = e.To
	}
	s.NavSeq++
	return s
}

// ValidationFailed records a failed step validation.
type ValidationFailed struct {
	Step    steps.Name
	Message string
}

func (e ValidationFailed) apply(_ Rules, s State) State {
	errs := maps.Clone(s.StepErrors)
	if errs == nil {
		errs = make(map[steps.Name]string, 1)
	}
	errs[e.Step] = e.Message
	s.StepErrors = errs
	return s
}

// IncognitoCreated replaces a pending incognito request by the profile the
// server created.
type IncognitoCreated struct {
	Account AccountRef
}

func (e IncognitoCreated) apply(_ Rules, s State) State {
	a := e.Account
	a.Incognito = true
	s.Profile = &Profile{Account: &a}
	return s
}

// IdentityChanged resets the session for another signed-in user, or for a
// guest when Identity is nil. Everything collected so far is discarded and
// the session restarts on the first step.
type IdentityChanged struct {
	Identity *Identity
}

func (e IdentityChanged) apply(r Rules, s State) State {
	if sameIdentity(s.Identity, e.Identity) {
		return s
	}
	rt := s.Initial
	rt.ContributeAs, rt.Email, rt.Name, rt.LegalName = "", "", "", ""
	rt.PaymentMethod, rt.OrderID, rt.Error, rt.ChargeAttempt = "", "", "", 0
	next := r.Initial(s.Collective, s.Tier, e.Identity, rt)
	next.SessionID = s.SessionID
	next.Initial = s.Initial
	next.NavSeq = s.NavSeq + 1
	return next
}

// StoredMethodsLoaded resolves a stored payment method requested by the URL.
type StoredMethodsLoaded struct {
	Key     string
	Methods []paymentmethod.Method
}

func (e StoredMethodsLoaded) apply(_ Rules, s State) State {
	if e.Key == "" || s.Payment.Kind != PaymentNone {
		return s
	}
	for _, m := range e.Methods {
		if m.ID == e.Key {
			m := m
			s.Payment.Kind, s.Payment.Stored = PaymentStored, &m
			break
		}
	}
	return s
}

// SubmitStarted marks a submission in flight.
type SubmitStarted struct {
	IdempotencyKey string
}

func (e SubmitStarted) apply(_ Rules, s State) State {
	s.Submitting = true
	s.Error = ""
	s.IdempotencyKey = e.IdempotencyKey
	return s
}

// OrderCreated records the order of the current submission.
type OrderCreated struct {
	Order PendingOrder
}

func (e OrderCreated) apply(_ Rules, s State) State {
	o := e.Order
	s.Order = &o
	return s
}

// SubmitFailed ends a submission with a message shown on the Payment step.
// Charged failures count as a charge attempt and require the pending order to
// be patched before the next one.
type SubmitFailed struct {
	Message string
	Charged bool
}

func (e SubmitFailed) apply(_ Rules, s State) State {
	s.Submitting = false
	s.Error = e.Message
	if e.Charged {
		s.Payment.ChargeAttempt++
		if s.Order != nil {
			o := *s.Order
			o.Stale = true
			o.ConfirmationSecret = ""
			s.Order = &o
		}
	}
	return s
}

// SubmitRedirected ends a submission that continues at an external provider.
type SubmitRedirected struct{}

func (SubmitRedirected) apply(_ Rules, s State) State {
	s.Submitting = false
	return s
}

// SubmitSucceeded ends the session. Every step becomes disabled.
type SubmitSucceeded struct{}

func (SubmitSucceeded) apply(_ Rules, s State) State {
	s.Submitting = false
	s.Submitted = true
	s.Error = ""
	if s.Order != nil {
		o := *s.Order
		o.Status = OrderPaid
		s.Order = &o
	}
	return s
}
