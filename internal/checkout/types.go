package checkout

import (
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/amount"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/paymentmethod"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/steps"
)

// AccountRef is a reference to an account on the platform.
type AccountRef struct {
	ID      string `json:"id,omitempty" yaml:"id"`
	Slug    string `json:"slug,omitempty" yaml:"slug"`
	Name    string `json:"name,omitempty" yaml:"name"`
	Email   string `json:"email,omitempty" yaml:"email"`
	IsGuest bool   `json:"isGuest,omitempty" yaml:"-"`
	// Incognito marks the anonymous profile of a signed-in user.
	Incognito bool `json:"isIncognito,omitempty" yaml:"-"`
}

// TierRef is a reference to a tier.
type TierRef struct {
	ID   string `json:"id"`
	Slug string `json:"slug,omitempty"`
}

// Collective is the account receiving the contribution.
type Collective struct {
	ID                 string          `json:"id" yaml:"id"`
	Slug               string          `json:"slug" yaml:"slug"`
	Name               string          `json:"name" yaml:"name"`
	Currency           string          `json:"currency" yaml:"currency"`
	PlatformTipEnabled bool            `json:"platformTipEnabled" yaml:"platform_tip_enabled"`
	Tax                *amount.TaxRule `json:"tax,omitempty" yaml:"tax"`
	// ProviderAccount is the host's payment provider sub-account.
	ProviderAccount string `json:"-" yaml:"provider_account"`
}

// Ref returns a reference to c.
func (c Collective) Ref() AccountRef {
	return AccountRef{ID: c.ID, Slug: c.Slug, Name: c.Name}
}

// Tier is a contribution offer of a collective.
type Tier struct {
	ID       string          `json:"id" yaml:"id"`
	Slug     string          `json:"slug" yaml:"slug"`
	Name     string          `json:"name" yaml:"name"`
	Pricing  amount.Pricing  `json:"pricing" yaml:"pricing"`
	Interval amount.Interval `json:"interval,omitempty" yaml:"interval"`
	// RedirectURL replaces the default success page when set.
	RedirectURL string `json:"redirectUrl,omitempty" yaml:"redirect_url"`
}

// Identity is the signed-in user.
type Identity struct {
	AccountID string `json:"accountId" yaml:"account_id"`
	Slug      string `json:"slug" yaml:"slug"`
	Name      string `json:"name" yaml:"name"`
	Email     string `json:"email" yaml:"email"`
	// Memberships are the accounts the user may contribute as.
	Memberships []AccountRef `json:"memberships,omitempty" yaml:"memberships"`
}

// Ref returns the user's own account.
func (id Identity) Ref() AccountRef {
	return AccountRef{ID: id.AccountID, Slug: id.Slug, Name: id.Name}
}

// sameIdentity compares the account behind two possibly nil identities.
func sameIdentity(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AccountID == b.AccountID
}

// Location is a postal location.
type Location struct {
	Country string `json:"country,omitempty"`
	Address string `json:"address,omitempty"`
}

// GuestInfo identifies a payer without an account.
type GuestInfo struct {
	Name      string    `json:"name,omitempty"`
	LegalName string    `json:"legalName,omitempty"`
	Email     string    `json:"email"`
	Location  *Location `json:"location,omitempty"`
	Captcha   string    `json:"-"`
}

// Profile is who contributes. Exactly one of Account and Guest is set.
type Profile struct {
	Account *AccountRef `json:"account,omitempty"`
	Guest   *GuestInfo  `json:"guest,omitempty"`
	// Incognito asks for an anonymous profile of the signed-in user. It is
	// replaced by Account once the profile exists server-side.
	Incognito bool `json:"incognito,omitempty"`
}

// TaxInfo is collected on the Summary step.
type TaxInfo struct {
	Country string `json:"country"`
	TaxID   string `json:"taxId,omitempty"`
}

// PaymentKind discriminates Payment.
type PaymentKind string

const (
	PaymentNone     PaymentKind = ""
	PaymentStored   PaymentKind = "stored"
	PaymentNewCard  PaymentKind = "new_card"
	PaymentExternal PaymentKind = "external"
)

// NewCard is a card entered on the Payment step and tokenized by the
// provider. It is never persisted to the URL.
type NewCard struct {
	Token string `json:"-"`
	Brand string `json:"brand,omitempty"`
	Last4 string `json:"last4,omitempty"`
	Save  bool   `json:"save"`
}

// External is a redirect-based payment service.
type External struct {
	Service paymentmethod.Service `json:"service"`
	Type    paymentmethod.Type    `json:"type"`
}

// Payment is the Payment step state. At most one of Stored, NewCard and
// External is set, as Kind says.
type Payment struct {
	Kind     PaymentKind           `json:"kind,omitempty"`
	Stored   *paymentmethod.Method `json:"stored,omitempty"`
	NewCard  *NewCard              `json:"newCard,omitempty"`
	External *External             `json:"external,omitempty"`
	// ChargeAttempt counts failed charges of the current order.
	ChargeAttempt int `json:"chargeAttempt"`
}

// Key is the selection key encoded in the URL. New cards have none.
func (p Payment) Key() string {
	switch p.Kind {
	case PaymentStored:
		if p.Stored != nil {
			return p.Stored.ID
		}
	case PaymentExternal:
		if p.External != nil {
			return externalKey(p.External.Service)
		}
	}
	return ""
}

// input converts the selection into the order service representation.
func (p Payment) input() *PaymentMethodInput {
	switch p.Kind {
	case PaymentStored:
		return &PaymentMethodInput{ID: p.Stored.ID, Service: p.Stored.Service, Type: p.Stored.Type}
	case PaymentNewCard:
		return &PaymentMethodInput{Service: paymentmethod.ServiceStripe, Type: paymentmethod.TypeCreditCard, Token: p.NewCard.Token, Save: p.NewCard.Save}
	case PaymentExternal:
		return &PaymentMethodInput{Service: p.External.Service, Type: p.External.Type}
	}
	return nil
}

// PendingOrder is the order created by a previous submission of this session.
type PendingOrder struct {
	ID                 string      `json:"id"`
	Status             OrderStatus `json:"status"`
	ConfirmationSecret string      `json:"-"`
	GuestToken         string      `json:"-"`
	ProviderAccount    string      `json:"-"`
	// Stale is set when the payment selection changed after the order was
	// created, so the order must be patched before the next attempt.
	Stale bool `json:"-"`
}

// State is the whole wizard state of one checkout session.
type State struct {
	SessionID  string               `json:"sessionId"`
	Collective Collective           `json:"collective"`
	Tier       *Tier                `json:"tier,omitempty"`
	Identity   *Identity            `json:"identity,omitempty"`
	Details    amount.Details       `json:"details"`
	Tip        *amount.TipSelection `json:"tip,omitempty"`
	Profile    *Profile             `json:"profile,omitempty"`
	Tax        *TaxInfo             `json:"tax,omitempty"`
	Payment    Payment              `json:"payment"`
	Tags       []string             `json:"tags,omitempty"`

	Step        steps.Name `json:"step"`
	LastVisited steps.Name `json:"lastVisited"`
	// NavSeq increases on every navigation and reset. Asynchronous step
	// validation compares it to discard results that arrive late.
	NavSeq uint64 `json:"-"`

	Submitting     bool                  `json:"submitting"`
	Submitted      bool                  `json:"submitted"`
	Order          *PendingOrder         `json:"order,omitempty"`
	IdempotencyKey string                `json:"-"`
	Error          string                `json:"error,omitempty"`
	StepErrors     map[steps.Name]string `json:"stepErrors,omitempty"`

	// Initial is the route the session was opened with. Identity changes
	// rebuild the state from it.
	Initial Route `json:"-"`
}

// OutcomeKind is the shape of a Submit or Resume result.
type OutcomeKind string

const (
	OutcomeSuccess  OutcomeKind = "success"
	OutcomeRedirect OutcomeKind = "redirect"
)

// Outcome tells the caller where to send the browser.
type Outcome struct {
	Kind        OutcomeKind `json:"kind"`
	RedirectURL string      `json:"redirect"`
	OrderID     string      `json:"orderId,omitempty"`
	// External is set when RedirectURL leaves the platform.
	External bool `json:"external,omitempty"`
}
