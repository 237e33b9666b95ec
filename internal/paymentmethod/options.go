// Package paymentmethod turns the payer's stored payment methods into the
// ordered, annotated option list shown on the Payment step.
package paymentmethod

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/amount"
)

// Service is the system that holds a payment method.
type Service string

const (
	ServiceStripe         Service = "STRIPE"
	ServicePayPal         Service = "PAYPAL"
	ServiceOpenCollective Service = "OPENCOLLECTIVE"
)

// Type is the kind of instrument.
type Type string

const (
	TypeCreditCard    Type = "CREDITCARD"
	TypeSepaDebit     Type = "SEPA_DEBIT"
	TypeUSBankAccount Type = "US_BANK_ACCOUNT"
	TypeBacsDebit     Type = "BACS_DEBIT"
	TypeCollective    Type = "COLLECTIVE"
	TypeGiftCard      Type = "GIFTCARD"
	TypePrepaid       Type = "PREPAID"
	TypePayPal        Type = "PAYPAL"
)

// Method is a stored payment method.
type Method struct {
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Service  Service `json:"service" yaml:"service"`
	Type     Type    `json:"type" yaml:"type"`
	Currency string  `json:"currency,omitempty" yaml:"currency"`
	// Balance is set for balance-based methods only.
	Balance    *int64     `json:"balance,omitempty" yaml:"balance"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty" yaml:"expiry_date"`
	Brand      string     `json:"brand,omitempty" yaml:"brand"`
	Last4      string     `json:"last4,omitempty" yaml:"last4"`
	// ProviderAccount is the provider sub-account the method was created
	// against. Empty means no affinity.
	ProviderAccount string `json:"providerAccount,omitempty" yaml:"provider_account"`
	Priority        int    `json:"priority" yaml:"priority"`
}

// IsBalanceBased reports whether availability depends on Balance.
func (m Method) IsBalanceBased() bool {
	switch m.Type {
	case TypeCollective, TypeGiftCard, TypePrepaid:
		return true
	}
	return false
}

// IsExpired reports whether the method's expiry is before now.
func (m Method) IsExpired(now time.Time) bool {
	return m.ExpiryDate != nil && m.ExpiryDate.Before(now)
}

// providerType is the type name the payment provider declares for m. Only
// provider-hosted methods have one.
func (m Method) providerType() (string, bool) {
	if m.Service != ServiceStripe {
		return "", false
	}
	return strings.ToLower(string(m.Type)), true
}

// typeSynonyms lists method types implied by a declared capability.
var typeSynonyms = map[string][]string{
	"card": {"creditcard"},
}

// Intent is what the provider advertises for the current payment intent.
type Intent struct {
	AllowedTypes []string `json:"allowedTypes"`
	Account      string   `json:"account,omitempty"`
}

func (in *Intent) allows(providerType string) bool {
	for _, t := range in.AllowedTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == providerType {
			return true
		}
		if slices.Contains(typeSynonyms[t], providerType) {
			return true
		}
	}
	return false
}

// Option is one selectable entry on the Payment step.
type Option struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Subtitle       string `json:"subtitle,omitempty"`
	Icon           string `json:"icon"`
	Disabled       bool   `json:"disabled"`
	DisabledReason string `json:"disabledReason,omitempty"`
	PaymentMethod  Method `json:"paymentMethod"`
}

// Input is everything eligibility depends on besides the methods.
type Input struct {
	Total    int64
	Currency string
	// Intent is nil until a payment intent exists; provider filters are
	// skipped without one.
	Intent *Intent
	Now    time.Time
}

// Build maps, de-duplicates, filters and sorts methods into options. The
// result may be empty.
func Build(methods []Method, in Input) []Option {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	seen := make(map[string]struct{}, len(methods))
	out := make([]Option, 0, len(methods))
	for _, m := range methods {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}

		if in.Intent != nil {
			if pt, ok := m.providerType(); ok && !in.Intent.allows(pt) {
				continue
			}
			if m.ProviderAccount != "" && in.Intent.Account != "" && m.ProviderAccount != in.Intent.Account {
				continue
			}
		}

		out = append(out, toOption(m, in))
	}

	slices.SortStableFunc(out, func(a, b Option) int {
		if a.Disabled != b.Disabled {
			if a.Disabled {
				return 1
			}
			return -1
		}
		if a.PaymentMethod.Priority != b.PaymentMethod.Priority {
			return a.PaymentMethod.Priority - b.PaymentMethod.Priority
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func toOption(m Method, in Input) Option {
	opt := Option{
		ID:            m.ID,
		Title:         title(m),
		Icon:          icon(m),
		PaymentMethod: m,
	}

	switch {
	case m.ExpiryDate != nil:
		opt.Subtitle = fmt.Sprintf("Expires %02d/%d", int(m.ExpiryDate.Month()), m.ExpiryDate.Year())
	case m.Balance != nil:
		opt.Subtitle = "Balance: " + amount.Format(*m.Balance, m.Currency)
	}

	switch {
	case m.IsExpired(in.Now):
		opt.Disabled, opt.DisabledReason = true, "This payment method has expired"
	case m.IsBalanceBased() && m.Currency != "" && in.Currency != "" && !strings.EqualFold(m.Currency, in.Currency):
		opt.Disabled, opt.DisabledReason = true, fmt.Sprintf("Only usable for contributions in %s", strings.ToUpper(m.Currency))
	case m.IsBalanceBased() && (m.Balance == nil || *m.Balance < in.Total):
		opt.Disabled, opt.DisabledReason = true, "Insufficient balance"
	}
	return opt
}

func title(m Method) string {
	switch {
	case m.Type == TypeCreditCard && m.Last4 != "":
		brand := m.Brand
		if brand == "" {
			brand = "Card"
		}
		return fmt.Sprintf("%s **** %s", brand, m.Last4)
	case m.Name != "":
		return m.Name
	default:
		return strings.ReplaceAll(strings.ToLower(string(m.Type)), "_", " ")
	}
}

func icon(m Method) string {
	switch m.Type {
	case TypeCreditCard:
		if m.Brand != "" {
			return strings.ToLower(m.Brand)
		}
		return "credit-card"
	case TypeGiftCard, TypePrepaid:
		return "gift-card"
	case TypeCollective:
		return "collective"
	case TypePayPal:
		return "paypal"
	default:
		return "bank"
	}
}
