// Package model defines the request and response payloads used by the API.
// It keeps transport-level types in one place for reuse.
package model

import (
	"strings"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/amount"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/checkout"
)

// StartRequest opens a checkout session from a contribution page URL.
type StartRequest struct {
	URL     string `json:"url"`               // "/webpack/donate?amount=1000"
	Account string `json:"account,omitempty"` // signed-in user slug, empty for guests
}

// DetailsRequest updates the contribution on the details step.
type DetailsRequest struct {
	Quantity int64       `json:"quantity"`
	Amount   int64       `json:"amount"`
	Interval string      `json:"interval,omitempty"`
	Tip      *TipRequest `json:"platformTip,omitempty"`
}

// Event returns the details change carried by r.
func (r DetailsRequest) Event() checkout.DetailsChanged {
	interval := amount.Interval(r.Interval)
	if interval == "" {
		interval = amount.IntervalNone
	}
	e := checkout.DetailsChanged{Quantity: r.Quantity, UnitAmount: r.Amount, Interval: interval}
	if r.Tip != nil {
		sel := r.Tip.Selection()
		e.Tip = &sel
	}
	return e
}

// TipRequest selects a platform tip option.
type TipRequest struct {
	Option string `json:"option"`           // "10%", "none", "custom", ...
	Amount int64  `json:"amount,omitempty"` // custom only
}

// Selection returns the tip selection carried by r.
func (r TipRequest) Selection() amount.TipSelection {
	return amount.TipSelection{Key: amount.TipKey(r.Option), CustomAmount: r.Amount}
}

// ProfileRequest picks who contributes. Exactly one of the fields is set.
type ProfileRequest struct {
	Account   *AccountRequest `json:"account,omitempty"`
	Guest     *GuestRequest   `json:"guest,omitempty"`
	Incognito bool            `json:"incognito,omitempty"`
}

// AccountRequest names one of the signed-in user's accounts.
type AccountRequest struct {
	ID   string `json:"id,omitempty"`
	Slug string `json:"slug,omitempty"`
}

// GuestRequest carries guest contributor details.
type GuestRequest struct {
	Name      string `json:"name,omitempty"`
	LegalName string `json:"legalName,omitempty"`
	Email     string `json:"email"`
	Country   string `json:"country,omitempty"`
	Address   string `json:"address,omitempty"`
	Captcha   string `json:"captcha,omitempty"`
}

// Profile returns the checkout profile carried by r.
func (r ProfileRequest) Profile() checkout.Profile {
	p := checkout.Profile{Incognito: r.Incognito}
	if r.Account != nil {
		p.Account = &checkout.AccountRef{ID: r.Account.ID, Slug: r.Account.Slug}
	}
	if g := r.Guest; g != nil {
		info := &checkout.GuestInfo{Name: g.Name, LegalName: g.LegalName, Email: g.Email, Captcha: g.Captcha}
		if g.Country != "" || g.Address != "" {
			info.Location = &checkout.Location{Country: strings.ToUpper(g.Country), Address: g.Address}
		}
		p.Guest = info
	}
	return p
}

// TaxRequest carries tax details from the summary step.
type TaxRequest struct {
	Country string `json:"country"`
	TaxID   string `json:"taxId,omitempty"`
}

// Info returns the tax info carried by r.
func (r TaxRequest) Info() checkout.TaxInfo {
	return checkout.TaxInfo{Country: r.Country, TaxID: r.TaxID}
}

// PaymentRequest selects a payment method by option key. New cards carry the
// tokenized card.
type PaymentRequest struct {
	Key  string       `json:"key"` // stored method id, "new_card" or "external-PAYPAL"
	Card *CardRequest `json:"card,omitempty"`
}

// CardRequest is a card tokenized by the browser.
type CardRequest struct {
	Token string `json:"token"`
	Brand string `json:"brand,omitempty"`
	Last4 string `json:"last4,omitempty"`
	Save  bool   `json:"save,omitempty"`
}

// Selection returns the payment selection carried by r.
func (r PaymentRequest) Selection() checkout.PaymentSelection {
	sel := checkout.PaymentSelection{Key: r.Key}
	if c := r.Card; c != nil {
		sel.Card = &checkout.NewCard{Token: c.Token, Brand: c.Brand, Last4: c.Last4, Save: c.Save}
	}
	return sel
}

// IdentityRequest reports a sign-in, sign-out or account switch.
type IdentityRequest struct {
	Account string `json:"account,omitempty"` // empty signs out
}

// SubmitResponse is the result of a submission.
type SubmitResponse struct {
	Status   string        `json:"status"` // "ok" | "redirect" | "error"
	OrderID  string        `json:"orderId,omitempty"`
	Redirect string        `json:"redirect,omitempty"`
	External bool          `json:"external,omitempty"`
	Error    *ErrorPayload `json:"error,omitempty"`
}

// FromOutcome builds the response for a successful submission.
func FromOutcome(o checkout.Outcome) SubmitResponse {
	status := "ok"
	if o.Kind == checkout.OutcomeRedirect {
		status = "redirect"
	}
	return SubmitResponse{Status: status, OrderID: o.OrderID, Redirect: o.RedirectURL, External: o.External}
}

// ErrorResponse wraps an error payload.
type ErrorResponse struct {
	Status string        `json:"status"` // always "error"
	Error  *ErrorPayload `json:"error"`
}

// ErrorPayload describes an error response.
type ErrorPayload struct {
	Kind     string `json:"kind"`               // "validation", "confirmation", "busy", ...
	Message  string `json:"message,omitempty"`  // human-readable, shown above the step
	Step     string `json:"step,omitempty"`     // step owning a validation error
	Field    string `json:"field,omitempty"`    // field owning a validation error
	Redirect string `json:"redirect,omitempty"` // recovery URL after a failed redirect
}

// HealthResponse reports server load.
type HealthResponse struct {
	Status        string `json:"status"`
	Sessions      int    `json:"sessions"`
	InFlightCalls int64  `json:"inFlightCalls"`
	TotalCalls    int64  `json:"totalCalls"`
}
