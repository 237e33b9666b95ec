// Package payment provides a sandbox payment provider for local development.
//
// Confirmation is driven by the method reference: tok_declined is declined,
// tok_3ds and PayPal require a redirect through the sandbox authorization
// page, and anything else succeeds.
package payment

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/checkout"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/paymentmethod"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/shared"
)

// Magic method references recognized by the sandbox.
const (
	TokenDeclined = "tok_declined"
	TokenRedirect = "tok_3ds"
)

// AuthorizePath is where the sandbox sends redirect-based confirmations.
const AuthorizePath = "/sandbox/authorize"

// Names of the simulated calls, as used in delay maps.
const (
	CallIntent   = "payment_intent"
	CallConfirm  = "payment_confirm"
	CallRetrieve = "payment_retrieve"
)

// DeclineMessage is reported for declined cards.
const DeclineMessage = "Your card was declined."

type declinedError struct{}

func (declinedError) Error() string { return "payment declined" }
func (declinedError) Kind() string  { return "payment_declined" }

// ErrDeclined is wrapped by the error returned for declined confirmations.
var ErrDeclined = declinedError{}

type declined struct {
	checkout.ServiceError
}

func (d *declined) Unwrap() []error { return []error{ErrDeclined, &d.ServiceError} }

// Sandbox is an in-memory checkout.PaymentProvider.
type Sandbox struct {
	baseURL string
	account string
	types   []string
	delayMS map[string]int64
	log     *zap.Logger

	mu       sync.Mutex
	payments map[string]*pending
}

type pending struct {
	status    checkout.ConfirmStatus
	returnURL string
	account   string
}

// NewSandbox returns a provider that builds authorization links under
// baseURL and advertises allowedTypes for every intent.
func NewSandbox(baseURL, account string, allowedTypes []string, delayMS map[string]int64, log *zap.Logger) *Sandbox {
	if log == nil {
		log = zap.NewNop()
	}
	if len(allowedTypes) == 0 {
		allowedTypes = []string{"card", "sepa_debit"}
	}
	return &Sandbox{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		account:  account,
		types:    allowedTypes,
		delayMS:  delayMS,
		log:      log,
		payments: make(map[string]*pending),
	}
}

// Intent reports the method types the sandbox accepts.
func (s *Sandbox) Intent(ctx context.Context, req checkout.IntentRequest) (paymentmethod.Intent, error) {
	if err := shared.Simulate(ctx, s.delayMS, CallIntent); err != nil {
		return paymentmethod.Intent{}, err
	}
	if req.Amount <= 0 {
		return paymentmethod.Intent{}, &checkout.ServiceError{Code: "BAD_REQUEST", Message: "Invalid amount"}
	}
	return paymentmethod.Intent{AllowedTypes: append([]string(nil), s.types...), Account: s.account}, nil
}

// Confirm confirms the payment identified by secret.
func (s *Sandbox) Confirm(ctx context.Context, secret string, opts checkout.ConfirmOptions) (checkout.ConfirmResult, error) {
	if err := shared.Simulate(ctx, s.delayMS, CallConfirm); err != nil {
		return checkout.ConfirmResult{}, err
	}
	if secret == "" {
		return checkout.ConfirmResult{}, &checkout.ServiceError{Code: "BAD_REQUEST", Message: "Missing client secret"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := &pending{returnURL: opts.ReturnURL, account: opts.Account}
	s.payments[secret] = p

	switch opts.MethodRef {
	case TokenDeclined:
		p.status = checkout.ConfirmFailed
		s.log.Info("sandbox payment declined")
		return checkout.ConfirmResult{}, &declined{ServiceError: checkout.ServiceError{Code: "card_declined", Message: DeclineMessage}}
	case TokenRedirect, string(paymentmethod.ServicePayPal):
		p.status = checkout.ConfirmRequiresRedirect
		q := url.Values{"secret": {secret}}
		return checkout.ConfirmResult{
			Status:      checkout.ConfirmRequiresRedirect,
			RedirectURL: s.baseURL + AuthorizePath + "?" + q.Encode(),
		}, nil
	default:
		p.status = checkout.ConfirmSucceeded
		return checkout.ConfirmResult{Status: checkout.ConfirmSucceeded}, nil
	}
}

// Retrieve reports the current status of a confirmation. Unknown secrets are
// reported as failed.
func (s *Sandbox) Retrieve(ctx context.Context, secret, account string) (checkout.ConfirmResult, error) {
	if err := shared.Simulate(ctx, s.delayMS, CallRetrieve); err != nil {
		return checkout.ConfirmResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[secret]
	if !ok || (account != "" && p.account != "" && account != p.account) {
		return checkout.ConfirmResult{Status: checkout.ConfirmFailed, Message: "Unknown payment"}, nil
	}
	res := checkout.ConfirmResult{Status: p.status}
	if p.status == checkout.ConfirmFailed {
		res.Message = "The payment was not authorized"
	}
	return res, nil
}

// Authorize resolves a redirect-based confirmation and returns the URL the
// payer goes back to.
func (s *Sandbox) Authorize(secret string, approve bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[secret]
	if !ok || p.status != checkout.ConfirmRequiresRedirect {
		return "", &checkout.ServiceError{Code: "NOT_FOUND", Message: "No payment is waiting for authorization"}
	}
	status := "succeeded"
	p.status = checkout.ConfirmSucceeded
	if !approve {
		status = "failed"
		p.status = checkout.ConfirmFailed
	}
	s.log.Info("sandbox payment authorized", zap.Bool("approved", approve))

	u, err := url.Parse(p.returnURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("payment_intent_client_secret", secret)
	q.Set("redirect_status", status)
	if p.account != "" {
		q.Set("account", p.account)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
