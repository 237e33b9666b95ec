// Package order provides an in-memory order service for sandbox deployments
// and local development. It mirrors the backend's contract: orders are
// created pending with a confirmation secret, guest orders get a guest token
// that every later read must present, and a repeated idempotency key returns
// the order it first created.
package order

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/checkout"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/paymentmethod"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/shared"
)

// Names of the simulated calls, as used in delay maps.
const (
	CallCreate  = "create_order"
	CallConfirm = "confirm_order"
	CallUpdate  = "update_order"
	CallGet     = "get_order"
)

// Sandbox is an in-memory checkout.OrderService.
type Sandbox struct {
	delayMS map[string]int64
	account string
	log     *zap.Logger

	mu          sync.Mutex
	orders      map[string]*record
	idempotency map[string]string
	seq         int
}

type record struct {
	order      checkout.Order
	guestToken string
	secret     string
}

// NewSandbox returns an empty sandbox. delayMS maps call names to simulated
// latency in milliseconds. providerAccount is reported as the payment
// provider sub-account of every order.
func NewSandbox(delayMS map[string]int64, providerAccount string, log *zap.Logger) *Sandbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sandbox{
		delayMS:     delayMS,
		account:     providerAccount,
		log:         log,
		orders:      make(map[string]*record),
		idempotency: make(map[string]string),
	}
}

// CreateOrder records a new order. Contributions with a zero total, or paid
// from a balance-based method, are settled immediately and carry no
// confirmation secret.
func (s *Sandbox) CreateOrder(ctx context.Context, in checkout.OrderInput) (checkout.OrderResult, error) {
	if err := shared.Simulate(ctx, s.delayMS, CallCreate); err != nil {
		return checkout.OrderResult{}, err
	}
	if err := validate(in); err != nil {
		return checkout.OrderResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.idempotency[in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		s.log.Debug("idempotent create", zap.String("order", id))
		return s.result(s.orders[id]), nil
	}

	s.seq++
	o := checkout.Order{
		ID:            fmt.Sprintf("ord_%d_%s", s.seq, uuid.NewString()[:8]),
		Status:        checkout.OrderPending,
		Quantity:      in.Quantity,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Frequency:     in.Frequency,
		PlatformTip:   in.PlatformTipAmount,
		Tax:           in.Tax,
		Total:         in.Total,
		ToAccount:     in.ToAccount,
		Tier:          in.Tier,
		PaymentMethod: in.PaymentMethod,
		Tags:          in.Tags,
	}
	rec := &record{}
	switch {
	case in.FromAccount != nil:
		o.FromAccount = *in.FromAccount
	case in.Guest != nil:
		o.FromAccount = checkout.AccountRef{IsGuest: true, Email: in.Guest.Email, Name: in.Guest.Name}
		g := *in.Guest
		g.Captcha = ""
		o.Guest = &g
		rec.guestToken = "gt_" + uuid.NewString()
	}

	if in.Total == 0 || settlesImmediately(in.PaymentMethod) {
		o.Status = checkout.OrderPaid
	} else {
		rec.secret = newSecret(o.ID)
	}
	if o.Frequency.IsRecurring() && o.Status == checkout.OrderPaid {
		o.Status = checkout.OrderActive
	}
	rec.order = o

	s.orders[o.ID] = rec
	if in.IdempotencyKey != "" {
		s.idempotency[in.IdempotencyKey] = o.ID
	}
	s.log.Info("sandbox order created", zap.String("order", o.ID), zap.Int64("total", o.Total), zap.String("status", string(o.Status)))
	return s.result(rec), nil
}

func validate(in checkout.OrderInput) error {
	switch {
	case in.ToAccount.Slug == "" && in.ToAccount.ID == "":
		return &checkout.ServiceError{Code: "BAD_REQUEST", Message: "Missing collective"}
	case in.FromAccount == nil && in.Guest == nil:
		return &checkout.ServiceError{Code: "BAD_REQUEST", Message: "Missing contributor profile"}
	case in.Guest != nil && strings.TrimSpace(in.Guest.Email) == "":
		return &checkout.ServiceError{Code: "BAD_REQUEST", Message: "An email is required for guest contributions"}
	case in.Total < 0 || in.Quantity < 1:
		return &checkout.ServiceError{Code: "BAD_REQUEST", Message: "Invalid amount"}
	case in.Total > 0 && in.PaymentMethod == nil:
		return &checkout.ServiceError{Code: "BAD_REQUEST", Message: "A payment method is required"}
	}
	return nil
}

func settlesImmediately(pm *checkout.PaymentMethodInput) bool {
	return pm != nil && pm.Service == paymentmethod.ServiceOpenCollective
}

func newSecret(orderID string) string {
	return "pi_" + orderID + "_secret_" + uuid.NewString()[:12]
}

func (s *Sandbox) result(rec *record) checkout.OrderResult {
	return checkout.OrderResult{
		Order:              rec.order,
		ConfirmationSecret: rec.secret,
		GuestToken:         rec.guestToken,
		ProviderAccount:    s.account,
	}
}

// lookup returns the record for ref, checking the guest token of guest
// orders. Callers hold mu.
func (s *Sandbox) lookup(ref checkout.OrderRef, guestToken string) (*record, error) {
	rec, ok := s.orders[ref.ID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", ref.ID, apperr.ErrNotFound)
	}
	if rec.guestToken != "" && rec.guestToken != guestToken {
		return nil, &checkout.ServiceError{Code: "FORBIDDEN", Message: "This order can only be accessed with its guest token"}
	}
	return rec, nil
}

// ConfirmOrder marks a pending order paid.
func (s *Sandbox) ConfirmOrder(ctx context.Context, ref checkout.OrderRef, guestToken string) (checkout.OrderResult, error) {
	if err := shared.Simulate(ctx, s.delayMS, CallConfirm); err != nil {
		return checkout.OrderResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(ref, guestToken)
	if err != nil {
		return checkout.OrderResult{}, err
	}
	if rec.order.Status == checkout.OrderPending {
		rec.order.Status = checkout.OrderPaid
		if rec.order.Frequency.IsRecurring() {
			rec.order.Status = checkout.OrderActive
		}
		rec.secret = ""
	}
	return s.result(rec), nil
}

// UpdateOrder swaps the payment method of a pending order and issues a new
// confirmation secret.
func (s *Sandbox) UpdateOrder(ctx context.Context, ref checkout.OrderRef, patch checkout.OrderPatch) (checkout.OrderResult, error) {
	if err := shared.Simulate(ctx, s.delayMS, CallUpdate); err != nil {
		return checkout.OrderResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.orders[ref.ID]
	if !ok {
		return checkout.OrderResult{}, fmt.Errorf("order %s: %w", ref.ID, apperr.ErrNotFound)
	}
	if rec.order.Status.Settled() {
		return checkout.OrderResult{}, &checkout.ServiceError{Code: "BAD_REQUEST", Message: "This order is already paid"}
	}
	if patch.PaymentMethod != nil {
		rec.order.PaymentMethod = patch.PaymentMethod
	}
	if settlesImmediately(rec.order.PaymentMethod) {
		rec.order.Status = checkout.OrderPaid
		rec.secret = ""
	} else {
		rec.secret = newSecret(rec.order.ID)
	}
	return s.result(rec), nil
}

// GetOrder returns an order.
func (s *Sandbox) GetOrder(ctx context.Context, ref checkout.OrderRef, guestToken string) (checkout.Order, error) {
	if err := shared.Simulate(ctx, s.delayMS, CallGet); err != nil {
		return checkout.Order{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(ref, guestToken)
	if err != nil {
		return checkout.Order{}, err
	}
	return rec.order, nil
}
