package checkout

import (
	"context"
	"fmt"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/amount"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/paymentmethod"
)

// OrderStatus is the backend status of an order.
type OrderStatus string

const (
	OrderPending OrderStatus = "PENDING"
	OrderPaid    OrderStatus = "PAID"
	OrderActive  OrderStatus = "ACTIVE"
	OrderError   OrderStatus = "ERROR"
)

// Settled reports whether the order needs no further payment action.
func (s OrderStatus) Settled() bool {
	return s == OrderPaid || s == OrderActive
}

// OrderRef identifies an order.
type OrderRef struct {
	ID string `json:"id"`
}

// PaymentMethodInput is the payment method sent with an order.
type PaymentMethodInput struct {
	ID      string                `json:"id,omitempty"`
	Service paymentmethod.Service `json:"service,omitempty"`
	Type    paymentmethod.Type    `json:"type,omitempty"`
	Token   string                `json:"token,omitempty"`
	Save    bool                  `json:"isSavedForLater,omitempty"`
}

// OrderInput is what Submit sends to the order service.
type OrderInput struct {
	IdempotencyKey    string              `json:"idempotencyKey"`
	Quantity          int64               `json:"quantity"`
	Amount            int64               `json:"amount"`
	Currency          string              `json:"currency"`
	Frequency         amount.Interval     `json:"frequency"`
	PlatformTipAmount int64               `json:"platformTipAmount"`
	TaxAmount         int64               `json:"taxAmount,omitempty"`
	Tax               *TaxInfo            `json:"tax,omitempty"`
	Total             int64               `json:"total"`
	FromAccount       *AccountRef         `json:"fromAccount,omitempty"`
	Guest             *GuestInfo          `json:"guestInfo,omitempty"`
	ToAccount         AccountRef          `json:"toAccount"`
	Tier              *TierRef            `json:"tier,omitempty"`
	PaymentMethod     *PaymentMethodInput `json:"paymentMethod,omitempty"`
	Tags              []string            `json:"tags,omitempty"`
}

// OrderPatch changes a pending order before a retry.
type OrderPatch struct {
	PaymentMethod *PaymentMethodInput `json:"paymentMethod,omitempty"`
}

// Order is the backend's view of an order. It carries enough of the original
// input to rebuild a checkout URL after a failed redirect.
type Order struct {
	ID            string              `json:"id"`
	Status        OrderStatus         `json:"status"`
	Quantity      int64               `json:"quantity"`
	Amount        int64               `json:"amount"`
	Currency      string              `json:"currency"`
	Frequency     amount.Interval     `json:"frequency"`
	PlatformTip   int64               `json:"platformTipAmount"`
	Tax           *TaxInfo            `json:"tax,omitempty"`
	Total         int64               `json:"total"`
	FromAccount   AccountRef          `json:"fromAccount"`
	Guest         *GuestInfo          `json:"guestInfo,omitempty"`
	ToAccount     AccountRef          `json:"toAccount"`
	Tier          *TierRef            `json:"tier,omitempty"`
	PaymentMethod *PaymentMethodInput `json:"paymentMethod,omitempty"`
	Tags          []string            `json:"tags,omitempty"`
}

// OrderResult is returned by the mutating order service calls.
type OrderResult struct {
	Order Order
	// ConfirmationSecret is set when the provider must confirm the payment.
	ConfirmationSecret string
	// GuestToken is set for guest orders.
	GuestToken string
	// ProviderAccount is the provider sub-account the payment was created on.
	ProviderAccount string
}

// ServiceError is a structured error from a collaborator carrying a
// human-readable message.
type ServiceError struct {
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// OrderService is the backend order API.
type OrderService interface {
	CreateOrder(ctx context.Context, in OrderInput) (OrderResult, error)
	ConfirmOrder(ctx context.Context, ref OrderRef, guestToken string) (OrderResult, error)
	UpdateOrder(ctx context.Context, ref OrderRef, patch OrderPatch) (OrderResult, error)
	GetOrder(ctx context.Context, ref OrderRef, guestToken string) (Order, error)
}

// ConfirmStatus is the provider's verdict on a payment.
type ConfirmStatus string

const (
	ConfirmSucceeded        ConfirmStatus = "succeeded"
	ConfirmRequiresRedirect ConfirmStatus = "requires_redirect"
	ConfirmFailed           ConfirmStatus = "failed"
)

// ConfirmOptions accompany a confirmation request.
type ConfirmOptions struct {
	ReturnURL string
	MethodRef string
	Account   string
}

// ConfirmResult is an immediate provider answer.
type ConfirmResult struct {
	Status      ConfirmStatus
	RedirectURL string
	Message     string
}

// IntentRequest asks the provider what it can accept for a payment.
type IntentRequest struct {
	Amount       int64
	Currency     string
	CollectiveID string
}

// PaymentProvider is the external payment confirmation provider. Declines
// are returned as errors from Confirm.
type PaymentProvider interface {
	Intent(ctx context.Context, req IntentRequest) (paymentmethod.Intent, error)
	Confirm(ctx context.Context, secret string, opts ConfirmOptions) (ConfirmResult, error)
	// Retrieve re-queries a confirmation by the client secret found in a
	// redirect-return URL.
	Retrieve(ctx context.Context, secret, account string) (ConfirmResult, error)
}

// Directory resolves accounts, tiers and stored payment methods.
type Directory interface {
	Collective(ctx context.Context, slug string) (Collective, error)
	Tier(ctx context.Context, collectiveSlug, tierID string) (Tier, error)
	PaymentMethods(ctx context.Context, accountID string) ([]paymentmethod.Method, error)
	CreateIncognitoProfile(ctx context.Context, identity Identity) (AccountRef, error)
}

// IdentityRefresher invalidates cached data about the signed-in user after a
// contribution changed their memberships.
type IdentityRefresher interface {
	Refetch(ctx context.Context, accountID string) error
}
