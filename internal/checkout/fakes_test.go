package checkout

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/amount"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/guest"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/paymentmethod"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/tracker"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/steps"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/storage/memory"
)

const testBaseURL = "https://checkout.test"

type fakeOrders struct {
	mu      sync.Mutex
	orders  map[string]Order
	tokens  map[string]string
	secrets map[string]string
	seq     int

	creates  int
	updates  int
	confirms int

	createErr  error
	confirmErr error
	lastInput  OrderInput
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[string]Order{}, tokens: map[string]string{}, secrets: map[string]string{}}
}

func (f *fakeOrders) CreateOrder(_ context.Context, in OrderInput) (OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.lastInput = in
	if f.createErr != nil {
		return OrderResult{}, f.createErr
	}
	f.seq++
	o := Order{
		ID:            fmt.Sprintf("o-%d", f.seq),
		Status:        OrderPending,
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
	res := OrderResult{ProviderAccount: "acct_host"}
	switch {
	case in.Guest != nil:
		o.FromAccount = AccountRef{IsGuest: true, Email: in.Guest.Email, Name: in.Guest.Name}
		g := *in.Guest
		o.Guest = &g
		res.GuestToken = "gt_" + o.ID
		f.tokens[o.ID] = res.GuestToken
	case in.FromAccount != nil:
		o.FromAccount = *in.FromAccount
	}
	if in.Total == 0 {
		o.Status = OrderPaid
	} else {
		res.ConfirmationSecret = "sec_" + o.ID
		f.secrets[o.ID] = res.ConfirmationSecret
	}
	f.orders[o.ID] = o
	res.Order = o
	return res, nil
}

func (f *fakeOrders) ConfirmOrder(_ context.Context, ref OrderRef, guestToken string) (OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms++
	if f.confirmErr != nil {
		return OrderResult{}, f.confirmErr
	}
	o, ok := f.orders[ref.ID]
	if !ok {
		return OrderResult{}, apperr.ErrNotFound
	}
	if want := f.tokens[ref.ID]; want != "" && want != guestToken {
		return OrderResult{}, &ServiceError{Code: "FORBIDDEN", Message: "guest token mismatch"}
	}
	o.Status = OrderPaid
	f.orders[ref.ID] = o
	return OrderResult{Order: o}, nil
}

func (f *fakeOrders) UpdateOrder(_ context.Context, ref OrderRef, patch OrderPatch) (OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	o, ok := f.orders[ref.ID]
	if !ok {
		return OrderResult{}, apperr.ErrNotFound
	}
	o.PaymentMethod = patch.PaymentMethod
	f.orders[ref.ID] = o
	secret := fmt.Sprintf("sec_%s_%d", o.ID, f.updates)
	f.secrets[o.ID] = secret
	return OrderResult{Order: o, ConfirmationSecret: secret, ProviderAccount: "acct_host"}, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, ref OrderRef, guestToken string) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[ref.ID]
	if !ok {
		return Order{}, apperr.ErrNotFound
	}
	if want := f.tokens[ref.ID]; want != "" && want != guestToken {
		return Order{}, &ServiceError{Code: "FORBIDDEN", Message: "guest token mismatch"}
	}
	return o, nil
}

func (f *fakeOrders) counts() (creates, updates, confirms int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates, f.confirms
}

type fakeProvider struct {
	mu       sync.Mutex
	confirms []ConfirmOptions
	retrieve map[string]ConfirmResult

	// onConfirm runs at the start of every Confirm.
	onConfirm func(ctx context.Context, secret string, opts ConfirmOptions)
	intentErr error
}

func (p *fakeProvider) Intent(context.Context, IntentRequest) (paymentmethod.Intent, error) {
	if p.intentErr != nil {
		return paymentmethod.Intent{}, p.intentErr
	}
	return paymentmethod.Intent{AllowedTypes: []string{"card"}, Account: "acct_host"}, nil
}

func (p *fakeProvider) Confirm(ctx context.Context, secret string, opts ConfirmOptions) (ConfirmResult, error) {
	if p.onConfirm != nil {
		p.onConfirm(ctx, secret, opts)
	}
	p.mu.Lock()
	p.confirms = append(p.confirms, opts)
	p.mu.Unlock()

	switch opts.MethodRef {
	case "tok_declined":
		return ConfirmResult{}, &ServiceError{Code: "card_declined", Message: "Your card was declined."}
	case "tok_3ds", string(paymentmethod.ServicePayPal):
		return ConfirmResult{Status: ConfirmRequiresRedirect, RedirectURL: "https://provider.test/authorize?secret=" + url.QueryEscape(secret)}, nil
	}
	return ConfirmResult{Status: ConfirmSucceeded}, nil
}

func (p *fakeProvider) Retrieve(_ context.Context, secret, _ string) (ConfirmResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.retrieve[secret]; ok {
		return r, nil
	}
	return ConfirmResult{Status: ConfirmFailed, Message: "Your payment was declined"}, nil
}

func (p *fakeProvider) confirmCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.confirms)
}

type fakeDirectory struct {
	collectives map[string]Collective
	tiers       map[string]Tier
	methods     map[string][]paymentmethod.Method
	incognito   func(ctx context.Context, id Identity) (AccountRef, error)
}

func (d *fakeDirectory) Collective(_ context.Context, slug string) (Collective, error) {
	c, ok := d.collectives[slug]
	if !ok {
		return Collective{}, fmt.Errorf("collective %q: %w", slug, apperr.ErrNotFound)
	}
	return c, nil
}

func (d *fakeDirectory) Tier(_ context.Context, _ string, id string) (Tier, error) {
	t, ok := d.tiers[id]
	if !ok {
		return Tier{}, fmt.Errorf("tier %q: %w", id, apperr.ErrNotFound)
	}
	return t, nil
}

func (d *fakeDirectory) PaymentMethods(_ context.Context, accountID string) ([]paymentmethod.Method, error) {
	return d.methods[accountID], nil
}

func (d *fakeDirectory) CreateIncognitoProfile(ctx context.Context, id Identity) (AccountRef, error) {
	if d.incognito != nil {
		return d.incognito(ctx, id)
	}
	return AccountRef{ID: "incognito-" + id.AccountID, Slug: "incognito-" + id.Slug, Incognito: true}, nil
}

type fakeRefresher struct {
	mu       sync.Mutex
	accounts []string
}

func (r *fakeRefresher) Refetch(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = append(r.accounts, accountID)
	return nil
}

type fixture struct {
	orders   *fakeOrders
	provider *fakeProvider
	dir      *fakeDirectory
	guests   *guest.Store
	refresh  *fakeRefresher
	tracker  *tracker.Tracker
	cfg      Config
	deps     Deps
}

var testUser = &Identity{
	AccountID:   "u-1",
	Slug:        "jane",
	Name:        "Jane",
	Email:       "jane@example.org",
	Memberships: []AccountRef{{ID: "org-1", Slug: "acme", Name: "Acme"}},
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		orders:   newFakeOrders(),
		provider: &fakeProvider{retrieve: map[string]ConfirmResult{}},
		dir: &fakeDirectory{
			collectives: map[string]Collective{
				"webpack": {ID: "c-1", Slug: "webpack", Name: "webpack", Currency: "USD", PlatformTipEnabled: true},
				"eu-org":  {ID: "c-2", Slug: "eu-org", Name: "EU Org", Currency: "EUR", Tax: &amount.TaxRule{Type: "VAT", Percentage: 2100}},
			},
			tiers: map[string]Tier{
				"42": {ID: "42", Slug: "backer", Name: "Backer", Pricing: amount.Pricing{AmountType: amount.AmountFixed, Amount: 500}, Interval: amount.IntervalMonth},
				"7":  {ID: "7", Slug: "free", Name: "Free", Pricing: amount.Pricing{AmountType: amount.AmountFlexible, Presets: []int64{0}}},
			},
			methods: map[string][]paymentmethod.Method{
				"u-1": {
					{ID: "pm-visa", Service: paymentmethod.ServiceStripe, Type: paymentmethod.TypeCreditCard, Brand: "VISA", Last4: "4242"},
					{ID: "pm-gift", Service: paymentmethod.ServiceOpenCollective, Type: paymentmethod.TypeGiftCard, Currency: "USD", Balance: ptr(int64(100))},
				},
			},
		},
		guests:  guest.NewStore(memory.New(), nil),
		refresh: &fakeRefresher{},
		tracker: &tracker.Tracker{},
	}
	f.cfg = Config{
		Rules:       Rules{TipMenu: amount.NewTipMenu(nil, amount.DefaultTipIndex)},
		BaseURL:     testBaseURL,
		CallTimeout: time.Second,
	}
	f.deps = Deps{
		Orders:    f.orders,
		Provider:  f.provider,
		Directory: f.dir,
		Guests:    f.guests,
		Identity:  f.refresh,
		Tracker:   f.tracker,
	}
	return f
}

func (f *fixture) open(t *testing.T, rawURL string, id *Identity) *Orchestrator {
	t.Helper()

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	rt, err := ParseRoute(u.Path, u.Query())
	if err != nil {
		t.Fatalf("route %q: %v", rawURL, err)
	}
	o, err := Open(context.Background(), f.cfg, f.deps, "s-"+u.Path, rt, id)
	if err != nil {
		t.Fatalf("open %q: %v", rawURL, err)
	}
	return o
}

// advance calls Next until the session is on target.
func advance(t *testing.T, o *Orchestrator, target steps.Name) {
	t.Helper()

	for i := 0; i < 4 && o.State().Step != target; i++ {
		if _, err := o.Next(context.Background()); err != nil {
			t.Fatalf("next from %s: %v", o.State().Step, err)
		}
	}
	if got := o.State().Step; got != target {
		t.Fatalf("expected to reach %s, stuck on %s", target, got)
	}
}

func ptr[T any](v T) *T { return &v }
