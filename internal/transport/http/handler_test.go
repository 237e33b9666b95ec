package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/amount"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/checkout"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/guest"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/model"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/paymentmethod"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/directory"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/order"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/payment"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/tracker"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/storage/memory"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/steps"
)

const testBaseURL = "https://checkout.test"

// --- stubs for unit tests ---

type stubSessions struct {
	err error
}

func (s stubSessions) Open(context.Context, checkout.Route, *checkout.Identity) (*checkout.Orchestrator, error) {
	return nil, s.err
}

func (s stubSessions) Get(string) (*checkout.Orchestrator, error) { return nil, s.err }
func (s stubSessions) Len() int                                   { return 3 }

type stubResumer struct {
	out checkout.Outcome
	err error
}

func (s stubResumer) Resume(context.Context, url.Values) (checkout.Outcome, error) {
	return s.out, s.err
}

// --- integration wiring (sandbox collaborators) ---

type server struct {
	router http.Handler
	orders *order.Sandbox
	dir    *directory.Sandbox
	guests *guest.Store
	tr     *tracker.Tracker
}

func newServer(t *testing.T) *server {
	t.Helper()

	catalog := directory.Catalog{
		Collectives: []directory.Entry{{
			Collective: checkout.Collective{ID: "c-1", Slug: "webpack", Name: "Webpack", Currency: "USD", PlatformTipEnabled: true},
			Tiers: []checkout.Tier{
				{ID: "42", Slug: "backer", Pricing: amount.Pricing{AmountType: amount.AmountFixed, Amount: 500}, Interval: amount.IntervalMonth},
			},
		}},
		Users: []checkout.Identity{{AccountID: "u-1", Slug: "jane", Name: "Jane", Email: "jane@example.org"}},
		Methods: map[string][]paymentmethod.Method{
			"u-1": {{ID: "pm-visa", Name: "Visa", Service: paymentmethod.ServiceStripe, Type: paymentmethod.TypeCreditCard, Last4: "4242"}},
		},
	}

	s := &server{
		orders: order.NewSandbox(nil, "acct_sandbox", nil),
		dir:    directory.New(catalog, nil, nil),
		guests: guest.NewStore(memory.New(), nil),
		tr:     &tracker.Tracker{},
	}
	provider := payment.NewSandbox(testBaseURL, "acct_sandbox", nil, nil, nil)
	cfg := checkout.Config{
		Rules:             checkout.Rules{TipMenu: amount.NewTipMenu(nil, amount.DefaultTipIndex)},
		BaseURL:           testBaseURL,
		CallTimeout:       time.Second,
		MaxChargeAttempts: 5,
	}
	deps := checkout.Deps{
		Orders:    s.orders,
		Provider:  provider,
		Directory: s.dir,
		Guests:    s.guests,
		Identity:  s.dir,
		Tracker:   s.tr,
	}
	h := New(checkout.NewRegistry(cfg, deps, time.Hour), checkout.NewResumer(cfg, deps), Options{
		Users:          s.dir,
		Sandbox:        provider,
		Tracker:        s.tr,
		RequestTimeout: 2 * time.Second,
	})
	s.router = h.Router()
	return s
}

func (s *server) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	if u, err := url.Parse(target); err == nil && u.IsAbs() {
		target = u.RequestURI()
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder, wantStatus int) checkout.View {
	t.Helper()

	if w.Code != wantStatus {
		t.Fatalf("expected %d, got %d: %s", wantStatus, w.Code, w.Body.String())
	}
	var v checkout.View
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantKind string) *model.ErrorPayload {
	t.Helper()

	if w.Code != wantStatus {
		t.Fatalf("expected %d, got %d: %s", wantStatus, w.Code, w.Body.String())
	}
	var out model.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if out.Status != "error" || out.Error == nil || out.Error.Kind != wantKind {
		t.Fatalf("expected error.kind=%s, got %+v", wantKind, out.Error)
	}
	return out.Error
}

// guestAtPayment opens a guest session for amount and walks it to the
// payment step.
func (s *server) guestAtPayment(t *testing.T, rawAmount string) string {
	t.Helper()

	v := decodeView(t, s.do(t, http.MethodPost, "/checkouts", model.StartRequest{URL: "/webpack/donate?amount=" + rawAmount}), http.StatusCreated)
	if v.Step != steps.Details || v.SessionID == "" {
		t.Fatalf("unexpected landing %s %q", v.Step, v.SessionID)
	}
	base := "/checkouts/" + v.SessionID

	v = decodeView(t, s.do(t, http.MethodPost, base+"/next", nil), http.StatusOK)
	if v.Step != steps.Profile {
		t.Fatalf("expected profile, got %s", v.Step)
	}
	decodeView(t, s.do(t, http.MethodPut, base+"/profile", model.ProfileRequest{Guest: &model.GuestRequest{Email: "g@example.org", Name: "G"}}), http.StatusOK)
	v = decodeView(t, s.do(t, http.MethodPost, base+"/next", nil), http.StatusOK)
	if v.Step != steps.Payment {
		t.Fatalf("expected payment, got %s", v.Step)
	}
	return base
}

// --- integration tests ---

func TestCheckout_GuestRedirectFlow(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	base := s.guestAtPayment(t, "1000")

	v := decodeView(t, s.do(t, http.MethodPut, base+"/payment", model.PaymentRequest{Key: checkout.NewCardKey, Card: &model.CardRequest{Token: payment.TokenRedirect}}), http.StatusOK)
	if v.Total != 1150 {
		t.Fatalf("expected total 1150, got %d", v.Total)
	}

	w := s.do(t, http.MethodPost, base+"/submit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	var out model.SubmitResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "redirect" || !strings.HasPrefix(out.Redirect, testBaseURL+payment.AuthorizePath) {
		t.Fatalf("unexpected submit response %+v", out)
	}
	if _, ok := s.guests.GetToken(context.Background(), out.OrderID); !ok {
		t.Fatal("expected guest token persisted before confirmation")
	}

	w = s.do(t, http.MethodGet, out.Redirect+"&approve=true", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("authorize: %d %s", w.Code, w.Body.String())
	}
	back := w.Header().Get("Location")
	if !strings.Contains(back, checkout.ReturnPath) || !strings.Contains(back, "redirect_status=succeeded") {
		t.Fatalf("unexpected return location %s", back)
	}

	w = s.do(t, http.MethodGet, back, nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("return: %d %s", w.Code, w.Body.String())
	}
	if want := testBaseURL + "/webpack/donate/success?orderId=" + url.QueryEscape(out.OrderID); w.Header().Get("Location") != want {
		t.Fatalf("expected %s, got %s", want, w.Header().Get("Location"))
	}

	tok, _ := s.guests.GetToken(context.Background(), out.OrderID)
	o, err := s.orders.GetOrder(context.Background(), checkout.OrderRef{ID: out.OrderID}, tok.Token)
	if err != nil || o.Status != checkout.OrderPaid {
		t.Fatalf("expected paid order, got %+v %v", o, err)
	}
}

func TestCheckout_RedirectDeniedRecovers(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	base := s.guestAtPayment(t, "1000")
	decodeView(t, s.do(t, http.MethodPut, base+"/payment", model.PaymentRequest{Key: "external-PAYPAL"}), http.StatusOK)

	var out model.SubmitResponse
	w := s.do(t, http.MethodPost, base+"/submit", nil)
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil || out.Status != "redirect" {
		t.Fatalf("submit: %+v %v", out, err)
	}

	w = s.do(t, http.MethodGet, out.Redirect+"&approve=false", nil)
	w = s.do(t, http.MethodGet, w.Header().Get("Location"), nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("return: %d %s", w.Code, w.Body.String())
	}
	rec, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Path != "/webpack/donate/payment" || rec.Query().Get("orderId") != out.OrderID || rec.Query().Get("chargeAttempt") != "1" {
		t.Fatalf("unexpected recovery location %s", rec)
	}

	v := decodeView(t, s.do(t, http.MethodPost, "/checkouts", model.StartRequest{URL: rec.RequestURI()}), http.StatusCreated)
	if v.Step != steps.Payment || v.OrderID != out.OrderID || v.Error == "" || v.Total != 1150 {
		t.Fatalf("unexpected recovered view step=%s order=%s error=%q total=%d", v.Step, v.OrderID, v.Error, v.Total)
	}
}

func TestCheckout_DeclinedCard(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	base := s.guestAtPayment(t, "1000")
	decodeView(t, s.do(t, http.MethodPut, base+"/payment", model.PaymentRequest{Key: checkout.NewCardKey, Card: &model.CardRequest{Token: payment.TokenDeclined}}), http.StatusOK)

	p := decodeError(t, s.do(t, http.MethodPost, base+"/submit", nil), http.StatusPaymentRequired, apperr.KindConfirmation)
	if p.Message != payment.DeclineMessage {
		t.Fatalf("expected decline message, got %q", p.Message)
	}

	v := decodeView(t, s.do(t, http.MethodGet, base, nil), http.StatusOK)
	if v.Error != payment.DeclineMessage || v.Payment.ChargeAttempt != 1 {
		t.Fatalf("unexpected view after decline error=%q attempt=%d", v.Error, v.Payment.ChargeAttempt)
	}
}

func TestCheckout_SignedInStoredMethod(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	v := decodeView(t, s.do(t, http.MethodPost, "/checkouts", model.StartRequest{URL: "/webpack/contribute/backer-42/checkout", Account: "jane"}), http.StatusCreated)
	if v.Details.UnitAmount != 500 || v.Tier == nil || v.Tier.ID != "42" {
		t.Fatalf("unexpected tier details %+v", v.Details)
	}
	base := "/checkouts/" + v.SessionID

	for v.Step != steps.Payment {
		v = decodeView(t, s.do(t, http.MethodPost, base+"/next", nil), http.StatusOK)
	}
	if len(v.PaymentOptions) != 1 || v.PaymentOptions[0].ID != "pm-visa" {
		t.Fatalf("expected stored option, got %+v", v.PaymentOptions)
	}
	decodeView(t, s.do(t, http.MethodPut, base+"/payment", model.PaymentRequest{Key: "pm-visa"}), http.StatusOK)

	w := s.do(t, http.MethodPost, base+"/submit", nil)
	var out model.SubmitResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil || out.Status != "ok" {
		t.Fatalf("submit: %d %+v %v", w.Code, out, err)
	}
	if s.dir.Refetches("u-1") != 1 {
		t.Fatal("expected identity refetched after contribution")
	}

	decodeError(t, s.do(t, http.MethodPost, base+"/submit", nil), http.StatusConflict, apperr.KindAlreadySubmitted)

	w = s.do(t, http.MethodGet, "/healthz", nil)
	var health model.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Sessions != 1 || health.InFlightCalls != 0 || health.TotalCalls == 0 {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestCheckout_IdentityChangeResets(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	base := s.guestAtPayment(t, "1000")

	v := decodeView(t, s.do(t, http.MethodPut, base+"/identity", model.IdentityRequest{Account: "jane"}), http.StatusOK)
	if v.Step != steps.Details {
		t.Fatalf("expected reset to details, got %s", v.Step)
	}
	decodeError(t, s.do(t, http.MethodPut, base+"/identity", model.IdentityRequest{Account: "nobody"}), http.StatusNotFound, apperr.KindNotFound)
}

func TestCheckout_RequestErrors(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	v := decodeView(t, s.do(t, http.MethodPost, "/checkouts", model.StartRequest{URL: "/webpack/donate?amount=1000"}), http.StatusCreated)
	base := "/checkouts/" + v.SessionID

	tests := []struct {
		name       string
		method     string
		target     string
		body       any
		wantStatus int
		wantKind   string
	}{
		{name: "invalid_json", method: http.MethodPut, target: base + "/details", body: `{"amount":`, wantStatus: http.StatusBadRequest, wantKind: "bad_request"},
		{name: "unknown_field", method: http.MethodPut, target: base + "/tip", body: `{"nope":1}`, wantStatus: http.StatusBadRequest, wantKind: "bad_request"},
		{name: "unknown_session", method: http.MethodGet, target: "/checkouts/missing", wantStatus: http.StatusNotFound, wantKind: apperr.KindNotFound},
		{name: "unknown_collective", method: http.MethodPost, target: "/checkouts", body: model.StartRequest{URL: "/nope/donate"}, wantStatus: http.StatusNotFound, wantKind: apperr.KindNotFound},
		{name: "bad_page_url", method: http.MethodPost, target: "/checkouts", body: model.StartRequest{URL: "/webpack"}, wantStatus: http.StatusUnprocessableEntity, wantKind: apperr.KindValidation},
		{name: "unknown_step", method: http.MethodPost, target: base + "/goto/confirm", wantStatus: http.StatusUnprocessableEntity, wantKind: apperr.KindValidation},
		{name: "skip_ahead", method: http.MethodPost, target: base + "/goto/payment", wantStatus: http.StatusConflict, wantKind: apperr.KindStepNotReachable},
		{name: "back_from_first", method: http.MethodPost, target: base + "/back", wantStatus: http.StatusConflict, wantKind: apperr.KindStepNotReachable},
		{name: "edit_other_step", method: http.MethodPut, target: base + "/payment", body: model.PaymentRequest{Key: "external-PAYPAL"}, wantStatus: http.StatusUnprocessableEntity, wantKind: apperr.KindValidation},
		{name: "submit_early", method: http.MethodPost, target: base + "/submit", wantStatus: http.StatusConflict, wantKind: apperr.KindStepNotReachable},
		{name: "return_without_order", method: http.MethodGet, target: checkout.ReturnPath, wantStatus: http.StatusSeeOther},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.target, tt.body)
			if tt.wantKind == "" {
				if w.Code != tt.wantStatus {
					t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
				}
				return
			}
			decodeError(t, w, tt.wantStatus, tt.wantKind)
		})
	}
}

// --- unit tests (stub-based) ---

func TestErrorPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantKind  string
		wantMsg   string
		wantField string
	}{
		{name: "validation", err: apperr.Validation("details", "amount", "too low"), wantKind: apperr.KindValidation, wantMsg: "too low", wantField: "amount"},
		{name: "busy", err: fmt.Errorf("submit: %w", apperr.ErrSubmitInFlight), wantKind: apperr.KindBusy},
		{name: "deadline", err: context.DeadlineExceeded, wantKind: apperr.KindTimeout},
		{name: "internal_hidden", err: errors.New("db password wrong"), wantKind: apperr.KindInternal, wantMsg: "internal error"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := errorPayload(tt.err)
			if p.Kind != tt.wantKind || p.Field != tt.wantField {
				t.Fatalf("unexpected payload %+v", p)
			}
			if tt.wantMsg != "" && p.Message != tt.wantMsg {
				t.Fatalf("expected message %q, got %q", tt.wantMsg, p.Message)
			}
		})
	}
}

func TestResume_RedirectsToRecovery(t *testing.T) {
	t.Parallel()

	h := New(stubSessions{}, stubResumer{err: &apperr.RedirectRecoveryError{OrderID: "o-1", Message: "failed", RedirectURL: "/webpack/donate/payment?orderId=o-1"}}, Options{})
	req := httptest.NewRequest(http.MethodGet, checkout.ReturnPath+"?orderId=o-1", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/webpack/donate/payment?orderId=o-1" {
		t.Fatalf("unexpected response %d %s", w.Code, w.Header().Get("Location"))
	}
}

func TestHealthWithoutTracker(t *testing.T) {
	t.Parallel()

	h := New(stubSessions{}, stubResumer{}, Options{})
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var out model.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || out.Sessions != 3 {
		t.Fatalf("unexpected health %d %+v", w.Code, out)
	}
}

func TestSandboxRouteOnlyWhenConfigured(t *testing.T) {
	t.Parallel()

	h := New(stubSessions{}, stubResumer{}, Options{})
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, payment.AuthorizePath+"?secret=x", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestNew_NilSessionsPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for nil sessions")
		}
	}()
	New(nil, stubResumer{}, Options{})
}

func TestNew_DefaultTimeout(t *testing.T) {
	t.Parallel()

	h := New(stubSessions{}, stubResumer{}, Options{})
	if h.requestTimeout != 20*time.Second {
		t.Fatalf("expected default timeout 20s, got %v", h.requestTimeout)
	}
}

func TestCheckout_DetailsWithRejectedTip(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	v := decodeView(t, s.do(t, http.MethodPost, "/checkouts", model.StartRequest{URL: "/webpack/donate?amount=1000"}), http.StatusCreated)
	base := "/checkouts/" + v.SessionID

	req := model.DetailsRequest{Quantity: 1, Amount: 5000, Tip: &model.TipRequest{Option: "bogus"}}
	decodeError(t, s.do(t, http.MethodPut, base+"/details", req), http.StatusUnprocessableEntity, apperr.KindValidation)

	v = decodeView(t, s.do(t, http.MethodGet, base, nil), http.StatusOK)
	if v.Details.UnitAmount != 1000 {
		t.Fatalf("expected amount unchanged after rejected tip, got %d", v.Details.UnitAmount)
	}
}
