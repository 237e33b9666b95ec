// Package httptransport implements the HTTP transport layer
// for checkout sessions.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/checkout"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/model"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/service/tracker"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/steps"
)

type sessions interface {
	Open(ctx context.Context, rt checkout.Route, id *checkout.Identity) (*checkout.Orchestrator, error)
	Get(id string) (*checkout.Orchestrator, error)
	Len() int
}

type resumer interface {
	Resume(ctx context.Context, q url.Values) (checkout.Outcome, error)
}

// users resolves the signed-in user from the account slug the page shell
// forwards.
type users interface {
	User(ctx context.Context, slug string) (*checkout.Identity, error)
}

// authorizer completes redirect-based payments in sandbox mode.
type authorizer interface {
	Authorize(secret string, approve bool) (string, error)
}

// Options are the optional parts of a Handler.
type Options struct {
	Users          users
	Sandbox        authorizer
	Tracker        *tracker.Tracker
	RequestTimeout time.Duration
	Log            *zap.Logger
}

// Handler handles HTTP requests to checkout sessions.
type Handler struct {
	sessions       sessions
	resumer        resumer
	users          users
	sandbox        authorizer
	tracker        *tracker.Tracker
	requestTimeout time.Duration
	log            *zap.Logger
}

// New returns a Handler serving sessions and redirect returns.
//
// It panics if sessions or resumer is nil. If RequestTimeout is
// non-positive, a default timeout is applied.
func New(sessions sessions, resumer resumer, opts Options) *Handler {
	if sessions == nil {
		panic("httptransport.New: nil sessions")
	}
	if resumer == nil {
		panic("httptransport.New: nil resumer")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 20 * time.Second
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Handler{
		sessions:       sessions,
		resumer:        resumer,
		users:          opts.Users,
		sandbox:        opts.Sandbox,
		tracker:        opts.Tracker,
		requestTimeout: opts.RequestTimeout,
		log:            opts.Log,
	}
}

// Routes registers the checkout endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.health)
	r.Route("/checkouts", func(r chi.Router) {
		r.Post("/", h.start)
		r.Get(strings.TrimPrefix(checkout.ReturnPath, "/checkouts"), h.resume)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.view)
			r.Put("/details", h.details)
			r.Put("/tip", h.tip)
			r.Put("/profile", h.profile)
			r.Put("/summary", h.summary)
			r.Put("/payment", h.payment)
			r.Put("/identity", h.identity)
			r.Post("/next", h.next)
			r.Post("/back", h.back)
			r.Post("/goto/{step}", h.goTo)
			r.Post("/submit", h.submit)
		})
	})
	if h.sandbox != nil {
		r.Get("/sandbox/authorize", h.authorize)
	}
}

// Router returns a chi router with the checkout endpoints mounted.
func (h *Handler) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)
	h.Routes(r)
	return r
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.requestTimeout)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req model.StartRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || req.URL == "" {
		writeBadRequest(w, "url must be a contribution page path")
		return
	}
	rt, err := checkout.ParseRoute(u.Path, u.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	id, err := h.resolveIdentity(ctx, req.Account)
	if err != nil {
		h.writeError(w, err)
		return
	}
	o, err := h.sessions.Open(ctx, rt, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o.View(ctx))
}

func (h *Handler) resolveIdentity(ctx context.Context, slug string) (*checkout.Identity, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil
	}
	if h.users == nil {
		return nil, apperr.Validation("", "account", "sign-in is not available")
	}
	return h.users.User(ctx, slug)
}

// session returns the session named in the path, writing the error response
// when there is none.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*checkout.Orchestrator, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	o, err := h.sessions.Get(id)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return o, true
}

// update runs fn against the session and answers with the resulting view.
func (h *Handler) update(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, o *checkout.Orchestrator) error) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	if err := fn(ctx, o); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o.View(ctx))
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(context.Context, *checkout.Orchestrator) error { return nil })
}

func (h *Handler) details(w http.ResponseWriter, r *http.Request) {
	var req model.DetailsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.update(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		return o.UpdateDetails(req.Event())
	})
}

func (h *Handler) tip(w http.ResponseWriter, r *http.Request) {
	var req model.TipRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.update(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		return o.SelectTip(req.Selection())
	})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	var req model.ProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.update(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		return o.UpdateProfile(req.Profile())
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	var req model.TaxRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.update(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		return o.UpdateSummary(req.Info())
	})
}

func (h *Handler) payment(w http.ResponseWriter, r *http.Request) {
	var req model.PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.update(w, r, func(ctx context.Context, o *checkout.Orchestrator) error {
		return o.SelectPayment(ctx, req.Selection())
	})
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) {
	var req model.IdentityRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.update(w, r, func(ctx context.Context, o *checkout.Orchestrator) error {
		id, err := h.resolveIdentity(ctx, req.Account)
		if err != nil {
			return err
		}
		return o.SetIdentity(id)
	})
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(ctx context.Context, o *checkout.Orchestrator) error {
		_, err := o.Next(ctx)
		return err
	})
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		_, err := o.Back()
		return err
	})
}

func (h *Handler) goTo(w http.ResponseWriter, r *http.Request) {
	target, ok := steps.Parse(chi.URLParam(r, "step"))
	if !ok {
		h.writeError(w, apperr.Validation("", "step", "unknown step"))
		return
	}
	h.update(w, r, func(_ context.Context, o *checkout.Orchestrator) error {
		return o.GoTo(target)
	})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	out, err := o.Submit(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.FromOutcome(out))
}

// resume is where the payment provider sends the payer back after a
// redirect. It always answers with a redirect.
func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()

	out, err := h.resumer.Resume(ctx, r.URL.Query())
	var rec *apperr.RedirectRecoveryError
	switch {
	case errors.As(err, &rec):
		http.Redirect(w, r, rec.RedirectURL, http.StatusSeeOther)
	case err != nil:
		h.writeError(w, err)
	default:
		http.Redirect(w, r, out.RedirectURL, http.StatusSeeOther)
	}
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	back, err := h.sandbox.Authorize(q.Get("secret"), q.Get("approve") != "false")
	if err != nil {
		h.writeError(w, err)
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := model.HealthResponse{Status: "ok", Sessions: h.sessions.Len()}
	if h.tracker != nil {
		resp.InFlightCalls = h.tracker.Running()
		resp.TotalCalls = h.tracker.Total()
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads a single JSON object from the body. An empty body decodes to
// the zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeBadRequest(w, "invalid JSON")
		return false
	}
	return true
}

// writeJSON writes v as a JSON response with the given status code.
// The Content-Type is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
