// Package directory serves collectives, tiers, users and stored payment
// methods from a static catalog for sandbox deployments.
package directory

import (
	"context"
	"fmt"
	"slices"
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
	CallCollective     = "collective"
	CallTier           = "tier"
	CallPaymentMethods = "payment_methods"
	CallIncognito      = "incognito_profile"
	CallRefetch        = "refetch_identity"
)

// Catalog is the static content of a sandbox directory.
type Catalog struct {
	Collectives []Entry                           `yaml:"collectives"`
	Users       []checkout.Identity               `yaml:"users"`
	Methods     map[string][]paymentmethod.Method `yaml:"payment_methods"`
}

// Entry is a collective with its tiers.
type Entry struct {
	checkout.Collective `yaml:",inline"`
	Tiers               []checkout.Tier `yaml:"tiers"`
}

// Sandbox implements checkout.Directory and checkout.IdentityRefresher.
type Sandbox struct {
	delayMS map[string]int64
	log     *zap.Logger

	mu          sync.RWMutex
	collectives map[string]Entry
	users       map[string]checkout.Identity
	methods     map[string][]paymentmethod.Method
	incognito   map[string]checkout.AccountRef
	refetched   map[string]int
}

// New indexes c.
func New(c Catalog, delayMS map[string]int64, log *zap.Logger) *Sandbox {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Sandbox{
		delayMS:     delayMS,
		log:         log,
		collectives: make(map[string]Entry, len(c.Collectives)),
		users:       make(map[string]checkout.Identity, len(c.Users)),
		methods:     make(map[string][]paymentmethod.Method, len(c.Methods)),
		incognito:   make(map[string]checkout.AccountRef),
		refetched:   make(map[string]int),
	}
	for _, e := range c.Collectives {
		d.collectives[e.Slug] = e
	}
	for _, u := range c.Users {
		d.users[u.Slug] = u
	}
	for account, ms := range c.Methods {
		d.methods[account] = slices.Clone(ms)
	}
	return d
}

// Collective returns the collective with slug.
func (d *Sandbox) Collective(ctx context.Context, slug string) (checkout.Collective, error) {
	if err := shared.Simulate(ctx, d.delayMS, CallCollective); err != nil {
		return checkout.Collective{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.collectives[slug]
	if !ok {
		return checkout.Collective{}, fmt.Errorf("collective %q: %w", slug, apperr.ErrNotFound)
	}
	return e.Collective, nil
}

// Tier returns a tier of a collective.
func (d *Sandbox) Tier(ctx context.Context, collectiveSlug, tierID string) (checkout.Tier, error) {
	if err := shared.Simulate(ctx, d.delayMS, CallTier); err != nil {
		return checkout.Tier{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.collectives[collectiveSlug].Tiers {
		if t.ID == tierID {
			return t, nil
		}
	}
	return checkout.Tier{}, fmt.Errorf("tier %q of %q: %w", tierID, collectiveSlug, apperr.ErrNotFound)
}

// PaymentMethods returns the stored methods of an account.
func (d *Sandbox) PaymentMethods(ctx context.Context, accountID string) ([]paymentmethod.Method, error) {
	if err := shared.Simulate(ctx, d.delayMS, CallPaymentMethods); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.methods[accountID]), nil
}

// CreateIncognitoProfile returns the user's incognito profile, creating it
// on first use.
func (d *Sandbox) CreateIncognitoProfile(ctx context.Context, id checkout.Identity) (checkout.AccountRef, error) {
	if err := shared.Simulate(ctx, d.delayMS, CallIncognito); err != nil {
		return checkout.AccountRef{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if ref, ok := d.incognito[id.AccountID]; ok {
		return ref, nil
	}
	short := uuid.NewString()[:8]
	ref := checkout.AccountRef{ID: "incognito-" + short, Slug: "incognito-" + short, Name: "Incognito", Incognito: true}
	d.incognito[id.AccountID] = ref
	d.log.Info("incognito profile created", zap.String("account", id.AccountID), zap.String("profile", ref.ID))
	return ref, nil
}

// Refetch records that the cached identity of accountID was invalidated.
func (d *Sandbox) Refetch(ctx context.Context, accountID string) error {
	if err := shared.Simulate(ctx, d.delayMS, CallRefetch); err != nil {
		return err
	}
	d.mu.Lock()
	d.refetched[accountID]++
	d.mu.Unlock()
	d.log.Debug("identity refetched", zap.String("account", accountID))
	return nil
}

// Refetches reports how often accountID was refetched.
func (d *Sandbox) Refetches(accountID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.refetched[accountID]
}

// User resolves a signed-in user by slug. The transport layer uses it in
// place of a session cookie.
func (d *Sandbox) User(ctx context.Context, slug string) (*checkout.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[slug]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", slug, apperr.ErrNotFound)
	}
	u.Memberships = slices.Clone(u.Memberships)
	return &u, nil
}
