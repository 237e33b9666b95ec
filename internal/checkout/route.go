package checkout

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/amount"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/paymentmethod"
	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/steps"
)

// Query parameter names of a checkout URL.
const (
	paramQuantity          = "quantity"
	paramAmount            = "amount"
	paramInterval          = "interval"
	paramPlatformTip       = "platformTip"
	paramPlatformTipOption = "platformTipOption"
	paramContributeAs      = "contributeAs"
	paramEmail             = "email"
	paramName              = "name"
	paramLegalName         = "legalName"
	paramCountry           = "country"
	paramTaxID             = "taxId"
	paramPaymentMethod     = "paymentMethod"
	paramTags              = "tags"
	paramOrderID           = "orderId"
	paramChargeAttempt     = "chargeAttempt"
	paramError             = "error"
)

// ContributeAsIncognito selects an anonymous profile of the signed-in user.
const ContributeAsIncognito = "incognito"

// Route is the part of the wizard state that lives in the URL, so that a
// reload or a redirect back from a payment provider can rebuild the session.
// Transient secrets such as card tokens are never part of it.
type Route struct {
	CollectiveSlug string     `json:"collective"`
	TierID         string     `json:"tierId,omitempty"`
	TierSlug       string     `json:"tierSlug,omitempty"`
	Step           steps.Name `json:"step,omitempty"`

	Quantity          int64           `json:"quantity,omitempty"`
	Amount            int64           `json:"amount,omitempty"`
	Interval          amount.Interval `json:"interval,omitempty"`
	PlatformTip       *int64          `json:"platformTip,omitempty"`
	PlatformTipOption amount.TipKey   `json:"platformTipOption,omitempty"`

	ContributeAs string `json:"contributeAs,omitempty"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	LegalName    string `json:"legalName,omitempty"`
	Country      string `json:"country,omitempty"`
	TaxID        string `json:"taxId,omitempty"`

	PaymentMethod string   `json:"paymentMethod,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	OrderID       string   `json:"orderId,omitempty"`
	ChargeAttempt int      `json:"chargeAttempt,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// ParseRoute decodes a checkout path and its query. Accepted paths are
// /{collective}/donate[/{step}] and
// /{collective}/contribute/{tier}/checkout[/{step}], where {tier} is
// "{slug}-{id}" or a bare id. Malformed query values are ignored.
func ParseRoute(path string, q url.Values) (Route, error) {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })

	var r Route
	var stepPart string
	switch {
	case len(parts) >= 2 && len(parts) <= 3 && parts[1] == "donate":
		r.CollectiveSlug = parts[0]
		if len(parts) == 3 {
			stepPart = parts[2]
		}
	case len(parts) >= 4 && len(parts) <= 5 && parts[1] == "contribute" && parts[3] == "checkout":
		r.CollectiveSlug = parts[0]
		r.TierSlug, r.TierID = splitTierRef(parts[2])
		if len(parts) == 5 {
			stepPart = parts[4]
		}
	default:
		return Route{}, apperr.Validation("", "path", "unrecognized checkout path "+strconv.Quote(path))
	}
	if stepPart != "" {
		n, ok := steps.Parse(stepPart)
		if !ok {
			return Route{}, apperr.Validation("", "step", "unknown step "+strconv.Quote(stepPart))
		}
		r.Step = n
	}

	r.Quantity = parseInt(q.Get(paramQuantity))
	r.Amount = parseInt(q.Get(paramAmount))
	r.Interval = amount.ParseInterval(q.Get(paramInterval))
	if v := q.Get(paramPlatformTip); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			r.PlatformTip = &n
		}
	}
	r.PlatformTipOption = amount.TipKey(q.Get(paramPlatformTipOption))
	r.ContributeAs = q.Get(paramContributeAs)
	r.Email = q.Get(paramEmail)
	r.Name = q.Get(paramName)
	r.LegalName = q.Get(paramLegalName)
	r.Country = strings.ToUpper(q.Get(paramCountry))
	r.TaxID = q.Get(paramTaxID)
	r.PaymentMethod = q.Get(paramPaymentMethod)
	r.Tags = parseTags(q.Get(paramTags))
	r.OrderID = q.Get(paramOrderID)
	r.ChargeAttempt = int(parseInt(q.Get(paramChargeAttempt)))
	r.Error = q.Get(paramError)
	return r, nil
}

func splitTierRef(ref string) (slug, id string) {
	i := strings.LastIndexByte(ref, '-')
	if i < 0 {
		return "", ref
	}
	return ref[:i], ref[i+1:]
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Path returns the URL path of r.
func (r Route) Path() string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(url.PathEscape(r.CollectiveSlug))
	if r.TierID == "" {
		b.WriteString("/donate")
	} else {
		b.WriteString("/contribute/")
		if r.TierSlug != "" {
			b.WriteString(url.PathEscape(r.TierSlug))
			b.WriteString("-")
		}
		b.WriteString(url.PathEscape(r.TierID))
		b.WriteString("/checkout")
	}
	if r.Step != "" {
		b.WriteString("/")
		b.WriteString(string(r.Step))
	}
	return b.String()
}

// Query returns the query values of r. Zero values are omitted.
func (r Route) Query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	if r.Quantity > 1 {
		q.Set(paramQuantity, strconv.FormatInt(r.Quantity, 10))
	}
	if r.Amount > 0 {
		q.Set(paramAmount, strconv.FormatInt(r.Amount, 10))
	}
	if r.Interval.IsRecurring() {
		q.Set(paramInterval, string(r.Interval))
	}
	if r.PlatformTip != nil {
		q.Set(paramPlatformTip, strconv.FormatInt(*r.PlatformTip, 10))
	}
	set(paramPlatformTipOption, string(r.PlatformTipOption))
	set(paramContributeAs, r.ContributeAs)
	set(paramEmail, r.Email)
	set(paramName, r.Name)
	set(paramLegalName, r.LegalName)
	set(paramCountry, r.Country)
	set(paramTaxID, r.TaxID)
	set(paramPaymentMethod, r.PaymentMethod)
	set(paramTags, strings.Join(r.Tags, ","))
	set(paramOrderID, r.OrderID)
	if r.ChargeAttempt > 0 {
		q.Set(paramChargeAttempt, strconv.Itoa(r.ChargeAttempt))
	}
	set(paramError, r.Error)
	return q
}

// URL returns base followed by the path and query of r.
func (r Route) URL(base string) string {
	u := strings.TrimSuffix(base, "/") + r.Path()
	if q := r.Query().Encode(); q != "" {
		u += "?" + q
	}
	return u
}

// routeOf returns the route that reproduces s.
func routeOf(s State) Route {
	r := Route{
		CollectiveSlug: s.Collective.Slug,
		Step:           s.Step,
		Quantity:       s.Details.Quantity,
		Amount:         s.Details.UnitAmount,
		Interval:       s.Details.Interval,
		PaymentMethod:  s.Payment.Key(),
		Tags:           s.Tags,
		ChargeAttempt:  s.Payment.ChargeAttempt,
		Error:          s.Error,
	}
	if s.Tier != nil {
		r.TierID, r.TierSlug = s.Tier.ID, s.Tier.Slug
	}
	if s.Tip != nil {
		r.PlatformTipOption = s.Tip.Key
		if s.Tip.Key == amount.TipCustom {
			tip := s.Tip.CustomAmount
			r.PlatformTip = &tip
		}
	}
	if p := s.Profile; p != nil {
		switch {
		case p.Incognito, p.Account != nil && p.Account.Incognito:
			r.ContributeAs = ContributeAsIncognito
		case p.Account != nil:
			r.ContributeAs = p.Account.Slug
		case p.Guest != nil:
			r.Email, r.Name, r.LegalName = p.Guest.Email, p.Guest.Name, p.Guest.LegalName
			if p.Guest.Location != nil {
				r.Country = p.Guest.Location.Country
			}
		}
	}
	if s.Tax != nil {
		r.Country, r.TaxID = s.Tax.Country, s.Tax.TaxID
	}
	if s.Order != nil {
		r.OrderID = s.Order.ID
	}
	return r
}

// RecoveryRoute rebuilds the checkout of a pending order, landing on the
// Payment step with the failure message and the next charge attempt.
func RecoveryRoute(o Order, message string, chargeAttempt int) Route {
	tip := o.PlatformTip
	r := Route{
		CollectiveSlug:    o.ToAccount.Slug,
		Step:              steps.Payment,
		Quantity:          o.Quantity,
		Amount:            o.Amount,
		Interval:          o.Frequency,
		PlatformTip:       &tip,
		PlatformTipOption: amount.TipCustom,
		Tags:              o.Tags,
		OrderID:           o.ID,
		ChargeAttempt:     chargeAttempt,
		Error:             message,
	}
	if o.Tier != nil {
		r.TierID, r.TierSlug = o.Tier.ID, o.Tier.Slug
	}
	switch {
	case o.Guest != nil:
		r.Email, r.Name, r.LegalName = o.Guest.Email, o.Guest.Name, o.Guest.LegalName
		if o.Guest.Location != nil {
			r.Country = o.Guest.Location.Country
		}
	case o.FromAccount.IsGuest:
		r.Email, r.Name = o.FromAccount.Email, o.FromAccount.Name
	case o.FromAccount.Incognito:
		r.ContributeAs = ContributeAsIncognito
	default:
		r.ContributeAs = o.FromAccount.Slug
	}
	if o.Tax != nil {
		r.Country, r.TaxID = o.Tax.Country, o.Tax.TaxID
	}
	if pm := o.PaymentMethod; pm != nil {
		switch {
		case pm.ID != "":
			r.PaymentMethod = pm.ID
		case pm.Service == paymentmethod.ServicePayPal:
			r.PaymentMethod = externalKey(pm.Service)
		}
	}
	return r
}

func externalKey(s paymentmethod.Service) string {
	return "external-" + string(s)
}

func parseExternalKey(key string) (External, bool) {
	svc, ok := strings.CutPrefix(key, "external-")
	if !ok || svc == "" {
		return External{}, false
	}
	e := External{Service: paymentmethod.Service(strings.ToUpper(svc))}
	if e.Service == paymentmethod.ServicePayPal {
		e.Type = paymentmethod.TypePayPal
	}
	return e, true
}
