package amount

import "strings"

// DefaultMinimumAmount is the minimum contribution, in minor units of a
// currency with adjustment rate 1.
const DefaultMinimumAmount int64 = 100

// AmountType distinguishes fixed-price tiers from pay-what-you-want tiers.
type AmountType string

const (
	AmountFixed    AmountType = "FIXED"
	AmountFlexible AmountType = "FLEXIBLE"
)

// Pricing is the money part of a contribution tier.
type Pricing struct {
	AmountType    AmountType `json:"amountType" yaml:"amount_type"`
	Amount        int64      `json:"amount" yaml:"amount"`
	MinimumAmount int64      `json:"minimumAmount,omitempty" yaml:"minimum_amount"`
	Presets       []int64    `json:"presets,omitempty" yaml:"presets"`
}

// DefaultAmount is the amount preselected when the URL carries none.
func (p Pricing) DefaultAmount() int64 {
	if p.AmountType == AmountFixed {
		return p.Amount
	}
	if p.Amount > 0 {
		return p.Amount
	}
	if len(p.Presets) > 0 {
		return p.Presets[len(p.Presets)/2]
	}
	return p.MinimumAmount
}

// adjustmentRates keeps minimum-amount prompts proportionate across
// currencies with very different unit values. Unlisted currencies use 1.
var adjustmentRates = map[string]int64{
	"AUD": 1,
	"BRL": 5,
	"CAD": 1,
	"CHF": 1,
	"CNY": 5,
	"CZK": 20,
	"DKK": 5,
	"EUR": 1,
	"GBP": 1,
	"HKD": 5,
	"HUF": 300,
	"IDR": 10000,
	"INR": 50,
	"JPY": 100,
	"KRW": 1000,
	"MXN": 20,
	"NGN": 500,
	"NOK": 10,
	"NZD": 1,
	"PHP": 50,
	"PLN": 4,
	"SEK": 10,
	"UAH": 20,
	"USD": 1,
	"VND": 20000,
	"ZAR": 10,
}

// CurrencyAdjustmentRate returns the static minimum-amount multiplier for
// currency.
func CurrencyAdjustmentRate(currency string) int64 {
	if r, ok := adjustmentRates[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return r
	}
	return 1
}

// GetMinimumAmount returns the smallest accepted unit amount. Fixed tiers
// return their amount. Flexible tiers (and contributions without a tier)
// return max(tier minimum, DefaultMinimumAmount * rate), or 0 when the tier's
// presets explicitly offer 0.
func GetMinimumAmount(p *Pricing, currency string) int64 {
	floor := DefaultMinimumAmount * CurrencyAdjustmentRate(currency)
	if p == nil {
		return floor
	}
	if p.AmountType == AmountFixed {
		return p.Amount
	}
	for _, v := range p.Presets {
		if v == 0 {
			return 0
		}
	}
	return max(p.MinimumAmount, floor)
}
