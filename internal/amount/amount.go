// Package amount holds the pure money arithmetic of a checkout: totals, tax,
// platform tip menus and minimum amounts. All values are integers in the
// currency's minor unit.
package amount

import (
	"fmt"
	"strings"
)

// Interval is the recurrence of a contribution.
type Interval string

const (
	IntervalNone  Interval = "none"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// ParseInterval accepts the spellings used in checkout URLs ("month",
// "monthly", "year", "yearly", "oneTime", ...). Unknown values map to none.
func ParseInterval(s string) Interval {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month", "monthly":
		return IntervalMonth
	case "year", "yearly":
		return IntervalYear
	default:
		return IntervalNone
	}
}

// IsRecurring reports whether the interval produces a recurring contribution.
func (i Interval) IsRecurring() bool {
	return i == IntervalMonth || i == IntervalYear
}

// Details is the state owned by the Details step.
type Details struct {
	Quantity          int64    `json:"quantity"`
	UnitAmount        int64    `json:"amount"`
	Currency          string   `json:"currency"`
	Interval          Interval `json:"interval,omitempty"`
	PlatformTip       int64    `json:"platformTip"`
	PlatformTipOption TipKey   `json:"platformTipOption,omitempty"`
	// TaxAmount is nil until tax has been computed for the current base.
	TaxAmount *int64 `json:"taxAmount,omitempty"`
}

// Base returns quantity * unitAmount.
func (d Details) Base() int64 {
	return d.Quantity * d.UnitAmount
}

// ComputeTotal returns quantity*unitAmount + platformTip + taxAmount. Every
// place a total is displayed or submitted goes through this function.
func ComputeTotal(d Details, taxAmount int64) int64 {
	return d.Base() + d.PlatformTip + taxAmount
}

// Total is ComputeTotal using the tax recorded on d, if any.
func Total(d Details) int64 {
	var tax int64
	if d.TaxAmount != nil {
		tax = *d.TaxAmount
	}
	return ComputeTotal(d, tax)
}

// TaxRule describes the tax a receiving collective charges on contributions.
// Percentage is expressed in basis points (2000 = 20%).
type TaxRule struct {
	Type       string `json:"type" yaml:"type"`
	Percentage int64  `json:"percentage" yaml:"percentage"`
}

// TaxApplicable reports whether tax must be collected for d. The Summary step
// exists exactly when this is true.
func TaxApplicable(d Details, rule *TaxRule) bool {
	return rule != nil && rule.Type != "" && d.Base() > 0
}

// ComputeTax returns round(base * percentage / 10000). The tip is never taxed.
func ComputeTax(d Details, rule *TaxRule) int64 {
	if !TaxApplicable(d, rule) {
		return 0
	}
	return roundDiv(d.Base()*rule.Percentage, 10000)
}

// roundDiv divides rounding half away from zero, matching Math.round for the
// non-negative inputs used here.
func roundDiv(num, den int64) int64 {
	if den == 0 {
		panic("amount: division by zero")
	}
	if num < 0 {
		return -roundDiv(-num, den)
	}
	return (num + den/2) / den
}

// Validate checks the invariants of Details against a minimum amount.
func (d Details) Validate(minimum int64) error {
	switch {
	case d.Quantity < 1:
		return fmt.Errorf("quantity must be at least 1")
	case d.UnitAmount < 0:
		return fmt.Errorf("amount cannot be negative")
	case d.UnitAmount < minimum:
		return fmt.Errorf("the minimum amount is %s", Format(minimum, d.Currency))
	case d.PlatformTip < 0:
		return fmt.Errorf("platform tip cannot be negative")
	case d.Currency == "":
		return fmt.Errorf("currency is required")
	}
	return nil
}
