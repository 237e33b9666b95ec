package amount

import (
	"fmt"
	"strconv"
	"strings"
)

// TipKey identifies a platform tip option: a percentage preset ("15%"),
// TipNone or TipCustom.
type TipKey string

const (
	TipNone   TipKey = "none"
	TipCustom TipKey = "custom"
)

// DefaultTipPercentages are the presets offered when none are configured.
var DefaultTipPercentages = []int64{10, 15, 20}

// DefaultTipIndex selects 15%. Defaulting to "none" or "custom" is a revenue
// regression.
const DefaultTipIndex = 1

// TipOption is one entry of the tip menu.
type TipOption struct {
	Key            TipKey `json:"key"`
	Percentage     int64  `json:"percentage,omitempty"`
	ComputedAmount int64  `json:"computedAmount"`
	Label          string `json:"label"`
}

// PresetKey returns the key for a percentage preset.
func PresetKey(percentage int64) TipKey {
	return TipKey(strconv.FormatInt(percentage, 10) + "%")
}

// Percentage returns the preset percentage encoded in k.
func (k TipKey) Percentage() (int64, bool) {
	s, ok := strings.CutSuffix(string(k), "%")
	if !ok {
		return 0, false
	}
	p, err := strconv.ParseInt(s, 10, 64)
	if err != nil || p < 0 {
		return 0, false
	}
	return p, true
}

// TipMenu is the tip configuration of a checkout.
type TipMenu struct {
	Percentages  []int64
	DefaultIndex int
}

// NewTipMenu returns a menu with defaults applied.
func NewTipMenu(percentages []int64, defaultIndex int) TipMenu {
	if len(percentages) == 0 {
		percentages = DefaultTipPercentages
	}
	if defaultIndex < 0 || defaultIndex >= len(percentages) {
		defaultIndex = 0
	}
	return TipMenu{Percentages: percentages, DefaultIndex: defaultIndex}
}

// ComputeTipOptions returns the presets followed by "none" and "custom".
// Each preset's amount is round(base * percentage / 100).
func (m TipMenu) ComputeTipOptions(base int64, currency string) []TipOption {
	out := make([]TipOption, 0, len(m.Percentages)+2)
	for _, p := range m.Percentages {
		amt := roundDiv(base*p, 100)
		out = append(out, TipOption{
			Key:            PresetKey(p),
			Percentage:     p,
			ComputedAmount: amt,
			Label:          fmt.Sprintf("%s (%d%%)", Format(amt, currency), p),
		})
	}
	out = append(out,
		TipOption{Key: TipNone, Label: "No thank you"},
		TipOption{Key: TipCustom, Label: "Other"},
	)
	return out
}

// DefaultKey is the preset selected before the user touches the tip menu.
func (m TipMenu) DefaultKey() TipKey {
	return PresetKey(m.Percentages[m.DefaultIndex])
}

// TipSelection is the user's explicit interaction with the tip menu.
type TipSelection struct {
	Key          TipKey
	CustomAmount int64
}

// ResolveTip returns the tip option and amount for base. Without a selection
// the default preset applies. A selected preset follows the base; "none" is
// always 0 and "custom" keeps only the amount the user typed, never the
// previous preset's value.
func (m TipMenu) ResolveTip(base int64, sel *TipSelection) (TipKey, int64) {
	if base <= 0 {
		if sel != nil {
			return sel.Key, 0
		}
		return m.DefaultKey(), 0
	}
	if sel == nil {
		p, _ := m.DefaultKey().Percentage()
		return m.DefaultKey(), roundDiv(base*p, 100)
	}
	switch sel.Key {
	case TipNone:
		return TipNone, 0
	case TipCustom:
		if sel.CustomAmount < 0 {
			return TipCustom, 0
		}
		return TipCustom, sel.CustomAmount
	}
	if p, ok := sel.Key.Percentage(); ok {
		return sel.Key, roundDiv(base*p, 100)
	}
	p, _ := m.DefaultKey().Percentage()
	return m.DefaultKey(), roundDiv(base*p, 100)
}
