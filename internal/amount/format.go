package amount

import (
	"fmt"
	"strings"
)

// zeroDecimal lists currencies displayed without fractional digits. Amounts
// are still stored as hundredths.
var zeroDecimal = map[string]bool{
	"JPY": true,
	"KRW": true,
	"IDR": true,
	"VND": true,
	"HUF": true,
}

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
	"KRW": "₩",
}

// Format renders minor units for display, e.g. Format(1150, "USD") = "$11.50".
func Format(minor int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	var num string
	if zeroDecimal[currency] {
		num = fmt.Sprintf("%d", roundDiv(minor, 100))
	} else {
		num = fmt.Sprintf("%d.%02d", minor/100, minor%100)
	}
	if sym, ok := symbols[currency]; ok {
		return sign + sym + num
	}
	return fmt.Sprintf("%s%s %s", sign, num, currency)
}
