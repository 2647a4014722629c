package billing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseNumber coerces a loosely typed request value to a float64.
// Missing or non-numeric input yields 0; it never returns an error.
// Strings may carry thousands separators or a currency marker ("₹1,200", "Rs. 50").
func ParseNumber(v any) float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		f = parseNumericString(n)
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// currencyMarkers may lead a typed amount. Compared lower-cased.
var currencyMarkers = []string{"₹", "rs.", "rs", "inr", "$"}

// parseNumericString reads the leading number of s the way a form field is
// read: grouping commas and spaces are ignored, a currency marker may lead,
// and anything after the number is dropped ("12kg" is 12). No number is 0.
func parseNumericString(s string) float64 {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, ",", "")), "")

	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	}
	lower := strings.ToLower(s)
	for _, m := range currencyMarkers {
		if strings.HasPrefix(lower, m) {
			s = s[len(m):]
			break
		}
	}
	if neg && (strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+")) {
		return 0
	}

	f, err := strconv.ParseFloat(numericPrefix(s), 64)
	if err != nil {
		return 0
	}
	if neg {
		return -f
	}
	return f
}

// numericPrefix returns the longest leading decimal float literal of s:
// optional sign, digits with at most one dot, optional exponent.
func numericPrefix(s string) string {
	isDigit := func(b byte) bool { return b >= '0' && b <= '9' }

	i, digits := 0, 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return s[:i]
}

// ParseDiscountKind maps UI spellings to a DiscountKind. Unknown values mean none.
func ParseDiscountKind(s string) DiscountKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percent", "percentage", "%", "p":
		return DiscountPercent
	case "flat", "amount", "fixed", "f":
		return DiscountFlat
	default:
		return DiscountNone
	}
}

// RawLine is a line item as it arrives over the wire, before coercion.
type RawLine struct {
	Quantity       any    `json:"quantity"`
	UnitPrice      any    `json:"unit_price"`
	DiscountKind   string `json:"discount_kind"`
	DiscountValue  any    `json:"discount_value"`
	TaxRatePercent any    `json:"tax_rate_percent"`
}

func (r RawLine) LineItem() LineItem {
	return LineItem{
		Quantity:       ParseNumber(r.Quantity),
		UnitPrice:      ParseNumber(r.UnitPrice),
		DiscountKind:   ParseDiscountKind(r.DiscountKind),
		DiscountValue:  ParseNumber(r.DiscountValue),
		TaxRatePercent: ParseNumber(r.TaxRatePercent),
	}
}

// RawAdjustment is the wire form of BillAdjustment.
type RawAdjustment struct {
	DiscountKind       string `json:"discount_kind"`
	DiscountValue      any    `json:"discount_value"`
	TaxOverridePercent any    `json:"tax_override_percent"`
}

func (r RawAdjustment) Adjustment() BillAdjustment {
	adj := BillAdjustment{
		DiscountKind:  ParseDiscountKind(r.DiscountKind),
		DiscountValue: ParseNumber(r.DiscountValue),
	}
	if r.TaxOverridePercent != nil {
		if p := ParseNumber(r.TaxOverridePercent); p > 0 {
			adj.TaxOverridePercent = &p
		}
	}
	return adj
}
