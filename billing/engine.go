// Package billing computes invoice summaries for sales, service and second-hand bills.
//
// Everything in this package is pure: no I/O, no shared state, full float precision.
// Rounding to currency units happens at the boundary (see Rounded and FormatMoney).
package billing

import "math"

type DiscountKind string

const (
	DiscountNone    DiscountKind = "none"
	DiscountPercent DiscountKind = "percent"
	DiscountFlat    DiscountKind = "flat"
)

// LineItem is one billable unit: a product or a service part.
type LineItem struct {
	Quantity       float64      `json:"quantity"`
	UnitPrice      float64      `json:"unit_price"`
	DiscountKind   DiscountKind `json:"discount_kind"`
	DiscountValue  float64      `json:"discount_value"`
	TaxRatePercent float64      `json:"tax_rate_percent"`
}

// Active reports whether the line would contribute to totals.
func (l LineItem) Active() bool {
	return nonNegative(l.Quantity) > 0 && nonNegative(l.UnitPrice) > 0
}

// BillAdjustment holds the bill-wide modifiers applied after the lines are summed.
type BillAdjustment struct {
	DiscountKind  DiscountKind `json:"discount_kind"`
	DiscountValue float64      `json:"discount_value"`
	// TaxOverridePercent, when set and > 0, replaces the per-line taxes with a single
	// rate over the post-discount total.
	TaxOverridePercent *float64 `json:"tax_override_percent,omitempty"`
}

// HasTaxOverride reports whether the override replaces per-line taxes.
func (a BillAdjustment) HasTaxOverride() bool {
	return a.TaxOverridePercent != nil && nonNegative(*a.TaxOverridePercent) > 0
}

// LineResult is the computed breakdown of a single line.
type LineResult struct {
	Gross    float64 `json:"gross"`
	Discount float64 `json:"discount"`
	Net      float64 `json:"net"`
	Tax      float64 `json:"tax"`
}

// InvoiceSummary is the derived financial summary of a bill. The caller owns it.
type InvoiceSummary struct {
	Mode                  Mode    `json:"mode,omitempty"`
	SubtotalGross         float64 `json:"subtotal_gross"`
	LineDiscountTotal     float64 `json:"line_discount_total"`
	NetAfterLineDiscounts float64 `json:"net_after_line_discounts"`
	BillDiscountAmount    float64 `json:"bill_discount_amount"`
	TaxableBase           float64 `json:"taxable_base"`
	TaxTotal              float64 `json:"tax_total"`
	TaxHalfA              float64 `json:"tax_half_a"`
	TaxHalfB              float64 `json:"tax_half_b"`
	GrandTotal            float64 `json:"grand_total"`
	AmountPrepaid         float64 `json:"amount_prepaid"`
	BalanceDue            float64 `json:"balance_due"`
}

// ComputeLine returns gross, clamped discount, net and tax for one line.
func ComputeLine(l LineItem) LineResult {
	gross := nonNegative(l.Quantity) * nonNegative(l.UnitPrice)
	discount := discountAmount(l.DiscountKind, l.DiscountValue, gross)
	net := math.Max(gross-discount, 0)
	return LineResult{
		Gross:    gross,
		Discount: discount,
		Net:      net,
		Tax:      net * nonNegative(l.TaxRatePercent) / 100,
	}
}

// ComputeSummary turns line items plus bill-level adjustments into a summary.
// It never fails: malformed numbers have already been coerced, negatives and
// non-finite values are clamped to zero.
func ComputeSummary(lines []LineItem, adj BillAdjustment, amountPrepaid float64) InvoiceSummary {
	var s InvoiceSummary
	var sumLineTax float64

	for _, l := range lines {
		r := ComputeLine(l)
		s.SubtotalGross += r.Gross
		s.LineDiscountTotal += r.Discount
		s.NetAfterLineDiscounts += r.Net
		sumLineTax += r.Tax
	}

	s.BillDiscountAmount = discountAmount(adj.DiscountKind, adj.DiscountValue, s.NetAfterLineDiscounts)
	s.TaxableBase = s.NetAfterLineDiscounts - s.BillDiscountAmount

	// Either/or: the override discards per-line rates entirely.
	if adj.HasTaxOverride() {
		s.TaxTotal = s.TaxableBase * nonNegative(*adj.TaxOverridePercent) / 100
	} else {
		s.TaxTotal = sumLineTax
	}

	s.TaxHalfA = s.TaxTotal / 2
	s.TaxHalfB = s.TaxTotal - s.TaxHalfA

	s.GrandTotal = s.TaxableBase + s.TaxTotal
	s.AmountPrepaid = nonNegative(amountPrepaid)
	s.BalanceDue = math.Max(s.GrandTotal-s.AmountPrepaid, 0)
	return s
}

// discountAmount applies kind/value to base, clamped to [0, base].
func discountAmount(kind DiscountKind, value, base float64) float64 {
	value = nonNegative(value)
	var d float64
	switch kind {
	case DiscountPercent:
		d = base * value / 100
	case DiscountFlat:
		d = value
	default:
		return 0
	}
	if d > base {
		return base
	}
	return d
}

func nonNegative(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0
	}
	return x
}
