package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

func round2(x float64) decimal.Decimal {
	return decimal.NewFromFloat(x).Round(2)
}

// Rounded returns a copy rounded to 2 decimals for display or storage.
// The halves are re-split from the rounded tax total so they still add up to it.
func (s InvoiceSummary) Rounded() InvoiceSummary {
	r := s
	r.SubtotalGross = round2(s.SubtotalGross).InexactFloat64()
	r.LineDiscountTotal = round2(s.LineDiscountTotal).InexactFloat64()
	r.NetAfterLineDiscounts = round2(s.NetAfterLineDiscounts).InexactFloat64()
	r.BillDiscountAmount = round2(s.BillDiscountAmount).InexactFloat64()
	r.TaxableBase = round2(s.TaxableBase).InexactFloat64()
	r.GrandTotal = round2(s.GrandTotal).InexactFloat64()
	r.AmountPrepaid = round2(s.AmountPrepaid).InexactFloat64()
	r.BalanceDue = round2(s.BalanceDue).InexactFloat64()

	tax := round2(s.TaxTotal)
	halfA := tax.Div(two).Round(2)
	r.TaxTotal = tax.InexactFloat64()
	r.TaxHalfA = halfA.InexactFloat64()
	r.TaxHalfB = tax.Sub(halfA).InexactFloat64()
	return r
}

// Record flattens the summary to a plain key/value map for storage or export.
func (s InvoiceSummary) Record() map[string]float64 {
	return map[string]float64{
		"subtotal_gross":           s.SubtotalGross,
		"line_discount_total":      s.LineDiscountTotal,
		"net_after_line_discounts": s.NetAfterLineDiscounts,
		"bill_discount_amount":     s.BillDiscountAmount,
		"taxable_base":             s.TaxableBase,
		"tax_total":                s.TaxTotal,
		"tax_half_a":               s.TaxHalfA,
		"tax_half_b":               s.TaxHalfB,
		"grand_total":              s.GrandTotal,
		"amount_prepaid":           s.AmountPrepaid,
		"balance_due":              s.BalanceDue,
	}
}

// Formatted renders every summary amount with FormatMoney.
func (s InvoiceSummary) Formatted(symbol string) map[string]string {
	out := make(map[string]string, 11)
	for k, v := range s.Record() {
		out[k] = FormatMoney(v, symbol)
	}
	return out
}

// FormatMoney renders amount as symbol + grouped digits + 2 decimals, e.g. "₹1,234.50".
func FormatMoney(amount float64, symbol string) string {
	d := round2(amount)
	neg := d.IsNegative()
	if neg {
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(symbol)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
