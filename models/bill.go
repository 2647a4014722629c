package models

import (
	"time"

	"mobileshop-backend/billing"

	"gorm.io/datatypes"
)

// Bill is a saved sales, service or second-hand invoice. Summary columns are the
// engine output rounded at save time; items keep the per-line breakdown.
type Bill struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	BillNumber      string     `json:"bill_number" gorm:"size:32;uniqueIndex"`
	Kind            string     `json:"kind" gorm:"size:20;index;not null"`
	CustomerID      *uint      `json:"customer_id" gorm:"index"`
	Customer        *Customer  `json:"customer,omitempty" gorm:"foreignKey:CustomerID;references:Id"`
	CustomerName    string     `json:"customer_name" gorm:"not null"`
	CustomerPhone   string     `json:"customer_phone" gorm:"size:20"`
	ServiceRecordID *uint      `json:"service_record_id" gorm:"index"`
	PaymentMethod   string     `json:"payment_method" gorm:"size:20"`
	Items           []BillItem `json:"items" gorm:"foreignKey:BillID;constraint:OnDelete:CASCADE"`

	// Bill-level discount and tax override as entered.
	Adjustment  datatypes.JSON `json:"adjustment"`
	LaborCharge float64        `json:"labor_charge" gorm:"type:numeric(12,2)"`

	SubtotalGross         float64 `json:"subtotal_gross" gorm:"type:numeric(12,2)"`
	LineDiscountTotal     float64 `json:"line_discount_total" gorm:"type:numeric(12,2)"`
	NetAfterLineDiscounts float64 `json:"net_after_line_discounts" gorm:"type:numeric(12,2)"`
	BillDiscountAmount    float64 `json:"bill_discount_amount" gorm:"type:numeric(12,2)"`
	TaxableBase           float64 `json:"taxable_base" gorm:"type:numeric(12,2)"`
	TaxTotal              float64 `json:"tax_total" gorm:"type:numeric(12,2)"`
	TaxHalfA              float64 `json:"tax_half_a" gorm:"type:numeric(12,2)"`
	TaxHalfB              float64 `json:"tax_half_b" gorm:"type:numeric(12,2)"`
	GrandTotal            float64 `json:"grand_total" gorm:"type:numeric(12,2)"`
	AmountPrepaid         float64 `json:"amount_prepaid" gorm:"type:numeric(12,2)"`

	// Payments rollup
	PaidTotal  float64 `json:"paid_total" gorm:"type:numeric(12,2)"`
	BalanceDue float64 `json:"balance_due" gorm:"type:numeric(12,2)"`

	CreatedBy string    `json:"created_by" gorm:"size:36"`
	BilledAt  time.Time `json:"billed_at" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
}

type BillItem struct {
	ID             uint    `json:"id" gorm:"primaryKey"`
	BillID         uint    `json:"-" gorm:"index"`
	ProductID      *string `json:"product_id" gorm:"size:36;index"`
	Description    string  `json:"description"`
	IsLabor        bool    `json:"is_labor"`
	Quantity       float64 `json:"quantity"`
	UnitPrice      float64 `json:"unit_price" gorm:"type:numeric(12,2)"`
	DiscountKind   string  `json:"discount_kind" gorm:"size:10"`
	DiscountValue  float64 `json:"discount_value"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	Gross          float64 `json:"gross" gorm:"type:numeric(12,2)"`
	Discount       float64 `json:"discount" gorm:"type:numeric(12,2)"`
	Net            float64 `json:"net" gorm:"type:numeric(12,2)"`
	Tax            float64 `json:"tax" gorm:"type:numeric(12,2)"`
	// CostPrice is the product cost at billing time, for margin reporting.
	CostPrice float64 `json:"cost_price" gorm:"type:numeric(12,2)"`
}

// Payment is money received against a bill after it was saved.
type Payment struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	BillID    uint      `json:"bill_id" gorm:"index:idx_payments_bill_paid_at,priority:1"`
	Amount    float64   `json:"amount" gorm:"type:numeric(12,2)"`
	Method    string    `json:"method" gorm:"size:20"`
	Reference string    `json:"reference"`
	Note      string    `json:"note"`
	PaidAt    time.Time `json:"paid_at" gorm:"index:idx_payments_bill_paid_at,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

// ApplySummary copies an already rounded summary onto the bill columns.
func (b *Bill) ApplySummary(s billing.InvoiceSummary) {
	b.SubtotalGross = s.SubtotalGross
	b.LineDiscountTotal = s.LineDiscountTotal
	b.NetAfterLineDiscounts = s.NetAfterLineDiscounts
	b.BillDiscountAmount = s.BillDiscountAmount
	b.TaxableBase = s.TaxableBase
	b.TaxTotal = s.TaxTotal
	b.TaxHalfA = s.TaxHalfA
	b.TaxHalfB = s.TaxHalfB
	b.GrandTotal = s.GrandTotal
	b.AmountPrepaid = s.AmountPrepaid
	b.BalanceDue = s.BalanceDue
}

// Summary rebuilds the stored summary from the bill columns.
func (b Bill) Summary() billing.InvoiceSummary {
	return billing.InvoiceSummary{
		Mode:                  billing.Mode(b.Kind),
		SubtotalGross:         b.SubtotalGross,
		LineDiscountTotal:     b.LineDiscountTotal,
		NetAfterLineDiscounts: b.NetAfterLineDiscounts,
		BillDiscountAmount:    b.BillDiscountAmount,
		TaxableBase:           b.TaxableBase,
		TaxTotal:              b.TaxTotal,
		TaxHalfA:              b.TaxHalfA,
		TaxHalfB:              b.TaxHalfB,
		GrandTotal:            b.GrandTotal,
		AmountPrepaid:         b.AmountPrepaid,
		BalanceDue:            b.BalanceDue,
	}
}

func (i BillItem) LineItem() billing.LineItem {
	return billing.LineItem{
		Quantity:       i.Quantity,
		UnitPrice:      i.UnitPrice,
		DiscountKind:   billing.ParseDiscountKind(i.DiscountKind),
		DiscountValue:  i.DiscountValue,
		TaxRatePercent: i.TaxRatePercent,
	}
}

// SetResult stores the rounded per-line breakdown.
func (i *BillItem) SetResult(r billing.LineResult) {
	i.Gross = r.Gross
	i.Discount = r.Discount
	i.Net = r.Net
	i.Tax = r.Tax
}
