package models

import (
	"time"

	"mobileshop-backend/billing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ConditionNew        = "new"
	ConditionSecondHand = "second_hand"
)

// Product is an inventory entry: a handset, accessory or spare part.
type Product struct {
	Id                string    `json:"id" gorm:"primaryKey;size:36"`
	Name              string    `json:"name" gorm:"not null"`
	Brand             string    `json:"brand" gorm:"index"`
	Category          string    `json:"category" gorm:"index"`
	Condition         string    `json:"condition" gorm:"size:20;not null"`
	IMEI              string    `json:"imei" gorm:"size:32;index"`
	CostPrice         float64   `json:"cost_price" gorm:"type:numeric(12,2)"`
	SellPrice         float64   `json:"sell_price" gorm:"type:numeric(12,2)"`
	TaxRatePercent    float64   `json:"tax_rate_percent"`
	Stock             int       `json:"stock"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (product *Product) BeforeCreate(tx *gorm.DB) (err error) {
	if product.Id == "" {
		product.Id = uuid.NewString()
	}
	if product.Condition == "" {
		product.Condition = ConditionNew
	}
	return
}

// LowStock reports whether the product is at or under its reorder threshold.
func (product Product) LowStock() bool {
	return product.Stock <= product.LowStockThreshold
}

// LineItem prices qty units at the current sell price and tax rate.
func (product Product) LineItem(qty float64) billing.LineItem {
	return billing.LineItem{
		Quantity:       qty,
		UnitPrice:      product.SellPrice,
		DiscountKind:   billing.DiscountNone,
		TaxRatePercent: product.TaxRatePercent,
	}
}

func ValidCondition(c string) bool {
	return c == ConditionNew || c == ConditionSecondHand
}
