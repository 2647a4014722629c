package models

import "time"

// Purchase is a stock intake from a dealer.
type Purchase struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	PurchaseNumber string         `json:"purchase_number" gorm:"size:32;uniqueIndex"`
	DealerID       uint           `json:"dealer_id" gorm:"index;not null"`
	Dealer         Dealer         `json:"dealer" gorm:"foreignKey:DealerID;references:Id"`
	Items          []PurchaseItem `json:"items" gorm:"foreignKey:PurchaseID;constraint:OnDelete:CASCADE"`
	Total          float64        `json:"total" gorm:"type:numeric(12,2)"`
	Note           string         `json:"note"`
	PurchasedAt    time.Time      `json:"purchased_at" gorm:"index"`
	CreatedBy      string         `json:"created_by" gorm:"size:36"`
	CreatedAt      time.Time      `json:"created_at"`
}

type PurchaseItem struct {
	ID         uint    `json:"id" gorm:"primaryKey"`
	PurchaseID uint    `json:"-" gorm:"index"`
	ProductID  string  `json:"product_id" gorm:"size:36;not null;index"`
	Product    Product `json:"-" gorm:"foreignKey:ProductID;references:Id;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	Quantity   int     `json:"quantity"`
	UnitCost   float64 `json:"unit_cost" gorm:"type:numeric(12,2)"`
	LineTotal  float64 `json:"line_total" gorm:"type:numeric(12,2)"`
}
