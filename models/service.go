package models

import (
	"fmt"
	"strings"
	"time"

	"mobileshop-backend/billing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ServiceReceived   = "received"
	ServiceInProgress = "in_progress"
	ServiceReady      = "ready"
	ServiceDelivered  = "delivered"
	ServiceCancelled  = "cancelled"
)

var serviceStatuses = map[string]bool{
	ServiceReceived:   true,
	ServiceInProgress: true,
	ServiceReady:      true,
	ServiceDelivered:  true,
	ServiceCancelled:  true,
}

func ValidServiceStatus(s string) bool {
	return serviceStatuses[s]
}

const pendingServicePrefix = "pending-"

// ServiceRecord is a repair job taken in at the counter. ServiceID is the
// customer-facing "SRV-00042" handle, assigned once the row has an ID.
type ServiceRecord struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	ServiceID     string        `json:"service_id" gorm:"size:48;uniqueIndex"`
	CustomerName  string        `json:"customer_name" gorm:"not null"`
	CustomerPhone string        `json:"customer_phone" gorm:"size:20;index;not null"`
	DeviceModel   string        `json:"device_model"`
	IMEI          string        `json:"imei" gorm:"size:32"`
	Issue         string        `json:"issue"`
	Status        string        `json:"status" gorm:"size:20;index;not null"`
	LaborCharge   float64       `json:"labor_charge" gorm:"type:numeric(12,2)"`
	AdvancePaid   float64       `json:"advance_paid" gorm:"type:numeric(12,2)"`
	Parts         []ServicePart `json:"parts" gorm:"foreignKey:ServiceRecordID;constraint:OnDelete:CASCADE"`
	BillID        *uint         `json:"bill_id"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ServicePart is a part or sub-job fitted during the repair.
type ServicePart struct {
	ID              uint    `json:"id" gorm:"primaryKey"`
	ServiceRecordID uint    `json:"-" gorm:"index"`
	ProductID       *string `json:"product_id" gorm:"size:36"`
	Description     string  `json:"description"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unit_price" gorm:"type:numeric(12,2)"`
	DiscountKind    string  `json:"discount_kind" gorm:"size:10"`
	DiscountValue   float64 `json:"discount_value"`
	TaxRatePercent  float64 `json:"tax_rate_percent"`
}

func FormatServiceID(id uint) string {
	return fmt.Sprintf("SRV-%05d", id)
}

func (r *ServiceRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ServiceID == "" {
		r.ServiceID = pendingServicePrefix + uuid.NewString()
	}
	if r.Status == "" {
		r.Status = ServiceReceived
	}
	return
}

func (r *ServiceRecord) AfterCreate(tx *gorm.DB) (err error) {
	if !strings.HasPrefix(r.ServiceID, pendingServicePrefix) {
		return nil
	}
	r.ServiceID = FormatServiceID(r.ID)
	return tx.Model(&ServiceRecord{}).Where("id = ?", r.ID).UpdateColumn("service_id", r.ServiceID).Error
}

func (p ServicePart) LineItem() billing.LineItem {
	return billing.LineItem{
		Quantity:       p.Quantity,
		UnitPrice:      p.UnitPrice,
		DiscountKind:   billing.ParseDiscountKind(p.DiscountKind),
		DiscountValue:  p.DiscountValue,
		TaxRatePercent: p.TaxRatePercent,
	}
}

// LineItems converts the fitted parts into engine lines, in order.
func (r ServiceRecord) LineItems() []billing.LineItem {
	out := make([]billing.LineItem, 0, len(r.Parts))
	for _, p := range r.Parts {
		out = append(out, p.LineItem())
	}
	return out
}

// Closed reports whether the record can no longer be billed or edited.
func (r ServiceRecord) Closed() bool {
	return r.Status == ServiceDelivered || r.Status == ServiceCancelled
}
