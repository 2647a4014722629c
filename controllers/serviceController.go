package controllers

import (
	"errors"
	"strings"

	"mobileshop-backend/billing"
	"mobileshop-backend/database"
	"mobileshop-backend/events"
	"mobileshop-backend/metrics"
	"mobileshop-backend/middlewares"
	"mobileshop-backend/models"
	"mobileshop-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ServicePartDTO struct {
	ProductID      *string `json:"product_id"`
	Description    string  `json:"description" validate:"required,max=200"`
	Quantity       float64 `json:"quantity" validate:"gt=0"`
	UnitPrice      float64 `json:"unit_price" validate:"gte=0"`
	DiscountKind   string  `json:"discount_kind" validate:"omitempty,oneof=none percent flat"`
	DiscountValue  float64 `json:"discount_value" validate:"gte=0"`
	TaxRatePercent float64 `json:"tax_rate_percent" validate:"gte=0,lte=100"`
}

func (p ServicePartDTO) model() models.ServicePart {
	kind := p.DiscountKind
	if kind == "" {
		kind = string(billing.DiscountNone)
	}
	return models.ServicePart{
		ProductID:      p.ProductID,
		Description:    p.Description,
		Quantity:       p.Quantity,
		UnitPrice:      p.UnitPrice,
		DiscountKind:   kind,
		DiscountValue:  p.DiscountValue,
		TaxRatePercent: p.TaxRatePercent,
	}
}

type ServiceRecordCreateDTO struct {
	CustomerName  string           `json:"customer_name" validate:"required,max=120"`
	CustomerPhone string           `json:"customer_phone" validate:"required,max=20"`
	DeviceModel   string           `json:"device_model" validate:"required,max=120"`
	IMEI          string           `json:"imei" validate:"omitempty,max=32"`
	Issue         string           `json:"issue" validate:"required"`
	LaborCharge   float64          `json:"labor_charge" validate:"gte=0"`
	AdvancePaid   float64          `json:"advance_paid" validate:"gte=0"`
	Parts         []ServicePartDTO `json:"parts" validate:"dive"`
}

type ServiceRecordUpdateDTO struct {
	DeviceModel *string           `json:"device_model" validate:"omitempty,max=120"`
	IMEI        *string           `json:"imei" validate:"omitempty,max=32"`
	Issue       *string           `json:"issue"`
	Status      *string           `json:"status" validate:"omitempty,oneof=received in_progress ready delivered cancelled"`
	LaborCharge *float64          `json:"labor_charge" validate:"omitempty,gte=0"`
	AdvancePaid *float64          `json:"advance_paid" validate:"omitempty,gte=0"`
	Parts       *[]ServicePartDTO `json:"parts" normalize:"-" validate:"omitempty,dive"`
}

// ServiceLookup is the pre-fill payload for a service bill.
type ServiceLookup struct {
	Record        models.ServiceRecord   `json:"record"`
	Lines         []billing.LineItem     `json:"lines"`
	LaborCharge   float64                `json:"labor_charge"`
	AmountPrepaid float64                `json:"amount_prepaid"`
	Summary       billing.InvoiceSummary `json:"summary"`
}

func newServiceLookup(rec models.ServiceRecord) ServiceLookup {
	lines := rec.LineItems()
	summary := billing.NewCalculator(billing.ModeService).Compute(billing.Input{
		Lines:         lines,
		LaborCharge:   rec.LaborCharge,
		AmountPrepaid: rec.AdvancePaid,
	})
	return ServiceLookup{
		Record:        rec,
		Lines:         lines,
		LaborCharge:   rec.LaborCharge,
		AmountPrepaid: rec.AdvancePaid,
		Summary:       summary.Rounded(),
	}
}

func findServiceRecord(db *gorm.DB, serviceID string) (*models.ServiceRecord, error) {
	var rec models.ServiceRecord
	err := db.Preload("Parts", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("service_id = ?", strings.ToUpper(strings.TrimSpace(serviceID))).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "service record not found")
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// POST /api/service-records
func CreateServiceRecord(c *fiber.Ctx) error {
	var in ServiceRecordCreateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	utils.NormalizeDTO(&in)

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	rec := models.ServiceRecord{
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		DeviceModel:   in.DeviceModel,
		IMEI:          in.IMEI,
		Issue:         in.Issue,
		LaborCharge:   in.LaborCharge,
		AdvancePaid:   in.AdvancePaid,
	}
	for _, p := range in.Parts {
		rec.Parts = append(rec.Parts, p.model())
	}
	if err := db.Create(&rec).Error; err != nil {
		return err
	}
	if _, err := upsertCustomer(db, in.CustomerName, in.CustomerPhone); err != nil {
		return err
	}

	// a cached phone-only lookup may now point at an older record
	invalidatePhoneLookupAfterCommit(c, rec.CustomerPhone)
	publishAfterCommit(c, events.EventTypeServiceStatusChanged, rec.ServiceID, fiber.Map{
		"service_id": rec.ServiceID,
		"status":     rec.Status,
	})
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// GET /api/service-records?status=&phone=&limit=&offset=
func GetServiceRecords(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	q := db.Model(&models.ServiceRecord{})
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		q = q.Where("status = ?", status)
	}
	if phone := strings.TrimSpace(c.Query("phone")); phone != "" {
		q = q.Where("customer_phone = ?", phone)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}

	limit := utils.ParseIntDefault(c.Query("limit"), 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var records []models.ServiceRecord
	if err := q.Order("id DESC").
		Limit(limit).
		Offset(utils.ParseIntDefault(c.Query("offset"), 0)).
		Find(&records).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"service_records": records, "total": total})
}

// GET /api/service-records/:serviceId
func GetServiceRecord(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	rec, err := findServiceRecord(db, c.Params("serviceId"))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

// GET /api/service-records/lookup?service_id=&phone=
//
// With both identifiers the record must match both. With only a phone the
// newest open record for that phone is returned.
func LookupServiceRecord(c *fiber.Ctx) error {
	serviceID := strings.ToUpper(strings.TrimSpace(c.Query("service_id")))
	phone := strings.TrimSpace(c.Query("phone"))
	if serviceID == "" && phone == "" {
		return fiber.NewError(fiber.StatusBadRequest, "service_id or phone is required")
	}

	var cached ServiceLookup
	if deps.Cache.GetLookup(c.UserContext(), serviceID, phone, &cached) {
		metrics.LookupCache.WithLabelValues("hit").Inc()
		return c.JSON(cached)
	}
	metrics.LookupCache.WithLabelValues("miss").Inc()

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	q := db.Preload("Parts", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
	if serviceID != "" {
		q = q.Where("service_id = ?", serviceID)
	}
	if phone != "" {
		q = q.Where("customer_phone = ?", phone)
	}
	if serviceID == "" {
		q = q.Where("status NOT IN ?", []string{models.ServiceDelivered, models.ServiceCancelled})
	}

	var rec models.ServiceRecord
	err = q.Order("id DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "no matching service record")
	}
	if err != nil {
		return err
	}

	out := newServiceLookup(rec)
	deps.Cache.SetLookup(c.UserContext(), serviceID, phone, out, rec.ServiceID)
	return c.JSON(out)
}

// PATCH /api/service-records/:serviceId
func UpdateServiceRecord(c *fiber.Ctx) error {
	var in ServiceRecordUpdateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	utils.NormalizePtrDTO(&in)

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	rec, err := findServiceRecord(db, c.Params("serviceId"))
	if err != nil {
		return err
	}
	if rec.Closed() {
		return fiber.NewError(fiber.StatusConflict, "service record is already "+rec.Status)
	}
	if in.Status != nil && *in.Status == models.ServiceDelivered && rec.BillID == nil {
		return fiber.NewError(fiber.StatusConflict, "service record is delivered by saving its bill")
	}

	// Updates writes the new values back into rec
	prevStatus := rec.Status

	updates := utils.UpdatesFromPtrDTO(&in, nil)
	delete(updates, "parts")
	if len(updates) > 0 {
		if err := db.Model(rec).Updates(updates).Error; err != nil {
			return err
		}
	}

	if in.Parts != nil {
		if err := db.Where("service_record_id = ?", rec.ID).Delete(&models.ServicePart{}).Error; err != nil {
			return err
		}
		parts := make([]models.ServicePart, 0, len(*in.Parts))
		for _, p := range *in.Parts {
			part := p.model()
			part.ServiceRecordID = rec.ID
			parts = append(parts, part)
		}
		if len(parts) > 0 {
			if err := db.Create(&parts).Error; err != nil {
				return err
			}
		}
	}

	invalidateLookupAfterCommit(c, rec.ServiceID)
	if in.Status != nil && *in.Status != prevStatus {
		publishAfterCommit(c, events.EventTypeServiceStatusChanged, rec.ServiceID, fiber.Map{
			"service_id": rec.ServiceID,
			"from":       prevStatus,
			"status":     *in.Status,
		})
	}

	updated, err := findServiceRecord(db, rec.ServiceID)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}
