package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"mobileshop-backend/billing"
	"mobileshop-backend/cache"
	"mobileshop-backend/database"
	"mobileshop-backend/events"
	"mobileshop-backend/metrics"
	"mobileshop-backend/middlewares"
	"mobileshop-backend/models"
	"mobileshop-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const laborDescription = "Labor charge"

// BillLineDTO is one line as sent by the counter UI. Numbers are coerced
// forgivingly; price and tax rate default to the product's when omitted.
type BillLineDTO struct {
	ProductID   *string `json:"product_id"`
	Description string  `json:"description"`
	billing.RawLine
}

type BillCreateDTO struct {
	Kind          string                `json:"kind" validate:"required,oneof=sales service second_hand"`
	CustomerName  string                `json:"customer_name"`
	CustomerPhone string                `json:"customer_phone" validate:"omitempty,max=20"`
	ServiceID     string                `json:"service_id"`
	PaymentMethod string                `json:"payment_method"`
	Items         []BillLineDTO         `json:"items"`
	Draft         *BillLineDTO          `json:"draft"`
	Adjustment    billing.RawAdjustment `json:"adjustment"`
	LaborCharge   any                   `json:"labor_charge"`
	AmountPrepaid any                   `json:"amount_prepaid"`
}

type PaymentCreateDTO struct {
	Amount    float64    `json:"amount" validate:"gt=0"`
	Method    string     `json:"method" validate:"required"`
	Reference string     `json:"reference" validate:"omitempty,max=120"`
	Note      string     `json:"note" validate:"omitempty,max=500"`
	PaidAt    *time.Time `json:"paid_at"`
}

// draftBill is a bill request resolved against products and service records,
// ready for the engine. items is parallel to calc.Lines(input).
type draftBill struct {
	mode     billing.Mode
	calc     *billing.Calculator
	input    billing.Input
	items    []models.BillItem
	products map[string]*models.Product
	record   *models.ServiceRecord
}

func (d *draftBill) summary() billing.InvoiceSummary {
	return d.calc.Compute(d.input)
}

func (d *draftBill) saveRequest(in *BillCreateDTO) billing.SaveRequest {
	return billing.SaveRequest{
		Mode:          d.mode,
		CustomerName:  in.CustomerName,
		ServiceID:     in.ServiceID,
		PaymentMethod: in.PaymentMethod,
		Lines:         d.calc.Lines(d.input),
	}
}

func resolveBill(db *gorm.DB, in *BillCreateDTO) (*draftBill, error) {
	mode, ok := billing.ParseMode(in.Kind)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, "kind must be one of sales, service, second_hand")
	}
	d := &draftBill{
		mode:     mode,
		calc:     billing.NewCalculator(mode),
		products: map[string]*models.Product{},
	}

	if mode == billing.ModeService && strings.TrimSpace(in.ServiceID) != "" {
		var rec models.ServiceRecord
		err := db.Preload("Parts").Where("service_id = ?", strings.ToUpper(strings.TrimSpace(in.ServiceID))).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "service record not found")
		}
		if err != nil {
			return nil, err
		}
		d.record = &rec
	}

	// a service bill sent without lines bills the parts fitted on the record
	items := in.Items
	if len(items) == 0 && in.Draft == nil && d.record != nil {
		items = partLines(d.record.Parts)
	}

	lines := make([]billing.LineItem, 0, len(items))
	for i := range items {
		item, line, err := d.resolveLine(db, items[i])
		if err != nil {
			return nil, err
		}
		d.items = append(d.items, item)
		lines = append(lines, line)
	}

	d.input = billing.Input{
		Lines:         lines,
		Adjustment:    in.Adjustment.Adjustment(),
		LaborCharge:   billing.ParseNumber(in.LaborCharge),
		AmountPrepaid: billing.ParseNumber(in.AmountPrepaid),
	}

	if in.Draft != nil {
		item, line, err := d.resolveLine(db, *in.Draft)
		if err != nil {
			return nil, err
		}
		d.input.Draft = &line
		if line.Active() {
			d.items = append(d.items, item)
		}
	}

	if d.record != nil {
		if in.LaborCharge == nil {
			d.input.LaborCharge = d.record.LaborCharge
		}
		if in.AmountPrepaid == nil {
			d.input.AmountPrepaid = d.record.AdvancePaid
		}
	}

	if d.calc.IncludesLabor(d.input) {
		labor := billing.LaborLine(d.input.LaborCharge)
		d.items = append(d.items, models.BillItem{
			Description:  laborDescription,
			IsLabor:      true,
			Quantity:     labor.Quantity,
			UnitPrice:    labor.UnitPrice,
			DiscountKind: string(labor.DiscountKind),
		})
	}

	for i, l := range d.calc.Lines(d.input) {
		r := billing.ComputeLine(l)
		d.items[i].SetResult(billing.LineResult{
			Gross:    utils.Round2(r.Gross),
			Discount: utils.Round2(r.Discount),
			Net:      utils.Round2(r.Net),
			Tax:      utils.Round2(r.Tax),
		})
	}
	return d, nil
}

// activeItems drops lines that contribute nothing (zero quantity or price).
func (d *draftBill) activeItems() []models.BillItem {
	out := make([]models.BillItem, 0, len(d.items))
	for _, it := range d.items {
		if it.IsLabor || it.LineItem().Active() {
			out = append(out, it)
		}
	}
	return out
}

func partLines(parts []models.ServicePart) []BillLineDTO {
	out := make([]BillLineDTO, 0, len(parts))
	for _, p := range parts {
		out = append(out, BillLineDTO{
			ProductID:   p.ProductID,
			Description: p.Description,
			RawLine: billing.RawLine{
				Quantity:       p.Quantity,
				UnitPrice:      p.UnitPrice,
				DiscountKind:   p.DiscountKind,
				DiscountValue:  p.DiscountValue,
				TaxRatePercent: p.TaxRatePercent,
			},
		})
	}
	return out
}

func (d *draftBill) resolveLine(db *gorm.DB, dto BillLineDTO) (models.BillItem, billing.LineItem, error) {
	line := dto.LineItem()
	item := models.BillItem{Description: strings.TrimSpace(dto.Description)}

	if dto.ProductID != nil && strings.TrimSpace(*dto.ProductID) != "" {
		p, err := d.product(db, strings.TrimSpace(*dto.ProductID))
		if err != nil {
			return item, line, err
		}
		if d.mode == billing.ModeSecondHand && p.Condition != models.ConditionSecondHand {
			return item, line, billing.Precondition("items", fmt.Sprintf("%s is not a second-hand product", p.Name))
		}
		if dto.UnitPrice == nil {
			line.UnitPrice = p.SellPrice
		}
		if dto.TaxRatePercent == nil {
			line.TaxRatePercent = p.TaxRatePercent
		}
		if item.Description == "" {
			item.Description = p.Name
		}
		item.ProductID = &p.Id
		item.CostPrice = p.CostPrice
	}

	item.Quantity = line.Quantity
	item.UnitPrice = line.UnitPrice
	item.DiscountKind = string(line.DiscountKind)
	item.DiscountValue = line.DiscountValue
	item.TaxRatePercent = line.TaxRatePercent
	return item, line, nil
}

func (d *draftBill) product(db *gorm.DB, id string) (*models.Product, error) {
	if p, ok := d.products[id]; ok {
		return p, nil
	}
	var p models.Product
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusUnprocessableEntity, "unknown product "+id)
		}
		return nil, err
	}
	d.products[id] = &p
	return &p, nil
}

// POST /api/bills/preview
func PreviewBill(c *fiber.Ctx) error {
	var in BillCreateDTO
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	d, err := resolveBill(db, &in)
	if err != nil {
		return err
	}
	s := d.summary().Rounded()
	return c.JSON(fiber.Map{
		"summary":        s,
		"formatted":      s.Formatted(deps.CurrencySymbol),
		"items":          d.items,
		"includes_labor": d.calc.IncludesLabor(d.input),
	})
}

// POST /api/bills
func CreateBill(c *fiber.Ctx) error {
	var in BillCreateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	d, err := resolveBill(db, &in)
	if err != nil {
		return err
	}
	if d.record != nil {
		if strings.TrimSpace(in.CustomerName) == "" {
			in.CustomerName = d.record.CustomerName
		}
		if strings.TrimSpace(in.CustomerPhone) == "" {
			in.CustomerPhone = d.record.CustomerPhone
		}
	}
	if err := billing.CheckPreconditions(d.saveRequest(&in)); err != nil {
		return err
	}
	if d.record != nil && d.record.Closed() {
		return fiber.NewError(fiber.StatusConflict, "service record is already "+d.record.Status)
	}

	summary := d.summary().Rounded()

	customerID, err := upsertCustomer(db, in.CustomerName, in.CustomerPhone)
	if err != nil {
		return err
	}

	items := d.activeItems()
	if d.mode.MovesStock() {
		if err := takeStock(db, items, d.products); err != nil {
			return err
		}
	}

	prefix := d.mode.Prefix()
	release, err := deps.Cache.Lock(c.UserContext(), "bill_number:"+prefix, 10*time.Second)
	if errors.Is(err, cache.ErrLocked) {
		return fiber.NewError(fiber.StatusConflict, "another bill is being numbered, retry")
	}
	database.Finally(c, release)

	now := time.Now().UTC()
	number, err := models.NextBillNumber(db, prefix, now)
	if err != nil {
		return err
	}
	adjustment, err := json.Marshal(d.input.Adjustment)
	if err != nil {
		return err
	}

	bill := models.Bill{
		BillNumber:    number,
		Kind:          string(d.mode),
		CustomerID:    customerID,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
		PaymentMethod: strings.ToLower(strings.TrimSpace(in.PaymentMethod)),
		Items:         items,
		Adjustment:    adjustment,
		CreatedBy:     middlewares.UserID(c),
		BilledAt:      now,
	}
	if d.calc.IncludesLabor(d.input) {
		bill.LaborCharge = utils.Round2(d.input.LaborCharge)
	}
	if d.record != nil {
		bill.ServiceRecordID = &d.record.ID
	}
	bill.ApplySummary(summary)

	if err := db.Create(&bill).Error; err != nil {
		return err
	}

	if d.record != nil {
		if err := db.Model(d.record).Updates(map[string]any{
			"status":  models.ServiceDelivered,
			"bill_id": bill.ID,
		}).Error; err != nil {
			return err
		}
		invalidateLookupAfterCommit(c, d.record.ServiceID)
		publishAfterCommit(c, events.EventTypeServiceStatusChanged, d.record.ServiceID, fiber.Map{
			"service_id": d.record.ServiceID,
			"status":     models.ServiceDelivered,
			"bill":       bill.BillNumber,
		})
	}

	kind, grand := bill.Kind, bill.GrandTotal
	database.AfterCommit(c, func() { metrics.ObserveBill(kind, grand) })
	publishAfterCommit(c, events.EventTypeBillSaved, bill.BillNumber, fiber.Map{
		"bill_number":    bill.BillNumber,
		"kind":           bill.Kind,
		"customer_name":  bill.CustomerName,
		"payment_method": bill.PaymentMethod,
		"summary":        summary.Record(),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"bill":      bill,
		"summary":   summary,
		"formatted": summary.Formatted(deps.CurrencySymbol),
	})
}

// upsertCustomer links the bill to a customer by phone, creating one on first visit.
func upsertCustomer(db *gorm.DB, name, phone string) (*uint, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, nil
	}
	var cust models.Customer
	err := db.Where("phone = ?", phone).First(&cust).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cust = models.Customer{Name: strings.TrimSpace(name), Phone: phone}
		err = db.Create(&cust).Error
	}
	if err != nil {
		return nil, err
	}
	return &cust.Id, nil
}

// takeStock decrements stock for every product-backed line, failing with 409
// when any product would go below zero.
func takeStock(db *gorm.DB, items []models.BillItem, products map[string]*models.Product) error {
	qty := map[string]float64{}
	for _, it := range items {
		if it.ProductID == nil || it.Quantity <= 0 {
			continue
		}
		qty[*it.ProductID] += it.Quantity
	}

	ids := make([]string, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		q := qty[id]
		if q != math.Trunc(q) {
			return billing.Precondition("items", "product quantities must be whole units")
		}
		n := int(q)
		res := db.Model(&models.Product{}).
			Where("id = ? AND stock >= ?", id, n).
			UpdateColumn("stock", gorm.Expr("stock - ?", n))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			metrics.StockShortages.Inc()
			name := id
			if p, ok := products[id]; ok {
				name = p.Name
			}
			return fiber.NewError(fiber.StatusConflict, "insufficient stock for "+name)
		}
	}
	return nil
}

// GET /api/bills?kind=&from=&to=&phone=&unpaid=&limit=&offset=
func GetBills(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	q := db.Model(&models.Bill{})
	if kind := strings.TrimSpace(c.Query("kind")); kind != "" {
		q = q.Where("kind = ?", kind)
	}
	from, to := utils.ParseDateRange(c.Query("from"), c.Query("to"))
	if !from.IsZero() {
		q = q.Where("billed_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("billed_at <= ?", to)
	}
	if phone := strings.TrimSpace(c.Query("phone")); phone != "" {
		q = q.Where("customer_phone = ?", phone)
	}
	if c.QueryBool("unpaid") {
		q = q.Where("balance_due > 0")
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}

	limit := utils.ParseIntDefault(c.Query("limit"), 50)
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := utils.ParseIntDefault(c.Query("offset"), 0)

	var bills []models.Bill
	if err := q.Order("billed_at DESC, id DESC").Limit(limit).Offset(offset).Find(&bills).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"bills": bills, "total": total})
}

// findBill resolves :id as a numeric id or a bill number.
func findBill(db *gorm.DB, ref string, preload bool) (*models.Bill, error) {
	ref = strings.TrimSpace(ref)
	q := db
	if preload {
		q = q.Preload("Items").Preload("Customer")
	}
	var bill models.Bill
	var err error
	if id, convErr := strconv.ParseUint(ref, 10, 64); convErr == nil {
		err = q.First(&bill, "id = ?", id).Error
	} else {
		err = q.First(&bill, "bill_number = ?", strings.ToUpper(ref)).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "bill not found")
	}
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

// GET /api/bills/:id
func GetBill(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	bill, err := findBill(db, c.Params("id"), true)
	if err != nil {
		return err
	}
	s := bill.Summary()
	return c.JSON(fiber.Map{
		"bill":      bill,
		"formatted": s.Formatted(deps.CurrencySymbol),
	})
}

// POST /api/bills/:id/payments
func CreatePayment(c *fiber.Ctx) error {
	var in PaymentCreateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	method := strings.ToLower(strings.TrimSpace(in.Method))
	if !billing.ValidPaymentMethod(method) || method == billing.PaymentCredit {
		return billing.Precondition("method", "payment method must be one of cash, card, upi, bank_transfer")
	}

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	bill, err := findBill(db, c.Params("id"), false)
	if err != nil {
		return err
	}

	amount := utils.Round2(in.Amount)
	if amount > bill.BalanceDue {
		return billing.Precondition("amount", fmt.Sprintf("payment exceeds balance due of %s", billing.FormatMoney(bill.BalanceDue, deps.CurrencySymbol)))
	}

	paidAt := time.Now().UTC()
	if in.PaidAt != nil {
		paidAt = in.PaidAt.UTC()
	}
	payment := models.Payment{
		BillID:    bill.ID,
		Amount:    amount,
		Method:    method,
		Reference: strings.TrimSpace(in.Reference),
		Note:      strings.TrimSpace(in.Note),
		PaidAt:    paidAt,
	}
	if err := db.Create(&payment).Error; err != nil {
		return err
	}

	paid := utils.SumRound2(bill.PaidTotal, amount)
	balance := utils.SumRound2(bill.BalanceDue, -amount)
	// compare-and-set on the balance read above; a concurrent payment that
	// committed first leaves no row to update
	res := db.Model(&models.Bill{}).
		Where("id = ? AND balance_due = ?", bill.ID, bill.BalanceDue).
		Updates(map[string]any{
			"paid_total":  paid,
			"balance_due": balance,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusConflict, "bill balance changed while recording the payment; reload and retry")
	}

	database.AfterCommit(c, metrics.PaymentsRecorded.Inc)
	publishAfterCommit(c, events.EventTypePaymentRecorded, bill.BillNumber, fiber.Map{
		"bill_number": bill.BillNumber,
		"amount":      amount,
		"method":      method,
		"balance_due": balance,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment":     payment,
		"paid_total":  paid,
		"balance_due": balance,
	})
}

// GET /api/bills/:id/payments
func ListPayments(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	bill, err := findBill(db, c.Params("id"), false)
	if err != nil {
		return err
	}
	var payments []models.Payment
	if err := db.Where("bill_id = ?", bill.ID).Order("paid_at ASC, id ASC").Find(&payments).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"payments": payments, "paid_total": bill.PaidTotal, "balance_due": bill.BalanceDue})
}
