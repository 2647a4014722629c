package controllers

import (
	"mobileshop-backend/billing"
	"mobileshop-backend/database"
	"mobileshop-backend/models"
	"mobileshop-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type kindTotals struct {
	Kind       string  `json:"kind"`
	Bills      int64   `json:"bills"`
	GrandTotal float64 `json:"grand_total"`
	TaxTotal   float64 `json:"tax_total"`
	BalanceDue float64 `json:"balance_due"`
}

type productMargin struct {
	Revenue float64
	Cost    float64
}

type Dashboard struct {
	From            string       `json:"from,omitempty"`
	To              string       `json:"to,omitempty"`
	BillCount       int64        `json:"bill_count"`
	ByKind          []kindTotals `json:"by_kind"`
	SalesTotal      float64      `json:"sales_total"`
	ServiceTotal    float64      `json:"service_total"`
	SecondHand      float64      `json:"second_hand_total"`
	TaxCollected    float64      `json:"tax_collected"`
	Outstanding     float64      `json:"outstanding_balance"`
	PurchaseSpend   float64      `json:"purchase_spend"`
	AverageMargin   float64      `json:"average_margin_percent"`
	LowStockCount   int64        `json:"low_stock_count"`
	OpenServiceJobs int64        `json:"open_service_jobs"`
}

// GET /api/dashboard?from=&to=
func GetDashboard(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	from, to := utils.ParseDateRange(c.Query("from"), c.Query("to"))
	between := func(q *gorm.DB, column string) *gorm.DB {
		if !from.IsZero() {
			q = q.Where(column+" >= ?", from)
		}
		if !to.IsZero() {
			q = q.Where(column+" <= ?", to)
		}
		return q
	}

	d := Dashboard{From: c.Query("from"), To: c.Query("to")}

	var rows []kindTotals
	if err := between(db.Model(&models.Bill{}), "billed_at").
		Select("kind, COUNT(*) AS bills, COALESCE(SUM(grand_total),0) AS grand_total, COALESCE(SUM(tax_total),0) AS tax_total, COALESCE(SUM(balance_due),0) AS balance_due").
		Group("kind").Order("kind").
		Scan(&rows).Error; err != nil {
		return err
	}
	d.ByKind = rows

	var taxes, outstanding []float64
	for _, r := range rows {
		d.BillCount += r.Bills
		switch billing.Mode(r.Kind) {
		case billing.ModeSales:
			d.SalesTotal = utils.Round2(r.GrandTotal)
		case billing.ModeService:
			d.ServiceTotal = utils.Round2(r.GrandTotal)
		case billing.ModeSecondHand:
			d.SecondHand = utils.Round2(r.GrandTotal)
		}
		taxes = append(taxes, r.TaxTotal)
		outstanding = append(outstanding, r.BalanceDue)
	}
	d.TaxCollected = utils.SumRound2(taxes...)
	d.Outstanding = utils.SumRound2(outstanding...)

	var spend float64
	if err := between(db.Model(&models.Purchase{}), "purchased_at").
		Select("COALESCE(SUM(total),0)").
		Row().Scan(&spend); err != nil {
		return err
	}
	d.PurchaseSpend = utils.Round2(spend)

	var m productMargin
	if err := between(db.Table("bill_items").
		Joins("JOIN bills ON bills.id = bill_items.bill_id").
		Where("bill_items.product_id IS NOT NULL AND bill_items.is_labor = ?", false), "bills.billed_at").
		Select("COALESCE(SUM(bill_items.net),0) AS revenue, COALESCE(SUM(bill_items.cost_price * bill_items.quantity),0) AS cost").
		Scan(&m).Error; err != nil {
		return err
	}
	d.AverageMargin = utils.Round2(billing.AverageMargin(m.Revenue, m.Cost))

	if err := db.Model(&models.Product{}).
		Where("active = ? AND stock <= low_stock_threshold", true).
		Count(&d.LowStockCount).Error; err != nil {
		return err
	}
	if err := db.Model(&models.ServiceRecord{}).
		Where("status NOT IN ?", []string{models.ServiceDelivered, models.ServiceCancelled}).
		Count(&d.OpenServiceJobs).Error; err != nil {
		return err
	}

	return c.JSON(d)
}
