package controllers

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"mobileshop-backend/database"
	"mobileshop-backend/events"
	"mobileshop-backend/middlewares"
	"mobileshop-backend/models"
	"mobileshop-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type PurchaseItemDTO struct {
	ProductID string  `json:"product_id" validate:"required"`
	Quantity  int     `json:"quantity" validate:"gt=0"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
}

type PurchaseCreateDTO struct {
	DealerID    uint              `json:"dealer_id" validate:"required"`
	Items       []PurchaseItemDTO `json:"items" validate:"required,min=1,dive"`
	Note        string            `json:"note" validate:"omitempty,max=500"`
	PurchasedAt *time.Time        `json:"purchased_at"`
}

// POST /api/purchases
func CreatePurchase(c *fiber.Ctx) error {
	var in PurchaseCreateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	var dealer models.Dealer
	if err := db.First(&dealer, in.DealerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "unknown dealer")
		}
		return err
	}
	if !dealer.Active {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "dealer is inactive")
	}

	purchase := models.Purchase{
		DealerID:    dealer.Id,
		Note:        strings.TrimSpace(in.Note),
		PurchasedAt: time.Now().UTC(),
		CreatedBy:   middlewares.UserID(c),
	}
	if in.PurchasedAt != nil {
		purchase.PurchasedAt = in.PurchasedAt.UTC()
	}

	lineTotals := make([]float64, 0, len(in.Items))
	for _, it := range in.Items {
		id := strings.TrimSpace(it.ProductID)
		cost := utils.Round2(it.UnitCost)
		total := utils.Round2(float64(it.Quantity) * cost)
		purchase.Items = append(purchase.Items, models.PurchaseItem{
			ProductID: id,
			Quantity:  it.Quantity,
			UnitCost:  cost,
			LineTotal: total,
		})
		lineTotals = append(lineTotals, total)
	}
	purchase.Total = utils.SumRound2(lineTotals...)

	// lock rows in a stable order so concurrent purchases and bills don't deadlock
	items := append([]models.PurchaseItem(nil), purchase.Items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	for _, it := range items {
		res := db.Model(&models.Product{}).
			Where("id = ?", it.ProductID).
			Updates(map[string]any{
				"stock":      gorm.Expr("stock + ?", it.Quantity),
				"cost_price": it.UnitCost,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "unknown product "+it.ProductID)
		}
	}

	number, err := models.NextPurchaseNumber(db, purchase.PurchasedAt)
	if err != nil {
		return err
	}
	purchase.PurchaseNumber = number

	if err := db.Create(&purchase).Error; err != nil {
		return err
	}
	purchase.Dealer = dealer

	publishAfterCommit(c, events.EventTypePurchaseRecorded, purchase.PurchaseNumber, fiber.Map{
		"purchase_number": purchase.PurchaseNumber,
		"dealer_id":       dealer.Id,
		"dealer":          dealer.Name,
		"total":           purchase.Total,
		"items":           len(purchase.Items),
	})
	return c.Status(fiber.StatusCreated).JSON(purchase)
}

// GET /api/purchases?dealer_id=&from=&to=
func GetPurchases(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	q := db.Model(&models.Purchase{}).Preload("Dealer")
	if v := c.Query("dealer_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid dealer_id")
		}
		q = q.Where("dealer_id = ?", id)
	}
	from, to := utils.ParseDateRange(c.Query("from"), c.Query("to"))
	if !from.IsZero() {
		q = q.Where("purchased_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("purchased_at <= ?", to)
	}

	var purchases []models.Purchase
	if err := q.Order("purchased_at DESC, id DESC").Find(&purchases).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"purchases": purchases})
}

// GET /api/purchases/:id
func GetPurchase(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	var purchase models.Purchase
	err = db.Preload("Dealer").Preload("Items").
		First(&purchase, "id = ? OR purchase_number = ?", utils.ParseIntDefault(c.Params("id"), 0), strings.ToUpper(c.Params("id"))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "purchase not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(purchase)
}
