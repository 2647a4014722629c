package controllers

import (
	"errors"
	"fmt"
	"strings"

	"mobileshop-backend/database"
	"mobileshop-backend/middlewares"
	"mobileshop-backend/models"
	"mobileshop-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ProductCreateDTO struct {
	Name              string  `json:"name" validate:"required,max=200"`
	Brand             string  `json:"brand" validate:"omitempty,max=80"`
	Category          string  `json:"category" validate:"omitempty,max=80"`
	Condition         string  `json:"condition" validate:"omitempty,oneof=new second_hand"`
	IMEI              string  `json:"imei" validate:"omitempty,max=32"`
	CostPrice         float64 `json:"cost_price" validate:"gte=0"`
	SellPrice         float64 `json:"sell_price" validate:"gt=0"`
	TaxRatePercent    float64 `json:"tax_rate_percent" normalize:"-" validate:"gte=0,lte=100"`
	Stock             int     `json:"stock" validate:"gte=0"`
	LowStockThreshold int     `json:"low_stock_threshold" validate:"gte=0"`
	Active            *bool   `json:"active"`
}

type ProductUpdateDTO struct {
	Name              *string  `json:"name" validate:"omitempty,min=1,max=200"`
	Brand             *string  `json:"brand" validate:"omitempty,max=80"`
	Category          *string  `json:"category" validate:"omitempty,max=80"`
	Condition         *string  `json:"condition" validate:"omitempty,oneof=new second_hand"`
	IMEI              *string  `json:"imei" validate:"omitempty,max=32"`
	CostPrice         *float64 `json:"cost_price" validate:"omitempty,gte=0"`
	SellPrice         *float64 `json:"sell_price" validate:"omitempty,gt=0"`
	TaxRatePercent    *float64 `json:"tax_rate_percent" normalize:"-" validate:"omitempty,gte=0,lte=100"`
	Stock             *int     `json:"stock" validate:"omitempty,gte=0"`
	LowStockThreshold *int     `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	Active            *bool    `json:"active"`
}

// POST /api/products  (JSON array)
func CreateProducts(c *fiber.Ctx) error {
	var inputs []ProductCreateDTO
	if err := c.BodyParser(&inputs); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(inputs) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "at least one product is required")
	}

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	created := make([]models.Product, 0, len(inputs))
	for i := range inputs {
		in := inputs[i]
		if err := middlewares.ValidateStruct(&in); err != nil {
			return err
		}
		utils.NormalizeDTO(&in)

		product := models.Product{
			Name:              in.Name,
			Brand:             in.Brand,
			Category:          in.Category,
			Condition:         in.Condition,
			IMEI:              in.IMEI,
			CostPrice:         in.CostPrice,
			SellPrice:         in.SellPrice,
			TaxRatePercent:    in.TaxRatePercent,
			Stock:             in.Stock,
			LowStockThreshold: in.LowStockThreshold,
			Active:            in.Active == nil || *in.Active,
		}
		if err := db.Create(&product).Error; err != nil {
			return fmt.Errorf("create product at index %d: %w", i, err)
		}
		created = append(created, product)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// GET /api/products?category=&condition=&brand=&q=&low_stock=&active=
func GetProducts(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	q := db.Model(&models.Product{})
	if v := strings.TrimSpace(c.Query("category")); v != "" {
		q = q.Where("category = ?", v)
	}
	if v := strings.TrimSpace(c.Query("brand")); v != "" {
		q = q.Where("brand = ?", v)
	}
	if v := strings.TrimSpace(c.Query("condition")); v != "" {
		if !models.ValidCondition(v) {
			return fiber.NewError(fiber.StatusBadRequest, "condition must be new or second_hand")
		}
		// condition is a reserved word on MySQL
		q = q.Where(&models.Product{Condition: v})
	}
	if v := strings.TrimSpace(c.Query("q")); v != "" {
		like := "%" + strings.ToLower(v) + "%"
		q = q.Where("LOWER(name) LIKE ? OR imei = ?", like, v)
	}
	if c.QueryBool("low_stock") {
		q = q.Where("stock <= low_stock_threshold")
	}
	if v := c.Query("active"); v != "" {
		q = q.Where("active = ?", c.QueryBool("active"))
	}

	var products []models.Product
	if err := q.Order("name ASC").Find(&products).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"products": products})
}

// GET /api/products/:id
func GetProduct(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	var product models.Product
	if err := db.First(&product, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}
	return c.JSON(product)
}

// PATCH /api/products/:id
func UpdateProduct(c *fiber.Ctx) error {
	var in ProductUpdateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	utils.NormalizePtrDTO(&in)

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	var product models.Product
	if err := db.First(&product, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	updates := utils.UpdatesFromPtrDTO(&in, nil)
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	if err := db.Model(&product).Updates(updates).Error; err != nil {
		return err
	}
	if err := db.First(&product, "id = ?", product.Id).Error; err != nil {
		return err
	}
	return c.JSON(product)
}
