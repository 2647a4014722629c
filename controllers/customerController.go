package controllers

import (
	"errors"
	"strings"

	"mobileshop-backend/database"
	"mobileshop-backend/middlewares"
	"mobileshop-backend/models"
	"mobileshop-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CustomerCreateDTO struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"required,max=20"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address"`
}

type CustomerUpdateDTO struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=120"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Address *string `json:"address"`
}

func findCustomerByPhone(db *gorm.DB, phone string) (*models.Customer, error) {
	var customer models.Customer
	err := db.Where("phone = ?", strings.TrimSpace(phone)).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "customer not found")
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// POST /api/customers
func CreateCustomer(c *fiber.Ctx) error {
	var in CustomerCreateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	utils.NormalizeDTO(&in)

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	var exists int64
	if err := db.Model(&models.Customer{}).Where("phone = ?", in.Phone).Count(&exists).Error; err != nil {
		return err
	}
	if exists > 0 {
		return fiber.NewError(fiber.StatusConflict, "a customer with this phone already exists")
	}

	customer := models.Customer{
		Name:    in.Name,
		Phone:   in.Phone,
		Email:   in.Email,
		Address: in.Address,
	}
	if err := db.Create(&customer).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(customer)
}

// GET /api/customers?q=
func GetCustomers(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	q := db.Model(&models.Customer{})
	if v := strings.TrimSpace(c.Query("q")); v != "" {
		q = q.Where("LOWER(name) LIKE ? OR phone LIKE ?", "%"+strings.ToLower(v)+"%", v+"%")
	}

	var customers []models.Customer
	if err := q.Order("name ASC").Limit(200).Find(&customers).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"customers": customers})
}

// GET /api/customers/:phone
func GetCustomer(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	customer, err := findCustomerByPhone(db, c.Params("phone"))
	if err != nil {
		return err
	}

	var bills []models.Bill
	if err := db.Where("customer_id = ?", customer.Id).
		Order("billed_at DESC").Limit(20).
		Find(&bills).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"customer": customer, "recent_bills": bills})
}

// PATCH /api/customers/:phone
func UpdateCustomer(c *fiber.Ctx) error {
	var in CustomerUpdateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	utils.NormalizePtrDTO(&in)

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	customer, err := findCustomerByPhone(db, c.Params("phone"))
	if err != nil {
		return err
	}

	updates := utils.UpdatesFromPtrDTO(&in, nil)
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	if err := db.Model(customer).Updates(updates).Error; err != nil {
		return err
	}
	customer, err = findCustomerByPhone(db, customer.Phone)
	if err != nil {
		return err
	}
	return c.JSON(customer)
}
