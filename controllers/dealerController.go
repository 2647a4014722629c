package controllers

import (
	"errors"
	"strconv"

	"mobileshop-backend/database"
	"mobileshop-backend/middlewares"
	"mobileshop-backend/models"
	"mobileshop-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DealerCreateDTO struct {
	Name          string `json:"name" validate:"required,max=120"`
	ContactPerson string `json:"contact_person" validate:"omitempty,max=120"`
	Phone         string `json:"phone" validate:"required,max=20"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address"`
	GSTIN         string `json:"gstin" validate:"omitempty,len=15,alphanum"`
}

type DealerUpdateDTO struct {
	ContactPerson *string `json:"contact_person" validate:"omitempty,max=120"`
	Phone         *string `json:"phone" validate:"omitempty,max=20"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Address       *string `json:"address"`
	GSTIN         *string `json:"gstin" validate:"omitempty,len=15,alphanum"`
	Active        *bool   `json:"active"`
}

// POST /api/dealers
func CreateDealer(c *fiber.Ctx) error {
	var in DealerCreateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	utils.NormalizeDTO(&in)

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	var exists int64
	if err := db.Model(&models.Dealer{}).Where("name = ?", in.Name).Count(&exists).Error; err != nil {
		return err
	}
	if exists > 0 {
		return fiber.NewError(fiber.StatusConflict, "dealer already exists")
	}

	dealer := models.Dealer{
		Name:          in.Name,
		ContactPerson: in.ContactPerson,
		Phone:         in.Phone,
		Email:         in.Email,
		Address:       in.Address,
		GSTIN:         in.GSTIN,
		Active:        true,
	}
	if err := db.Create(&dealer).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dealer)
}

// GET /api/dealers
func GetDealers(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	q := db.Model(&models.Dealer{})
	if c.Query("active") != "" {
		q = q.Where("active = ?", c.QueryBool("active"))
	}
	var dealers []models.Dealer
	if err := q.Order("name ASC").Find(&dealers).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"dealers": dealers})
}

// PATCH /api/dealers/:id
func UpdateDealer(c *fiber.Ctx) error {
	var in DealerUpdateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	utils.NormalizePtrDTO(&in)

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid dealer id")
	}

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	var dealer models.Dealer
	if err := db.First(&dealer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "dealer not found")
		}
		return err
	}

	updates := utils.UpdatesFromPtrDTO(&in, nil)
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	if err := db.Model(&dealer).Updates(updates).Error; err != nil {
		return err
	}
	if err := db.First(&dealer, id).Error; err != nil {
		return err
	}
	return c.JSON(dealer)
}
