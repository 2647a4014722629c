package controllers

import (
	"errors"
	"strings"

	"mobileshop-backend/database"
	"mobileshop-backend/middlewares"
	"mobileshop-backend/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type RegisterDTO struct {
	FirstName       string `json:"first_name" validate:"required,max=80"`
	LastName        string `json:"last_name" validate:"omitempty,max=80"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

type UserCreateDTO struct {
	RegisterDTO
	Role string `json:"role" validate:"omitempty,oneof=owner staff"`
}

type LoginDTO struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func createUser(db *gorm.DB, in RegisterDTO, role string, bootstrap bool) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var exists int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	user := models.User{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     email,
		Role:      role,
	}
	if bootstrap {
		user.BootstrapOwner = &bootstrap
	}
	if err := user.SetPassword(in.Password); err != nil {
		return nil, err
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func userJSON(u *models.User) fiber.Map {
	return fiber.Map{
		"id":    u.Id,
		"name":  u.FullName(),
		"email": u.Email,
		"role":  u.Role,
	}
}

// Register creates the shop owner account. It only works while no user
// exists; further accounts are added by the owner via CreateUser.
func Register(c *fiber.Ctx) error {
	var in RegisterDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	var users int64
	if err := db.Model(&models.User{}).Count(&users).Error; err != nil {
		return err
	}
	if users > 0 {
		return fiber.NewError(fiber.StatusForbidden, "registration is closed; ask the shop owner for an account")
	}

	// a concurrent first registration trips the bootstrap unique index
	user, err := createUser(db, in, models.RoleOwner, true)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fiber.NewError(fiber.StatusForbidden, "registration is closed; ask the shop owner for an account")
	}
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(userJSON(user))
}

// POST /api/users (owner only)
func CreateUser(c *fiber.Ctx) error {
	var in UserCreateDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	role := in.Role
	if role == "" {
		role = models.RoleStaff
	}

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	user, err := createUser(db, in.RegisterDTO, role, false)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(userJSON(user))
}

func Login(c *fiber.Ctx) error {
	var in LoginDTO
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}

	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	var user models.User
	err = db.Where("email = ?", strings.ToLower(strings.TrimSpace(in.Email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return err
	}
	if err := user.ComparePassword(in.Password); err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := middlewares.GenerateJWT(user.Id, user.Role)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  userJSON(&user),
	})
}

// Logout is a client-side no-op: bearer tokens are not stored server side and
// simply expire.
func Logout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "success",
	})
}

// GET /api/me
func Me(c *fiber.Ctx) error {
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	var user models.User
	if err := db.First(&user, "id = ?", middlewares.UserID(c)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "user no longer exists")
		}
		return err
	}
	return c.JSON(userJSON(&user))
}
