package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

type User struct {
	Id        string `json:"id" gorm:"primaryKey;size:36"`
	FirstName string `json:"first_name" gorm:"not null"`
	LastName  string `json:"last_name" gorm:"not null"`
	Password  []byte `json:"-" gorm:"not null"`
	Email     string `json:"email" gorm:"unique;not null"`
	Role      string `json:"role" gorm:"size:20;not null"`

	// Set only on the account created by registration. The unique index admits
	// one such row; NULLs are not compared.
	BootstrapOwner *bool `json:"-" gorm:"uniqueIndex"`

	CreatedAt time.Time `json:"created_at"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.Id == "" {
		user.Id = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = RoleStaff
	}
	return
}

func (user *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return err
	}
	user.Password = hashedPassword
	return nil
}

func (user *User) ComparePassword(password string) error {
	return bcrypt.CompareHashAndPassword(user.Password, []byte(password))
}

func (user *User) FullName() string {
	if user.LastName == "" {
		return user.FirstName
	}
	return user.FirstName + " " + user.LastName
}
