package models

import "time"

// Dealer is a supplier the shop buys stock from.
type Dealer struct {
	Id            uint      `json:"id" gorm:"primaryKey"`
	Name          string    `json:"name" gorm:"not null;unique"`
	ContactPerson string    `json:"contact_person"`
	Phone         string    `json:"phone" gorm:"size:20;not null"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	GSTIN         string    `json:"gstin" gorm:"size:20"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}
