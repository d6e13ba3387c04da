package models

import "time"

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleFarmer UserRole = "farmer"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"size:120;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         UserRole  `gorm:"size:20;not null" json:"role"`
	Location     string    `gorm:"size:200" json:"location"`
	District     string    `gorm:"size:100" json:"district"` // used for district-wise pricing
	IsSuspended  bool      `gorm:"not null;default:false" json:"is_suspended"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
