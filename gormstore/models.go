package gormstore

import "time"

// User is an end-user row. Users are created on first successful login.
type User struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`    // UUID.
	Email     string    `gorm:"type:text;not null;uniqueIndex"` // Normalized address.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// Admin is an administrator row. Administrators are provisioned out of
// band; inactive rows cannot log in.
type Admin struct {
	ID            string    `gorm:"type:varchar(36);primaryKey"`
	Email         string    `gorm:"type:text;not null;uniqueIndex"`
	AccessLevel   int       `gorm:"not null;default:0"`
	ClubOrSociety string    `gorm:"type:text"`
	Active        bool      `gorm:"not null;default:true"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime"`
}
