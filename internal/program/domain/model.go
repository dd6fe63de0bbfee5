// Package domain contains the program model that scopes partners and groups.
package domain

import "time"

// Program is the tenant boundary: every group, partner and audit entry belongs to one.
type Program struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Slug      string    `json:"slug" gorm:"type:text;not null;uniqueIndex:ux_programs_slug"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Program) TableName() string { return "programs" }
