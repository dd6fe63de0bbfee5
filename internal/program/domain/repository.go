package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, program *Program) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Program, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Program, error)
	List(ctx context.Context, db *gorm.DB) ([]Program, error)
}
