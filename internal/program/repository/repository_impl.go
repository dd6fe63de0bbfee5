package repository

import (
	"context"

	"github.com/smallbiznis/partnerflow/internal/program/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, program *domain.Program) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO programs (id, name, slug, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		program.ID,
		program.Name,
		program.Slug,
		program.CreatedAt,
		program.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Program, error) {
	return r.findOne(ctx, db, `SELECT id, name, slug, created_at, updated_at FROM programs WHERE id = ?`, id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Program, error) {
	return r.findOne(ctx, db, `SELECT id, name, slug, created_at, updated_at FROM programs WHERE slug = ?`, slug)
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Program, error) {
	var items []domain.Program
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, created_at, updated_at FROM programs ORDER BY created_at ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Program, error) {
	var p domain.Program
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}
