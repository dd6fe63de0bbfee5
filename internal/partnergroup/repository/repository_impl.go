package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/partnerflow/internal/moverule"
	"github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const selectColumns = `SELECT id, program_id, name, slug, color, is_default, move_rules, created_at, updated_at
	FROM partner_groups`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, group *domain.PartnerGroup) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO partner_groups (id, program_id, name, slug, color, is_default, move_rules, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID,
		group.ProgramID,
		group.Name,
		group.Slug,
		group.Color,
		group.IsDefault,
		normalizeRules(group.MoveRules),
		group.CreatedAt,
		group.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, programID, id int64) (*domain.PartnerGroup, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE program_id = ? AND id = ?`, programID, id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, programID int64, slug string) (*domain.PartnerGroup, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE program_id = ? AND slug = ?`, programID, slug)
}

func (r *repo) FindDefault(ctx context.Context, db *gorm.DB, programID int64) (*domain.PartnerGroup, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE program_id = ? AND is_default = ?`, programID, true)
}

func (r *repo) FindAll(ctx context.Context, db *gorm.DB, programID int64) ([]domain.PartnerGroup, error) {
	var items []domain.PartnerGroup
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE program_id = ? ORDER BY created_at ASC, id ASC`,
		programID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, group *domain.PartnerGroup) error {
	if group == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE partner_groups
		 SET name = ?, slug = ?, color = ?, updated_at = ?
		 WHERE program_id = ? AND id = ?`,
		group.Name,
		group.Slug,
		group.Color,
		group.UpdatedAt,
		group.ProgramID,
		group.ID,
	).Error
}

func (r *repo) UpdateMoveRules(ctx context.Context, db *gorm.DB, programID, id int64, rules []moverule.Rule, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE partner_groups SET move_rules = ?, updated_at = ? WHERE program_id = ? AND id = ?`,
		normalizeRules(rules),
		updatedAt,
		programID,
		id,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, programID, id int64) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM partner_groups WHERE program_id = ? AND id = ? AND is_default = ?`,
		programID,
		id,
		false,
	).Error
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.PartnerGroup, error) {
	var g domain.PartnerGroup
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&g).Error; err != nil {
		return nil, err
	}
	if g.ID == 0 {
		return nil, nil
	}
	return &g, nil
}

// normalizeRules keeps the column a JSON array so an empty rule set never reads back as null.
func normalizeRules(rules []moverule.Rule) datatypes.JSONSlice[moverule.Rule] {
	if rules == nil {
		return datatypes.JSONSlice[moverule.Rule]{}
	}
	return datatypes.JSONSlice[moverule.Rule](rules)
}
