package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/partnerflow/internal/partner/domain"
	"github.com/smallbiznis/partnerflow/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const selectColumns = `SELECT id, program_id, group_id, name, email, status,
	total_leads, total_conversions, total_sale_amount, total_commissions,
	metrics_updated_at, evaluated_at, created_at, updated_at
	FROM partners`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, conn *gorm.DB, partner *domain.Partner) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO partners (id, program_id, group_id, name, email, status,
			total_leads, total_conversions, total_sale_amount, total_commissions,
			metrics_updated_at, evaluated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		partner.ID,
		partner.ProgramID,
		partner.GroupID,
		partner.Name,
		partner.Email,
		partner.Status,
		partner.TotalLeads,
		partner.TotalConversions,
		partner.TotalSaleAmount,
		partner.TotalCommissions,
		partner.MetricsUpdatedAt,
		partner.EvaluatedAt,
		partner.CreatedAt,
		partner.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, programID, id int64) (*domain.Partner, error) {
	return r.findOne(ctx, conn, selectColumns+` WHERE program_id = ? AND id = ?`, programID, id)
}

func (r *repo) FindByEmail(ctx context.Context, conn *gorm.DB, programID int64, email string) (*domain.Partner, error) {
	return r.findOne(ctx, conn, selectColumns+` WHERE program_id = ? AND email = ?`, programID, email)
}

func (r *repo) FindForUpdate(ctx context.Context, conn *gorm.DB, programID, id int64) (*domain.Partner, error) {
	stmt := conn.WithContext(ctx).
		Model(&domain.Partner{}).
		Where("program_id = ? AND id = ?", programID, id)
	if db.IsPostgres(conn) {
		stmt = stmt.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var items []domain.Partner
	if err := stmt.Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter) ([]*domain.Partner, error) {
	stmt := conn.WithContext(ctx).
		Model(&domain.Partner{}).
		Where("program_id = ?", filter.ProgramID)

	if filter.GroupID != 0 {
		stmt = stmt.Where("group_id = ?", filter.GroupID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Cursor != 0 {
		stmt = stmt.Where("id > ?", filter.Cursor)
	}

	stmt = stmt.Order("id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var items []*domain.Partner
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) AddActivity(ctx context.Context, conn *gorm.DB, programID, id int64, activity domain.Activity, at time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE partners
		 SET total_leads = total_leads + ?,
		     total_conversions = total_conversions + ?,
		     total_sale_amount = total_sale_amount + ?,
		     total_commissions = total_commissions + ?,
		     metrics_updated_at = ?,
		     updated_at = ?
		 WHERE program_id = ? AND id = ?`,
		activity.Leads,
		activity.Conversions,
		activity.SaleAmount,
		activity.Commissions,
		at,
		at,
		programID,
		id,
	).Error
}

func (r *repo) UpdateGroup(ctx context.Context, conn *gorm.DB, programID, id, groupID int64, at time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE partners SET group_id = ?, updated_at = ? WHERE program_id = ? AND id = ?`,
		groupID,
		at,
		programID,
		id,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, conn *gorm.DB, programID, id int64, status domain.Status, at time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE partners SET status = ?, updated_at = ? WHERE program_id = ? AND id = ?`,
		status,
		at,
		programID,
		id,
	).Error
}

func (r *repo) MoveAllInGroup(ctx context.Context, conn *gorm.DB, programID, fromGroupID, toGroupID int64, at time.Time) (int64, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE partners SET group_id = ?, updated_at = ? WHERE program_id = ? AND group_id = ?`,
		toGroupID,
		at,
		programID,
		fromGroupID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkEvaluated(ctx context.Context, conn *gorm.DB, id int64, at time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE partners SET evaluated_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) ClaimPendingEvaluation(ctx context.Context, conn *gorm.DB, limit int) ([]domain.Partner, error) {
	query := selectColumns + `
		WHERE metrics_updated_at IS NOT NULL
		  AND (evaluated_at IS NULL OR metrics_updated_at > evaluated_at)
		ORDER BY metrics_updated_at ASC, id ASC
		LIMIT ?`
	if db.IsPostgres(conn) {
		query += ` FOR UPDATE SKIP LOCKED`
	}

	var items []domain.Partner
	if err := conn.WithContext(ctx).Raw(query, limit).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, args ...any) (*domain.Partner, error) {
	var p domain.Partner
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}
