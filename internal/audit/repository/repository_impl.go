package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/partnerflow/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

// List pages newest first. It fetches one row past Limit so the caller can
// tell whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	conds := []string{"program_id = ?"}
	args := []any{filter.ProgramID}
	eq := func(column, value string) {
		if value = strings.TrimSpace(value); value != "" {
			conds = append(conds, column+" = ?")
			args = append(args, value)
		}
	}
	eq("action", filter.Action)
	eq("target_type", filter.TargetType)
	eq("target_id", filter.TargetID)
	eq("actor_type", filter.ActorType)

	if filter.StartAt != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.EndAt.UTC())
	}
	if c := filter.Cursor; c != nil {
		conds = append(conds, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, c.CreatedAt, c.CreatedAt, c.ID)
	}

	query := `SELECT id, program_id, actor_type, actor_id, action, target_type, target_id,
			metadata, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit+1)
	}

	var logs []*domain.AuditLog
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
