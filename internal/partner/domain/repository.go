package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, partner *Partner) error
	FindByID(ctx context.Context, db *gorm.DB, programID, id int64) (*Partner, error)
	FindByEmail(ctx context.Context, db *gorm.DB, programID int64, email string) (*Partner, error)
	// FindForUpdate locks the partner row for the rest of the transaction on dialects that support it.
	FindForUpdate(ctx context.Context, db *gorm.DB, programID, id int64) (*Partner, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Partner, error)
	AddActivity(ctx context.Context, db *gorm.DB, programID, id int64, activity Activity, at time.Time) error
	UpdateGroup(ctx context.Context, db *gorm.DB, programID, id, groupID int64, at time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, programID, id int64, status Status, at time.Time) error
	MoveAllInGroup(ctx context.Context, db *gorm.DB, programID, fromGroupID, toGroupID int64, at time.Time) (int64, error)
	MarkEvaluated(ctx context.Context, db *gorm.DB, id int64, at time.Time) error
	// ClaimPendingEvaluation returns partners whose totals changed since their last evaluation.
	ClaimPendingEvaluation(ctx context.Context, db *gorm.DB, limit int) ([]Partner, error)
}
