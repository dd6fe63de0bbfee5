package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/partnerflow/internal/moverule"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, group *PartnerGroup) error
	FindByID(ctx context.Context, db *gorm.DB, programID, id int64) (*PartnerGroup, error)
	FindBySlug(ctx context.Context, db *gorm.DB, programID int64, slug string) (*PartnerGroup, error)
	FindDefault(ctx context.Context, db *gorm.DB, programID int64) (*PartnerGroup, error)
	// FindAll returns groups in creation order.
	FindAll(ctx context.Context, db *gorm.DB, programID int64) ([]PartnerGroup, error)
	Update(ctx context.Context, db *gorm.DB, group *PartnerGroup) error
	UpdateMoveRules(ctx context.Context, db *gorm.DB, programID, id int64, rules []moverule.Rule, updatedAt time.Time) error
	Delete(ctx context.Context, db *gorm.DB, programID, id int64) error
}
