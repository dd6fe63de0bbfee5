package domain

import (
	"time"

	"github.com/smallbiznis/partnerflow/internal/moverule"
)

type Status string

const (
	StatusApproved Status = "approved"
	StatusBanned   Status = "banned"
)

func (s Status) Valid() bool {
	return s == StatusApproved || s == StatusBanned
}

type Partner struct {
	ID               int64      `json:"id" gorm:"primaryKey"`
	ProgramID        int64      `json:"program_id" gorm:"column:program_id;not null;uniqueIndex:ux_partners_program_email,priority:1;index:ix_partners_program_group,priority:1"`
	GroupID          int64      `json:"group_id" gorm:"column:group_id;not null;index:ix_partners_program_group,priority:2"`
	Name             string     `json:"name" gorm:"type:text;not null"`
	Email            string     `json:"email" gorm:"type:text;not null;uniqueIndex:ux_partners_program_email,priority:2"`
	Status           Status     `json:"status" gorm:"type:text;not null"`
	TotalLeads       int64      `json:"total_leads" gorm:"not null;default:0"`
	TotalConversions int64      `json:"total_conversions" gorm:"not null;default:0"`
	TotalSaleAmount  int64      `json:"total_sale_amount" gorm:"not null;default:0"`
	TotalCommissions int64      `json:"total_commissions" gorm:"not null;default:0"`
	MetricsUpdatedAt *time.Time `json:"metrics_updated_at,omitempty" gorm:"index"`
	EvaluatedAt      *time.Time `json:"evaluated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"not null"`
}

func (Partner) TableName() string { return "partners" }

// Snapshot returns the partner's totals as the rule matcher reads them.
func (p Partner) Snapshot() moverule.Snapshot {
	return moverule.Snapshot{
		TotalLeads:       p.TotalLeads,
		TotalConversions: p.TotalConversions,
		TotalSaleAmount:  p.TotalSaleAmount,
		TotalCommissions: p.TotalCommissions,
	}
}

// NeedsEvaluation reports whether totals changed after the last evaluation.
func (p Partner) NeedsEvaluation() bool {
	if p.MetricsUpdatedAt == nil {
		return false
	}
	return p.EvaluatedAt == nil || p.MetricsUpdatedAt.After(*p.EvaluatedAt)
}

// Activity is a set of non-negative deltas added to a partner's totals.
type Activity struct {
	Leads       int64 `json:"leads"`
	Conversions int64 `json:"conversions"`
	SaleAmount  int64 `json:"sale_amount"`
	Commissions int64 `json:"commissions"`
}

func (a Activity) IsZero() bool {
	return a.Leads == 0 && a.Conversions == 0 && a.SaleAmount == 0 && a.Commissions == 0
}

func (a Activity) Negative() bool {
	return a.Leads < 0 || a.Conversions < 0 || a.SaleAmount < 0 || a.Commissions < 0
}

type ListFilter struct {
	ProgramID int64
	GroupID   int64
	Status    Status
	Cursor    int64
	Limit     int
}
