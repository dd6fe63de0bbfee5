package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerflow/internal/moverule"
	"gorm.io/datatypes"
)

const DefaultSlug = "default"

type PartnerGroup struct {
	ID        int64                              `json:"id" gorm:"primaryKey"`
	ProgramID int64                              `json:"program_id" gorm:"column:program_id;not null;uniqueIndex:ux_partner_groups_program_slug,priority:1"`
	Name      string                             `json:"name" gorm:"type:text;not null"`
	Slug      string                             `json:"slug" gorm:"type:text;not null;uniqueIndex:ux_partner_groups_program_slug,priority:2"`
	Color     string                             `json:"color" gorm:"type:text;not null"`
	IsDefault bool                               `json:"is_default" gorm:"not null;default:false"`
	MoveRules datatypes.JSONSlice[moverule.Rule] `json:"move_rules" gorm:"column:move_rules"`
	CreatedAt time.Time                          `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time                          `json:"updated_at" gorm:"not null"`
}

func (PartnerGroup) TableName() string { return "partner_groups" }

// Rules returns the group's move rules as a plain slice.
func (g PartnerGroup) Rules() []moverule.Rule {
	return []moverule.Rule(g.MoveRules)
}

// RuleGroup projects the group into the shape the conflict finder works on.
func (g PartnerGroup) RuleGroup() moverule.Group {
	return moverule.Group{
		ID:    snowflake.ID(g.ID).String(),
		Slug:  g.Slug,
		Name:  g.Name,
		Color: g.Color,
		Rules: moverule.CloneRules(g.Rules()),
	}
}

// RuleGroups projects groups while preserving their order.
func RuleGroups(groups []PartnerGroup) []moverule.Group {
	out := make([]moverule.Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.RuleGroup())
	}
	return out
}
