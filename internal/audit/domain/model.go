package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeUser   ActorType = "user"
	ActorTypeAPIKey ActorType = "api_key"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ProgramID  *snowflake.ID     `json:"program_id,omitempty" gorm:"column:program_id;index:ix_audit_logs_program_created,priority:1"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty" gorm:"type:text"`
	UserAgent  *string           `json:"user_agent,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;index:ix_audit_logs_program_created,priority:2"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	ProgramID  snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
