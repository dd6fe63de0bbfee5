package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/partnerflow/internal/moverule"
	"github.com/smallbiznis/partnerflow/pkg/db/pagination"
)

type Service interface {
	Enroll(ctx context.Context, req EnrollRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	RecordActivity(ctx context.Context, req ActivityRequest) (*Response, error)
	ChangeGroup(ctx context.Context, req ChangeGroupRequest) (*Response, error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Response, error)
}

type EnrollRequest struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	GroupID *string `json:"group_id"`
}

type ListRequest struct {
	pagination.Pagination
	GroupID string `form:"group_id"`
	Status  string `form:"status"`
}

type ActivityRequest struct {
	PartnerID string `json:"-"`
	Activity
}

type ChangeGroupRequest struct {
	PartnerID string `json:"-"`
	GroupID   string `json:"group_id"`
}

type UpdateStatusRequest struct {
	PartnerID string `json:"-"`
	Status    Status `json:"status"`
}

type Response struct {
	ID               string            `json:"id"`
	ProgramID        string            `json:"program_id"`
	GroupID          string            `json:"group_id"`
	Name             string            `json:"name"`
	Email            string            `json:"email"`
	Status           Status            `json:"status"`
	Totals           moverule.Snapshot `json:"totals"`
	MetricsUpdatedAt *time.Time        `json:"metrics_updated_at,omitempty"`
	EvaluatedAt      *time.Time        `json:"evaluated_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type ListResponse struct {
	pagination.PageInfo
	Partners []Response `json:"partners"`
}

var (
	ErrInvalidProgram   = errors.New("invalid_program")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidGroup     = errors.New("invalid_group")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidActivity  = errors.New("invalid_activity")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrDuplicateEmail   = errors.New("duplicate_email")
	ErrNotFound         = errors.New("not_found")
	ErrPartnerBanned    = errors.New("partner_banned")
)
