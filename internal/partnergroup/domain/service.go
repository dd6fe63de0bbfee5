package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/partnerflow/internal/moverule"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context) ([]Response, error)
	Get(ctx context.Context, idOrSlug string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	UpdateMoveRules(ctx context.Context, req UpdateMoveRulesRequest) (*Response, error)
	CheckMoveRules(ctx context.Context, groupID string, rules []moverule.Rule) (*CheckResponse, error)
	Delete(ctx context.Context, id string) (*DeleteResponse, error)
}

type CreateRequest struct {
	Name      string          `json:"name"`
	Slug      *string         `json:"slug"`
	Color     *string         `json:"color"`
	MoveRules []moverule.Rule `json:"move_rules"`
	Force     bool            `json:"force"`
}

type UpdateRequest struct {
	ID    string  `json:"-"`
	Name  *string `json:"name"`
	Slug  *string `json:"slug"`
	Color *string `json:"color"`
}

type UpdateMoveRulesRequest struct {
	GroupID string          `json:"-"`
	Rules   []moverule.Rule `json:"rules"`
	Force   bool            `json:"force"`
}

type RuleDescription struct {
	moverule.Rule
	Description string `json:"description"`
}

type Response struct {
	ID          string            `json:"id"`
	ProgramID   string            `json:"program_id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Color       string            `json:"color"`
	IsDefault   bool              `json:"is_default"`
	MoveRules   []RuleDescription `json:"move_rules"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Conflicting []moverule.Group  `json:"conflicting_groups,omitempty"`
}

type CheckResponse struct {
	Valid       bool                       `json:"valid"`
	Errors      []moverule.ValidationError `json:"errors"`
	Conflicting []moverule.Group           `json:"conflicting_groups"`
}

type DeleteResponse struct {
	ID             string `json:"id"`
	MovedPartners  int64  `json:"moved_partners"`
	DefaultGroupID string `json:"default_group_id"`
}

var (
	ErrInvalidProgram   = errors.New("invalid_program")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidSlug      = errors.New("invalid_slug")
	ErrInvalidColor     = errors.New("invalid_color")
	ErrDuplicateSlug    = errors.New("duplicate_slug")
	ErrNotFound         = errors.New("not_found")
	ErrDefaultGroup     = errors.New("default_group_protected")
	ErrNoDefaultGroup   = errors.New("default_group_missing")
	ErrMoveRuleConflict = errors.New("move_rule_conflict")
)

// ConflictError reports the groups whose move rules collide with a proposed rule set.
type ConflictError struct {
	Groups []moverule.Group
}

func (e *ConflictError) Error() string {
	names := make([]string, 0, len(e.Groups))
	for _, g := range e.Groups {
		names = append(names, g.Name)
	}
	return fmt.Sprintf("%s: rules overlap with %s", ErrMoveRuleConflict, strings.Join(names, ", "))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrMoveRuleConflict
}
