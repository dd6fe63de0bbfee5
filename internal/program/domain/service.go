package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// Create inserts the program together with its default partner group.
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context) ([]Response, error)
	// EnsureDefault returns the program with the slug derived from name, creating it when missing.
	EnsureDefault(ctx context.Context, name string) (*Response, error)
}

type CreateRequest struct {
	Name string  `json:"name"`
	Slug *string `json:"slug"`
}

type Response struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	DefaultGroupID string    `json:"default_group_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var (
	ErrInvalidID     = errors.New("invalid_id")
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidSlug   = errors.New("invalid_slug")
	ErrDuplicateSlug = errors.New("duplicate_slug")
	ErrNotFound      = errors.New("not_found")
)
