// Package pagination implements opaque keyset page tokens for list endpoints.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid_page_token")

// Pagination binds the page_token and page_size query parameters.
type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

// Cursor is the position of the last row of a page. CreatedAt is empty for
// lists ordered by id alone.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func NewCursor(id int64, createdAt time.Time) Cursor {
	c := Cursor{ID: strconv.FormatInt(id, 10)}
	if !createdAt.IsZero() {
		c.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	}
	return c
}

// Position parses the cursor back into its keyset values.
func (c Cursor) Position() (int64, time.Time, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.ID), 10, 64)
	if err != nil || id <= 0 {
		return 0, time.Time{}, ErrInvalidToken
	}
	if c.CreatedAt == "" {
		return id, time.Time{}, nil
	}
	createdAt, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
	if err != nil {
		return 0, time.Time{}, ErrInvalidToken
	}
	return id, createdAt, nil
}

func EncodeCursor(c Cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func DecodeCursor(token string) (Cursor, error) {
	var c Cursor
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return c, ErrInvalidToken
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, ErrInvalidToken
	}
	return c, nil
}

// Size applies the default and upper bound to a requested page size.
func Size(requested, def, max int) int {
	switch {
	case requested <= 0:
		return def
	case requested > max:
		return max
	}
	return requested
}

// Trim cuts rows fetched with limit+1 down to limit. The extra row only
// signals that another page exists; the token points at the last kept row.
func Trim[T any](rows []*T, limit int, cursor func(*T) Cursor) ([]*T, PageInfo) {
	if limit <= 0 || len(rows) <= limit {
		return rows, PageInfo{}
	}
	rows = rows[:limit]
	return rows, PageInfo{
		HasMore:       true,
		NextPageToken: EncodeCursor(cursor(rows[len(rows)-1])),
	}
}
