package server

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var errInvalidTime = errors.New("invalid_time")

// optionalQuery parses a query value, treating blank as absent.
func optionalQuery[T any](raw string, parse func(string) (T, error)) (*T, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseOptionalBool(raw string) (*bool, error) {
	return optionalQuery(raw, strconv.ParseBool)
}

// parseOptionalTime accepts RFC3339 or a bare date. A bare date maps to the
// start of the day, or its last instant when endOfDay is set.
func parseOptionalTime(raw string, endOfDay bool) (*time.Time, error) {
	return optionalQuery(raw, func(s string) (time.Time, error) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, nil
		}
		day, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return time.Time{}, errInvalidTime
		}
		if endOfDay {
			return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return day, nil
	})
}
