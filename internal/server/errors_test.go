package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/smallbiznis/partnerflow/internal/moverule"
	partnerdomain "github.com/smallbiznis/partnerflow/internal/partner/domain"
	groupdomain "github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
	"github.com/smallbiznis/partnerflow/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		errType  string
		firstErr string
	}{
		{"domain validation", partnerdomain.ErrInvalidEmail, http.StatusBadRequest, "validation_error", "invalid_email"},
		{"request validation", invalidRequestError(), http.StatusBadRequest, "validation_error", "invalid_request"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited", ""},
		{"move lock held", fmt.Errorf("evaluate: %w", ratelimit.ErrMoveInProgress), http.StatusConflict, "conflict", ""},
		{"default group", groupdomain.ErrDefaultGroup, http.StatusConflict, "conflict", ""},
		{"not found", groupdomain.ErrNotFound, http.StatusNotFound, "not_found", ""},
		{"unavailable", ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable", ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.errType, payload.Type)
			if tt.firstErr != "" {
				require.NotEmpty(t, payload.Errors)
				assert.Equal(t, tt.firstErr, payload.Errors[0].Code)
			}
		})
	}
}

func TestMapErrorMoveRules(t *testing.T) {
	err := moverule.Validate([]moverule.Rule{
		moverule.GTE(moverule.AttributeTotalLeads, 5),
		{Attribute: "clicks", Operator: moverule.OperatorGTE, Value: moverule.Threshold(1)},
	})
	require.Error(t, err)

	status, payload := mapError(err)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_attribute", payload.Errors[0].Code)
	assert.Equal(t, "rules[1].clicks", payload.Errors[0].Field)
}

func TestMapErrorConflictCarriesGroups(t *testing.T) {
	conflict := &groupdomain.ConflictError{Groups: []moverule.Group{{ID: "10", Slug: "gold", Name: "Gold"}}}

	status, payload := mapError(conflict)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "move_rule_conflict", payload.Type)
	require.Len(t, payload.ConflictingGroups, 1)
	assert.Equal(t, "gold", payload.ConflictingGroups[0].Slug)

	errType, code := classifyErrorForLog(conflict)
	assert.Equal(t, "move_rule_conflict", errType)
	assert.Equal(t, "move_rule_conflict", code)
}
