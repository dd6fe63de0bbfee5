package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/partnerflow/internal/audit/domain"
	"github.com/smallbiznis/partnerflow/internal/evaluator"
	"github.com/smallbiznis/partnerflow/internal/moverule"
	partnerdomain "github.com/smallbiznis/partnerflow/internal/partner/domain"
	groupdomain "github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
	programdomain "github.com/smallbiznis/partnerflow/internal/program/domain"
	"github.com/smallbiznis/partnerflow/internal/ratelimit"
	"gorm.io/gorm"
)

var (
	ErrProgramRequired    = errors.New("program_required")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

type errorPayload struct {
	Type              string            `json:"type"`
	Message           string            `json:"message"`
	Errors            []ValidationError `json:"errors,omitempty"`
	ConflictingGroups []moverule.Group  `json:"conflicting_groups,omitempty"`
}

// Domain sentinels reported as a single field error. The sentinel text is
// the error code; "invalid_<field>" codes name their field.
var fieldErrors = []error{
	ErrProgramRequired,
	programdomain.ErrInvalidID,
	programdomain.ErrInvalidName,
	programdomain.ErrInvalidSlug,
	groupdomain.ErrInvalidProgram,
	groupdomain.ErrInvalidID,
	groupdomain.ErrInvalidName,
	groupdomain.ErrInvalidSlug,
	groupdomain.ErrInvalidColor,
	partnerdomain.ErrInvalidProgram,
	partnerdomain.ErrInvalidID,
	partnerdomain.ErrInvalidName,
	partnerdomain.ErrInvalidEmail,
	partnerdomain.ErrInvalidGroup,
	partnerdomain.ErrInvalidStatus,
	partnerdomain.ErrInvalidActivity,
	partnerdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidProgram,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
}

type statusRule struct {
	status  int
	errType string
	message string
	match   []error
}

// Checked in order; the first rule with a matching sentinel wins.
var statusRules = []statusRule{
	{http.StatusConflict, "conflict", "the default group cannot be changed this way", []error{groupdomain.ErrDefaultGroup}},
	{http.StatusConflict, "conflict", "partner is banned", []error{partnerdomain.ErrPartnerBanned}},
	{http.StatusConflict, "conflict", "partner move already in progress", []error{ratelimit.ErrMoveInProgress}},
	{http.StatusConflict, "conflict", "slug already in use", []error{programdomain.ErrDuplicateSlug, groupdomain.ErrDuplicateSlug}},
	{http.StatusConflict, "conflict", "email already enrolled", []error{partnerdomain.ErrDuplicateEmail}},
	{http.StatusNotFound, "not_found", "not found", []error{
		programdomain.ErrNotFound,
		groupdomain.ErrNotFound,
		partnerdomain.ErrNotFound,
		evaluator.ErrPartnerMissing,
		gorm.ErrRecordNotFound,
	}},
	{http.StatusTooManyRequests, "rate_limited", "too many requests", []error{ErrRateLimited}},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", []error{ErrServiceUnavailable}},
}

func matchAny(err error, targets []error) error {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

func mapError(err error) (int, errorPayload) {
	var (
		vErrs    *ValidationErrors
		ruleErrs *moverule.ValidationErrors
		conflict *groupdomain.ConflictError
	)
	switch {
	case errors.As(err, &vErrs):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: vErrs.Errors}
	case errors.As(err, &ruleErrs):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "invalid move rules", Errors: moveRuleFieldErrors(ruleErrs)}
	case errors.As(err, &conflict):
		return http.StatusConflict, errorPayload{
			Type:              "move_rule_conflict",
			Message:           "move rules overlap with other groups",
			ConflictingGroups: conflict.Groups,
		}
	}

	if sentinel := matchAny(err, fieldErrors); sentinel != nil {
		code := sentinel.Error()
		field := "program_id"
		if after, ok := strings.CutPrefix(code, "invalid_"); ok {
			field = after
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []ValidationError{{Field: field, Code: code, Message: "invalid value"}},
		}
	}

	for _, rule := range statusRules {
		if matchAny(err, rule.match) != nil {
			return rule.status, errorPayload{Type: rule.errType, Message: rule.message}
		}
	}
	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}

func moveRuleFieldErrors(ruleErrs *moverule.ValidationErrors) []ValidationError {
	out := make([]ValidationError, 0, len(ruleErrs.Errors))
	for _, item := range ruleErrs.Errors {
		out = append(out, ValidationError{
			Field:   fmt.Sprintf("rules[%d].%s", item.Index, item.Attribute),
			Code:    item.Code,
			Message: item.Message,
		})
	}
	return out
}

// classifyErrorForLog returns the error type and code recorded on request logs.
func classifyErrorForLog(err error) (errType, code string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

// ErrorHandlingMiddleware renders the last handler error as
// {"error": {...}} unless a response was already written.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		status, payload := mapError(last.Err)
		c.AbortWithStatusJSON(status, gin.H{"error": payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}
