package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/partnerflow/internal/audit/domain"
	"github.com/smallbiznis/partnerflow/pkg/db/pagination"
)

// shorthand filters expanding to a target_type/target_id pair
var auditTargetAliases = []struct{ param, targetType string }{
	{"partner_id", "partner"},
	{"group_id", "partner_group"},
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	req, err := auditLogRequestFromQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}

func auditLogRequestFromQuery(c *gin.Context) (auditdomain.ListAuditLogRequest, error) {
	query := func(key string) string { return strings.TrimSpace(c.Query(key)) }

	req := auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: query("page_token")},
		Action:     query("action"),
		TargetType: query("target_type"),
		TargetID:   query("target_id"),
		ActorType:  query("actor_type"),
	}
	if raw := query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			return req, newValidationError("page_size", "invalid_page_size", "page_size must be a positive integer")
		}
		req.PageSize = size
	}
	for _, alias := range auditTargetAliases {
		if id := query(alias.param); id != "" {
			req.TargetType, req.TargetID = alias.targetType, id
			break
		}
	}

	var err error
	if req.StartAt, err = parseOptionalTime(query("start_at"), false); err != nil {
		return req, newValidationError("start_at", "invalid_start_at", "start_at must be RFC3339 or YYYY-MM-DD")
	}
	if req.EndAt, err = parseOptionalTime(query("end_at"), true); err != nil {
		return req, newValidationError("end_at", "invalid_end_at", "end_at must be RFC3339 or YYYY-MM-DD")
	}
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return req, newValidationError("end_at", "invalid_range", "end_at is before start_at")
	}
	return req, nil
}
