package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/partnerflow/internal/evaluator"
	partnerdomain "github.com/smallbiznis/partnerflow/internal/partner/domain"
	"github.com/smallbiznis/partnerflow/pkg/db/pagination"
	"github.com/smallbiznis/partnerflow/pkg/telemetry/correlation"
)

type partnerEvaluator interface {
	EvaluatePartner(ctx context.Context, programID, partnerID int64) (*evaluator.Result, error)
}

type enrollPartnerRequest struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	GroupID *string `json:"group_id"`
}

type recordActivityRequest struct {
	Leads       int64 `json:"leads"`
	Conversions int64 `json:"conversions"`
	SaleAmount  int64 `json:"sale_amount"`
	Commissions int64 `json:"commissions"`
}

type changeGroupRequest struct {
	GroupID string `json:"group_id"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) EnrollPartner(c *gin.Context) {
	var req enrollPartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.partnerSvc.Enroll(c.Request.Context(), partnerdomain.EnrollRequest{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.TrimSpace(req.Email),
		GroupID: req.GroupID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListPartners(c *gin.Context) {
	var query struct {
		pagination.Pagination
		GroupID string `form:"group_id"`
		Status  string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.partnerSvc.List(c.Request.Context(), partnerdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		GroupID: strings.TrimSpace(query.GroupID),
		Status:  strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Partners, "page_info": resp.PageInfo})
}

func (s *Server) GetPartner(c *gin.Context) {
	resp, err := s.partnerSvc.Get(c.Request.Context(), partnerIDParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RecordPartnerActivity adds activity deltas to a partner's totals. With
// ?evaluate=true the partner's group is re-evaluated in the same request.
func (s *Server) RecordPartnerActivity(c *gin.Context) {
	var req recordActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	evaluateNow, err := parseOptionalBool(c.Query("evaluate"))
	if err != nil {
		AbortWithError(c, newValidationError("evaluate", "invalid_evaluate", "invalid evaluate"))
		return
	}

	ctx := c.Request.Context()
	resp, err := s.partnerSvc.RecordActivity(ctx, partnerdomain.ActivityRequest{
		PartnerID: partnerIDParam(c),
		Activity: partnerdomain.Activity{
			Leads:       req.Leads,
			Conversions: req.Conversions,
			SaleAmount:  req.SaleAmount,
			Commissions: req.Commissions,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if evaluateNow == nil || !*evaluateNow {
		c.JSON(http.StatusAccepted, gin.H{"data": resp})
		return
	}

	result, err := s.evaluatePartner(c, resp.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err = s.partnerSvc.Get(ctx, resp.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp, "evaluation": result})
}

func (s *Server) ChangePartnerGroup(c *gin.Context) {
	var req changeGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.partnerSvc.ChangeGroup(c.Request.Context(), partnerdomain.ChangeGroupRequest{
		PartnerID: partnerIDParam(c),
		GroupID:   strings.TrimSpace(req.GroupID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePartnerStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.partnerSvc.UpdateStatus(c.Request.Context(), partnerdomain.UpdateStatusRequest{
		PartnerID: partnerIDParam(c),
		Status:    partnerdomain.Status(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) EvaluatePartner(c *gin.Context) {
	result, err := s.evaluatePartner(c, partnerIDParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) evaluatePartner(c *gin.Context, rawPartnerID string) (*evaluator.Result, error) {
	if s.evaluator == nil {
		return nil, ErrServiceUnavailable
	}

	programID, err := programIDFromRequest(c)
	if err != nil {
		return nil, err
	}

	partnerID, err := snowflake.ParseString(strings.TrimSpace(rawPartnerID))
	if err != nil || partnerID == 0 {
		return nil, partnerdomain.ErrInvalidID
	}

	ctx := correlation.WithID(c.Request.Context(), c.GetHeader(correlation.Header))
	return s.evaluator.EvaluatePartner(ctx, int64(programID), int64(partnerID))
}
