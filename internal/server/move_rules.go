package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/partnerflow/internal/moverule"
	groupdomain "github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
)

type moveRulesRequest struct {
	Rules []moverule.Rule `json:"rules"`
	Force bool            `json:"force"`
}

type validateMoveRulesResponse struct {
	Valid        bool                       `json:"valid"`
	Errors       []moverule.ValidationError `json:"errors"`
	Descriptions []string                   `json:"descriptions"`
}

func (s *Server) UpdateGroupMoveRules(c *gin.Context) {
	var req moveRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.groupSvc.UpdateMoveRules(c.Request.Context(), groupdomain.UpdateMoveRulesRequest{
		GroupID: strings.TrimSpace(c.Param("id")),
		Rules:   req.Rules,
		Force:   req.Force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CheckGroupMoveRules(c *gin.Context) {
	var req moveRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.groupSvc.CheckMoveRules(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Rules)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ValidateMoveRules checks a rule list without touching any group.
func (s *Server) ValidateMoveRules(c *gin.Context) {
	var req moveRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp := validateMoveRulesResponse{
		Valid:        true,
		Errors:       []moverule.ValidationError{},
		Descriptions: make([]string, 0, len(req.Rules)),
	}
	if err := moverule.Validate(req.Rules); err != nil {
		var verrs *moverule.ValidationErrors
		if !errors.As(err, &verrs) {
			AbortWithError(c, err)
			return
		}
		resp.Valid = false
		resp.Errors = verrs.Errors
	}
	for _, rule := range req.Rules {
		resp.Descriptions = append(resp.Descriptions, moverule.Describe(rule))
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
