package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/partnerflow/internal/moverule"
	groupdomain "github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
)

type createGroupRequest struct {
	Name      string          `json:"name"`
	Slug      *string         `json:"slug"`
	Color     *string         `json:"color"`
	MoveRules []moverule.Rule `json:"move_rules"`
	Force     bool            `json:"force"`
}

type updateGroupRequest struct {
	Name  *string `json:"name"`
	Slug  *string `json:"slug"`
	Color *string `json:"color"`
}

func (s *Server) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.groupSvc.Create(c.Request.Context(), groupdomain.CreateRequest{
		Name:      strings.TrimSpace(req.Name),
		Slug:      req.Slug,
		Color:     req.Color,
		MoveRules: req.MoveRules,
		Force:     req.Force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListGroups(c *gin.Context) {
	resp, err := s.groupSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetGroup(c *gin.Context) {
	resp, err := s.groupSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateGroup(c *gin.Context) {
	var req updateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.groupSvc.Update(c.Request.Context(), groupdomain.UpdateRequest{
		ID:    strings.TrimSpace(c.Param("id")),
		Name:  req.Name,
		Slug:  req.Slug,
		Color: req.Color,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteGroup(c *gin.Context) {
	resp, err := s.groupSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
