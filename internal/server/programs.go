package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	programdomain "github.com/smallbiznis/partnerflow/internal/program/domain"
)

type createProgramRequest struct {
	Name string  `json:"name"`
	Slug *string `json:"slug"`
}

func (s *Server) CreateProgram(c *gin.Context) {
	var req createProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.programSvc.Create(c.Request.Context(), programdomain.CreateRequest{
		Name: strings.TrimSpace(req.Name),
		Slug: req.Slug,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListPrograms(c *gin.Context) {
	resp, err := s.programSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProgram(c *gin.Context) {
	resp, err := s.programSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("program_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
