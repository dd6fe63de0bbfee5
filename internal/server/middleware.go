package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/partnerflow/internal/audit/domain"
	obscontext "github.com/smallbiznis/partnerflow/internal/observability/context"
	"github.com/smallbiznis/partnerflow/internal/programcontext"
)

const (
	HeaderActor         = "X-Actor-ID"
	contextPartnerIDKey = "partner_id"
)

// ActorContext attributes audit entries to the caller named in X-Actor-ID.
// Requests without the header are recorded as system actions.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(HeaderActor))
		if actorID != "" {
			ctx := obscontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeUser), actorID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// ProgramContext resolves :program_id and scopes the request to that program.
func (s *Server) ProgramContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.Param("program_id"))
		if raw == "" {
			AbortWithError(c, ErrProgramRequired)
			return
		}

		programID, err := snowflake.ParseString(raw)
		if err != nil || programID == 0 {
			AbortWithError(c, newValidationError("program_id", "invalid_program_id", "invalid program_id"))
			return
		}

		if _, err := s.programSvc.Get(c.Request.Context(), programID.String()); err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		ctx = programcontext.WithProgramID(ctx, int64(programID))
		ctx = obscontext.WithProgramID(ctx, programID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func programIDFromRequest(c *gin.Context) (snowflake.ID, error) {
	programID, ok := programcontext.ProgramIDFromContext(c.Request.Context())
	if !ok {
		return 0, ErrProgramRequired
	}
	return programID, nil
}

func partnerIDParam(c *gin.Context) string {
	id := strings.TrimSpace(c.Param("id"))
	if id != "" {
		c.Set(contextPartnerIDKey, id)
	}
	return id
}
