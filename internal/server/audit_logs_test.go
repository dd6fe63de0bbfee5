package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditQueryContext(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/audit-logs?"+rawQuery, nil)
	return c
}

func TestAuditLogRequestFromQuery(t *testing.T) {
	req, err := auditLogRequestFromQuery(auditQueryContext(
		"action=+partner.group_moved+&group_id=77&page_size=20&start_at=2026-01-02&end_at=2026-01-02",
	))
	require.NoError(t, err)

	assert.Equal(t, "partner.group_moved", req.Action)
	assert.Equal(t, "partner_group", req.TargetType)
	assert.Equal(t, "77", req.TargetID)
	assert.Equal(t, 20, req.PageSize)
	require.NotNil(t, req.StartAt)
	require.NotNil(t, req.EndAt)
	assert.Equal(t, 2, req.StartAt.Day())
	assert.Equal(t, 23, req.EndAt.Hour())
}

func TestAuditLogRequestFromQueryPartnerAliasWins(t *testing.T) {
	req, err := auditLogRequestFromQuery(auditQueryContext("target_type=partner_group&target_id=1&partner_id=9"))
	require.NoError(t, err)
	assert.Equal(t, "partner", req.TargetType)
	assert.Equal(t, "9", req.TargetID)
}

func TestAuditLogRequestFromQueryRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"invalid_page_size": "page_size=ten",
		"invalid_start_at":  "start_at=yesterday",
		"invalid_range":     "start_at=2026-02-01&end_at=2026-01-01",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auditLogRequestFromQuery(auditQueryContext(raw))
			var verrs *ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, name, verrs.Errors[0].Code)
		})
	}
}
