package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/partnerflow/internal/audit"
	auditdomain "github.com/smallbiznis/partnerflow/internal/audit/domain"
	"github.com/smallbiznis/partnerflow/internal/config"
	"github.com/smallbiznis/partnerflow/internal/evaluator"
	"github.com/smallbiznis/partnerflow/internal/observability"
	obsmiddleware "github.com/smallbiznis/partnerflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/partnerflow/internal/observability/metrics"
	obstracing "github.com/smallbiznis/partnerflow/internal/observability/tracing"
	"github.com/smallbiznis/partnerflow/internal/partner"
	partnerdomain "github.com/smallbiznis/partnerflow/internal/partner/domain"
	"github.com/smallbiznis/partnerflow/internal/partnergroup"
	groupdomain "github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
	"github.com/smallbiznis/partnerflow/internal/program"
	programdomain "github.com/smallbiznis/partnerflow/internal/program/domain"
	"github.com/smallbiznis/partnerflow/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves the HTTP API together with the domain services it routes to.
// The host binary supplies config, db, observability, clock and a snowflake node.
var Module = fx.Module("http.server",
	audit.Module,
	program.Module,
	partnergroup.Module,
	partner.Module,
	ratelimit.Module,
	evaluator.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	programSvc      programdomain.Service
	groupSvc        groupdomain.Service
	partnerSvc      partnerdomain.Service
	auditSvc        auditdomain.Service
	evaluator       partnerEvaluator
	activityLimiter *ratelimit.ActivityLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	ProgramSvc      programdomain.Service
	GroupSvc        groupdomain.Service
	PartnerSvc      partnerdomain.Service
	AuditSvc        auditdomain.Service
	Evaluator       *evaluator.Evaluator       `optional:"true"`
	ActivityLimiter *ratelimit.ActivityLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		programSvc:      p.ProgramSvc,
		groupSvc:        p.GroupSvc,
		partnerSvc:      p.PartnerSvc,
		auditSvc:        p.AuditSvc,
		activityLimiter: p.ActivityLimiter,
		obsMetrics:      p.ObsMetrics,
	}
	if p.Evaluator != nil {
		svc.evaluator = p.Evaluator
	}
	return svc
}

func RegisterRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(ActorContext())

	api.POST("/programs", s.CreateProgram)
	api.GET("/programs", s.ListPrograms)

	scoped := api.Group("/programs/:program_id")
	scoped.Use(s.ProgramContext())
	scoped.GET("", s.GetProgram)

	// -------- Groups --------
	scoped.GET("/groups", s.ListGroups)
	scoped.POST("/groups", s.CreateGroup)
	scoped.GET("/groups/:id", s.GetGroup)
	scoped.PATCH("/groups/:id", s.UpdateGroup)
	scoped.DELETE("/groups/:id", s.DeleteGroup)
	scoped.PUT("/groups/:id/move-rules", s.UpdateGroupMoveRules)
	scoped.POST("/groups/:id/move-rules/check", s.CheckGroupMoveRules)
	scoped.POST("/move-rules/validate", s.ValidateMoveRules)

	// -------- Partners --------
	scoped.GET("/partners", s.ListPartners)
	scoped.POST("/partners", s.EnrollPartner)
	scoped.GET("/partners/:id", s.GetPartner)
	scoped.POST("/partners/:id/activity", s.ActivityRateLimit(), s.RecordPartnerActivity)
	scoped.POST("/partners/:id/group", s.ChangePartnerGroup)
	scoped.POST("/partners/:id/status", s.UpdatePartnerStatus)
	scoped.POST("/partners/:id/evaluate", s.EvaluatePartner)

	scoped.GET("/audit-logs", s.ListAuditLogs)
}
