package service

import (
	"cmp"
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerflow/internal/audit/domain"
	"github.com/smallbiznis/partnerflow/internal/audit/masking"
	"github.com/smallbiznis/partnerflow/internal/clock"
	obscontext "github.com/smallbiznis/partnerflow/internal/observability/context"
	"github.com/smallbiznis/partnerflow/internal/programcontext"
	"github.com/smallbiznis/partnerflow/pkg/db/pagination"
	"github.com/smallbiznis/partnerflow/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

var sensitiveMetadataKeys = []string{"email", "previous_email"}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: c,
	}
}

func (s *Service) AuditLog(ctx context.Context, programID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return s.AuditLogTx(ctx, s.db, programID, actorType, actorID, action, targetType, targetID, metadata)
}

func (s *Service) AuditLogTx(ctx context.Context, tx *gorm.DB, programID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return domain.ErrInvalidAction
	}
	if tx == nil {
		tx = s.db
	}

	entry := &domain.AuditLog{
		ID:         s.genID.Generate(),
		ProgramID:  s.resolveProgramID(ctx, programID),
		Action:     action,
		TargetType: cmp.Or(strings.TrimSpace(targetType), "unknown"),
		TargetID:   normalizePointer(targetID),
		Metadata:   datatypes.JSONMap(entryMetadata(ctx, metadata)),
		CreatedAt:  s.clock.Now().UTC(),
	}
	entry.ActorType, entry.ActorID = s.resolveActor(ctx, strings.TrimSpace(actorType), actorID)
	ip, userAgent := obscontext.ClientFromContext(ctx)
	entry.IPAddress = normalizePointer(&ip)
	entry.UserAgent = normalizePointer(&userAgent)

	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

// entryMetadata copies the caller's metadata, stamps the request and
// correlation ids, and masks partner emails.
func entryMetadata(ctx context.Context, metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+2)
	for key, value := range metadata {
		if key != "" {
			out[key] = value
		}
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		out["request_id"] = requestID
	}
	if _, ok := out["correlation_id"]; !ok {
		if cid := correlation.FromContext(ctx); cid != "" {
			out["correlation_id"] = cid
		}
	}
	return masking.Fields(out, sensitiveMetadataKeys...)
}

func (s *Service) List(ctx context.Context, req domain.ListAuditLogRequest) (domain.ListAuditLogResponse, error) {
	programID, ok := programcontext.ProgramIDFromContext(ctx)
	if !ok {
		return domain.ListAuditLogResponse{}, domain.ErrInvalidProgram
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return domain.ListAuditLogResponse{}, domain.ErrInvalidTimeRange
	}

	filter := domain.ListFilter{
		ProgramID:  programID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Limit:      pagination.Size(req.PageSize, defaultPageSize, maxPageSize),
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := decodeAuditCursor(token)
		if err != nil {
			return domain.ListAuditLogResponse{}, err
		}
		filter.Cursor = cursor
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListAuditLogResponse{}, err
	}
	items, pageInfo := pagination.Trim(items, filter.Limit, func(item *domain.AuditLog) pagination.Cursor {
		return pagination.NewCursor(int64(item.ID), item.CreatedAt)
	})

	logs := make([]domain.AuditLog, 0, len(items))
	for _, item := range items {
		if item != nil {
			logs = append(logs, *item)
		}
	}
	return domain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

// Audit pages are ordered by (created_at, id), so the token must carry both.
func decodeAuditCursor(token string) (*domain.AuditCursor, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	id, createdAt, err := cursor.Position()
	if err != nil || createdAt.IsZero() {
		return nil, domain.ErrInvalidPageToken
	}
	return &domain.AuditCursor{ID: snowflake.ID(id), CreatedAt: createdAt}, nil
}

func (s *Service) resolveProgramID(ctx context.Context, programID *snowflake.ID) *snowflake.ID {
	if programID != nil && *programID != 0 {
		return programID
	}
	resolved, ok := programcontext.ProgramIDFromContext(ctx)
	if !ok {
		return nil
	}
	return &resolved
}

func (s *Service) resolveActor(ctx context.Context, actorType string, actorID *string) (string, *string) {
	if actorType == "" {
		if ctxType, ctxID := obscontext.ActorFromContext(ctx); ctxType != "" {
			actorType = ctxType
			if actorID == nil || strings.TrimSpace(*actorID) == "" {
				if ctxID != "" {
					actorID = &ctxID
				}
			}
		}
	}
	if actorType == "" {
		actorType = string(domain.ActorTypeSystem)
	}

	return actorType, normalizePointer(actorID)
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
