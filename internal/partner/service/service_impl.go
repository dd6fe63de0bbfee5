package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/partnerflow/internal/audit/domain"
	"github.com/smallbiznis/partnerflow/internal/clock"
	obsmetrics "github.com/smallbiznis/partnerflow/internal/observability/metrics"
	"github.com/smallbiznis/partnerflow/internal/partner/domain"
	groupdomain "github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
	"github.com/smallbiznis/partnerflow/internal/programcontext"
	"github.com/smallbiznis/partnerflow/pkg/db"
	"github.com/smallbiznis/partnerflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 25
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	GroupRepo groupdomain.Repository
	AuditSvc  auditdomain.Service
	Clock     clock.Clock
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	groupRepo groupdomain.Repository
	auditSvc  auditdomain.Service
	clock     clock.Clock
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("partner.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		groupRepo: p.GroupRepo,
		auditSvc:  p.AuditSvc,
		clock:     p.Clock,
		metrics:   p.Metrics,
	}
}

func (s *Service) Enroll(ctx context.Context, req domain.EnrollRequest) (*domain.Response, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}

	var partner *domain.Partner
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group *groupdomain.PartnerGroup
		if req.GroupID != nil && strings.TrimSpace(*req.GroupID) != "" {
			group, err = s.lookupGroup(ctx, tx, programID, *req.GroupID)
		} else {
			group, err = s.groupRepo.FindDefault(ctx, tx, programID)
		}
		if err != nil {
			return err
		}
		if group == nil {
			return domain.ErrInvalidGroup
		}

		existing, err := s.repo.FindByEmail(ctx, tx, programID, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateEmail
		}

		now := s.clock.Now()
		partner = &domain.Partner{
			ID:        s.genID.Generate().Int64(),
			ProgramID: programID,
			GroupID:   group.ID,
			Name:      name,
			Email:     email,
			Status:    domain.StatusApproved,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Create(ctx, tx, partner); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateEmail
			}
			return err
		}

		pid := snowflake.ID(programID)
		targetID := snowflake.ID(partner.ID).String()
		return s.auditSvc.AuditLogTx(ctx, tx, &pid, "", nil, "partner.enrolled", "partner", &targetID, map[string]any{
			"email":    partner.Email,
			"group_id": snowflake.ID(group.ID).String(),
		})
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(partner)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	partnerID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	partner, err := s.repo.FindByID(ctx, s.db, programID, partnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, domain.ErrNotFound
	}
	resp := toResponse(partner)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return domain.ListResponse{}, err
	}

	filter := domain.ListFilter{ProgramID: programID}

	if groupID := strings.TrimSpace(req.GroupID); groupID != "" {
		group, err := s.lookupGroup(ctx, s.db, programID, groupID)
		if err != nil {
			return domain.ListResponse{}, err
		}
		filter.GroupID = group.ID
	}

	if status := strings.TrimSpace(req.Status); status != "" {
		if !domain.Status(status).Valid() {
			return domain.ListResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = domain.Status(status)
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, _, err := cursor.Position()
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = id
	}

	filter.Limit = pagination.Size(req.PageSize, defaultPageSize, maxPageSize)
	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, pageInfo := pagination.Trim(items, filter.Limit, func(p *domain.Partner) pagination.Cursor {
		return pagination.NewCursor(p.ID, time.Time{})
	})

	partners := make([]domain.Response, 0, len(items))
	for _, item := range items {
		partners = append(partners, toResponse(item))
	}

	return domain.ListResponse{PageInfo: pageInfo, Partners: partners}, nil
}

func (s *Service) RecordActivity(ctx context.Context, req domain.ActivityRequest) (*domain.Response, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	partnerID, err := parseID(req.PartnerID)
	if err != nil {
		return nil, err
	}
	if req.Activity.Negative() || req.Activity.IsZero() {
		return nil, domain.ErrInvalidActivity
	}

	var partner *domain.Partner
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindForUpdate(ctx, tx, programID, partnerID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}

		if err := s.repo.AddActivity(ctx, tx, programID, partnerID, req.Activity, s.clock.Now()); err != nil {
			return err
		}

		partner, err = s.repo.FindByID(ctx, tx, programID, partnerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	pid := snowflake.ID(programID).String()
	for kind, delta := range map[string]int64{
		"leads":       req.Leads,
		"conversions": req.Conversions,
		"sale_amount": req.SaleAmount,
		"commissions": req.Commissions,
	} {
		if delta > 0 {
			s.metrics.RecordActivity(ctx, pid, kind)
		}
	}

	s.log.Debug("partner activity recorded",
		zap.Int64("program_id", programID),
		zap.Int64("partner_id", partnerID),
		zap.Int64("leads", req.Leads),
		zap.Int64("conversions", req.Conversions),
		zap.Int64("sale_amount", req.SaleAmount),
		zap.Int64("commissions", req.Commissions),
	)

	resp := toResponse(partner)
	return &resp, nil
}

func (s *Service) ChangeGroup(ctx context.Context, req domain.ChangeGroupRequest) (*domain.Response, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	partnerID, err := parseID(req.PartnerID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.GroupID) == "" {
		return nil, domain.ErrInvalidGroup
	}

	var (
		partner *domain.Partner
		changed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		partner, err = s.repo.FindForUpdate(ctx, tx, programID, partnerID)
		if err != nil {
			return err
		}
		if partner == nil {
			return domain.ErrNotFound
		}
		if partner.Status == domain.StatusBanned {
			return domain.ErrPartnerBanned
		}

		group, err := s.lookupGroup(ctx, tx, programID, req.GroupID)
		if err != nil {
			return err
		}
		if group.ID == partner.GroupID {
			return nil
		}

		fromGroupID := partner.GroupID
		now := s.clock.Now()
		if err := s.repo.UpdateGroup(ctx, tx, programID, partnerID, group.ID, now); err != nil {
			return err
		}
		partner.GroupID = group.ID
		partner.UpdatedAt = now
		changed = true

		pid := snowflake.ID(programID)
		targetID := snowflake.ID(partnerID).String()
		return s.auditSvc.AuditLogTx(ctx, tx, &pid, "", nil, "partner.group_changed", "partner", &targetID, map[string]any{
			"from_group_id": snowflake.ID(fromGroupID).String(),
			"to_group_id":   snowflake.ID(group.ID).String(),
			"to_group_name": group.Name,
		})
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.RecordGroupMove(ctx, snowflake.ID(programID).String(), "manual")
		s.log.Info("partner group changed",
			zap.Int64("program_id", programID),
			zap.Int64("partner_id", partnerID),
			zap.Int64("group_id", partner.GroupID),
		)
	}

	resp := toResponse(partner)
	return &resp, nil
}

func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (*domain.Response, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	partnerID, err := parseID(req.PartnerID)
	if err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	var partner *domain.Partner
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		partner, err = s.repo.FindForUpdate(ctx, tx, programID, partnerID)
		if err != nil {
			return err
		}
		if partner == nil {
			return domain.ErrNotFound
		}
		if partner.Status == req.Status {
			return nil
		}

		previous := partner.Status
		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, programID, partnerID, req.Status, now); err != nil {
			return err
		}
		partner.Status = req.Status
		partner.UpdatedAt = now

		pid := snowflake.ID(programID)
		targetID := snowflake.ID(partnerID).String()
		return s.auditSvc.AuditLogTx(ctx, tx, &pid, "", nil, "partner.status_changed", "partner", &targetID, map[string]any{
			"from": string(previous),
			"to":   string(req.Status),
		})
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(partner)
	return &resp, nil
}

// lookupGroup resolves a group by snowflake id first and by slug otherwise.
func (s *Service) lookupGroup(ctx context.Context, conn *gorm.DB, programID int64, idOrSlug string) (*groupdomain.PartnerGroup, error) {
	key := strings.TrimSpace(idOrSlug)
	if key == "" {
		return nil, domain.ErrInvalidGroup
	}

	var (
		group *groupdomain.PartnerGroup
		err   error
	)
	if id, parseErr := snowflake.ParseString(key); parseErr == nil && id != 0 {
		group, err = s.groupRepo.FindByID(ctx, conn, programID, id.Int64())
		if err != nil {
			return nil, err
		}
	}
	if group == nil {
		group, err = s.groupRepo.FindBySlug(ctx, conn, programID, key)
		if err != nil {
			return nil, err
		}
	}
	if group == nil {
		return nil, domain.ErrInvalidGroup
	}
	return group, nil
}

func programIDFromContext(ctx context.Context) (int64, error) {
	programID, ok := programcontext.ProgramIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidProgram
	}
	return programID.Int64(), nil
}

func parseID(raw string) (int64, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id.Int64(), nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func toResponse(p *domain.Partner) domain.Response {
	return domain.Response{
		ID:               snowflake.ID(p.ID).String(),
		ProgramID:        snowflake.ID(p.ProgramID).String(),
		GroupID:          snowflake.ID(p.GroupID).String(),
		Name:             p.Name,
		Email:            p.Email,
		Status:           p.Status,
		Totals:           p.Snapshot(),
		MetricsUpdatedAt: p.MetricsUpdatedAt,
		EvaluatedAt:      p.EvaluatedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
