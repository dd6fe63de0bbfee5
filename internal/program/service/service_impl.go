package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/partnerflow/internal/audit/domain"
	"github.com/smallbiznis/partnerflow/internal/clock"
	groupdomain "github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
	"github.com/smallbiznis/partnerflow/internal/program/domain"
	"github.com/smallbiznis/partnerflow/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultGroupName  = "Default"
	defaultGroupColor = "#2563EB"
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
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	groupRepo groupdomain.Repository
	auditSvc  auditdomain.Service
	clock     clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("program.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		groupRepo: p.GroupRepo,
		auditSvc:  p.AuditSvc,
		clock:     p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	programSlug := slug.Make(name)
	if req.Slug != nil && strings.TrimSpace(*req.Slug) != "" {
		programSlug = strings.TrimSpace(*req.Slug)
		if !slug.IsSlug(programSlug) {
			return nil, domain.ErrInvalidSlug
		}
	}
	if programSlug == "" {
		return nil, domain.ErrInvalidSlug
	}

	var (
		program *domain.Program
		group   *groupdomain.PartnerGroup
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		program, group, err = s.create(ctx, tx, name, programSlug)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("program created",
		zap.Int64("program_id", program.ID),
		zap.String("slug", program.Slug),
	)

	resp := toResponse(program)
	resp.DefaultGroupID = snowflake.ID(group.ID).String()
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	programID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || programID <= 0 {
		return nil, domain.ErrInvalidID
	}

	program, err := s.repo.FindByID(ctx, s.db, programID.Int64())
	if err != nil {
		return nil, err
	}
	if program == nil {
		return nil, domain.ErrNotFound
	}

	resp := toResponse(program)
	group, err := s.groupRepo.FindDefault(ctx, s.db, program.ID)
	if err != nil {
		return nil, err
	}
	if group != nil {
		resp.DefaultGroupID = snowflake.ID(group.ID).String()
	}
	return &resp, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) EnsureDefault(ctx context.Context, name string) (*domain.Response, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	programSlug := slug.Make(name)
	if programSlug == "" {
		return nil, domain.ErrInvalidSlug
	}

	var (
		program *domain.Program
		group   *groupdomain.PartnerGroup
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindBySlug(ctx, tx, programSlug)
		if err != nil {
			return err
		}
		if existing == nil {
			program, group, err = s.create(ctx, tx, name, programSlug)
			return err
		}

		program = existing
		group, err = s.groupRepo.FindDefault(ctx, tx, program.ID)
		if err != nil || group != nil {
			return err
		}
		group, err = s.createDefaultGroup(ctx, tx, program.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(program)
	resp.DefaultGroupID = snowflake.ID(group.ID).String()
	return &resp, nil
}

func (s *Service) create(ctx context.Context, tx *gorm.DB, name, programSlug string) (*domain.Program, *groupdomain.PartnerGroup, error) {
	existing, err := s.repo.FindBySlug(ctx, tx, programSlug)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, domain.ErrDuplicateSlug
	}

	now := s.clock.Now()
	program := &domain.Program{
		ID:        s.genID.Generate().Int64(),
		Name:      name,
		Slug:      programSlug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, tx, program); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, nil, domain.ErrDuplicateSlug
		}
		return nil, nil, err
	}

	group, err := s.createDefaultGroup(ctx, tx, program.ID)
	if err != nil {
		return nil, nil, err
	}

	pid := snowflake.ID(program.ID)
	targetID := pid.String()
	err = s.auditSvc.AuditLogTx(ctx, tx, &pid, "", nil, "program.created", "program", &targetID, map[string]any{
		"name":             program.Name,
		"slug":             program.Slug,
		"default_group_id": snowflake.ID(group.ID).String(),
	})
	if err != nil {
		return nil, nil, err
	}
	return program, group, nil
}

func (s *Service) createDefaultGroup(ctx context.Context, tx *gorm.DB, programID int64) (*groupdomain.PartnerGroup, error) {
	now := s.clock.Now()
	group := &groupdomain.PartnerGroup{
		ID:        s.genID.Generate().Int64(),
		ProgramID: programID,
		Name:      defaultGroupName,
		Slug:      groupdomain.DefaultSlug,
		Color:     defaultGroupColor,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.groupRepo.Create(ctx, tx, group); err != nil {
		return nil, err
	}
	return group, nil
}

func toResponse(p *domain.Program) domain.Response {
	return domain.Response{
		ID:        snowflake.ID(p.ID).String(),
		Name:      p.Name,
		Slug:      p.Slug,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
