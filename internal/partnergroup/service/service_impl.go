package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/partnerflow/internal/audit/domain"
	"github.com/smallbiznis/partnerflow/internal/clock"
	"github.com/smallbiznis/partnerflow/internal/moverule"
	obsmetrics "github.com/smallbiznis/partnerflow/internal/observability/metrics"
	partnerdomain "github.com/smallbiznis/partnerflow/internal/partner/domain"
	"github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
	"github.com/smallbiznis/partnerflow/internal/programcontext"
	"github.com/smallbiznis/partnerflow/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// palette is cycled through for groups created without a color.
var palette = []string{
	"#2563EB",
	"#16A34A",
	"#F59E0B",
	"#DC2626",
	"#7C3AED",
	"#0891B2",
	"#DB2777",
	"#65A30D",
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	PartnerRepo partnerdomain.Repository
	AuditSvc    auditdomain.Service
	Clock       clock.Clock
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	partnerRepo partnerdomain.Repository
	auditSvc    auditdomain.Service
	clock       clock.Clock
	metrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("partnergroup.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		partnerRepo: p.PartnerRepo,
		auditSvc:    p.AuditSvc,
		clock:       p.Clock,
		metrics:     p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	groupSlug, err := resolveSlug(name, req.Slug)
	if err != nil {
		return nil, err
	}

	rules := moverule.CloneRules(req.MoveRules)
	if err := moverule.Validate(rules); err != nil {
		return nil, err
	}

	var group *domain.PartnerGroup
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindAll(ctx, tx, programID)
		if err != nil {
			return err
		}
		for _, g := range existing {
			if g.Slug == groupSlug {
				return domain.ErrDuplicateSlug
			}
		}

		color, err := resolveColor(req.Color, len(existing))
		if err != nil {
			return err
		}

		if conflicts := moverule.FindGroupsWithMatchingRules(domain.RuleGroups(existing), rules, ""); len(conflicts) > 0 && !req.Force {
			s.metrics.RecordMoveRuleConflict(ctx, snowflake.ID(programID).String())
			return &domain.ConflictError{Groups: conflicts}
		}

		now := s.clock.Now()
		group = &domain.PartnerGroup{
			ID:        s.genID.Generate().Int64(),
			ProgramID: programID,
			Name:      name,
			Slug:      groupSlug,
			Color:     color,
			MoveRules: rules,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Create(ctx, tx, group); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateSlug
			}
			return err
		}

		pid := snowflake.ID(programID)
		targetID := snowflake.ID(group.ID).String()
		return s.auditSvc.AuditLogTx(ctx, tx, &pid, "", nil, "partner_group.created", "partner_group", &targetID, map[string]any{
			"name":       group.Name,
			"slug":       group.Slug,
			"rule_count": len(rules),
		})
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(group)
	return &resp, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Response, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.FindAll(ctx, s.db, programID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, idOrSlug string) (*domain.Response, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	group, err := s.lookup(ctx, s.db, programID, idOrSlug)
	if err != nil {
		return nil, err
	}
	resp := toResponse(group)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var group *domain.PartnerGroup
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err = s.lookup(ctx, tx, programID, req.ID)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			group.Name = name
		}
		if req.Slug != nil {
			if group.IsDefault {
				return domain.ErrDefaultGroup
			}
			groupSlug := strings.TrimSpace(*req.Slug)
			if !slug.IsSlug(groupSlug) {
				return domain.ErrInvalidSlug
			}
			if groupSlug != group.Slug {
				other, err := s.repo.FindBySlug(ctx, tx, programID, groupSlug)
				if err != nil {
					return err
				}
				if other != nil {
					return domain.ErrDuplicateSlug
				}
			}
			group.Slug = groupSlug
		}
		if req.Color != nil {
			color := strings.TrimSpace(*req.Color)
			if !colorPattern.MatchString(color) {
				return domain.ErrInvalidColor
			}
			group.Color = strings.ToUpper(color)
		}

		group.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, group); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateSlug
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(group)
	return &resp, nil
}

func (s *Service) UpdateMoveRules(ctx context.Context, req domain.UpdateMoveRulesRequest) (*domain.Response, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rules := moverule.CloneRules(req.Rules)
	if rules == nil {
		rules = []moverule.Rule{}
	}
	if err := moverule.Validate(rules); err != nil {
		return nil, err
	}

	var (
		group     *domain.PartnerGroup
		conflicts []moverule.Group
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err = s.lookup(ctx, tx, programID, req.GroupID)
		if err != nil {
			return err
		}

		all, err := s.repo.FindAll(ctx, tx, programID)
		if err != nil {
			return err
		}

		groupID := snowflake.ID(group.ID).String()
		conflicts = moverule.FindGroupsWithMatchingRules(domain.RuleGroups(all), rules, groupID)
		if len(conflicts) > 0 && !req.Force {
			s.metrics.RecordMoveRuleConflict(ctx, snowflake.ID(programID).String())
			return &domain.ConflictError{Groups: conflicts}
		}

		previous := moverule.CloneRules(group.Rules())
		group.MoveRules = rules
		group.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateMoveRules(ctx, tx, programID, group.ID, rules, group.UpdatedAt); err != nil {
			return err
		}

		metadata := map[string]any{
			"previous_rules": describeRules(previous),
			"rules":          describeRules(rules),
		}
		if len(conflicts) > 0 {
			metadata["forced"] = true
			metadata["conflicting_group_ids"] = groupIDs(conflicts)
		}
		pid := snowflake.ID(programID)
		return s.auditSvc.AuditLogTx(ctx, tx, &pid, "", nil, "partner_group.move_rules_updated", "partner_group", &groupID, metadata)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("move rules updated",
		zap.Int64("program_id", programID),
		zap.Int64("group_id", group.ID),
		zap.Int("rule_count", len(rules)),
		zap.Int("conflicts", len(conflicts)),
	)

	resp := toResponse(group)
	resp.Conflicting = conflicts
	return &resp, nil
}

func (s *Service) CheckMoveRules(ctx context.Context, groupID string, rules []moverule.Rule) (*domain.CheckResponse, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	resp := &domain.CheckResponse{
		Valid:       true,
		Errors:      []moverule.ValidationError{},
		Conflicting: []moverule.Group{},
	}

	if err := moverule.Validate(rules); err != nil {
		var verrs *moverule.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		resp.Valid = false
		resp.Errors = verrs.Errors
	}

	currentID := ""
	if strings.TrimSpace(groupID) != "" {
		group, err := s.lookup(ctx, s.db, programID, groupID)
		if err != nil {
			return nil, err
		}
		currentID = snowflake.ID(group.ID).String()
	}

	all, err := s.repo.FindAll(ctx, s.db, programID)
	if err != nil {
		return nil, err
	}
	if conflicts := moverule.FindGroupsWithMatchingRules(domain.RuleGroups(all), rules, currentID); len(conflicts) > 0 {
		resp.Conflicting = conflicts
	}
	return resp, nil
}

func (s *Service) Delete(ctx context.Context, id string) (*domain.DeleteResponse, error) {
	programID, err := programIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var resp *domain.DeleteResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err := s.lookup(ctx, tx, programID, id)
		if err != nil {
			return err
		}
		if group.IsDefault {
			return domain.ErrDefaultGroup
		}

		fallback, err := s.repo.FindDefault(ctx, tx, programID)
		if err != nil {
			return err
		}
		if fallback == nil {
			return domain.ErrNoDefaultGroup
		}

		moved, err := s.partnerRepo.MoveAllInGroup(ctx, tx, programID, group.ID, fallback.ID, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, programID, group.ID); err != nil {
			return err
		}

		groupID := snowflake.ID(group.ID).String()
		resp = &domain.DeleteResponse{
			ID:             groupID,
			MovedPartners:  moved,
			DefaultGroupID: snowflake.ID(fallback.ID).String(),
		}
		pid := snowflake.ID(programID)
		return s.auditSvc.AuditLogTx(ctx, tx, &pid, "", nil, "partner_group.deleted", "partner_group", &groupID, map[string]any{
			"name":             group.Name,
			"moved_partners":   moved,
			"default_group_id": resp.DefaultGroupID,
		})
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// lookup resolves a group by snowflake id first and by slug otherwise.
func (s *Service) lookup(ctx context.Context, conn *gorm.DB, programID int64, idOrSlug string) (*domain.PartnerGroup, error) {
	key := strings.TrimSpace(idOrSlug)
	if key == "" {
		return nil, domain.ErrInvalidID
	}

	var (
		group *domain.PartnerGroup
		err   error
	)
	if id, parseErr := snowflake.ParseString(key); parseErr == nil && id != 0 {
		group, err = s.repo.FindByID(ctx, conn, programID, id.Int64())
		if err != nil {
			return nil, err
		}
	}
	if group == nil {
		group, err = s.repo.FindBySlug(ctx, conn, programID, key)
		if err != nil {
			return nil, err
		}
	}
	if group == nil {
		return nil, domain.ErrNotFound
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

func resolveSlug(name string, requested *string) (string, error) {
	if requested != nil && strings.TrimSpace(*requested) != "" {
		value := strings.TrimSpace(*requested)
		if !slug.IsSlug(value) {
			return "", domain.ErrInvalidSlug
		}
		return value, nil
	}
	value := slug.Make(name)
	if value == "" {
		return "", domain.ErrInvalidSlug
	}
	return value, nil
}

func resolveColor(requested *string, existing int) (string, error) {
	if requested == nil || strings.TrimSpace(*requested) == "" {
		return palette[existing%len(palette)], nil
	}
	color := strings.TrimSpace(*requested)
	if !colorPattern.MatchString(color) {
		return "", domain.ErrInvalidColor
	}
	return strings.ToUpper(color), nil
}

func describeRules(rules []moverule.Rule) []string {
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		out = append(out, moverule.Describe(rule))
	}
	return out
}

func groupIDs(groups []moverule.Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.ID)
	}
	return out
}

func toResponse(g *domain.PartnerGroup) domain.Response {
	rules := make([]domain.RuleDescription, 0, len(g.MoveRules))
	for _, rule := range g.MoveRules {
		rules = append(rules, domain.RuleDescription{
			Rule:        rule,
			Description: moverule.Describe(rule),
		})
	}
	return domain.Response{
		ID:        snowflake.ID(g.ID).String(),
		ProgramID: snowflake.ID(g.ProgramID).String(),
		Name:      g.Name,
		Slug:      g.Slug,
		Color:     g.Color,
		IsDefault: g.IsDefault,
		MoveRules: rules,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}
