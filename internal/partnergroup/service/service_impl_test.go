package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/partnerflow/internal/audit/domain"
	auditrepository "github.com/smallbiznis/partnerflow/internal/audit/repository"
	auditservice "github.com/smallbiznis/partnerflow/internal/audit/service"
	"github.com/smallbiznis/partnerflow/internal/clock"
	"github.com/smallbiznis/partnerflow/internal/moverule"
	partnerdomain "github.com/smallbiznis/partnerflow/internal/partner/domain"
	partnerrepository "github.com/smallbiznis/partnerflow/internal/partner/repository"
	"github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
	"github.com/smallbiznis/partnerflow/internal/partnergroup/repository"
	"github.com/smallbiznis/partnerflow/internal/programcontext"
	"github.com/smallbiznis/partnerflow/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testProgramID int64 = 4242

type fixture struct {
	svc     domain.Service
	db      *gorm.DB
	repo    domain.Repository
	clock   *clock.FakeClock
	node    *snowflake.Node
	ctx     context.Context
	defID   int64
	partner partnerdomain.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.PartnerGroup{}, &partnerdomain.Partner{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	partnerRepo := partnerrepository.Provide()
	audit := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: fake,
	})

	svc := New(Params{
		DB:          conn,
		Log:         log,
		GenID:       node,
		Repo:        repo,
		PartnerRepo: partnerRepo,
		AuditSvc:    audit,
		Clock:       fake,
	})

	def := &domain.PartnerGroup{
		ID:        node.Generate().Int64(),
		ProgramID: testProgramID,
		Name:      "Default",
		Slug:      domain.DefaultSlug,
		Color:     "#2563EB",
		IsDefault: true,
		CreatedAt: fake.Now(),
		UpdatedAt: fake.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), conn, def))

	return &fixture{
		svc:     svc,
		db:      conn,
		repo:    repo,
		clock:   fake,
		node:    node,
		ctx:     programcontext.WithProgramID(context.Background(), testProgramID),
		defID:   def.ID,
		partner: partnerRepo,
	}
}

func (f *fixture) createGroup(t *testing.T, name string, rules ...moverule.Rule) *domain.Response {
	t.Helper()
	f.clock.Advance(time.Second)
	resp, err := f.svc.Create(f.ctx, domain.CreateRequest{Name: name, MoveRules: rules})
	require.NoError(t, err)
	return resp
}

func (f *fixture) auditActions(t *testing.T) []string {
	t.Helper()
	var actions []string
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Order("created_at asc, id asc").Pluck("action", &actions).Error)
	return actions
}

func TestCreateGeneratesSlugAndColor(t *testing.T) {
	f := newFixture(t)

	resp := f.createGroup(t, "Gold Partners", moverule.GTE(moverule.AttributeTotalLeads, 100))

	assert.Equal(t, "gold-partners", resp.Slug)
	assert.Regexp(t, `^#[0-9A-F]{6}$`, resp.Color)
	assert.False(t, resp.IsDefault)
	require.Len(t, resp.MoveRules, 1)
	assert.NotEmpty(t, resp.MoveRules[0].Description)
	assert.Contains(t, f.auditActions(t), "partner_group.created")
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx, domain.CreateRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	bad := "Not A Slug"
	_, err = f.svc.Create(f.ctx, domain.CreateRequest{Name: "Silver", Slug: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidSlug)

	color := "blue"
	_, err = f.svc.Create(f.ctx, domain.CreateRequest{Name: "Silver", Color: &color})
	assert.ErrorIs(t, err, domain.ErrInvalidColor)

	_, err = f.svc.Create(f.ctx, domain.CreateRequest{
		Name: "Silver",
		MoveRules: []moverule.Rule{
			moverule.GTE(moverule.AttributeTotalLeads, 10),
			moverule.GTE(moverule.AttributeTotalLeads, 20),
		},
	})
	var verrs *moverule.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	_, err = f.svc.Create(context.Background(), domain.CreateRequest{Name: "Silver"})
	assert.ErrorIs(t, err, domain.ErrInvalidProgram)
}

func TestCreateRejectsDuplicateSlug(t *testing.T) {
	f := newFixture(t)
	f.createGroup(t, "Gold")

	_, err := f.svc.Create(f.ctx, domain.CreateRequest{Name: "Gold"})
	assert.ErrorIs(t, err, domain.ErrDuplicateSlug)
}

func TestCreateConflictBlocksUnlessForced(t *testing.T) {
	f := newFixture(t)
	gold := f.createGroup(t, "Gold", moverule.GTE(moverule.AttributeTotalLeads, 100))

	_, err := f.svc.Create(f.ctx, domain.CreateRequest{
		Name:      "Platinum",
		MoveRules: []moverule.Rule{moverule.GTE(moverule.AttributeTotalLeads, 100)},
	})
	require.ErrorIs(t, err, domain.ErrMoveRuleConflict)

	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Len(t, conflict.Groups, 1)
	assert.Equal(t, gold.ID, conflict.Groups[0].ID)

	resp, err := f.svc.Create(f.ctx, domain.CreateRequest{
		Name:      "Platinum",
		MoveRules: []moverule.Rule{moverule.GTE(moverule.AttributeTotalLeads, 100)},
		Force:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "platinum", resp.Slug)
}

func TestUpdateMoveRulesConflict(t *testing.T) {
	f := newFixture(t)
	gold := f.createGroup(t, "Gold", moverule.BetweenRule(moverule.AttributeTotalSaleAmount, moverule.Int64(0), moverule.Int64(10000)))
	silver := f.createGroup(t, "Silver")

	_, err := f.svc.UpdateMoveRules(f.ctx, domain.UpdateMoveRulesRequest{
		GroupID: silver.ID,
		Rules:   []moverule.Rule{moverule.BetweenRule(moverule.AttributeTotalSaleAmount, moverule.Int64(5000), nil)},
	})
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, gold.ID, conflict.Groups[0].ID)

	stored, err := f.svc.Get(f.ctx, silver.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.MoveRules)

	resp, err := f.svc.UpdateMoveRules(f.ctx, domain.UpdateMoveRulesRequest{
		GroupID: silver.Slug,
		Rules:   []moverule.Rule{moverule.BetweenRule(moverule.AttributeTotalSaleAmount, moverule.Int64(5000), nil)},
		Force:   true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Conflicting, 1)
	require.Len(t, resp.MoveRules, 1)
	assert.Contains(t, f.auditActions(t), "partner_group.move_rules_updated")
}

func TestUpdateMoveRulesIgnoresOwnRules(t *testing.T) {
	f := newFixture(t)
	gold := f.createGroup(t, "Gold", moverule.GTE(moverule.AttributeTotalLeads, 100))

	resp, err := f.svc.UpdateMoveRules(f.ctx, domain.UpdateMoveRulesRequest{
		GroupID: gold.ID,
		Rules:   []moverule.Rule{moverule.GTE(moverule.AttributeTotalLeads, 100), moverule.GTE(moverule.AttributeTotalConversions, 5)},
	})
	require.NoError(t, err)
	assert.Len(t, resp.MoveRules, 2)
	assert.Empty(t, resp.Conflicting)
}

func TestUpdateMoveRulesEmptyClearsRules(t *testing.T) {
	f := newFixture(t)
	gold := f.createGroup(t, "Gold", moverule.GTE(moverule.AttributeTotalLeads, 100))

	resp, err := f.svc.UpdateMoveRules(f.ctx, domain.UpdateMoveRulesRequest{GroupID: gold.ID, Rules: nil})
	require.NoError(t, err)
	assert.Empty(t, resp.MoveRules)

	id, err := snowflake.ParseString(gold.ID)
	require.NoError(t, err)
	stored, err := f.repo.FindByID(context.Background(), f.db, testProgramID, id.Int64())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Empty(t, stored.Rules())
}

func TestCheckMoveRulesReportsWithoutPersisting(t *testing.T) {
	f := newFixture(t)
	gold := f.createGroup(t, "Gold", moverule.GTE(moverule.AttributeTotalLeads, 100))

	resp, err := f.svc.CheckMoveRules(f.ctx, "", []moverule.Rule{
		moverule.GTE(moverule.AttributeTotalLeads, 100),
		moverule.GTE(moverule.AttributeTotalCommissions, -1),
	})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Errors)
	require.Len(t, resp.Conflicting, 1)
	assert.Equal(t, gold.ID, resp.Conflicting[0].ID)

	resp, err = f.svc.CheckMoveRules(f.ctx, gold.ID, []moverule.Rule{moverule.GTE(moverule.AttributeTotalLeads, 100)})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Conflicting)
}

func TestUpdateRenamesAndProtectsDefaultSlug(t *testing.T) {
	f := newFixture(t)
	gold := f.createGroup(t, "Gold")

	name := "Gold Tier"
	color := "#abcdef"
	resp, err := f.svc.Update(f.ctx, domain.UpdateRequest{ID: gold.ID, Name: &name, Color: &color})
	require.NoError(t, err)
	assert.Equal(t, "Gold Tier", resp.Name)
	assert.Equal(t, "#ABCDEF", resp.Color)

	slugValue := "main"
	_, err = f.svc.Update(f.ctx, domain.UpdateRequest{ID: domain.DefaultSlug, Slug: &slugValue})
	assert.ErrorIs(t, err, domain.ErrDefaultGroup)
}

func TestDeleteMovesPartnersToDefault(t *testing.T) {
	f := newFixture(t)
	gold := f.createGroup(t, "Gold")
	goldID, err := snowflake.ParseString(gold.ID)
	require.NoError(t, err)

	for _, email := range []string{"a@example.com", "b@example.com"} {
		require.NoError(t, f.partner.Create(context.Background(), f.db, &partnerdomain.Partner{
			ID:        f.node.Generate().Int64(),
			ProgramID: testProgramID,
			GroupID:   goldID.Int64(),
			Name:      email,
			Email:     email,
			Status:    partnerdomain.StatusApproved,
			CreatedAt: f.clock.Now(),
			UpdatedAt: f.clock.Now(),
		}))
	}

	resp, err := f.svc.Delete(f.ctx, gold.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.MovedPartners)
	assert.Equal(t, snowflake.ID(f.defID).String(), resp.DefaultGroupID)

	var inDefault int64
	require.NoError(t, f.db.Model(&partnerdomain.Partner{}).Where("group_id = ?", f.defID).Count(&inDefault).Error)
	assert.Equal(t, int64(2), inDefault)

	_, err = f.svc.Get(f.ctx, gold.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, f.auditActions(t), "partner_group.deleted")
}

func TestDeleteRejectsDefaultGroup(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Delete(f.ctx, domain.DefaultSlug)
	assert.ErrorIs(t, err, domain.ErrDefaultGroup)
}

func TestListKeepsCreationOrder(t *testing.T) {
	f := newFixture(t)
	f.createGroup(t, "Bronze")
	f.createGroup(t, "Silver")

	items, err := f.svc.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, domain.DefaultSlug, items[0].Slug)
	assert.Equal(t, "bronze", items[1].Slug)
	assert.Equal(t, "silver", items[2].Slug)
}
