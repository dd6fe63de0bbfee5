package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	auditdomain "github.com/smallbiznis/partnerflow/internal/audit/domain"
	auditrepository "github.com/smallbiznis/partnerflow/internal/audit/repository"
	auditservice "github.com/smallbiznis/partnerflow/internal/audit/service"
	"github.com/smallbiznis/partnerflow/internal/clock"
	"github.com/smallbiznis/partnerflow/internal/config"
	"github.com/smallbiznis/partnerflow/internal/moverule"
	obsmetrics "github.com/smallbiznis/partnerflow/internal/observability/metrics"
	partnerdomain "github.com/smallbiznis/partnerflow/internal/partner/domain"
	partnerrepository "github.com/smallbiznis/partnerflow/internal/partner/repository"
	groupdomain "github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
	grouprepository "github.com/smallbiznis/partnerflow/internal/partnergroup/repository"
	"github.com/smallbiznis/partnerflow/internal/ratelimit"
	"github.com/smallbiznis/partnerflow/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testProgramID int64 = 9001

type fixture struct {
	eval     *Evaluator
	db       *gorm.DB
	clock    *clock.FakeClock
	node     *snowflake.Node
	partners partnerdomain.Repository
	groups   map[string]*groupdomain.PartnerGroup
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&groupdomain.PartnerGroup{}, &partnerdomain.Partner{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	fake := clock.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	groupRepo := grouprepository.Provide()
	partnerRepo := partnerrepository.Provide()

	f := &fixture{
		db:       conn,
		clock:    fake,
		node:     node,
		partners: partnerRepo,
		groups:   map[string]*groupdomain.PartnerGroup{},
	}

	for _, g := range []struct {
		slug  string
		def   bool
		rules []moverule.Rule
	}{
		{"default", true, nil},
		{"silver", false, []moverule.Rule{moverule.GTE(moverule.AttributeTotalLeads, 10)}},
		{"gold", false, []moverule.Rule{moverule.GTE(moverule.AttributeTotalSaleAmount, 100_000)}},
	} {
		fake.Advance(time.Second)
		group := &groupdomain.PartnerGroup{
			ID:        node.Generate().Int64(),
			ProgramID: testProgramID,
			Name:      g.slug,
			Slug:      g.slug,
			Color:     "#2563EB",
			IsDefault: g.def,
			MoveRules: g.rules,
			CreatedAt: fake.Now(),
			UpdatedAt: fake.Now(),
		}
		require.NoError(t, groupRepo.Create(context.Background(), conn, group))
		f.groups[g.slug] = group
	}

	eval, err := New(Params{
		DB:          conn,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		PartnerRepo: partnerRepo,
		GroupRepo:   groupRepo,
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    conn,
			Log:   log,
			GenID: node,
			Repo:  auditrepository.Provide(),
			Clock: fake,
		}),
		ConfigHolder: config.NewStaticEvaluatorConfigHolder(config.EvaluatorConfig{
			Enabled:     true,
			RunInterval: 10 * time.Millisecond,
			BatchSize:   2,
			RunTimeout:  5 * time.Second,
		}),
	})
	require.NoError(t, err)
	f.eval = eval
	return f
}

func (f *fixture) addPartner(t *testing.T, email string, activity partnerdomain.Activity) *partnerdomain.Partner {
	t.Helper()
	now := f.clock.Now()
	p := &partnerdomain.Partner{
		ID:        f.node.Generate().Int64(),
		ProgramID: testProgramID,
		GroupID:   f.groups["default"].ID,
		Name:      email,
		Email:     email,
		Status:    partnerdomain.StatusApproved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.partners.Create(context.Background(), f.db, p))
	if !activity.IsZero() {
		require.NoError(t, f.partners.AddActivity(context.Background(), f.db, testProgramID, p.ID, activity, now))
	}
	return p
}

func (f *fixture) reload(t *testing.T, id int64) *partnerdomain.Partner {
	t.Helper()
	p, err := f.partners.FindByID(context.Background(), f.db, testProgramID, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEvaluatePartnerMovesAndAudits(t *testing.T) {
	f := newFixture(t)
	p := f.addPartner(t, "mover@example.com", partnerdomain.Activity{Leads: 12})

	result, err := f.eval.EvaluatePartner(context.Background(), testProgramID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, obsmetrics.EvaluationOutcomeMoved, result.Outcome)
	assert.Equal(t, snowflake.ID(f.groups["silver"].ID).String(), result.ToGroupID)
	require.NotNil(t, result.Rule)
	assert.Equal(t, moverule.AttributeTotalLeads, result.Rule.Attribute)
	assert.NotEmpty(t, result.Description)

	stored := f.reload(t, p.ID)
	assert.Equal(t, f.groups["silver"].ID, stored.GroupID)
	assert.False(t, stored.NeedsEvaluation())

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "partner.group_moved").First(&entry).Error)
	assert.Equal(t, "system", entry.ActorType)
	assert.Equal(t, result.FromGroupID, entry.Metadata["from_group_id"])
	assert.Equal(t, result.ToGroupID, entry.Metadata["to_group_id"])
	assert.NotEmpty(t, entry.Metadata["correlation_id"])
	assert.Equal(t, result.Description, entry.Metadata["description"])
}

func TestEvaluatePartnerWithoutMatchStays(t *testing.T) {
	f := newFixture(t)
	p := f.addPartner(t, "stay@example.com", partnerdomain.Activity{Leads: 2})

	result, err := f.eval.EvaluatePartner(context.Background(), testProgramID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, obsmetrics.EvaluationOutcomeStayed, result.Outcome)
	assert.Nil(t, result.Rule)

	stored := f.reload(t, p.ID)
	assert.Equal(t, f.groups["default"].ID, stored.GroupID)
	assert.NotNil(t, stored.EvaluatedAt)

	var count int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEvaluatePartnerNeverMovesBanned(t *testing.T) {
	f := newFixture(t)
	p := f.addPartner(t, "banned@example.com", partnerdomain.Activity{Leads: 500})
	require.NoError(t, f.partners.UpdateStatus(context.Background(), f.db, testProgramID, p.ID, partnerdomain.StatusBanned, f.clock.Now()))

	result, err := f.eval.EvaluatePartner(context.Background(), testProgramID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, obsmetrics.EvaluationOutcomeBanned, result.Outcome)
	assert.Equal(t, f.groups["default"].ID, f.reload(t, p.ID).GroupID)
}

func TestEvaluatePartnerMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.eval.EvaluatePartner(context.Background(), testProgramID, 12345)
	assert.ErrorIs(t, err, ErrPartnerMissing)
}

func TestRunOnceDrainsPendingPartners(t *testing.T) {
	f := newFixture(t)
	silver := f.addPartner(t, "a@example.com", partnerdomain.Activity{Leads: 11})
	gold := f.addPartner(t, "b@example.com", partnerdomain.Activity{SaleAmount: 250_000})
	idle := f.addPartner(t, "c@example.com", partnerdomain.Activity{})
	small := f.addPartner(t, "d@example.com", partnerdomain.Activity{Leads: 1})

	require.NoError(t, f.eval.RunOnce(context.Background()))

	assert.Equal(t, f.groups["silver"].ID, f.reload(t, silver.ID).GroupID)
	assert.Equal(t, f.groups["gold"].ID, f.reload(t, gold.ID).GroupID)
	assert.Nil(t, f.reload(t, idle.ID).EvaluatedAt)
	assert.False(t, f.reload(t, small.ID).NeedsEvaluation())

	pending, err := f.partners.ClaimPendingEvaluation(context.Background(), f.db, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunOnceReevaluatesAfterNewActivity(t *testing.T) {
	f := newFixture(t)
	p := f.addPartner(t, "grow@example.com", partnerdomain.Activity{Leads: 11})
	require.NoError(t, f.eval.RunOnce(context.Background()))
	require.Equal(t, f.groups["silver"].ID, f.reload(t, p.ID).GroupID)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.partners.AddActivity(context.Background(), f.db, testProgramID, p.ID, partnerdomain.Activity{SaleAmount: 100_000}, f.clock.Now()))
	require.True(t, f.reload(t, p.ID).NeedsEvaluation())

	// still matches silver's own rule, so it stays
	require.NoError(t, f.eval.RunOnce(context.Background()))
	stored := f.reload(t, p.ID)
	assert.Equal(t, f.groups["silver"].ID, stored.GroupID)
	assert.False(t, stored.NeedsEvaluation())
}

func TestEvaluatorClockAheadOfIngestStillSeesNewActivity(t *testing.T) {
	f := newFixture(t)
	p := f.addPartner(t, "skew@example.com", partnerdomain.Activity{Leads: 2})
	ingestedAt := *f.reload(t, p.ID).MetricsUpdatedAt

	// evaluator node runs 5s ahead of the ingest node
	f.clock.Advance(5 * time.Second)
	result, err := f.eval.EvaluatePartner(context.Background(), testProgramID, p.ID)
	require.NoError(t, err)
	require.Equal(t, obsmetrics.EvaluationOutcomeStayed, result.Outcome)
	assert.True(t, ingestedAt.Equal(*f.reload(t, p.ID).EvaluatedAt))

	require.NoError(t, f.partners.AddActivity(context.Background(), f.db, testProgramID, p.ID,
		partnerdomain.Activity{Leads: 20}, ingestedAt.Add(2*time.Second)))
	require.True(t, f.reload(t, p.ID).NeedsEvaluation())

	require.NoError(t, f.eval.RunOnce(context.Background()))
	stored := f.reload(t, p.ID)
	assert.Equal(t, f.groups["silver"].ID, stored.GroupID)
	assert.False(t, stored.NeedsEvaluation())
}

func TestEvaluatedAtTracksMetricsClock(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	behind := now.Add(-time.Minute)
	assert.Equal(t, behind, evaluatedAt(&partnerdomain.Partner{MetricsUpdatedAt: &behind}, now))
	assert.Equal(t, now, evaluatedAt(&partnerdomain.Partner{}, now))
}

func lockHeldDeferrals(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "partnerflow_evaluator_batch_deferred_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "reason" && l.GetValue() == obsmetrics.EvaluatorBatchDeferredReasonLockHeld {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRunOnceDefersPartnerWithHeldMoveLock(t *testing.T) {
	f := newFixture(t)
	obsmetrics.Evaluator()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.eval.moveLock = ratelimit.NewMoveLock(config.Config{}, client)

	held := f.addPartner(t, "held@example.com", partnerdomain.Activity{Leads: 15})
	free := f.addPartner(t, "free@example.com", partnerdomain.Activity{Leads: 15})

	release, err := f.eval.moveLock.Acquire(context.Background(), testProgramID, held.ID)
	require.NoError(t, err)

	_, err = f.eval.EvaluatePartner(context.Background(), testProgramID, held.ID)
	assert.ErrorIs(t, err, ratelimit.ErrMoveInProgress)

	before := lockHeldDeferrals(t)
	require.NoError(t, f.eval.RunOnce(context.Background()))

	// deferred once, then left alone for the rest of the run
	assert.Equal(t, before+1, lockHeldDeferrals(t))
	assert.Equal(t, f.groups["silver"].ID, f.reload(t, free.ID).GroupID)
	stillPending := f.reload(t, held.ID)
	assert.Equal(t, f.groups["default"].ID, stillPending.GroupID)
	assert.True(t, stillPending.NeedsEvaluation())

	require.NoError(t, release(context.Background()))
	require.NoError(t, f.eval.RunOnce(context.Background()))
	assert.Equal(t, f.groups["silver"].ID, f.reload(t, held.ID).GroupID)
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	p := f.addPartner(t, "loop@example.com", partnerdomain.Activity{Leads: 20})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.eval.RunForever(ctx)
	}()

	require.Eventually(t, func() bool {
		stored, err := f.partners.FindByID(context.Background(), f.db, testProgramID, p.ID)
		return err == nil && stored != nil && stored.GroupID == f.groups["silver"].ID
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("evaluator did not stop")
	}
}
