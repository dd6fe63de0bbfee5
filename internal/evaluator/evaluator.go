package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/partnerflow/internal/audit/domain"
	"github.com/smallbiznis/partnerflow/internal/clock"
	"github.com/smallbiznis/partnerflow/internal/config"
	"github.com/smallbiznis/partnerflow/internal/moverule"
	obsmetrics "github.com/smallbiznis/partnerflow/internal/observability/metrics"
	partnerdomain "github.com/smallbiznis/partnerflow/internal/partner/domain"
	groupdomain "github.com/smallbiznis/partnerflow/internal/partnergroup/domain"
	"github.com/smallbiznis/partnerflow/internal/ratelimit"
	"github.com/smallbiznis/partnerflow/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jobEvaluatePartners = "evaluate_partners"

var (
	ErrInvalidConfig  = errors.New("evaluator: invalid configuration")
	ErrPartnerMissing = errors.New("partner_not_found")
)

var tracer = otel.Tracer("partnerflow/evaluator")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	PartnerRepo  partnerdomain.Repository
	GroupRepo    groupdomain.Repository
	AuditSvc     auditdomain.Service
	MoveLock     *ratelimit.MoveLock           `optional:"true"`
	Metrics      *obsmetrics.Metrics           `optional:"true"`
	ConfigHolder *config.EvaluatorConfigHolder `optional:"true"`
}

type Evaluator struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	partnerRepo partnerdomain.Repository
	groupRepo   groupdomain.Repository
	auditSvc    auditdomain.Service
	moveLock    *ratelimit.MoveLock
	metrics     *obsmetrics.Metrics
	cfgHolder   *config.EvaluatorConfigHolder
}

// Result is the outcome of evaluating one partner.
type Result struct {
	ProgramID   string         `json:"program_id"`
	PartnerID   string         `json:"partner_id"`
	Outcome     string         `json:"outcome"`
	FromGroupID string         `json:"from_group_id"`
	ToGroupID   string         `json:"to_group_id,omitempty"`
	Rule        *moverule.Rule `json:"rule,omitempty"`
	Description string         `json:"description,omitempty"`
	// CorrelationID is also written to the move's audit entry.
	CorrelationID string `json:"correlation_id"`
}

func New(p Params) (*Evaluator, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.PartnerRepo == nil || p.GroupRepo == nil || p.AuditSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Evaluator{
		db:          p.DB,
		log:         p.Log.Named("evaluator").With(zap.String("component", "evaluator")),
		genID:       p.GenID,
		clock:       p.Clock,
		partnerRepo: p.PartnerRepo,
		groupRepo:   p.GroupRepo,
		auditSvc:    p.AuditSvc,
		moveLock:    p.MoveLock,
		metrics:     p.Metrics,
		cfgHolder:   p.ConfigHolder,
	}, nil
}

func (e *Evaluator) config() Config {
	return fromHolder(e.cfgHolder)
}

func (e *Evaluator) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := e.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "evaluator."+name)
	defer span.End()

	ctx, run, owner := e.ensureJobRun(ctx, name, batchSize)
	if owner {
		e.logJobStart(ctx, run)
	}
	log := e.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	evalMetrics := obsmetrics.Evaluator()
	evalMetrics.IncJobRun(name)

	err := fn(ctx)
	evalMetrics.ObserveJobDuration(name, e.clock.Now().Sub(start))
	span.SetAttributes(
		attribute.Int("processed_count", run.processedCount),
		attribute.Int("moved_count", run.movedCount),
	)
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		e.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	span.SetStatus(codes.Error, "evaluator job failed")
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	evalMetrics.IncJobError(name, errorReason(err))
	if isTimeout {
		evalMetrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce evaluates batches of partners with unevaluated activity until none
// are left or the run times out.
func (e *Evaluator) RunOnce(parent context.Context) error {
	cfg := e.config()
	return e.runJob(parent, jobEvaluatePartners, cfg.BatchSize, cfg.RunTimeout, func(ctx context.Context) error {
		return e.evaluatePending(ctx, cfg.BatchSize)
	})
}

func (e *Evaluator) evaluatePending(ctx context.Context, batchSize int) error {
	run := jobRunFromContext(ctx)
	evalMetrics := obsmetrics.Evaluator()
	var jobErr error

	// partners that fail or are deferred keep their pending state; skip them
	// for the rest of this run so one bad row cannot spin the loop
	skipped := map[int64]struct{}{}

	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}

		claimStart := time.Now()
		var batch []partnerdomain.Partner
		err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			batch, err = e.partnerRepo.ClaimPendingEvaluation(ctx, tx, batchSize+len(skipped))
			return err
		})
		evalMetrics.ObserveDBLockWait(obsmetrics.LockResourcePartnersForEvaluation, time.Since(claimStart))
		if err != nil {
			e.logEvaluatorError(ctx, run, "evaluator.claim.failed", 0, 0, err)
			return errors.Join(jobErr, err)
		}

		processed := 0
		for _, partner := range batch {
			if _, ok := skipped[partner.ID]; ok {
				continue
			}
			processed++

			_, err := e.EvaluatePartner(ctx, partner.ProgramID, partner.ID)
			switch {
			case err == nil:
				run.AddProcessed(1)
			case errors.Is(err, ratelimit.ErrMoveInProgress):
				skipped[partner.ID] = struct{}{}
				evalMetrics.IncBatchDeferred(jobEvaluatePartners, obsmetrics.EvaluatorBatchDeferredReasonLockHeld)
			default:
				skipped[partner.ID] = struct{}{}
				jobErr = errors.Join(jobErr, err)
				e.logEvaluatorError(ctx, run, "evaluator.partner.failed", partner.ProgramID, partner.ID, err)
			}
		}
		evalMetrics.AddBatchProcessed(jobEvaluatePartners, "partners", processed)

		if processed == 0 {
			if len(batch) == 0 {
				evalMetrics.IncBatchDeferred(jobEvaluatePartners, obsmetrics.EvaluatorBatchDeferredReasonSkipLockedEmpty)
			}
			return jobErr
		}
	}
}

// EvaluatePartner moves one partner to the group its totals qualify for.
// The partner row is locked for the whole decision so concurrent evaluations
// of the same partner serialize.
func (e *Evaluator) EvaluatePartner(ctx context.Context, programID, partnerID int64) (*Result, error) {
	ctx, span := tracer.Start(ctx, "evaluator.evaluate_partner")
	defer span.End()
	span.SetAttributes(attribute.String("program_id", idString(programID)))

	ctx, correlationID := correlation.Ensure(ctx)
	ctx = e.withLogContext(ctx, programID)

	release, err := e.moveLock.Acquire(ctx, programID, partnerID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			e.logger(ctx).Warn("partner move lock release failed", zap.Error(err))
		}
	}()

	result := &Result{
		ProgramID:     idString(programID),
		PartnerID:     idString(partnerID),
		CorrelationID: correlationID,
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		partner, err := e.partnerRepo.FindForUpdate(ctx, tx, programID, partnerID)
		obsmetrics.Evaluator().ObserveDBLockWait(obsmetrics.LockResourcePartnerByID, time.Since(lockStart))
		if err != nil {
			return err
		}
		if partner == nil {
			return ErrPartnerMissing
		}

		now := e.clock.Now()
		seen := evaluatedAt(partner, now)
		result.FromGroupID = idString(partner.GroupID)

		if partner.Status == partnerdomain.StatusBanned {
			result.Outcome = obsmetrics.EvaluationOutcomeBanned
			return e.partnerRepo.MarkEvaluated(ctx, tx, partner.ID, seen)
		}

		groups, err := e.groupRepo.FindAll(ctx, tx, programID)
		if err != nil {
			return err
		}

		decision := Decide(partner.Snapshot(), partner.GroupID, groups)
		if !decision.Move {
			result.Outcome = obsmetrics.EvaluationOutcomeStayed
			if decision.Group != nil {
				rule := decision.Rule
				result.Rule = &rule
				result.Description = moverule.Describe(rule)
			}
			return e.partnerRepo.MarkEvaluated(ctx, tx, partner.ID, seen)
		}

		target := decision.Group
		if err := e.partnerRepo.UpdateGroup(ctx, tx, programID, partner.ID, target.ID, now); err != nil {
			return err
		}
		if err := e.partnerRepo.MarkEvaluated(ctx, tx, partner.ID, seen); err != nil {
			return err
		}

		rule := decision.Rule
		result.Outcome = obsmetrics.EvaluationOutcomeMoved
		result.ToGroupID = idString(target.ID)
		result.Rule = &rule
		result.Description = moverule.Describe(rule)

		pid := snowflake.ID(programID)
		targetID := result.PartnerID
		return e.auditSvc.AuditLogTx(ctx, tx, &pid, "", nil, "partner.group_moved", "partner", &targetID, map[string]any{
			"from_group_id":  result.FromGroupID,
			"to_group_id":    result.ToGroupID,
			"to_group_name":  target.Name,
			"rule":           rule,
			"description":    result.Description,
			"totals":         partner.Snapshot(),
			"correlation_id": correlationID,
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, "evaluate partner failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("outcome", result.Outcome))
	obsmetrics.Evaluator().IncEvaluation(result.Outcome)
	if result.Outcome == obsmetrics.EvaluationOutcomeMoved {
		if run := jobRunFromContext(ctx); run != nil {
			run.IncMoved()
		}
		e.metrics.RecordGroupMove(ctx, result.ProgramID, "rule")
		e.logPartnerMoved(ctx, result)
	}
	return result, nil
}

// evaluatedAt is the metrics_updated_at read under the row lock, so the
// pending check only ever compares timestamps written by the ingest path.
// Partners without activity fall back to now.
func evaluatedAt(p *partnerdomain.Partner, now time.Time) time.Time {
	if p.MetricsUpdatedAt != nil {
		return *p.MetricsUpdatedAt
	}
	return now
}
