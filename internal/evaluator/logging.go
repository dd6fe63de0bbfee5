package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/partnerflow/internal/observability/context"
	obslogger "github.com/smallbiznis/partnerflow/internal/observability/logger"
	"github.com/smallbiznis/partnerflow/pkg/db"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Failure reasons used as the job_errors_total label and in logs.
const (
	reasonDeadline      = "deadline_exceeded"
	reasonLockTimeout   = "db_lock_timeout"
	reasonSerialization = "serialization_failure"
	reasonDeadlock      = "deadlock"
	reasonDuplicateKey  = "unique_violation"
	reasonUnknown       = "unknown"
)

func errorReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return reasonDeadline
	}
	switch db.PgCode(err) {
	case db.PgLockNotAvailable:
		return reasonLockTimeout
	case db.PgSerializationFailure:
		return reasonSerialization
	case db.PgDeadlockDetected:
		return reasonDeadlock
	}
	if db.IsDuplicateKeyErr(err) {
		return reasonDuplicateKey
	}
	return reasonUnknown
}

// retryable errors leave the partner pending; the next tick picks it up again.
func retryable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || db.IsTransient(err)
}

// jobRun tallies one evaluator run. It travels on the context so nested
// evaluations report into the run that started them.
type jobRun struct {
	job            string
	runID          string
	batchSize      int
	startedAt      time.Time
	processedCount int
	movedCount     int
	errorCount     int
}

type jobRunKey struct{}

func jobRunFromContext(ctx context.Context) *jobRun {
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (r *jobRun) AddProcessed(n int) {
	if r != nil && n > 0 {
		r.processedCount += n
	}
}

func (r *jobRun) IncMoved() {
	if r != nil {
		r.movedCount++
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.errorCount++
	}
}

// MarshalLogObject writes the run counters under a single "run" key.
func (r *jobRun) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("job", r.job)
	enc.AddString("id", r.runID)
	enc.AddInt("batch_size", r.batchSize)
	enc.AddInt("processed", r.processedCount)
	enc.AddInt("moved", r.movedCount)
	enc.AddInt("errors", r.errorCount)
	return nil
}

// ensureJobRun reuses a run already on ctx. owner is true only for the call
// that created it, which is the one that logs start and finish.
func (e *Evaluator) ensureJobRun(ctx context.Context, job string, batchSize int) (_ context.Context, run *jobRun, owner bool) {
	if run = jobRunFromContext(ctx); run != nil {
		return ctx, run, false
	}
	run = &jobRun{
		job:       job,
		runID:     e.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: e.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	return e.withLogContext(ctx, 0), run, true
}

// withLogContext marks work without a caller as done by the evaluator.
func (e *Evaluator) withLogContext(ctx context.Context, programID int64) context.Context {
	if actorType, _ := obscontext.ActorFromContext(ctx); actorType == "" {
		ctx = obscontext.WithActor(ctx, "system", "evaluator")
	}
	if programID != 0 {
		ctx = obscontext.WithProgramID(ctx, idString(programID))
	}
	return ctx
}

func (e *Evaluator) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, e.log)
}

func (e *Evaluator) logJobStart(ctx context.Context, run *jobRun) {
	e.logger(ctx).Info("evaluator.job.start", zap.Object("run", run))
}

func (e *Evaluator) logJobFinish(ctx context.Context, run *jobRun) {
	level := zapcore.InfoLevel
	if run.errorCount > 0 {
		level = zapcore.WarnLevel
	}
	if ce := e.logger(ctx).Check(level, "evaluator.job.finish"); ce != nil {
		ce.Write(
			zap.Object("run", run),
			zap.Duration("elapsed", e.clock.Now().Sub(run.startedAt)),
		)
	}
}

func (e *Evaluator) logEvaluatorError(ctx context.Context, run *jobRun, msg string, programID, partnerID int64, err error) {
	run.IncError()
	fields := []zap.Field{
		zap.String("error_type", errorReason(err)),
		zap.Bool("retryable", retryable(err)),
		zap.Error(err),
	}
	if partnerID != 0 {
		fields = append(fields, zap.String("partner_id", idString(partnerID)))
	}
	e.logger(e.withLogContext(ctx, programID)).Error(msg, fields...)
}

func (e *Evaluator) logPartnerMoved(ctx context.Context, result *Result) {
	e.logger(e.withLogContext(ctx, 0)).Info("partner.group_moved",
		zap.String("program_id", result.ProgramID),
		zap.String("partner_id", result.PartnerID),
		zap.String("from_group_id", result.FromGroupID),
		zap.String("to_group_id", result.ToGroupID),
		zap.String("rule", result.Description),
	)
}

func idString(id int64) string {
	if id == 0 {
		return ""
	}
	return snowflake.ID(id).String()
}
