package contribution

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
)

// SchedulingInterval is the minimum spacing between two scheduler ticks
// actually doing work, matching the source's kContributionPeriod.
const SchedulingInterval = 24 * time.Hour

const schedulerJobType = "contribution-scheduler"

// SchedulerState is the SchedulerJob's persisted checkpoint: just enough to
// resume a long-lived loop that otherwise lives entirely in memory.
type SchedulerState struct {
	LastRun time.Time `json:"last_run"`
}

// SchedulerJob is the long-lived loop that wakes on SchedulingInterval,
// advances the last-scheduled-contribution cursor, and drives one
// ContributionJob per tick.
type SchedulerJob struct {
	*core.Job[SchedulerState, Result]
	ctx      Context
	logger   *zap.Logger
	calc     *Calculator
	tokens   *TokenContributionProcessor
	router   *Router
	gate     *EligibilityGate
	minVisits int
	minDuration float64
}

func NewSchedulerJob(id string, ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor,
	router *Router, gate *EligibilityGate, minVisits int, minDuration float64, state SchedulerState) *SchedulerJob {
	return &SchedulerJob{
		Job:         core.NewJob[SchedulerState, Result](id, schedulerJobType, ctx.JobStore, state),
		ctx:         ctx,
		logger:      logger.With(zap.String("job_id", id), zap.String("job_type", schedulerJobType)),
		calc:        calc,
		tokens:      tokens,
		router:      router,
		gate:        gate,
		minVisits:   minVisits,
		minDuration: minDuration,
	}
}

func SchedulerJobFactory(ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor,
	router *Router, gate *EligibilityGate, minVisits int, minDuration float64) core.Factory {
	return func(rec core.JobRecord) (core.Resumable, error) {
		var state SchedulerState
		job := NewSchedulerJob(rec.JobID, ctx, logger, calc, tokens, router, gate, minVisits, minDuration, state)
		if err := json.Unmarshal(rec.State, &state); err != nil {
			return schedulerInvalidStateResumable{job: job}, nil
		}
		*job.State() = state
		return job, nil
	}
}

// StartScheduler either resumes the single persistent SchedulerJob, or
// creates it on first boot. There is exactly one scheduler per deployment.
func StartScheduler(gctx context.Context, ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor,
	router *Router, gate *EligibilityGate, minVisits int, minDuration float64) error {
	recs, err := ctx.JobStore.PendingByType(gctx, schedulerJobType)
	if err != nil {
		return err
	}
	if len(recs) > 0 {
		return ctx.JobStore.ResumeJobs(gctx, schedulerJobType)
	}
	state := SchedulerState{}
	id, err := ctx.JobStore.InitializeJobState(gctx, schedulerJobType, state)
	if err != nil {
		return err
	}
	job := NewSchedulerJob(id, ctx, logger, calc, tokens, router, gate, minVisits, minDuration, state)
	go job.Resume(gctx)
	return nil
}

func (j *SchedulerJob) Resume(ctx context.Context) {
	j.tick(ctx)
}

func (j *SchedulerJob) OnStateInvalid(ctx context.Context) {
	j.logger.Error("unable to load state for scheduler job; starting fresh")
	j.State().LastRun = time.Time{}
	j.tick(ctx)
}

// tick fires forever until the process shuts down; it never calls Complete
// under normal operation because it has no terminal state.
func (j *SchedulerJob) tick(ctx context.Context) {
	last, err := j.ctx.Store.GetLastScheduledContributionTime(ctx)
	if err != nil {
		j.logger.Error("failed to read last scheduled contribution time", zap.Error(err))
		j.scheduleNext(ctx, SchedulingInterval)
		return
	}
	elapsed := j.ctx.Clock.Now().Sub(last)
	if elapsed < SchedulingInterval {
		j.scheduleNext(ctx, SchedulingInterval-elapsed)
		return
	}
	j.runContributionCycle(ctx)
}

// runContributionCycle collects the cycle's recurring contributions and
// publisher activity, advances the scheduling cursor, and hands the
// collected state off to a fresh ContributionJob. It does not wait for that
// job: per spec.md's scheduler loop, starting the job is the last step
// before looping back to sleep, so a slow or stuck cycle never delays the
// next tick's wake-up.
func (j *SchedulerJob) runContributionCycle(ctx context.Context) {
	recurringF := core.NewFuture[[]RecurringContribution]()
	go func() {
		rows, err := j.ctx.Store.GetRecurringContributions(ctx)
		if err != nil {
			j.logger.Error("failed to load recurring contributions", zap.Error(err))
		}
		recurringF.Resolve(rows)
	}()
	activityF := core.NewFuture[[]PublisherActivity]()
	go func() {
		rows, err := j.ctx.Store.GetPublisherActivity(ctx)
		if err != nil {
			j.logger.Error("failed to load publisher activity", zap.Error(err))
		}
		activityF.Resolve(rows)
	}()

	joined := core.JoinFutures(recurringF, activityF)
	core.Then(joined, func(p core.Pair[[]RecurringContribution, []PublisherActivity]) {
		now := j.ctx.Clock.Now()
		if err := j.ctx.Store.SetLastScheduledContributionTime(ctx, now); err != nil {
			j.logger.Error("failed to advance scheduled contribution cursor", zap.Error(err))
		}
		if err := j.ctx.Store.ResetPublisherActivity(ctx); err != nil {
			j.logger.Error("failed to reset publisher activity", zap.Error(err))
		}
		if _, err := StartContributionCycle(ctx, j.ctx, j.logger, j.calc, j.tokens, j.router, j.gate,
			j.ctx.ClientID, j.minVisits, j.minDuration, p.First, p.Second); err != nil {
			j.logger.Error("failed to start contribution job", zap.Error(err))
		}

		j.State().LastRun = now
		if err := j.SaveState(ctx); err != nil {
			j.logger.Error("failed to save scheduler state", zap.Error(err))
		}
		j.scheduleNext(ctx, SchedulingInterval)
	})
}

func (j *SchedulerJob) scheduleNext(ctx context.Context, delay time.Duration) {
	f := j.ctx.DelayGenerator.Delay(ctx, delay)
	core.Then(f, func(struct{}) { j.tick(ctx) })
}

type schedulerInvalidStateResumable struct {
	job *SchedulerJob
}

func (r schedulerInvalidStateResumable) JobID() string           { return r.job.JobID() }
func (r schedulerInvalidStateResumable) JobType() string         { return r.job.JobType() }
func (r schedulerInvalidStateResumable) Resume(ctx context.Context) { r.job.OnStateInvalid(ctx) }
func (r schedulerInvalidStateResumable) OnStateInvalid(ctx context.Context) { r.job.OnStateInvalid(ctx) }

// SchedulerTickHandler is the asynq handler for a manually-triggered
// scheduler tick, used by the admin API to force an out-of-band run without
// waiting for SchedulingInterval to elapse. It drives the exact same
// ContributionJob construction path as SchedulerJob's own loop: one code
// path, two triggers.
type SchedulerTickHandler struct {
	ctx         Context
	logger      *zap.Logger
	calc        *Calculator
	tokens      *TokenContributionProcessor
	router      *Router
	gate        *EligibilityGate
	minVisits   int
	minDuration float64
}

func NewSchedulerTickHandler(ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor,
	router *Router, gate *EligibilityGate) *SchedulerTickHandler {
	return &SchedulerTickHandler{
		ctx:         ctx,
		logger:      logger,
		calc:        calc,
		tokens:      tokens,
		router:      router,
		gate:        gate,
		minVisits:   minVisitsDefault,
		minDuration: minDurationDefault,
	}
}

func (h *SchedulerTickHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	recurring, err := h.ctx.Store.GetRecurringContributions(ctx)
	if err != nil {
		h.logger.Error("failed to load recurring contributions for manual tick", zap.Error(err))
		return err
	}
	activity, err := h.ctx.Store.GetPublisherActivity(ctx)
	if err != nil {
		h.logger.Error("failed to load publisher activity for manual tick", zap.Error(err))
		return err
	}
	now := h.ctx.Clock.Now()
	if err := h.ctx.Store.SetLastScheduledContributionTime(ctx, now); err != nil {
		h.logger.Error("failed to advance scheduled contribution cursor", zap.Error(err))
		return err
	}
	if err := h.ctx.Store.ResetPublisherActivity(ctx); err != nil {
		h.logger.Error("failed to reset publisher activity", zap.Error(err))
	}
	if _, err := StartContributionCycle(ctx, h.ctx, h.logger, h.calc, h.tokens, h.router, h.gate,
		h.ctx.ClientID, h.minVisits, h.minDuration, recurring, activity); err != nil {
		h.logger.Error("failed to start contribution job", zap.Error(err))
		return err
	}
	return nil
}
