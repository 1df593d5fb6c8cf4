package contribution

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
)

const contributionJobType = "contribution-cycle"

// ContributionState is the ContributionJob's persisted checkpoint. Recurring
// contributions are dispatched strictly in order, one per resumption step,
// so a crash mid-cycle replays only the contribution in flight rather than
// every contribution the scheduler collected.
type ContributionState struct {
	ClientID       string                  `json:"client_id"`
	Recurring      []RecurringContribution `json:"recurring"`
	RecurringIndex int                     `json:"recurring_index"`
	Activity       []PublisherActivity     `json:"activity"`
	MinVisits      int                     `json:"min_visits"`
	MinDuration    float64                 `json:"min_duration"`
	ACStarted      bool                    `json:"ac_started"`
}

// ContributionJob is the resumable job a scheduler tick starts once it has
// collected the cycle's recurring contributions and publisher activity. It
// owns the cycle from that point on: the scheduler itself never blocks on
// it and moves straight back to sleeping for the next interval.
type ContributionJob struct {
	*core.Job[ContributionState, Result]
	ctx    Context
	logger *zap.Logger
	calc   *Calculator
	tokens *TokenContributionProcessor
	router *Router
	gate   *EligibilityGate
}

func NewContributionJob(id string, ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor,
	router *Router, gate *EligibilityGate, state ContributionState) *ContributionJob {
	return &ContributionJob{
		Job:    core.NewJob[ContributionState, Result](id, contributionJobType, ctx.JobStore, state),
		ctx:    ctx,
		logger: logger.With(zap.String("job_id", id), zap.String("job_type", contributionJobType)),
		calc:   calc,
		tokens: tokens,
		router: router,
		gate:   gate,
	}
}

// ContributionJobFactory reconstructs a ContributionJob from a JobRecord for
// registration with the JobStore.
func ContributionJobFactory(ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor,
	router *Router, gate *EligibilityGate) core.Factory {
	return func(rec core.JobRecord) (core.Resumable, error) {
		var state ContributionState
		job := NewContributionJob(rec.JobID, ctx, logger, calc, tokens, router, gate, state)
		if err := json.Unmarshal(rec.State, &state); err != nil {
			return contributionInvalidStateResumable{job: job}, nil
		}
		*job.State() = state
		return job, nil
	}
}

// StartContributionCycle persists the collected cycle state as a new
// ContributionJob and starts it. Both the scheduler's own loop and the
// manual-tick admin handler go through this single path.
func StartContributionCycle(gctx context.Context, ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor,
	router *Router, gate *EligibilityGate, clientID string, minVisits int, minDuration float64,
	recurring []RecurringContribution, activity []PublisherActivity) (string, error) {
	state := ContributionState{
		ClientID:    clientID,
		Recurring:   recurring,
		Activity:    activity,
		MinVisits:   minVisits,
		MinDuration: minDuration,
	}
	id, err := ctx.JobStore.InitializeJobState(gctx, contributionJobType, state)
	if err != nil {
		return "", err
	}
	job := NewContributionJob(id, ctx, logger, calc, tokens, router, gate, state)
	go job.Resume(gctx)
	return id, nil
}

func (j *ContributionJob) Resume(ctx context.Context) {
	if j.State().RecurringIndex >= len(j.State().Recurring) {
		j.startAutoContribute(ctx)
		return
	}
	j.sendNextRecurring(ctx)
}

func (j *ContributionJob) OnStateInvalid(ctx context.Context) {
	j.logger.Error("unable to load state for contribution job")
	j.Complete(ctx, Failed(), "invalid persisted state")
}

// sendNextRecurring dispatches the recurring contribution at RecurringIndex,
// advances and persists the checkpoint regardless of outcome, then either
// delays into the next one or moves on to auto-contribute. A recurring
// contribution is never gated by eligibility: it is a standing subscription
// the client already opted into, not a rollout the gate controls.
func (j *ContributionJob) sendNextRecurring(ctx context.Context) {
	idx := j.State().RecurringIndex
	r := j.State().Recurring[idx]
	f := j.router.SendContribution(ctx, TypeRecurring, r.PublisherID, r.Amount)
	core.Then(f, func(ok bool) {
		if !ok {
			j.logger.Warn("recurring contribution failed, will retry next cycle",
				zap.String("publisher_id", r.PublisherID))
		}
		j.State().RecurringIndex = idx + 1
		if err := j.SaveState(ctx); err != nil {
			j.logger.Error("failed to save contribution state", zap.Error(err))
			return
		}
		if j.State().RecurringIndex >= len(j.State().Recurring) {
			j.startAutoContribute(ctx)
			return
		}
		d := j.ctx.DelayGenerator.RandomDelay(ctx, interSendDelay)
		core.Then(d, func(struct{}) { j.sendNextRecurring(ctx) })
	})
}

// startAutoContribute consults the eligibility gate, filters activity to
// registered publishers, and hands off to the AutoContributeProcessor. It
// does not wait for the resulting ACJob: auto-contribute runs as an
// independent job once started.
func (j *ContributionJob) startAutoContribute(ctx context.Context) {
	if j.State().ACStarted {
		j.Complete(ctx, Ok(), "")
		return
	}
	j.State().ACStarted = true
	if err := j.SaveState(ctx); err != nil {
		j.logger.Error("failed to save contribution state", zap.Error(err))
		return
	}

	if !j.eligible(ctx) {
		j.Complete(ctx, OkNoop(), "")
		return
	}
	amount, err := j.ctx.UserPrefs.AutoContributeAmount(ctx)
	if err != nil || amount <= 0 {
		j.Complete(ctx, OkNoop(), "")
		return
	}
	enabled, err := j.ctx.UserPrefs.AutoContributeEnabled(ctx)
	if err != nil || !enabled {
		j.Complete(ctx, OkNoop(), "")
		return
	}
	source, err := j.router.CurrentSource(ctx)
	if err != nil {
		j.logger.Error("failed to determine auto contribute source", zap.Error(err))
		j.Complete(ctx, Failed(), "failed to determine source")
		return
	}

	activity := j.registeredActivity(ctx, j.State().Activity)
	SendContributions(ctx, j.ctx, j.logger, j.calc, j.tokens, source, activity, j.State().MinVisits, j.State().MinDuration, amount)
	j.Complete(ctx, Ok(), "")
}

// registeredActivity filters activity down to publishers the publisher
// service reports as registered, so auto-contribute never allocates votes
// to a publisher with nowhere to send them.
func (j *ContributionJob) registeredActivity(ctx context.Context, activity []PublisherActivity) []PublisherActivity {
	if j.ctx.Publishers == nil || len(activity) == 0 {
		return activity
	}
	ids := make([]string, len(activity))
	for i, a := range activity {
		ids[i] = a.PublisherID
	}
	publishers, err := j.ctx.Publishers.GetPublishers(ctx, ids)
	if err != nil {
		j.logger.Warn("failed to look up registered publishers, skipping auto contribute this cycle", zap.Error(err))
		return nil
	}
	filtered := make([]PublisherActivity, 0, len(activity))
	for _, a := range activity {
		if p, ok := publishers[a.PublisherID]; ok && p.Registered {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func (j *ContributionJob) eligible(ctx context.Context) bool {
	if j.gate == nil {
		return true
	}
	return j.gate.Eligible(ctx, j.State().ClientID)
}

type contributionInvalidStateResumable struct {
	job *ContributionJob
}

func (r contributionInvalidStateResumable) JobID() string             { return r.job.JobID() }
func (r contributionInvalidStateResumable) JobType() string           { return r.job.JobType() }
func (r contributionInvalidStateResumable) Resume(ctx context.Context) { r.job.OnStateInvalid(ctx) }
func (r contributionInvalidStateResumable) OnStateInvalid(ctx context.Context) {
	r.job.OnStateInvalid(ctx)
}
