package contribution

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
)

// ACStatus is the ACJob's five-state machine.
type ACStatus string

const (
	ACStatusPending    ACStatus = "pending"
	ACStatusPurchasing ACStatus = "purchasing"
	ACStatusPurchased  ACStatus = "purchased"
	ACStatusSending    ACStatus = "sending"
	ACStatusComplete   ACStatus = "complete"
)

func ParseACStatus(s string) (ACStatus, bool) {
	switch ACStatus(s) {
	case ACStatusPending, ACStatusPurchasing, ACStatusPurchased, ACStatusSending, ACStatusComplete:
		return ACStatus(s), true
	default:
		return "", false
	}
}

// PublisherVoteState tracks one publisher's allocated votes and completion
// within an in-flight ACJob.
type PublisherVoteState struct {
	PublisherID string  `json:"publisher_id"`
	Weight      float64 `json:"weight"`
	Votes       int     `json:"votes"`
	Completed   bool    `json:"completed"`
}

// ACState is the ACJob's persisted checkpoint.
type ACState struct {
	Status          ACStatus             `json:"status"`
	Source          Source               `json:"source"`
	Publishers      []PublisherVoteState `json:"publishers"`
	Amount          float64              `json:"amount"`
	PurchaseJobID   string               `json:"purchase_job_id"`
	ReservedTokens  []int64              `json:"reserved_tokens"`
}

const acJobType = "auto-contribute"

// interSendDelay is the fixed spacing between successful per-publisher
// sends, matching the original's kContributionDelay = 45s.
const interSendDelay = 45 * time.Second

// ACJob is the auto-contribute resumable job.
type ACJob struct {
	*core.Job[ACState, Result]
	ctx     Context
	logger  *zap.Logger
	calc    *Calculator
	tokens  *TokenContributionProcessor
	backoff *core.BackoffDelay
	hold    TokenHold
}

func NewACJob(id string, ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor, state ACState) *ACJob {
	return &ACJob{
		Job:     core.NewJob[ACState, Result](id, acJobType, ctx.JobStore, state),
		ctx:     ctx,
		logger:  logger.With(zap.String("job_id", id), zap.String("job_type", acJobType)),
		calc:    calc,
		tokens:  tokens,
		backoff: core.DefaultBackoffDelay(),
	}
}

// ACJobFactory reconstructs an ACJob from a JobRecord for registration with
// the JobStore.
func ACJobFactory(ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor) core.Factory {
	return func(rec core.JobRecord) (core.Resumable, error) {
		var state ACState
		job := NewACJob(rec.JobID, ctx, logger, calc, tokens, state)
		if err := json.Unmarshal(rec.State, &state); err != nil {
			return acInvalidStateResumable{job: job}, nil
		}
		*job.State() = state
		return job, nil
	}
}

// SendContributions computes weights and, if any publishers qualify, starts
// an ACJob for them.
func SendContributions(gctx context.Context, ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor,
	source Source, activity []PublisherActivity, minVisits int, minDuration float64, amount float64) *core.Future[Result] {
	if amount <= 0 {
		logger.Info("auto contribute amount is zero")
		return core.Completed(OkNoop())
	}

	weights := calc.CalculateWeights(activity, minVisits, minDuration)
	if len(weights) == 0 {
		logger.Info("no publisher activity for auto contribute")
		return core.Completed(OkNoop())
	}

	state := ACState{Source: source, Amount: amount}
	for id, w := range weights {
		state.Publishers = append(state.Publishers, PublisherVoteState{PublisherID: id, Weight: w})
	}

	id, err := ctx.JobStore.InitializeJobState(gctx, acJobType, state)
	if err != nil {
		logger.Error("failed to initialize auto contribute job state", zap.Error(err))
		return core.Completed(Failed())
	}
	job := NewACJob(id, ctx, logger, calc, tokens, state)
	go job.Resume(gctx)
	return job.Result()
}

func (j *ACJob) Resume(ctx context.Context) {
	switch j.State().Status {
	case ACStatusPending:
		j.acquireTokens(ctx)
	case ACStatusPurchasing:
		j.completePurchase(ctx)
	case ACStatusPurchased:
		j.reserveTokens(ctx)
	case ACStatusSending:
		j.reserveAllocatedTokens(ctx)
	case ACStatusComplete:
		j.Complete(ctx, Ok(), "")
	}
}

func (j *ACJob) OnStateInvalid(ctx context.Context) {
	j.logger.Error("unable to load state for auto contribute job")
	j.Complete(ctx, Failed(), "invalid persisted state")
}

func (j *ACJob) acquireTokens(ctx context.Context) {
	switch j.State().Source {
	case SourceVGTokens:
		j.reserveTokens(ctx)
	case SourceSKUTokens:
		j.logger.Error("cannot perform auto contribute with sku tokens directly")
		j.Complete(ctx, Failed(), "invalid source")
	default: // SourceExternalWallet
		balance, connected, err := j.ctx.ExternalWallet.GetBalance(ctx)
		if err != nil || !connected || balance <= 0 {
			j.logger.Info("insufficient funds for auto contribution")
			j.Complete(ctx, OkNoop(), "")
			return
		}
		amount := j.State().Amount
		if balance < amount {
			amount = balance
		}
		jobID, err := StartPurchase(ctx, j.ctx, j.logger, amount)
		if err != nil {
			j.logger.Error("failed to start purchase job", zap.Error(err))
			j.Complete(ctx, Failed(), "failed to start purchase")
			return
		}
		j.State().PurchaseJobID = jobID
		j.State().Status = ACStatusPurchasing
		if err := j.SaveState(ctx); err != nil {
			j.logger.Error("failed to save ac state", zap.Error(err))
			return
		}
		j.completePurchase(ctx)
	}
}

func (j *ACJob) completePurchase(ctx context.Context) {
	f := CompletePurchase(ctx, j.ctx, j.logger, j.State().PurchaseJobID)
	core.Then(f, func(r Result) {
		if !r.Success {
			j.logger.Error("error purchasing contribution tokens")
			j.Complete(ctx, Failed(), "purchase failed")
			return
		}
		j.State().Status = ACStatusPurchased
		if err := j.SaveState(ctx); err != nil {
			j.logger.Error("failed to save ac state", zap.Error(err))
			return
		}
		j.reserveTokens(ctx)
	})
}

func (j *ACJob) tokenType() TokenType {
	if j.State().Source == SourceVGTokens {
		return TokenTypeVG
	}
	return TokenTypeSKU
}

func (j *ACJob) reserveTokens(ctx context.Context) {
	hold, err := j.ctx.TokenManager.ReserveByAmount(ctx, j.JobID(), j.tokenType(), j.State().Amount)
	if err != nil {
		j.logger.Error("failed to reserve auto contribute tokens", zap.Error(err))
		j.Complete(ctx, Failed(), "reservation failed")
		return
	}
	if len(hold.Tokens) == 0 {
		j.logger.Info("no tokens available for auto contribution")
		j.Complete(ctx, OkNoop(), "")
		return
	}
	j.hold = hold
	ids := make([]int64, len(hold.Tokens))
	for i, t := range hold.Tokens {
		ids[i] = t.ID
	}
	j.State().ReservedTokens = ids

	weights := make(map[string]float64, len(j.State().Publishers))
	for _, p := range j.State().Publishers {
		weights[p.PublisherID] = p.Weight
	}
	votes := j.calc.AllocateVotes(weights, len(hold.Tokens))
	for i := range j.State().Publishers {
		j.State().Publishers[i].Votes = votes[j.State().Publishers[i].PublisherID]
	}

	j.State().Status = ACStatusSending
	if err := j.SaveState(ctx); err != nil {
		j.logger.Error("failed to save ac state", zap.Error(err))
		return
	}
	j.sendNext(ctx, 0)
}

// reserveAllocatedTokens re-reserves the exact token ids recorded in state
// on resume, so a restart mid-"sending" continues with the same votes
// rather than reallocating.
func (j *ACJob) reserveAllocatedTokens(ctx context.Context) {
	hold, err := j.ctx.TokenManager.ReserveByIDs(ctx, j.JobID(), j.State().ReservedTokens)
	if err != nil {
		j.logger.Error("failed to re-reserve allocated tokens", zap.Error(err))
		j.Complete(ctx, Failed(), "reservation failed")
		return
	}
	j.hold = hold
	j.sendNext(ctx, j.firstIncomplete())
}

func (j *ACJob) firstIncomplete() int {
	for i, p := range j.State().Publishers {
		if !p.Completed {
			return i
		}
	}
	return len(j.State().Publishers)
}

func (j *ACJob) sendNext(ctx context.Context, from int) {
	idx := from
	for idx < len(j.State().Publishers) && j.State().Publishers[idx].Completed {
		idx++
	}
	if idx >= len(j.State().Publishers) {
		j.State().Status = ACStatusComplete
		if err := j.SaveState(ctx); err != nil {
			j.logger.Error("failed to save ac state", zap.Error(err))
			return
		}
		j.Complete(ctx, Ok(), "")
		return
	}

	pub := j.State().Publishers[idx]
	if pub.Votes == 0 {
		j.onContributionProcessed(ctx, idx, TokenHold{}, true)
		return
	}

	j.sendPublisher(ctx, idx, j.hold.Split(pub.Votes))
}

// sendPublisher processes a single publisher's already-split hold. Kept
// separate from sendNext so a failed send can retry the same hold instead
// of splitting j.hold a second time, which would panic once j.hold has
// already been drained by the first attempt.
func (j *ACJob) sendPublisher(ctx context.Context, idx int, hold TokenHold) {
	pub := j.State().Publishers[idx]
	c := Contribution{
		ContributionType: string(TypeAutoContribute),
		PublisherID:      pub.PublisherID,
		Amount:           hold.GetTotalValue(),
		Source:           string(acContributionSource(j.State().Source)),
	}
	f := j.tokens.ProcessContributionWithHold(ctx, c, hold)
	core.Then(f, func(success bool) { j.onContributionProcessed(ctx, idx, hold, success) })
}

// acContributionSource maps external->sku-tokens for the Contribution
// actually recorded, matching GetContributionRequestSource in the source.
func acContributionSource(s Source) Source {
	if s == SourceExternalWallet {
		return SourceSKUTokens
	}
	return s
}

func (j *ACJob) onContributionProcessed(ctx context.Context, idx int, hold TokenHold, success bool) {
	if !success {
		delay := j.backoff.GetNextDelay()
		f := j.ctx.DelayGenerator.Delay(ctx, delay)
		core.Then(f, func(struct{}) { j.sendPublisher(ctx, idx, hold) })
		return
	}
	j.backoff.Reset()
	j.State().Publishers[idx].Completed = true
	if err := j.SaveState(ctx); err != nil {
		j.logger.Error("failed to save ac state", zap.Error(err))
		return
	}
	f := j.ctx.DelayGenerator.RandomDelay(ctx, interSendDelay)
	core.Then(f, func(struct{}) { j.sendNext(ctx, idx+1) })
}

type acInvalidStateResumable struct {
	job *ACJob
}

func (r acInvalidStateResumable) JobID() string           { return r.job.JobID() }
func (r acInvalidStateResumable) JobType() string         { return r.job.JobType() }
func (r acInvalidStateResumable) Resume(ctx context.Context) { r.job.OnStateInvalid(ctx) }
func (r acInvalidStateResumable) OnStateInvalid(ctx context.Context) { r.job.OnStateInvalid(ctx) }
