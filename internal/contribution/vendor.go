package contribution

import (
	"context"
	"encoding/json"
	"math"

	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
)

// PurchaseStatus is the seven-state PurchaseJob machine.
type PurchaseStatus string

const (
	PurchaseStatusPending         PurchaseStatus = "pending"
	PurchaseStatusOrderCreated    PurchaseStatus = "order-created"
	PurchaseStatusTransferred     PurchaseStatus = "transferred"
	PurchaseStatusTransactionSent PurchaseStatus = "transaction-sent"
	PurchaseStatusTokensCreated   PurchaseStatus = "tokens-created"
	PurchaseStatusTokensClaimed   PurchaseStatus = "tokens-claimed"
	PurchaseStatusComplete        PurchaseStatus = "complete"
)

func ParsePurchaseStatus(s string) (PurchaseStatus, bool) {
	switch PurchaseStatus(s) {
	case PurchaseStatusPending, PurchaseStatusOrderCreated, PurchaseStatusTransferred,
		PurchaseStatusTransactionSent, PurchaseStatusTokensCreated, PurchaseStatusTokensClaimed,
		PurchaseStatusComplete:
		return PurchaseStatus(s), true
	default:
		return "", false
	}
}

// PurchaseState is the PurchaseJob's persisted checkpoint.
type PurchaseState struct {
	Status                PurchaseStatus `json:"status"`
	Amount                float64        `json:"amount"`
	Quantity              int            `json:"quantity"`
	OrderID               string         `json:"order_id"`
	OrderItemID           string         `json:"order_item_id"`
	Provider              string         `json:"provider"`
	ExternalTransactionID string         `json:"external_transaction_id"`
	Tokens                []BlindedToken `json:"tokens"`
}

const purchaseJobType = "contribution-token-vendor"

const autoContributeSKU = "brave-auto-contribute-sku"

// PurchaseJob acquires SKU tokens by purchasing with an external wallet.
type PurchaseJob struct {
	*core.Job[PurchaseState, Result]
	ctx      Context
	logger   *zap.Logger
	backoff  *core.BackoffDelay
	receipts *ReceiptArchiver
}

// NewPurchaseJob constructs a fresh PurchaseJob for the given amount, or
// reconstructs one from a persisted state during resume. receipts may be nil
// (tests, deployments without object storage configured).
func NewPurchaseJob(id string, ctx Context, logger *zap.Logger, receipts *ReceiptArchiver, state PurchaseState) *PurchaseJob {
	return &PurchaseJob{
		Job:      core.NewJob[PurchaseState, Result](id, purchaseJobType, ctx.JobStore, state),
		ctx:      ctx,
		logger:   logger.With(zap.String("job_id", id), zap.String("job_type", purchaseJobType)),
		backoff:  core.DefaultBackoffDelay(),
		receipts: receipts,
	}
}

// PurchaseJobFactory reconstructs a PurchaseJob from a JobRecord for
// registration with the JobStore.
func PurchaseJobFactory(ctx Context, logger *zap.Logger, receipts *ReceiptArchiver) core.Factory {
	return func(rec core.JobRecord) (core.Resumable, error) {
		var state PurchaseState
		job := NewPurchaseJob(rec.JobID, ctx, logger, receipts, state)
		if err := json.Unmarshal(rec.State, &state); err != nil {
			return invalidStateResumable{job: job}, nil
		}
		*job.State() = state
		return job, nil
	}
}

// StartPurchase creates a pending PurchaseState for the given BAT amount
// and starts the job, returning its id. Mirrors
// ContributionTokenVendor::StartPurchase.
func StartPurchase(gctx context.Context, ctx Context, logger *zap.Logger, amount float64) (string, error) {
	quantity := int(math.Floor(amount / VoteValue))
	state := PurchaseState{Status: PurchaseStatusPending, Amount: amount, Quantity: quantity}
	id, err := ctx.JobStore.InitializeJobState(gctx, purchaseJobType, state)
	if err != nil {
		return "", err
	}
	job := NewPurchaseJob(id, ctx, logger, nil, state)
	go job.Resume(gctx)
	return id, nil
}

// CompletePurchase returns the Future for an already-started purchase job,
// used by the ACJob to await completion.
func CompletePurchase(gctx context.Context, ctx Context, logger *zap.Logger, jobID string) *core.Future[Result] {
	rec, err := ctx.JobStore.Load(gctx, jobID)
	if err != nil {
		return core.Completed(Failed())
	}
	var state PurchaseState
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return core.Completed(Failed())
	}
	job := NewPurchaseJob(jobID, ctx, logger, nil, state)
	go job.Resume(gctx)
	return job.Result()
}

// Resume inspects the persisted status and jumps to the matching step.
func (j *PurchaseJob) Resume(ctx context.Context) {
	switch j.State().Status {
	case PurchaseStatusPending:
		j.createOrder(ctx)
	case PurchaseStatusOrderCreated:
		j.transferFunds(ctx)
	case PurchaseStatusTransferred:
		j.sendTransaction(ctx)
	case PurchaseStatusTransactionSent:
		j.createTokens(ctx)
	case PurchaseStatusTokensCreated:
		j.postCredentials(ctx)
	case PurchaseStatusTokensClaimed:
		j.claimTokens(ctx)
	case PurchaseStatusComplete:
		j.Complete(ctx, Ok(), "")
	}
}

func (j *PurchaseJob) OnStateInvalid(ctx context.Context) {
	j.logger.Error("unable to load state for purchase job")
	j.Complete(ctx, Failed(), "invalid persisted state")
}

func (j *PurchaseJob) createOrder(ctx context.Context) {
	order, err := j.ctx.Payment.PostOrder(ctx, SKUOrderItem{
		SKU:       autoContributeSKU,
		Quantity:  j.State().Quantity,
		UnitPrice: VoteValue,
	})
	if err != nil {
		j.retry(ctx, "create order", j.createOrder)
		return
	}
	for _, item := range order.Items {
		if item.UnitPrice != VoteValue {
			j.logger.Error("sku order returned unexpected price", zap.Float64("price", item.UnitPrice))
			j.Complete(ctx, Failed(), "unexpected order price")
			return
		}
	}
	j.State().OrderID = order.OrderID
	j.State().OrderItemID = order.OrderItemID
	j.State().Status = PurchaseStatusOrderCreated
	if err := j.SaveState(ctx); err != nil {
		j.logger.Error("failed to save purchase state", zap.Error(err))
		return
	}
	j.backoff.Reset()
	j.transferFunds(ctx)
}

func (j *PurchaseJob) transferFunds(ctx context.Context) {
	wallet, connected, err := j.ctx.ExternalWallet.GetExternalWallet(ctx)
	if err != nil || !connected {
		j.logger.Error("no external wallet connected for purchase")
		j.Complete(ctx, Failed(), "no external wallet")
		return
	}
	address, err := j.ctx.ExternalWallet.ContributionTokenOrderAddress(ctx, wallet.Provider)
	if err != nil {
		j.logger.Error("failed to resolve order address", zap.Error(err))
		j.Complete(ctx, Failed(), "no order address")
		return
	}
	amount := float64(j.State().Quantity) * VoteValue
	result, err := j.ctx.ExternalWallet.TransferBAT(ctx, address, amount, "brave-token-purchase")
	if err != nil {
		j.retry(ctx, "transfer funds", j.transferFunds)
		return
	}
	j.State().Provider = string(result.Provider)
	j.State().ExternalTransactionID = result.TxID
	j.State().Status = PurchaseStatusTransferred
	if err := j.SaveState(ctx); err != nil {
		j.logger.Error("failed to save purchase state", zap.Error(err))
		return
	}
	j.backoff.Reset()
	j.sendTransaction(ctx)
}

func (j *PurchaseJob) sendTransaction(ctx context.Context) {
	provider := ExternalWalletProvider(j.State().Provider)
	if provider == ProviderBitflyer {
		j.logger.Error("bitflyer is not a valid vendoring provider")
		j.Complete(ctx, Failed(), "invalid provider for vendoring")
		return
	}
	ok, err := j.ctx.Payment.PostTransaction(ctx, j.State().OrderID, provider, j.State().ExternalTransactionID)
	if err != nil || !ok {
		j.retry(ctx, "send transaction", j.sendTransaction)
		return
	}
	j.State().Status = PurchaseStatusTransactionSent
	if err := j.SaveState(ctx); err != nil {
		j.logger.Error("failed to save purchase state", zap.Error(err))
		return
	}
	j.backoff.Reset()
	j.createTokens(ctx)
}

// createTokens generates the blinded batch and checkpoints it as
// tokens-created before ever touching the network, so a retry of the
// credentials POST below never regenerates (and thereby orphans) a batch
// that may already have been submitted.
func (j *PurchaseJob) createTokens(ctx context.Context) {
	blinded, err := j.ctx.PrivacyPass.CreateBlindedTokens(ctx, j.State().Quantity)
	if err != nil {
		j.logger.Error("failed to create blinded tokens", zap.Error(err))
		j.Complete(ctx, Failed(), "privacy pass failure")
		return
	}
	j.State().Tokens = blinded
	j.State().Status = PurchaseStatusTokensCreated
	if err := j.SaveState(ctx); err != nil {
		j.logger.Error("failed to save purchase state", zap.Error(err))
		return
	}
	j.backoff.Reset()
	j.postCredentials(ctx)
}

// postCredentials submits the already-persisted blinded batch and, once
// accepted, checkpoints tokens-claimed. Only this step retries on failure —
// the blinded batch itself is never regenerated.
func (j *PurchaseJob) postCredentials(ctx context.Context) {
	blindedStrings := make([]string, len(j.State().Tokens))
	for i, t := range j.State().Tokens {
		blindedStrings[i] = t.Blinded
	}
	if err := j.ctx.Payment.PostCredentials(ctx, j.State().OrderID, j.State().OrderItemID, blindedStrings); err != nil {
		j.retry(ctx, "post credentials", j.postCredentials)
		return
	}
	j.State().Status = PurchaseStatusTokensClaimed
	if err := j.SaveState(ctx); err != nil {
		j.logger.Error("failed to save purchase state", zap.Error(err))
		return
	}
	j.backoff.Reset()
	j.claimTokens(ctx)
}

// claimTokens fetches the signed credentials, unblinds them, and inserts the
// resulting tokens. This step is only ever reached once the credentials POST
// has already been accepted (status tokens-claimed), so a crash-resume never
// replays InsertTokens against a batch that was never actually claimed.
// While the credentials are not yet Ready (or the request fails), the same
// GetCredentials call is retried with backoff; the order's status is never
// polled separately.
func (j *PurchaseJob) claimTokens(ctx context.Context) {
	creds, err := j.ctx.Payment.GetCredentials(ctx, j.State().OrderID, j.State().OrderItemID)
	if err != nil || !creds.Ready {
		j.retry(ctx, "claim tokens", j.claimTokens)
		return
	}
	blindedStrings := make([]string, len(j.State().Tokens))
	for i, t := range j.State().Tokens {
		blindedStrings[i] = t.Blinded
	}
	unblinded, err := j.ctx.PrivacyPass.UnblindTokens(ctx, j.State().Tokens, creds.SignedTokens, creds.Proof, creds.PublicKey)
	if err != nil {
		j.logger.Error("failed to unblind tokens", zap.Error(err))
		j.Complete(ctx, Failed(), "privacy pass unblind failure")
		return
	}
	batch := make([]ContributionToken, len(unblinded))
	for i, ut := range unblinded {
		batch[i] = ContributionToken{UnblindedToken: ut, PublicKey: creds.PublicKey}
	}
	if err := j.ctx.TokenManager.InsertTokens(ctx, batch, TokenTypeSKU); err != nil {
		j.logger.Error("failed to insert purchased tokens", zap.Error(err))
		j.Complete(ctx, Failed(), "failed to insert tokens")
		return
	}
	j.State().Status = PurchaseStatusComplete
	if err := j.SaveState(ctx); err != nil {
		j.logger.Error("failed to save purchase state", zap.Error(err))
		return
	}
	j.backoff.Reset()
	if j.receipts != nil {
		j.receipts.Archive(ctx, j.JobID(), *j.State())
	}
	j.Complete(ctx, Ok(), "")
}

func (j *PurchaseJob) retry(ctx context.Context, step string, next func(context.Context)) {
	delay := j.backoff.GetNextDelay()
	j.logger.Info("retrying purchase step after backoff", zap.String("step", step), zap.Duration("delay", delay))
	f := j.ctx.DelayGenerator.Delay(ctx, delay)
	core.Then(f, func(struct{}) { next(ctx) })
}

// invalidStateResumable satisfies core.Resumable for a job whose persisted
// state failed to decode, routing straight to OnStateInvalid instead of
// Resume.
type invalidStateResumable struct {
	job *PurchaseJob
}

func (r invalidStateResumable) JobID() string   { return r.job.JobID() }
func (r invalidStateResumable) JobType() string { return r.job.JobType() }
func (r invalidStateResumable) Resume(ctx context.Context) {
	r.job.OnStateInvalid(ctx)
}
func (r invalidStateResumable) OnStateInvalid(ctx context.Context) {
	r.job.OnStateInvalid(ctx)
}
