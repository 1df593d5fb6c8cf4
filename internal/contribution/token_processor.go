package contribution

import (
	"context"

	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
)

// TokenContributionProcessor redeems VG or SKU tokens for a Contribution.
// Unlike the resumable jobs, this processor is a
// short-lived, non-persisted sequence: if it is interrupted mid-flight the
// token reservation it made is simply abandoned and the caller (scheduler
// or AC job) is responsible for retrying at a higher level, matching the
// source's plain BATLedgerJob (no ResumableJob state).
type TokenContributionProcessor struct {
	ctx    Context
	logger *zap.Logger
}

func NewTokenContributionProcessor(ctx Context, logger *zap.Logger) *TokenContributionProcessor {
	return &TokenContributionProcessor{ctx: ctx, logger: logger}
}

func tokenTypeFor(source Source) TokenType {
	if source == SourceSKUTokens {
		return TokenTypeSKU
	}
	return TokenTypeVG
}

// ProcessContribution reserves tokens for the amount and redeems them.
func (p *TokenContributionProcessor) ProcessContribution(ctx context.Context, c Contribution) *core.Future[bool] {
	out := core.NewFuture[bool]()
	go func() {
		hold, err := p.ctx.TokenManager.ReserveByAmount(ctx, c.ID, tokenTypeFor(Source(c.Source)), c.Amount)
		if err != nil {
			p.logger.Error("failed to reserve contribution tokens", zap.Error(err))
			out.Resolve(false)
			return
		}
		out.Resolve(p.processWithHold(ctx, c, hold))
	}()
	return out
}

// ProcessContributionWithHold redeems an already-reserved hold, used by the
// AC processor which reserves and allocates votes itself before dispatching
// per-publisher contributions.
func (p *TokenContributionProcessor) ProcessContributionWithHold(ctx context.Context, c Contribution, hold TokenHold) *core.Future[bool] {
	out := core.NewFuture[bool]()
	go func() { out.Resolve(p.processWithHold(ctx, c, hold)) }()
	return out
}

func (p *TokenContributionProcessor) processWithHold(ctx context.Context, c Contribution, hold TokenHold) bool {
	total := hold.GetTotalValue()
	if total < c.Amount {
		p.logger.Error("insufficient tokens reserved for contribution",
			zap.Float64("requested", c.Amount), zap.Float64("reserved", total))
		return false
	}
	// The contribution amount could differ slightly from the requested
	// amount based on per-token granularity; use the value actually held.
	c.Amount = total

	kind, _ := ParseType(c.ContributionType)
	var ok bool
	var err error
	if tokenTypeFor(Source(c.Source)) == TokenTypeSKU {
		ok, err = p.redeemVotes(ctx, c, hold, kind)
	} else {
		ok, err = p.redeemGrantTokens(ctx, c, hold, kind)
	}
	if err != nil || !ok {
		p.logger.Error("unable to redeem contribution tokens", zap.Error(err))
		return false
	}

	if err := p.ctx.TokenManager.MarkRedeemed(ctx, hold, c.ID); err != nil {
		p.logger.Error("failed to mark tokens redeemed", zap.Error(err))
		return false
	}
	if err := p.ctx.Store.SaveContribution(ctx, c); err != nil {
		p.logger.Error("failed to persist contribution", zap.Error(err))
		return false
	}
	p.ctx.Events.PublishContributionCompleted(ctx, c)
	return true
}

func (p *TokenContributionProcessor) redeemVotes(ctx context.Context, c Contribution, hold TokenHold, kind Type) (bool, error) {
	votes := make([]PaymentVote, 0, len(hold.Tokens))
	for _, t := range hold.Tokens {
		votes = append(votes, PaymentVote{UnblindedToken: t.UnblindedToken, PublicKey: t.PublicKey})
	}
	return p.ctx.Payment.PostPublisherVotes(ctx, c.PublisherID, VoteTypeFor(kind), votes)
}

func (p *TokenContributionProcessor) redeemGrantTokens(ctx context.Context, c Contribution, hold TokenHold, kind Type) (bool, error) {
	refs := make([]UnblindedTokenRef, 0, len(hold.Tokens))
	for _, t := range hold.Tokens {
		refs = append(refs, UnblindedTokenRef{ID: t.ID, TokenValue: t.UnblindedToken, PublicKey: t.PublicKey})
	}
	return p.ctx.Payment.PostSuggestions(ctx, c.PublisherID, kind, refs)
}
