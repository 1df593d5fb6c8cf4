package contribution

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
)

// ExternalContributionProcessor transfers BAT directly to a publisher's
// connected wallet, taking the fixed contribution fee off the top.
type ExternalContributionProcessor struct {
	ctx    Context
	logger *zap.Logger
	fee    *ContributionFeeProcessor
}

func NewExternalContributionProcessor(ctx Context, logger *zap.Logger, fee *ContributionFeeProcessor) *ExternalContributionProcessor {
	return &ExternalContributionProcessor{ctx: ctx, logger: logger, fee: fee}
}

func (p *ExternalContributionProcessor) ProcessContribution(gctx context.Context, c Contribution) *core.Future[bool] {
	out := core.NewFuture[bool]()
	go func() { out.Resolve(p.process(gctx, c)) }()
	return out
}

func (p *ExternalContributionProcessor) process(ctx context.Context, c Contribution) bool {
	fee := c.Amount * ExternalFeeRate
	net := c.Amount - fee

	balance, connected, err := p.ctx.ExternalWallet.GetBalance(ctx)
	if err != nil || !connected {
		p.logger.Error("failed to read external wallet balance", zap.Error(err))
		return false
	}
	if balance < c.Amount {
		p.logger.Info("insufficient external balance for contribution",
			zap.Float64("balance", balance), zap.Float64("requested", c.Amount))
		return false
	}

	wallet, _, err := p.ctx.ExternalWallet.GetExternalWallet(ctx)
	if err != nil {
		p.logger.Error("failed to read connected external wallet", zap.Error(err))
		return false
	}

	publishers, err := p.ctx.Publishers.GetPublishers(ctx, []string{c.PublisherID})
	if err != nil {
		p.logger.Error("failed to fetch publisher info", zap.Error(err))
		return false
	}
	publisher, ok := publishers[c.PublisherID]
	if !ok {
		p.logger.Error("publisher not found", zap.String("publisher_id", c.PublisherID))
		return false
	}
	address, verified := publisher.AddressFor(wallet.Provider)
	if !verified {
		p.logger.Error("publisher not verified for provider",
			zap.String("publisher_id", c.PublisherID), zap.String("provider", string(wallet.Provider)))
		return false
	}

	result, err := p.ctx.ExternalWallet.TransferBAT(ctx, address, net, "brave-contribution")
	if err != nil {
		p.logger.Error("failed to transfer contribution", zap.Error(err))
		return false
	}

	if p.fee != nil {
		p.fee.Process(ctx, wallet.Provider, fee)
	}

	c.ExternalProvider = sql.NullString{String: string(result.Provider), Valid: true}
	c.ExternalTransactionID = sql.NullString{String: result.TxID, Valid: true}
	if err := p.ctx.Store.SaveContribution(ctx, c); err != nil {
		p.logger.Error("failed to persist external contribution", zap.Error(err))
		return false
	}
	p.ctx.Events.PublishContributionCompleted(ctx, c)
	return true
}

// ContributionFeeProcessor dispatches the 5% contribution fee to the
// provider's fee address. Fire-and-forget: a failed fee transfer is logged
// but never fails the contribution it was split from.
type ContributionFeeProcessor struct {
	ctx    Context
	logger *zap.Logger
}

func NewContributionFeeProcessor(ctx Context, logger *zap.Logger) *ContributionFeeProcessor {
	return &ContributionFeeProcessor{ctx: ctx, logger: logger}
}

func (p *ContributionFeeProcessor) Process(ctx context.Context, provider ExternalWalletProvider, amount float64) {
	if amount <= 0 {
		return
	}
	go func() {
		address, err := p.ctx.ExternalWallet.ContributionFeeAddress(ctx, provider)
		if err != nil {
			p.logger.Error("failed to resolve contribution fee address", zap.Error(err))
			return
		}
		if _, err := p.ctx.ExternalWallet.TransferBAT(ctx, address, amount, "brave-contribution-fee"); err != nil {
			p.logger.Error("failed to transfer contribution fee", zap.Error(err), zap.Float64("amount", amount))
		}
	}()
}
