package contribution

import (
	"context"

	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
)

// Router selects a funding source and dispatches to the matching processor.
type Router struct {
	ctx      Context
	logger   *zap.Logger
	tokens   *TokenContributionProcessor
	external *ExternalContributionProcessor
}

func NewRouter(ctx Context, logger *zap.Logger, tokens *TokenContributionProcessor, external *ExternalContributionProcessor) *Router {
	return &Router{ctx: ctx, logger: logger, tokens: tokens, external: external}
}

// CurrentSource selects external if a wallet is connected, else vg-tokens.
func (r *Router) CurrentSource(gctx context.Context) (Source, error) {
	_, connected, err := r.ctx.ExternalWallet.GetExternalWallet(gctx)
	if err != nil {
		return "", err
	}
	if connected {
		return SourceExternalWallet, nil
	}
	return SourceVGTokens, nil
}

// SendContribution routes a (kind, publisher, amount) request to the
// matching processor. Zero amounts log and succeed.
func (r *Router) SendContribution(gctx context.Context, kind Type, publisherID string, amount float64) *core.Future[bool] {
	if amount <= 0 {
		r.logger.Info("contribution amount is zero, nothing to send", zap.String("publisher_id", publisherID))
		return core.Completed(true)
	}

	source, err := r.CurrentSource(gctx)
	if err != nil {
		r.logger.Error("failed to determine contribution source", zap.Error(err))
		return core.Completed(false)
	}

	switch source {
	case SourceExternalWallet:
		return r.external.ProcessContribution(gctx, Contribution{
			ContributionType: string(kind),
			PublisherID:      publisherID,
			Amount:           amount,
			Source:           string(SourceExternalWallet),
		})
	default:
		return r.tokens.ProcessContribution(gctx, Contribution{
			ContributionType: string(kind),
			PublisherID:      publisherID,
			Amount:           amount,
			Source:           string(SourceVGTokens),
		})
	}
}
