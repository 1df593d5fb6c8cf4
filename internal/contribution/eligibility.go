package contribution

import (
	"context"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/pkg/celengine"
	"github.com/brave-intl/bat-contribution-engine/pkg/featureflags"
)

// AutoContributeFlag is the Flagsmith feature flag gating auto-contribute
// participation ahead of any per-user preference check.
const AutoContributeFlag = "auto-contribute-enabled"

// EligibilityGate decides whether a client may run auto-contribute this
// tick, combining a remote kill switch with a staged-rollout expression
// evaluated against the client's id.
type EligibilityGate struct {
	flags  featureflags.FeatureFlag
	env    *cel.Env
	expr   string
	logger *zap.Logger
}

// NewEligibilityGate builds the rollout expression's CEL environment once at
// construction time via celengine's dynamic-attribute builder (the same
// helper the policy engine uses elsewhere); a bad expression is a
// startup-time configuration error, not a per-tick one.
func NewEligibilityGate(flags featureflags.FeatureFlag, rolloutExpr string, logger *zap.Logger) (*EligibilityGate, error) {
	env, err := celengine.BuildCelEnvFromAttributes(map[string]interface{}{"client_id": ""})
	if err != nil {
		return nil, err
	}
	if err := celengine.ValidateExpression(env, rolloutExpr); err != nil {
		return nil, err
	}
	return &EligibilityGate{flags: flags, env: env, expr: rolloutExpr, logger: logger}, nil
}

// Eligible returns whether clientID may run auto-contribute right now. Any
// evaluation failure fails closed (not eligible) rather than silently
// running contributions the flag pipeline couldn't confirm.
func (g *EligibilityGate) Eligible(ctx context.Context, clientID string) bool {
	if g.flags != nil {
		flags, err := g.flags.Flags(ctx, clientID)
		if err != nil {
			g.logger.Warn("failed to fetch flagsmith identity flags, defaulting to disabled", zap.Error(err))
			return false
		}
		enabled, err := flags.IsFeatureEnabled(AutoContributeFlag)
		if err != nil || !enabled {
			return false
		}
	}

	if g.env == nil {
		return true
	}
	ok, err := celengine.Evaluate(g.env, g.expr, map[string]interface{}{"client_id": clientID})
	if err != nil {
		g.logger.Warn("rollout expression evaluation failed, defaulting to disabled", zap.Error(err))
		return false
	}
	return ok
}
