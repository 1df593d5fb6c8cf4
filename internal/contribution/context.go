package contribution

import (
	"github.com/brave-intl/bat-contribution-engine/internal/core"
	"github.com/brave-intl/bat-contribution-engine/internal/tokenmgr"
	"github.com/brave-intl/bat-contribution-engine/internal/walletmgr"
)

// Context bundles every collaborator a contribution job needs, passed
// explicitly into every job constructor rather than reached for through a
// package-level singleton.
type Context struct {
	core.Context

	// ClientID identifies this deployment's rewards client to the
	// eligibility gate's rollout expression. There is one contribution
	// engine per client, not per request, so it is a fixed installation
	// identifier rather than something threaded in per call.
	ClientID string

	Store          Store
	TokenManager   tokenmgr.Manager
	ExternalWallet walletmgr.Manager
	Payment        PaymentService
	Publishers     PublisherService
	PrivacyPass    PrivacyPass
	UserPrefs      UserPrefs
	Events         EventPublisher
}
