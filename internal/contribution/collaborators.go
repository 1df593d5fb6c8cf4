package contribution

import "context"

// PaymentVote is a single redeemed-token vote posted to the payment
// service.
type PaymentVote struct {
	UnblindedToken string
	PublicKey      string
}

// UnblindedTokenRef mirrors mojom::UnblindedToken for the VG redeem path.
type UnblindedTokenRef struct {
	ID             int64
	TokenValue     string
	PublicKey      string
}

// SKUOrderItem describes the single line item a PurchaseJob orders.
type SKUOrderItem struct {
	SKU       string
	Quantity  int
	UnitPrice float64
}

// SKUOrder is the payment service's response to PostOrder.
type SKUOrder struct {
	OrderID     string
	OrderItemID string
	Items       []SKUOrderItem
}

// SignedCredentials is the payment service's response once tokens have been
// signed server-side.
type SignedCredentials struct {
	SignedTokens []string
	Proof        string
	PublicKey    string
	Ready        bool
}

// PaymentService is the external collaborator that mints and redeems
// tokens.
type PaymentService interface {
	PostPublisherVotes(ctx context.Context, publisherID string, voteType VoteType, votes []PaymentVote) (bool, error)
	PostSuggestions(ctx context.Context, publisherID string, rewardsType Type, tokens []UnblindedTokenRef) (bool, error)
	PostOrder(ctx context.Context, item SKUOrderItem) (SKUOrder, error)
	PostTransaction(ctx context.Context, orderID string, provider ExternalWalletProvider, externalTransactionID string) (bool, error)
	PostCredentials(ctx context.Context, orderID, orderItemID string, blindedTokens []string) error
	GetCredentials(ctx context.Context, orderID, orderItemID string) (SignedCredentials, error)
}

// Publisher is a registered content creator eligible to receive
// contributions.
type Publisher struct {
	ID               string
	Registered       bool
	UpholdVerified   bool
	GeminiVerified   bool
	BitflyerVerified bool
	UpholdAddress    string
	GeminiAddress    string
	BitflyerAddress  string
}

// AddressFor returns the publisher's payout address for the given provider
// if verified.
func (p Publisher) AddressFor(provider ExternalWalletProvider) (string, bool) {
	switch provider {
	case ProviderUphold:
		return p.UpholdAddress, p.UpholdVerified && p.UpholdAddress != ""
	case ProviderGemini:
		return p.GeminiAddress, p.GeminiVerified && p.GeminiAddress != ""
	case ProviderBitflyer:
		return p.BitflyerAddress, p.BitflyerVerified && p.BitflyerAddress != ""
	default:
		return "", false
	}
}

// PublisherService is the external collaborator holding publisher
// registration/verification/address state.
type PublisherService interface {
	GetPublishers(ctx context.Context, ids []string) (map[string]Publisher, error)
}

// BlindedToken pairs a random token with its blinded form for the vendor's
// transaction-sent step.
type BlindedToken struct {
	Token   string
	Blinded string
}

// PrivacyPass is the boundary to the blind-signature protocol. The core
// treats it as opaque pure functions; a production implementation is out of
// this repository's scope.
type PrivacyPass interface {
	CreateBlindedTokens(ctx context.Context, n int) ([]BlindedToken, error)
	UnblindTokens(ctx context.Context, tokens []BlindedToken, signed []string, proof, publicKey string) ([]string, error)
}

// UserPrefs exposes the auto-contribute settings the ContributionJob reads
// each scheduler tick.
type UserPrefs interface {
	AutoContributeEnabled(ctx context.Context) (bool, error)
	AutoContributeMinVisits(ctx context.Context) (int, error)
	AutoContributeMinDuration(ctx context.Context) (float64, error)
	AutoContributeAmount(ctx context.Context) (float64, error)
}
