package contribution

import (
	"context"
	"sync"
	"time"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
)

// fakePaymentService drives PurchaseJob and TokenContributionProcessor
// through the payment steps without a network round trip. Every Post/Get
// method except PostPublisherVotes can be scripted to fail a fixed number of
// times before succeeding, exercising the retry-with-backoff path;
// votesErr and suggestionsErr make every PostPublisherVotes or
// PostSuggestions call fail.
type fakePaymentService struct {
	mu sync.Mutex

	failOrderTimes       int
	failTxTimes          int
	failCredsTimes       int
	failClaimTimes       int
	failSuggestionsTimes int
	votesErr             error
	suggestionsErr       error

	orderCounter int
	votes        []PaymentVote
	suggestions  []UnblindedTokenRef
}

func (f *fakePaymentService) PostPublisherVotes(ctx context.Context, publisherID string, voteType VoteType, votes []PaymentVote) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.votesErr != nil {
		return false, f.votesErr
	}
	f.votes = append(f.votes, votes...)
	return true, nil
}

func (f *fakePaymentService) PostSuggestions(ctx context.Context, publisherID string, rewardsType Type, tokens []UnblindedTokenRef) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.suggestionsErr != nil {
		return false, f.suggestionsErr
	}
	if f.failSuggestionsTimes > 0 {
		f.failSuggestionsTimes--
		return false, errTransient
	}
	f.suggestions = append(f.suggestions, tokens...)
	return true, nil
}

func (f *fakePaymentService) PostOrder(ctx context.Context, item SKUOrderItem) (SKUOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOrderTimes > 0 {
		f.failOrderTimes--
		return SKUOrder{}, errTransient
	}
	f.orderCounter++
	return SKUOrder{
		OrderID:     "order-1",
		OrderItemID: "item-1",
		Items:       []SKUOrderItem{{SKU: item.SKU, Quantity: item.Quantity, UnitPrice: item.UnitPrice}},
	}, nil
}

func (f *fakePaymentService) PostTransaction(ctx context.Context, orderID string, provider ExternalWalletProvider, externalTransactionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTxTimes > 0 {
		f.failTxTimes--
		return false, errTransient
	}
	return true, nil
}

func (f *fakePaymentService) PostCredentials(ctx context.Context, orderID, orderItemID string, blindedTokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCredsTimes > 0 {
		f.failCredsTimes--
		return errTransient
	}
	return nil
}

func (f *fakePaymentService) GetCredentials(ctx context.Context, orderID, orderItemID string) (SignedCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClaimTimes > 0 {
		f.failClaimTimes--
		return SignedCredentials{}, nil
	}
	return SignedCredentials{
		Ready:        true,
		SignedTokens: []string{"signed-a"},
		Proof:        "proof",
		PublicKey:    "pubkey",
	}, nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errTransient = errString("transient failure")

// fakeWalletManager satisfies walletmgr.Manager with a single connected (or
// absent) wallet and static fee/order addresses.
type fakeWalletManager struct {
	connected   bool
	wallet      ExternalWallet
	orderAddr   string
	feeAddr     string
	transferErr error
	transferTx  string
}

func (m *fakeWalletManager) GetBalance(ctx context.Context) (float64, bool, error) { return 0, false, nil }

func (m *fakeWalletManager) GetExternalWallet(ctx context.Context) (ExternalWallet, bool, error) {
	return m.wallet, m.connected, nil
}

func (m *fakeWalletManager) TransferBAT(ctx context.Context, destination string, amount float64, memo string) (TransferResult, error) {
	if m.transferErr != nil {
		return TransferResult{}, m.transferErr
	}
	return TransferResult{Provider: m.wallet.Provider, TxID: m.transferTx}, nil
}

func (m *fakeWalletManager) ContributionFeeAddress(ctx context.Context, provider ExternalWalletProvider) (string, error) {
	return m.feeAddr, nil
}

func (m *fakeWalletManager) ContributionTokenOrderAddress(ctx context.Context, provider ExternalWalletProvider) (string, error) {
	return m.orderAddr, nil
}

// fakePrivacyPass produces deterministic, traceable blinded/unblinded
// tokens instead of real blind signatures.
type fakePrivacyPass struct{}

func (fakePrivacyPass) CreateBlindedTokens(ctx context.Context, n int) ([]BlindedToken, error) {
	out := make([]BlindedToken, n)
	for i := range out {
		out[i] = BlindedToken{Token: "raw", Blinded: "blinded"}
	}
	return out, nil
}

func (fakePrivacyPass) UnblindTokens(ctx context.Context, tokens []BlindedToken, signed []string, proof, publicKey string) ([]string, error) {
	out := make([]string, len(tokens))
	for i := range tokens {
		out[i] = "unblinded"
	}
	return out, nil
}

// fakeTokenManager is an in-memory stand-in for tokenmgr.Manager.
type fakeTokenManager struct {
	mu      sync.Mutex
	free    []ContributionToken
	nextID  int64
	inserts int
}

// ReserveByAmount takes the first round(amount/VoteValue) free tokens of
// tokenType in insertion order, mirroring tokenmgr.GormManager's
// reserve-and-remove-from-the-free-pool semantics without a database.
func (m *fakeTokenManager) ReserveByAmount(ctx context.Context, jobID string, tokenType TokenType, amount float64) (TokenHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needed := int(amount/VoteValue + 0.5)
	if needed <= 0 {
		return TokenHold{}, nil
	}
	var reserved []ContributionToken
	var remaining []ContributionToken
	for _, t := range m.free {
		if len(reserved) < needed && t.TokenType == string(tokenType) {
			reserved = append(reserved, t)
			continue
		}
		remaining = append(remaining, t)
	}
	m.free = remaining
	return TokenHold{Tokens: reserved}, nil
}

// ReserveByIDs re-reserves the exact tokens by id, removing them from free.
func (m *fakeTokenManager) ReserveByIDs(ctx context.Context, jobID string, ids []int64) (TokenHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var reserved []ContributionToken
	var remaining []ContributionToken
	for _, t := range m.free {
		if want[t.ID] {
			reserved = append(reserved, t)
			continue
		}
		remaining = append(remaining, t)
	}
	m.free = remaining
	return TokenHold{Tokens: reserved}, nil
}

func (m *fakeTokenManager) InsertTokens(ctx context.Context, batch []ContributionToken, tokenType TokenType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts += len(batch)
	for i := range batch {
		m.nextID++
		batch[i].ID = m.nextID
		batch[i].TokenType = string(tokenType)
		m.free = append(m.free, batch[i])
	}
	return nil
}

func (m *fakeTokenManager) AvailableBalance(ctx context.Context, tokenType TokenType) (float64, error) {
	return 0, nil
}

func (m *fakeTokenManager) MarkRedeemed(ctx context.Context, hold TokenHold, contributionID string) error {
	return nil
}

func (m *fakeTokenManager) ReleaseHold(ctx context.Context, hold TokenHold) error { return nil }

// instantDelay resolves Delay/RandomDelay immediately, so backoff-driven
// retries in tests don't actually sleep.
type instantDelay struct{}

func (instantDelay) Delay(ctx context.Context, d time.Duration) *core.Future[struct{}] {
	return core.Completed(struct{}{})
}

func (instantDelay) RandomDelay(ctx context.Context, d time.Duration) *core.Future[struct{}] {
	return core.Completed(struct{}{})
}

// fixedClock is a Clock pinned to a single instant.
type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// blockingDelay never resolves. Used where a real DelayGenerator would
// eventually fire and re-drive a self-scheduling loop (SchedulerJob.tick):
// combined with a fixedClock that never advances, an instantly-resolving
// delay would recurse forever instead of just once.
type blockingDelay struct{}

func (blockingDelay) Delay(ctx context.Context, d time.Duration) *core.Future[struct{}] {
	return core.NewFuture[struct{}]()
}

func (blockingDelay) RandomDelay(ctx context.Context, d time.Duration) *core.Future[struct{}] {
	return core.NewFuture[struct{}]()
}

// fakeStore is an in-memory Store used where a full gorm-backed GormStore
// would introduce incidental constraints (e.g. Contribution's empty primary
// key) unrelated to what a test is exercising.
type fakeStore struct {
	mu            sync.Mutex
	contributions []Contribution
}

func (s *fakeStore) AddPublisherVisit(ctx context.Context, publisherID string, durationSeconds float64) error {
	return nil
}
func (s *fakeStore) GetPublisherActivity(ctx context.Context) ([]PublisherActivity, error) {
	return nil, nil
}
func (s *fakeStore) ResetPublisherActivity(ctx context.Context) error { return nil }
func (s *fakeStore) GetRecurringContributions(ctx context.Context) ([]RecurringContribution, error) {
	return nil, nil
}
func (s *fakeStore) SetRecurringContribution(ctx context.Context, publisherID string, amount float64) error {
	return nil
}
func (s *fakeStore) DeleteRecurringContribution(ctx context.Context, publisherID string) error {
	return nil
}
func (s *fakeStore) SavePendingContribution(ctx context.Context, publisherID string, amount float64) error {
	return nil
}
func (s *fakeStore) GetPendingContributions(ctx context.Context) ([]PendingContribution, error) {
	return nil, nil
}
func (s *fakeStore) DeletePendingContribution(ctx context.Context, id int64) error { return nil }
func (s *fakeStore) PruneExpiredPendingContributions(ctx context.Context) (int64, error) {
	return 0, nil
}
func (s *fakeStore) SaveContribution(ctx context.Context, c Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.PublisherID == "" || c.Amount <= 0 {
		return errTransient
	}
	s.contributions = append(s.contributions, c)
	return nil
}
func (s *fakeStore) GetLastScheduledContributionTime(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}
func (s *fakeStore) SetLastScheduledContributionTime(ctx context.Context, t time.Time) error {
	return nil
}

func (s *fakeStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contributions)
}

// fakePublisherService serves a fixed publisher directory keyed by ID.
type fakePublisherService struct {
	publishers map[string]Publisher
	err        error
}

func (s *fakePublisherService) GetPublishers(ctx context.Context, ids []string) (map[string]Publisher, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]Publisher, len(ids))
	for _, id := range ids {
		if p, ok := s.publishers[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// fakeUserPrefs answers auto-contribute settings queries with fixed values.
type fakeUserPrefs struct {
	enabled   bool
	minVisits int
	minDur    float64
	amount    float64
	err       error
}

func (p *fakeUserPrefs) AutoContributeEnabled(ctx context.Context) (bool, error)    { return p.enabled, p.err }
func (p *fakeUserPrefs) AutoContributeMinVisits(ctx context.Context) (int, error)   { return p.minVisits, p.err }
func (p *fakeUserPrefs) AutoContributeMinDuration(ctx context.Context) (float64, error) { return p.minDur, p.err }
func (p *fakeUserPrefs) AutoContributeAmount(ctx context.Context) (float64, error)  { return p.amount, p.err }

type fakeRandomizer struct{ draws []float64 }

func (r *fakeRandomizer) Uniform01() float64 {
	if len(r.draws) == 0 {
		return 0
	}
	v := r.draws[0]
	r.draws = r.draws[1:]
	return v
}

func (r *fakeRandomizer) Geometric(mean float64) float64 { return mean }
