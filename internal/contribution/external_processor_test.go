package contribution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// walletManagerWithBalance wraps fakeWalletManager to answer GetBalance,
// since the shared fake always reports zero.
type walletManagerWithBalance struct {
	*fakeWalletManager
	balance float64
}

func (m *walletManagerWithBalance) GetBalance(ctx context.Context) (float64, bool, error) {
	return m.balance, m.connected, nil
}

func TestExternalContributionProcessorHappyPath(t *testing.T) {
	ctx, _, wallet, _, store := newTestJobContextWithStore(t)
	balanced := &walletManagerWithBalance{fakeWalletManager: wallet, balance: 10}
	ctx.ExternalWallet = balanced
	ctx.Publishers = &fakePublisherService{publishers: map[string]Publisher{
		"pub-1": {ID: "pub-1", Registered: true, UpholdVerified: true, UpholdAddress: "addr-1"},
	}}
	fee := NewContributionFeeProcessor(ctx, zap.NewNop())
	proc := NewExternalContributionProcessor(ctx, zap.NewNop(), fee)

	ok := proc.ProcessContribution(context.Background(), Contribution{
		ContributionType: string(TypeOneTime),
		PublisherID:      "pub-1",
		Amount:           1.0,
		Source:           string(SourceExternalWallet),
	}).Wait()

	require.True(t, ok)
	require.Equal(t, 1, store.savedCount())
}

func TestExternalContributionProcessorInsufficientBalance(t *testing.T) {
	ctx, _, wallet, _, store := newTestJobContextWithStore(t)
	balanced := &walletManagerWithBalance{fakeWalletManager: wallet, balance: 0.1}
	ctx.ExternalWallet = balanced
	ctx.Publishers = &fakePublisherService{publishers: map[string]Publisher{
		"pub-1": {ID: "pub-1", Registered: true, UpholdVerified: true, UpholdAddress: "addr-1"},
	}}
	fee := NewContributionFeeProcessor(ctx, zap.NewNop())
	proc := NewExternalContributionProcessor(ctx, zap.NewNop(), fee)

	ok := proc.ProcessContribution(context.Background(), Contribution{
		ContributionType: string(TypeOneTime),
		PublisherID:      "pub-1",
		Amount:           1.0,
		Source:           string(SourceExternalWallet),
	}).Wait()

	require.False(t, ok)
	require.Equal(t, 0, store.savedCount())
}

func TestExternalContributionProcessorPublisherNotVerified(t *testing.T) {
	ctx, _, wallet, _, store := newTestJobContextWithStore(t)
	balanced := &walletManagerWithBalance{fakeWalletManager: wallet, balance: 10}
	ctx.ExternalWallet = balanced
	ctx.Publishers = &fakePublisherService{publishers: map[string]Publisher{
		"pub-1": {ID: "pub-1", Registered: true, UpholdVerified: false},
	}}
	fee := NewContributionFeeProcessor(ctx, zap.NewNop())
	proc := NewExternalContributionProcessor(ctx, zap.NewNop(), fee)

	ok := proc.ProcessContribution(context.Background(), Contribution{
		ContributionType: string(TypeOneTime),
		PublisherID:      "pub-1",
		Amount:           1.0,
		Source:           string(SourceExternalWallet),
	}).Wait()

	require.False(t, ok)
	require.Equal(t, 0, store.savedCount())
}

func TestExternalContributionProcessorPublisherNotFound(t *testing.T) {
	ctx, _, wallet, _, store := newTestJobContextWithStore(t)
	balanced := &walletManagerWithBalance{fakeWalletManager: wallet, balance: 10}
	ctx.ExternalWallet = balanced
	ctx.Publishers = &fakePublisherService{publishers: map[string]Publisher{}}
	fee := NewContributionFeeProcessor(ctx, zap.NewNop())
	proc := NewExternalContributionProcessor(ctx, zap.NewNop(), fee)

	ok := proc.ProcessContribution(context.Background(), Contribution{
		ContributionType: string(TypeOneTime),
		PublisherID:      "missing",
		Amount:           1.0,
		Source:           string(SourceExternalWallet),
	}).Wait()

	require.False(t, ok)
	require.Equal(t, 0, store.savedCount())
}

func TestExternalContributionProcessorTransferFailure(t *testing.T) {
	ctx, _, wallet, _, store := newTestJobContextWithStore(t)
	balanced := &walletManagerWithBalance{fakeWalletManager: wallet, balance: 10}
	balanced.transferErr = errTransient
	ctx.ExternalWallet = balanced
	ctx.Publishers = &fakePublisherService{publishers: map[string]Publisher{
		"pub-1": {ID: "pub-1", Registered: true, UpholdVerified: true, UpholdAddress: "addr-1"},
	}}
	fee := NewContributionFeeProcessor(ctx, zap.NewNop())
	proc := NewExternalContributionProcessor(ctx, zap.NewNop(), fee)

	ok := proc.ProcessContribution(context.Background(), Contribution{
		ContributionType: string(TypeOneTime),
		PublisherID:      "pub-1",
		Amount:           1.0,
		Source:           string(SourceExternalWallet),
	}).Wait()

	require.False(t, ok)
	require.Equal(t, 0, store.savedCount())
}
