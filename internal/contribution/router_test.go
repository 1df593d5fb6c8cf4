package contribution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, connected bool) (*Router, *fakeStore) {
	ctx, _, wallet, _, store := newTestJobContextWithStore(t)
	wallet.connected = connected
	ctx.Publishers = &fakePublisherService{publishers: map[string]Publisher{
		"pub-1": {ID: "pub-1", Registered: true, UpholdVerified: true, UpholdAddress: "addr-1"},
	}}

	tokensProc := NewTokenContributionProcessor(ctx, zap.NewNop())
	fee := NewContributionFeeProcessor(ctx, zap.NewNop())
	external := NewExternalContributionProcessor(ctx, zap.NewNop(), fee)
	router := NewRouter(ctx, zap.NewNop(), tokensProc, external)
	return router, store
}

func TestRouterCurrentSourceReflectsWalletConnection(t *testing.T) {
	router, _ := newTestRouter(t, true)
	source, err := router.CurrentSource(context.Background())
	require.NoError(t, err)
	require.Equal(t, SourceExternalWallet, source)

	router2, _ := newTestRouter(t, false)
	source2, err := router2.CurrentSource(context.Background())
	require.NoError(t, err)
	require.Equal(t, SourceVGTokens, source2)
}

func TestRouterSendContributionZeroAmountIsNoopSuccess(t *testing.T) {
	router, store := newTestRouter(t, false)
	ok := router.SendContribution(context.Background(), TypeRecurring, "pub-1", 0).Wait()
	require.True(t, ok)
	require.Equal(t, 0, store.savedCount())
}

func TestRouterSendContributionRoutesToVGTokensWhenWalletDisconnected(t *testing.T) {
	router, store := newTestRouter(t, false)

	// No free tokens were seeded, so the vg-tokens path reserves nothing and
	// the contribution never gets recorded.
	ok := router.SendContribution(context.Background(), TypeOneTime, "pub-1", VoteValue).Wait()
	require.False(t, ok)
	require.Equal(t, 0, store.savedCount())
}
