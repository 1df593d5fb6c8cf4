package contribution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTokenProcessorContext(t *testing.T) (Context, *fakePaymentService, *fakeTokenManager, *fakeStore) {
	ctx, payment, _, tokens, store := newTestJobContextWithStore(t)
	return ctx, payment, tokens, store
}

func TestProcessContributionRedeemsVGTokens(t *testing.T) {
	ctx, payment, tokens, store := newTokenProcessorContext(t)
	tokens.free = append(tokens.free,
		ContributionToken{ID: 1, Value: VoteValue, UnblindedToken: "tok-1", PublicKey: "pk", TokenType: string(TokenTypeVG)},
	)
	proc := NewTokenContributionProcessor(ctx, zap.NewNop())

	ok := proc.ProcessContribution(context.Background(), Contribution{
		ID:               "c-1",
		ContributionType: string(TypeOneTime),
		PublisherID:      "pub-1",
		Amount:           VoteValue,
		Source:           string(SourceVGTokens),
	}).Wait()

	require.True(t, ok)
	require.Equal(t, 1, store.savedCount())
	require.Len(t, payment.suggestions, 1)
	require.Empty(t, payment.votes, "vg redemption posts suggestions, not votes")
}

func TestProcessContributionRedeemsSKUTokensAsVotes(t *testing.T) {
	ctx, payment, tokens, store := newTokenProcessorContext(t)
	tokens.free = append(tokens.free,
		ContributionToken{ID: 1, Value: VoteValue, UnblindedToken: "tok-1", PublicKey: "pk", TokenType: string(TokenTypeSKU)},
	)
	proc := NewTokenContributionProcessor(ctx, zap.NewNop())

	ok := proc.ProcessContribution(context.Background(), Contribution{
		ID:               "c-1",
		ContributionType: string(TypeOneTime),
		PublisherID:      "pub-1",
		Amount:           VoteValue,
		Source:           string(SourceSKUTokens),
	}).Wait()

	require.True(t, ok)
	require.Equal(t, 1, store.savedCount())
	require.Len(t, payment.votes, 1)
	require.Empty(t, payment.suggestions, "sku redemption posts votes, not suggestions")
}

func TestProcessContributionInsufficientReservationFails(t *testing.T) {
	ctx, _, _, store := newTokenProcessorContext(t)
	proc := NewTokenContributionProcessor(ctx, zap.NewNop())

	ok := proc.ProcessContribution(context.Background(), Contribution{
		ID:               "c-1",
		ContributionType: string(TypeOneTime),
		PublisherID:      "pub-1",
		Amount:           VoteValue,
		Source:           string(SourceVGTokens),
	}).Wait()

	require.False(t, ok)
	require.Equal(t, 0, store.savedCount())
}

func TestProcessContributionWithHoldUsesActualHeldValue(t *testing.T) {
	ctx, _, _, store := newTokenProcessorContext(t)
	proc := NewTokenContributionProcessor(ctx, zap.NewNop())

	hold := TokenHold{Tokens: []ContributionToken{
		{ID: 1, Value: VoteValue, UnblindedToken: "tok-1", PublicKey: "pk"},
		{ID: 2, Value: VoteValue, UnblindedToken: "tok-2", PublicKey: "pk"},
	}}
	c := Contribution{
		ID:               "c-1",
		ContributionType: string(TypeAutoContribute),
		PublisherID:      "pub-1",
		Amount:           VoteValue, // requested less than the hold actually carries
		Source:           string(SourceVGTokens),
	}

	ok := proc.ProcessContributionWithHold(context.Background(), c, hold).Wait()

	require.True(t, ok)
	require.Equal(t, 1, store.savedCount())
	require.Equal(t, 2*VoteValue, store.contributions[0].Amount)
}

func TestProcessContributionWithHoldPaymentFailurePropagates(t *testing.T) {
	ctx, payment, _, store := newTokenProcessorContext(t)
	payment.suggestionsErr = errTransient
	proc := NewTokenContributionProcessor(ctx, zap.NewNop())

	hold := TokenHold{Tokens: []ContributionToken{
		{ID: 1, Value: VoteValue, UnblindedToken: "tok-1", PublicKey: "pk"},
	}}
	c := Contribution{
		ID:               "c-1",
		ContributionType: string(TypeOneTime),
		PublisherID:      "pub-1",
		Amount:           VoteValue,
		Source:           string(SourceVGTokens),
	}

	ok := proc.ProcessContributionWithHold(context.Background(), c, hold).Wait()

	require.False(t, ok)
	require.Equal(t, 0, store.savedCount())
}
