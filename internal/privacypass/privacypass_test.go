package privacypass

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brave-intl/bat-contribution-engine/internal/contribution"
)

func TestCreateBlindedTokensReturnsRequestedCount(t *testing.T) {
	pp := New()

	tokens, err := pp.CreateBlindedTokens(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tokens, 5)

	seen := make(map[string]bool)
	for _, tok := range tokens {
		require.NotEmpty(t, tok.Token)
		require.Equal(t, tok.Token, tok.Blinded)
		require.False(t, seen[tok.Token], "expected unique token")
		seen[tok.Token] = true
	}
}

func TestUnblindTokensRejectsMismatchedCounts(t *testing.T) {
	pp := New()

	_, err := pp.UnblindTokens(context.Background(),
		[]contribution.BlindedToken{{Token: "a"}, {Token: "b"}},
		[]string{"signed-a"},
		"proof", "pubkey")
	require.Error(t, err)
}

func TestUnblindTokensReturnsUnderlyingTokens(t *testing.T) {
	pp := New()
	tokens := []contribution.BlindedToken{{Token: "a"}, {Token: "b"}}

	unblinded, err := pp.UnblindTokens(context.Background(), tokens, []string{"sig-a", "sig-b"}, "proof", "pubkey")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, unblinded)
}
