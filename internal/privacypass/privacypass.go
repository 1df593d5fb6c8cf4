// Package privacypass is the boundary to the blind-signature protocol used
// to unlink a purchased token batch from its later publisher votes. The
// actual cryptography (elliptic-curve blinding/unblinding, DLEQ proof
// verification) is out of this repository's scope; UnimplementedPrivacyPass
// exists so the contribution engine's fx graph and job state machines are
// fully wired and exercisable end to end even before a real implementation
// is plugged in.
package privacypass

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"go.uber.org/fx"

	"github.com/brave-intl/bat-contribution-engine/internal/contribution"
)

// Module provides contribution.PrivacyPass, kept separate from
// contribution.Module for the same import-direction reason as paymentmgr.
var Module = fx.Module("privacypass",
	fx.Provide(fx.Annotate(New, fx.As(new(contribution.PrivacyPass)))),
)

// UnimplementedPrivacyPass generates opaque-but-unblinded placeholder
// tokens: enough for PurchaseJob and ACJob to exercise their full state
// machines and persistence paths, but not cryptographically unlinkable.
type UnimplementedPrivacyPass struct{}

func New() *UnimplementedPrivacyPass { return &UnimplementedPrivacyPass{} }

func (UnimplementedPrivacyPass) CreateBlindedTokens(ctx context.Context, n int) ([]contribution.BlindedToken, error) {
	tokens := make([]contribution.BlindedToken, n)
	for i := range tokens {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("privacypass: generate token: %w", err)
		}
		tok := hex.EncodeToString(raw)
		tokens[i] = contribution.BlindedToken{Token: tok, Blinded: tok}
	}
	return tokens, nil
}

func (UnimplementedPrivacyPass) UnblindTokens(ctx context.Context, tokens []contribution.BlindedToken, signed []string, proof, publicKey string) ([]string, error) {
	if len(signed) != len(tokens) {
		return nil, fmt.Errorf("privacypass: signed token count %d does not match request %d", len(signed), len(tokens))
	}
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Token
	}
	return out, nil
}
