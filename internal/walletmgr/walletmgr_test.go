package walletmgr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/contribution"
)

func newTestManager(t *testing.T, handler http.HandlerFunc) *RestyManager {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		UpholdBaseURL: srv.URL,
		GeminiBaseURL: srv.URL,
		FeeAddress: map[contribution.ExternalWalletProvider]string{
			contribution.ProviderUphold: "fee-addr",
		},
		OrderAddress: map[contribution.ExternalWalletProvider]string{
			contribution.ProviderUphold: "order-addr",
		},
	}
	return NewRestyManager(cfg, resty.New(), zap.NewNop())
}

func TestGetBalanceWithNoWalletConnected(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not make a request with no wallet connected")
	})

	balance, ok, err := m.GetBalance(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, balance)
}

func TestGetBalanceReturnsAvailable(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v0/me", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"available": 12.5})
	})
	m.SetWallet(contribution.ExternalWallet{Provider: contribution.ProviderUphold, AccessToken: "tok-1"})

	balance, ok, err := m.GetBalance(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 12.5, balance, 1e-9)
}

func TestGetBalanceServerError(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	m.SetWallet(contribution.ExternalWallet{Provider: contribution.ProviderUphold, AccessToken: "tok-1"})

	_, _, err := m.GetBalance(context.Background())
	require.Error(t, err)
}

func TestGetExternalWalletReflectsSetWallet(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {})

	_, ok, err := m.GetExternalWallet(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	m.SetWallet(contribution.ExternalWallet{Provider: contribution.ProviderGemini, Address: "addr"})
	wallet, ok, err := m.GetExternalWallet(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, contribution.ProviderGemini, wallet.Provider)
}

func TestTransferBATWithNoWalletConnected(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not make a request with no wallet connected")
	})

	_, err := m.TransferBAT(context.Background(), "dest", 1.0, "memo")
	require.Error(t, err)
}

func TestTransferBATSuccess(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v0/me/cards/transactions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "dest-addr", body["destination"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "tx-1"})
	})
	m.SetWallet(contribution.ExternalWallet{Provider: contribution.ProviderUphold, AccessToken: "tok-1"})

	result, err := m.TransferBAT(context.Background(), "dest-addr", 5.0, "vote payout")
	require.NoError(t, err)
	require.Equal(t, "tx-1", result.TxID)
	require.Equal(t, contribution.ProviderUphold, result.Provider)
}

func TestTransferBATServerError(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	m.SetWallet(contribution.ExternalWallet{Provider: contribution.ProviderUphold, AccessToken: "tok-1"})

	_, err := m.TransferBAT(context.Background(), "dest", 1.0, "memo")
	require.Error(t, err)
}

func TestContributionFeeAddressKnownProvider(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {})

	addr, err := m.ContributionFeeAddress(context.Background(), contribution.ProviderUphold)
	require.NoError(t, err)
	require.Equal(t, "fee-addr", addr)
}

func TestContributionFeeAddressUnknownProvider(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := m.ContributionFeeAddress(context.Background(), contribution.ProviderGemini)
	require.Error(t, err)
}

func TestContributionTokenOrderAddressKnownProvider(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {})

	addr, err := m.ContributionTokenOrderAddress(context.Background(), contribution.ProviderUphold)
	require.NoError(t, err)
	require.Equal(t, "order-addr", addr)
}

func TestContributionTokenOrderAddressUnknownProvider(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := m.ContributionTokenOrderAddress(context.Background(), contribution.ProviderGemini)
	require.Error(t, err)
}
