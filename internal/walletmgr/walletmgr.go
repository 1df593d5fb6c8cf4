// Package walletmgr implements ExternalWalletManager: balance reads and BAT
// transfers against a connected uphold/gemini/bitflyer wallet, over resty
// HTTP clients.
package walletmgr

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/contribution"
)

// Manager is the ExternalWalletManager collaborator.
type Manager interface {
	GetBalance(ctx context.Context) (float64, bool, error)
	GetExternalWallet(ctx context.Context) (contribution.ExternalWallet, bool, error)
	TransferBAT(ctx context.Context, destination string, amount float64, memo string) (contribution.TransferResult, error)
	ContributionFeeAddress(ctx context.Context, provider contribution.ExternalWalletProvider) (string, error)
	ContributionTokenOrderAddress(ctx context.Context, provider contribution.ExternalWalletProvider) (string, error)
}

// Config carries the environment-specific base URLs and fee/order addresses
// sourced from pkg/config's EXTERNAL_WALLET section. The Vault overlay at
// boot does not touch these fields.
type Config struct {
	UpholdBaseURL string
	GeminiBaseURL string

	FeeAddress   map[contribution.ExternalWalletProvider]string
	OrderAddress map[contribution.ExternalWalletProvider]string
}

// RestyManager is the production Manager.
type RestyManager struct {
	cfg     Config
	client  *resty.Client
	logger  *zap.Logger
	wallet  contribution.ExternalWallet
	haveOne bool
}

func NewRestyManager(cfg Config, client *resty.Client, logger *zap.Logger) *RestyManager {
	return &RestyManager{cfg: cfg, client: client, logger: logger}
}

// SetWallet installs the currently-connected wallet. No code in this
// repository calls it outside tests; until it is called, the manager reports
// no connected wallet.
func (m *RestyManager) SetWallet(w contribution.ExternalWallet) {
	m.wallet = w
	m.haveOne = true
}

func (m *RestyManager) GetExternalWallet(ctx context.Context) (contribution.ExternalWallet, bool, error) {
	return m.wallet, m.haveOne, nil
}

func (m *RestyManager) baseURL() string {
	switch m.wallet.Provider {
	case contribution.ProviderGemini:
		return m.cfg.GeminiBaseURL
	default:
		return m.cfg.UpholdBaseURL
	}
}

func (m *RestyManager) GetBalance(ctx context.Context) (float64, bool, error) {
	if !m.haveOne {
		return 0, false, nil
	}
	var body struct {
		Available float64 `json:"available"`
	}
	resp, err := m.client.R().SetContext(ctx).
		SetAuthToken(m.wallet.AccessToken).
		SetResult(&body).
		Get(m.baseURL() + "/v0/me")
	if err != nil {
		return 0, false, err
	}
	if resp.IsError() {
		return 0, false, fmt.Errorf("walletmgr: balance request failed: %s", resp.Status())
	}
	return body.Available, true, nil
}

func (m *RestyManager) TransferBAT(ctx context.Context, destination string, amount float64, memo string) (contribution.TransferResult, error) {
	if !m.haveOne {
		return contribution.TransferResult{}, fmt.Errorf("walletmgr: no external wallet connected")
	}
	var body struct {
		TransactionID string `json:"id"`
	}
	resp, err := m.client.R().SetContext(ctx).
		SetAuthToken(m.wallet.AccessToken).
		SetBody(map[string]any{
			"denomination": map[string]any{"amount": amount, "currency": "BAT"},
			"destination":  destination,
			"message":      memo,
		}).
		SetResult(&body).
		Post(m.baseURL() + "/v0/me/cards/transactions")
	if err != nil {
		return contribution.TransferResult{}, err
	}
	if resp.IsError() {
		return contribution.TransferResult{}, fmt.Errorf("walletmgr: transfer failed: %s", resp.Status())
	}
	return contribution.TransferResult{Provider: m.wallet.Provider, TxID: body.TransactionID}, nil
}

func (m *RestyManager) ContributionFeeAddress(ctx context.Context, provider contribution.ExternalWalletProvider) (string, error) {
	addr, ok := m.cfg.FeeAddress[provider]
	if !ok {
		return "", fmt.Errorf("walletmgr: no fee address configured for provider %s", provider)
	}
	return addr, nil
}

func (m *RestyManager) ContributionTokenOrderAddress(ctx context.Context, provider contribution.ExternalWalletProvider) (string, error) {
	addr, ok := m.cfg.OrderAddress[provider]
	if !ok {
		return "", fmt.Errorf("walletmgr: no order address configured for provider %s", provider)
	}
	return addr, nil
}
