// Package paymentmgr implements contribution.PaymentService: vote posting,
// SKU ordering, and credential redemption against the payment service, over
// a resty HTTP client (mirrors internal/walletmgr's resty adapter shape).
package paymentmgr

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/contribution"
	"github.com/brave-intl/bat-contribution-engine/pkg/config"
)

// Module provides contribution.PaymentService. Kept as its own fx module
// (rather than folded into contribution.Module) because this adapter must
// import internal/contribution for its types, and contribution.Module must
// not import back.
var Module = fx.Module("paymentmgr",
	fx.Provide(fx.Annotate(provide, fx.As(new(contribution.PaymentService)))),
)

func provide(cfg *config.Config, client *resty.Client, logger *zap.Logger) *RestyService {
	return NewRestyService(cfg.Services.PaymentURL, client, logger)
}

// RestyService is the production contribution.PaymentService.
type RestyService struct {
	baseURL string
	client  *resty.Client
	logger  *zap.Logger
}

func NewRestyService(baseURL string, client *resty.Client, logger *zap.Logger) *RestyService {
	return &RestyService{baseURL: baseURL, client: client, logger: logger}
}

func (s *RestyService) PostPublisherVotes(ctx context.Context, publisherID string, voteType contribution.VoteType, votes []contribution.PaymentVote) (bool, error) {
	resp, err := s.client.R().SetContext(ctx).
		SetBody(map[string]any{
			"publisher": publisherID,
			"type":      voteType,
			"votes":     votes,
		}).
		Post(s.baseURL + "/v1/votes")
	if err != nil {
		return false, err
	}
	if resp.IsError() {
		return false, fmt.Errorf("paymentmgr: post votes failed for %s: %s", publisherID, resp.Status())
	}
	return true, nil
}

func (s *RestyService) PostSuggestions(ctx context.Context, publisherID string, rewardsType contribution.Type, tokens []contribution.UnblindedTokenRef) (bool, error) {
	resp, err := s.client.R().SetContext(ctx).
		SetBody(map[string]any{
			"publisher": publisherID,
			"type":      rewardsType,
			"tokens":    tokens,
		}).
		Post(s.baseURL + "/v1/suggestions")
	if err != nil {
		return false, err
	}
	if resp.IsError() {
		return false, fmt.Errorf("paymentmgr: post suggestions failed for %s: %s", publisherID, resp.Status())
	}
	return true, nil
}

func (s *RestyService) PostOrder(ctx context.Context, item contribution.SKUOrderItem) (contribution.SKUOrder, error) {
	var order contribution.SKUOrder
	resp, err := s.client.R().SetContext(ctx).
		SetBody(item).
		SetResult(&order).
		Post(s.baseURL + "/v1/orders")
	if err != nil {
		return contribution.SKUOrder{}, err
	}
	if resp.IsError() {
		return contribution.SKUOrder{}, fmt.Errorf("paymentmgr: post order failed for sku %s: %s", item.SKU, resp.Status())
	}
	return order, nil
}

func (s *RestyService) PostTransaction(ctx context.Context, orderID string, provider contribution.ExternalWalletProvider, externalTransactionID string) (bool, error) {
	resp, err := s.client.R().SetContext(ctx).
		SetBody(map[string]any{
			"externalTransactionId": externalTransactionID,
			"kind":                  provider,
		}).
		Post(s.baseURL + "/v1/orders/" + orderID + "/transactions")
	if err != nil {
		return false, err
	}
	if resp.IsError() {
		return false, fmt.Errorf("paymentmgr: post transaction failed for order %s: %s", orderID, resp.Status())
	}
	return true, nil
}

func (s *RestyService) PostCredentials(ctx context.Context, orderID, orderItemID string, blindedTokens []string) error {
	resp, err := s.client.R().SetContext(ctx).
		SetBody(map[string]any{
			"itemId":        orderItemID,
			"blindedTokens": blindedTokens,
		}).
		Post(s.baseURL + "/v1/orders/" + orderID + "/credentials")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("paymentmgr: post credentials failed for order %s: %s", orderID, resp.Status())
	}
	return nil
}

func (s *RestyService) GetCredentials(ctx context.Context, orderID, orderItemID string) (contribution.SignedCredentials, error) {
	var body struct {
		Status       string   `json:"status"`
		SignedTokens []string `json:"signedTokens"`
		Proof        string   `json:"batchProof"`
		PublicKey    string   `json:"publicKey"`
	}
	resp, err := s.client.R().SetContext(ctx).
		SetResult(&body).
		Get(s.baseURL + "/v1/orders/" + orderID + "/credentials/" + orderItemID)
	if err != nil {
		return contribution.SignedCredentials{}, err
	}
	if resp.IsError() {
		return contribution.SignedCredentials{}, fmt.Errorf("paymentmgr: get credentials failed for order %s: %s", orderID, resp.Status())
	}
	return contribution.SignedCredentials{
		SignedTokens: body.SignedTokens,
		Proof:        body.Proof,
		PublicKey:    body.PublicKey,
		Ready:        body.Status == "completed",
	}, nil
}
