// Package publishermgr implements contribution.PublisherService: publisher
// registration/verification/address lookups against the publisher service.
package publishermgr

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/contribution"
	"github.com/brave-intl/bat-contribution-engine/pkg/config"
)

// Module provides contribution.PublisherService, kept separate from
// contribution.Module for the same import-direction reason as paymentmgr.
var Module = fx.Module("publishermgr",
	fx.Provide(fx.Annotate(provide, fx.As(new(contribution.PublisherService)))),
)

func provide(cfg *config.Config, client *resty.Client, logger *zap.Logger) *RestyService {
	return NewRestyService(cfg.Services.PublisherURL, client, logger)
}

// RestyService is the production contribution.PublisherService.
type RestyService struct {
	baseURL string
	client  *resty.Client
	logger  *zap.Logger
}

func NewRestyService(baseURL string, client *resty.Client, logger *zap.Logger) *RestyService {
	return &RestyService{baseURL: baseURL, client: client, logger: logger}
}

func (s *RestyService) GetPublishers(ctx context.Context, ids []string) (map[string]contribution.Publisher, error) {
	var body []struct {
		ID               string `json:"id"`
		Registered       bool   `json:"registered"`
		UpholdVerified   bool   `json:"upholdVerified"`
		GeminiVerified   bool   `json:"geminiVerified"`
		BitflyerVerified bool   `json:"bitflyerVerified"`
		UpholdAddress    string `json:"upholdAddress"`
		GeminiAddress    string `json:"geminiAddress"`
		BitflyerAddress  string `json:"bitflyerAddress"`
	}
	resp, err := s.client.R().SetContext(ctx).
		SetQueryParamsFromValues(map[string][]string{"id": ids}).
		SetResult(&body).
		Get(s.baseURL + "/v2/publishers")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("publishermgr: get publishers failed: %s", resp.Status())
	}

	out := make(map[string]contribution.Publisher, len(body))
	for _, p := range body {
		out[p.ID] = contribution.Publisher{
			ID:               p.ID,
			Registered:       p.Registered,
			UpholdVerified:   p.UpholdVerified,
			GeminiVerified:   p.GeminiVerified,
			BitflyerVerified: p.BitflyerVerified,
			UpholdAddress:    p.UpholdAddress,
			GeminiAddress:    p.GeminiAddress,
			BitflyerAddress:  p.BitflyerAddress,
		}
	}
	return out, nil
}
