// Package userprefs implements contribution.UserPrefs from static
// deployment-wide defaults sourced from pkg/config. A per-client preference
// store (letting each browser profile opt in/out and set its own amount) is
// a real product surface but has no source of truth modeled anywhere in
// this repository yet, so this adapter is the floor every SchedulerJob tick
// falls back to.
package userprefs

import (
	"context"

	"go.uber.org/fx"

	"github.com/brave-intl/bat-contribution-engine/internal/contribution"
	"github.com/brave-intl/bat-contribution-engine/pkg/config"
)

// Module provides contribution.UserPrefs, kept separate from
// contribution.Module for the same import-direction reason as paymentmgr.
var Module = fx.Module("userprefs",
	fx.Provide(fx.Annotate(NewStaticPrefs, fx.As(new(contribution.UserPrefs)))),
)

// StaticPrefs is the production contribution.UserPrefs while no per-client
// preference store exists.
type StaticPrefs struct {
	enabled     bool
	minVisits   int
	minDuration float64
	amount      float64
}

func NewStaticPrefs(cfg *config.Config) *StaticPrefs {
	return &StaticPrefs{
		enabled:     cfg.AutoContribute.DefaultEnabled,
		minVisits:   cfg.AutoContribute.DefaultMinVisits,
		minDuration: cfg.AutoContribute.DefaultMinDuration,
		amount:      cfg.AutoContribute.DefaultAmount,
	}
}

func (p *StaticPrefs) AutoContributeEnabled(ctx context.Context) (bool, error) { return p.enabled, nil }

func (p *StaticPrefs) AutoContributeMinVisits(ctx context.Context) (int, error) {
	return p.minVisits, nil
}

func (p *StaticPrefs) AutoContributeMinDuration(ctx context.Context) (float64, error) {
	return p.minDuration, nil
}

func (p *StaticPrefs) AutoContributeAmount(ctx context.Context) (float64, error) {
	return p.amount, nil
}
