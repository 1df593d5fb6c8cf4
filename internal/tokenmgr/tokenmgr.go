// Package tokenmgr implements ContributionTokenManager: the transactional
// reservation discipline over the token table. A token is free, reserved by
// exactly one job, or redeemed - never two of these at once.
package tokenmgr

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/brave-intl/bat-contribution-engine/internal/contribution"
)

// ErrInsufficientTokens names the too-few-free-tokens condition. GormManager
// never returns it: a reservation that finds too few free tokens returns a
// short or empty hold instead, which callers treat as success-noop.
var ErrInsufficientTokens = errors.New("tokenmgr: insufficient free tokens")

// Manager is the TokenManager collaborator.
type Manager interface {
	ReserveByAmount(ctx context.Context, jobID string, tokenType contribution.TokenType, amount float64) (contribution.TokenHold, error)
	ReserveByIDs(ctx context.Context, jobID string, ids []int64) (contribution.TokenHold, error)
	InsertTokens(ctx context.Context, batch []contribution.ContributionToken, tokenType contribution.TokenType) error
	AvailableBalance(ctx context.Context, tokenType contribution.TokenType) (float64, error)
	MarkRedeemed(ctx context.Context, hold contribution.TokenHold, contributionID string) error
	ReleaseHold(ctx context.Context, hold contribution.TokenHold) error
}

// GormManager is the production Manager, backed by the same gorm handle as
// the ContributionStore.
type GormManager struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormManager(db *gorm.DB, logger *zap.Logger) *GormManager {
	return &GormManager{db: db, logger: logger}
}

// ReserveByAmount reserves round(amount/VoteValue) free tokens of tokenType,
// lowest id first, so the hold's value can differ from amount by up to half
// a VoteValue. It returns whatever it could reserve (which may total less
// than amount, or zero) rather than erroring, so callers can
// apply the success-noop policy themselves — mirroring the source, where an
// empty hold is a valid, checkable outcome rather than an exception.
func (m *GormManager) ReserveByAmount(ctx context.Context, jobID string, tokenType contribution.TokenType, amount float64) (contribution.TokenHold, error) {
	var hold contribution.TokenHold
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		needed := int(amount/contribution.VoteValue + 0.5)
		if needed <= 0 {
			return nil
		}
		var free []contribution.ContributionToken
		if err := tx.Where("token_type = ? AND reserved_for IS NULL AND redeemed_at IS NULL", string(tokenType)).
			Order("id asc").Limit(needed).Find(&free).Error; err != nil {
			return err
		}
		if len(free) == 0 {
			return nil
		}
		ids := make([]int64, len(free))
		for i, t := range free {
			ids[i] = t.ID
		}
		if err := tx.Model(&contribution.ContributionToken{}).
			Where("id IN ?", ids).Update("reserved_for", jobID).Error; err != nil {
			return err
		}
		hold = contribution.TokenHold{Tokens: free}
		return nil
	})
	return hold, err
}

// ReserveByIDs re-reserves an exact set of token ids, used when a job
// resumes from persisted state and must recover the identical hold it had
// before a restart.
func (m *GormManager) ReserveByIDs(ctx context.Context, jobID string, ids []int64) (contribution.TokenHold, error) {
	if len(ids) == 0 {
		return contribution.TokenHold{}, nil
	}
	var hold contribution.TokenHold
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tokens []contribution.ContributionToken
		if err := tx.Where("id IN ?", ids).Find(&tokens).Error; err != nil {
			return err
		}
		if err := tx.Model(&contribution.ContributionToken{}).
			Where("id IN ?", ids).Update("reserved_for", jobID).Error; err != nil {
			return err
		}
		hold = contribution.TokenHold{Tokens: tokens}
		return nil
	})
	return hold, err
}

func (m *GormManager) InsertTokens(ctx context.Context, batch []contribution.ContributionToken, tokenType contribution.TokenType) error {
	if len(batch) == 0 {
		return nil
	}
	for i := range batch {
		batch[i].TokenType = string(tokenType)
		batch[i].Value = contribution.VoteValue
	}
	return m.db.WithContext(ctx).Create(&batch).Error
}

func (m *GormManager) AvailableBalance(ctx context.Context, tokenType contribution.TokenType) (float64, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&contribution.ContributionToken{}).
		Where("token_type = ? AND reserved_for IS NULL AND redeemed_at IS NULL", string(tokenType)).
		Count(&count).Error
	return float64(count) * contribution.VoteValue, err
}

// MarkRedeemed permanently ties a hold's tokens to a contribution id,
// clearing their reservation.
func (m *GormManager) MarkRedeemed(ctx context.Context, hold contribution.TokenHold, contributionID string) error {
	if len(hold.Tokens) == 0 {
		return nil
	}
	ids := make([]int64, len(hold.Tokens))
	for i, t := range hold.Tokens {
		ids[i] = t.ID
	}
	return m.db.WithContext(ctx).Model(&contribution.ContributionToken{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"redeemed_at": time.Now().UTC(), "reserved_for": contributionID}).Error
}

// ReleaseHold drops a reservation without redeeming it, returning the
// tokens to the free pool.
func (m *GormManager) ReleaseHold(ctx context.Context, hold contribution.TokenHold) error {
	if len(hold.Tokens) == 0 {
		return nil
	}
	ids := make([]int64, len(hold.Tokens))
	for i, t := range hold.Tokens {
		ids[i] = t.ID
	}
	return m.db.WithContext(ctx).Model(&contribution.ContributionToken{}).
		Where("id IN ?", ids).Update("reserved_for", nil).Error
}
