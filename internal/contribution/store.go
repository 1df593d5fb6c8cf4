package contribution

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the ContributionStore collaborator.
// Every mutation returns success iff the SQL run succeeded.
type Store interface {
	AddPublisherVisit(ctx context.Context, publisherID string, durationSeconds float64) error
	GetPublisherActivity(ctx context.Context) ([]PublisherActivity, error)
	ResetPublisherActivity(ctx context.Context) error
	GetRecurringContributions(ctx context.Context) ([]RecurringContribution, error)
	SetRecurringContribution(ctx context.Context, publisherID string, amount float64) error
	DeleteRecurringContribution(ctx context.Context, publisherID string) error
	SavePendingContribution(ctx context.Context, publisherID string, amount float64) error
	GetPendingContributions(ctx context.Context) ([]PendingContribution, error)
	DeletePendingContribution(ctx context.Context, id int64) error
	PruneExpiredPendingContributions(ctx context.Context) (int64, error)
	SaveContribution(ctx context.Context, c Contribution) error
	GetLastScheduledContributionTime(ctx context.Context) (time.Time, error)
	SetLastScheduledContributionTime(ctx context.Context, t time.Time) error
}

// GormStore is the production Store, backed directly by gorm.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
	clock  func() time.Time
}

func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{db: db, logger: logger, clock: func() time.Time { return time.Now().UTC() }}
}

// AddPublisherVisit upserts the publisher row and increments its visit
// counters, matching contribution_store.cc's AddVisitJob: select-then
// update-or-insert. A newly inserted row starts with auto-contribute enabled.
func (s *GormStore) AddPublisherVisit(ctx context.Context, publisherID string, durationSeconds float64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row PublisherActivity
		err := tx.Where("publisher_id = ?", publisherID).First(&row).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			return tx.Create(&PublisherActivity{
				PublisherID:           publisherID,
				AutoContributeEnabled: true,
				Visits:                1,
				Duration:              durationSeconds,
			}).Error
		case err != nil:
			return err
		default:
			return tx.Model(&row).Updates(map[string]any{
				"visits":   row.Visits + 1,
				"duration": row.Duration + durationSeconds,
			}).Error
		}
	})
}

// GetPublisherActivity returns rows with duration>0 and ac_enabled.
func (s *GormStore) GetPublisherActivity(ctx context.Context) ([]PublisherActivity, error) {
	var rows []PublisherActivity
	err := s.db.WithContext(ctx).
		Where("duration > 0 AND auto_contribute_enabled = ?", true).
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) ResetPublisherActivity(ctx context.Context) error {
	return s.db.WithContext(ctx).Model(&PublisherActivity{}).
		Where("1 = 1").
		Updates(map[string]any{"visits": 0, "duration": 0}).Error
}

func (s *GormStore) GetRecurringContributions(ctx context.Context) ([]RecurringContribution, error) {
	var rows []PublisherActivity
	if err := s.db.WithContext(ctx).Where("recurring_amount > 0").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]RecurringContribution, 0, len(rows))
	for _, r := range rows {
		out = append(out, RecurringContribution{PublisherID: r.PublisherID, Amount: r.RecurringAmount})
	}
	return out, nil
}

// SetRecurringContribution upserts and clamps the amount to 0 (never
// negative).
func (s *GormStore) SetRecurringContribution(ctx context.Context, publisherID string, amount float64) error {
	if amount < 0 {
		amount = 0
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row PublisherActivity
		err := tx.Where("publisher_id = ?", publisherID).First(&row).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			return tx.Create(&PublisherActivity{PublisherID: publisherID, RecurringAmount: amount}).Error
		case err != nil:
			return err
		default:
			return tx.Model(&row).Update("recurring_amount", amount).Error
		}
	})
}

func (s *GormStore) DeleteRecurringContribution(ctx context.Context, publisherID string) error {
	return s.SetRecurringContribution(ctx, publisherID, 0)
}

func (s *GormStore) SavePendingContribution(ctx context.Context, publisherID string, amount float64) error {
	return s.db.WithContext(ctx).Create(&PendingContribution{
		PublisherID: publisherID,
		Amount:      amount,
		CreatedAt:   s.clock(),
	}).Error
}

// GetPendingContributions filters expired rows on read rather than sweeping
// them in the background, matching the original's literal behavior.
func (s *GormStore) GetPendingContributions(ctx context.Context) ([]PendingContribution, error) {
	cutoff := s.clock().Add(-PendingContributionTTL)
	var rows []PendingContribution
	err := s.db.WithContext(ctx).Where("created_at > ?", cutoff).Find(&rows).Error
	return rows, err
}

func (s *GormStore) DeletePendingContribution(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Delete(&PendingContribution{}, id).Error
}

// PruneExpiredPendingContributions deletes pending contributions older than
// PendingContributionTTL. Nothing in the engine calls it; reads already
// skip expired rows.
func (s *GormStore) PruneExpiredPendingContributions(ctx context.Context) (int64, error) {
	cutoff := s.clock().Add(-PendingContributionTTL)
	res := s.db.WithContext(ctx).Where("created_at <= ?", cutoff).Delete(&PendingContribution{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) SaveContribution(ctx context.Context, c Contribution) error {
	if c.PublisherID == "" || c.Amount <= 0 {
		return errInvalidContribution
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = s.clock()
	}
	return s.db.WithContext(ctx).Create(&c).Error
}

func (s *GormStore) GetLastScheduledContributionTime(ctx context.Context) (time.Time, error) {
	var entry DictionaryEntry
	err := s.db.WithContext(ctx).Where("key = ?", DictLastScheduledContribution).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		now := s.clock()
		if err := s.SetLastScheduledContributionTime(ctx, now); err != nil {
			return time.Time{}, err
		}
		return now, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, entry.Value)
}

func (s *GormStore) SetLastScheduledContributionTime(ctx context.Context, t time.Time) error {
	entry := DictionaryEntry{Key: DictLastScheduledContribution, Value: t.UTC().Format(time.RFC3339)}
	return s.db.WithContext(ctx).Save(&entry).Error
}

type storeError string

func (e storeError) Error() string { return string(e) }

const errInvalidContribution = storeError("contribution: publisher_id must be non-empty and amount > 0")
