package contribution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/testutil"
)

func newTestStore(t *testing.T) *GormStore {
	db := testutil.NewTestDB(t, &PublisherActivity{}, &PendingContribution{}, &Contribution{}, &DictionaryEntry{})
	return NewGormStore(db, zap.NewNop())
}

func TestAddPublisherVisitCreatesThenIncrements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddPublisherVisit(ctx, "pub-1", 30))
	require.NoError(t, store.AddPublisherVisit(ctx, "pub-1", 10))

	rows, err := store.GetPublisherActivity(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 2, rows[0].Visits)
	require.InDelta(t, 40, rows[0].Duration, 1e-9)
}

func TestGetPublisherActivityFiltersZeroDuration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetRecurringContribution(ctx, "no-visits", 1))

	rows, err := store.GetPublisherActivity(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestSetRecurringContributionClampsNegative(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetRecurringContribution(ctx, "pub-1", -5))

	rows, err := store.GetRecurringContributions(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestSetAndDeleteRecurringContribution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetRecurringContribution(ctx, "pub-1", 5))
	rows, err := store.GetRecurringContributions(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 5.0, rows[0].Amount)

	require.NoError(t, store.DeleteRecurringContribution(ctx, "pub-1"))
	rows, err = store.GetRecurringContributions(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestPendingContributionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePendingContribution(ctx, "pub-1", 1.5))

	rows, err := store.GetPendingContributions(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, store.DeletePendingContribution(ctx, rows[0].ID))

	rows, err = store.GetPendingContributions(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestGetPendingContributionsExcludesExpired(t *testing.T) {
	store := newTestStore(t)
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return fixed }
	ctx := context.Background()

	require.NoError(t, store.SavePendingContribution(ctx, "pub-1", 1))

	store.clock = func() time.Time { return fixed.Add(91 * 24 * time.Hour) }
	rows, err := store.GetPendingContributions(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)

	n, err := store.PruneExpiredPendingContributions(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSaveContributionRejectsInvalid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SaveContribution(ctx, Contribution{PublisherID: "", Amount: 1})
	require.ErrorIs(t, err, errInvalidContribution)

	err = store.SaveContribution(ctx, Contribution{PublisherID: "pub-1", Amount: 0})
	require.ErrorIs(t, err, errInvalidContribution)
}

func TestSaveContributionSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SaveContribution(ctx, Contribution{ID: "c1", PublisherID: "pub-1", Amount: 0.25})
	require.NoError(t, err)
}

func TestLastScheduledContributionTimeInitializesOnFirstRead(t *testing.T) {
	store := newTestStore(t)
	fixed := time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return fixed }
	ctx := context.Background()

	got, err := store.GetLastScheduledContributionTime(ctx)
	require.NoError(t, err)
	require.True(t, got.Equal(fixed))
}

func TestSetLastScheduledContributionTimeRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	want := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)

	require.NoError(t, store.SetLastScheduledContributionTime(ctx, want))

	got, err := store.GetLastScheduledContributionTime(ctx)
	require.NoError(t, err)
	require.True(t, got.Equal(want))
}
