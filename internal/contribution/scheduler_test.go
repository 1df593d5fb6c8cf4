package contribution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
)

// schedulerFakeStore layers scheduler-specific reads (recurring
// contributions, publisher activity, the last-scheduled cursor) on top of
// fakeStore's contribution bookkeeping. done is resolved by cycleDoneDelay
// once a tick has finished a full contribution cycle (cursor advanced,
// activity reset, LastRun saved), giving tests a core.Future to Wait() on
// instead of racing the cycle's background goroutines.
type schedulerFakeStore struct {
	*fakeStore
	recurring        []RecurringContribution
	activity         []PublisherActivity
	lastScheduled    time.Time
	activityWasReset bool
	cursorAdvancedTo time.Time
	done             *core.Future[struct{}]
}

func newSchedulerFakeStore() *schedulerFakeStore {
	return &schedulerFakeStore{fakeStore: &fakeStore{}, done: core.NewFuture[struct{}]()}
}

func (s *schedulerFakeStore) GetRecurringContributions(ctx context.Context) ([]RecurringContribution, error) {
	return s.recurring, nil
}

func (s *schedulerFakeStore) GetPublisherActivity(ctx context.Context) ([]PublisherActivity, error) {
	return s.activity, nil
}

func (s *schedulerFakeStore) ResetPublisherActivity(ctx context.Context) error {
	s.activityWasReset = true
	return nil
}

func (s *schedulerFakeStore) GetLastScheduledContributionTime(ctx context.Context) (time.Time, error) {
	return s.lastScheduled, nil
}

func (s *schedulerFakeStore) SetLastScheduledContributionTime(ctx context.Context, t time.Time) error {
	s.cursorAdvancedTo = t
	return nil
}

// cycleDoneDelay never resolves, like blockingDelay, but resolves done when
// asked to wait a full SchedulingInterval: the last step of a tick that ran
// a contribution cycle.
type cycleDoneDelay struct{ done *core.Future[struct{}] }

func (d cycleDoneDelay) Delay(ctx context.Context, dur time.Duration) *core.Future[struct{}] {
	if dur == SchedulingInterval {
		d.done.Resolve(struct{}{})
	}
	return core.NewFuture[struct{}]()
}

func (d cycleDoneDelay) RandomDelay(ctx context.Context, dur time.Duration) *core.Future[struct{}] {
	return core.NewFuture[struct{}]()
}

func newSchedulerTestJob(t *testing.T, store *schedulerFakeStore, prefs *fakeUserPrefs, now time.Time) *SchedulerJob {
	ctx, _, wallet, _, _ := newTestJobContextWithStore(t)
	ctx.Store = store
	ctx.UserPrefs = prefs
	ctx.Clock = fixedClock{now: now}
	ctx.DelayGenerator = cycleDoneDelay{done: store.done}
	wallet.connected = false // route through vg-tokens for a deterministic, local-only assertion surface

	calc := NewCalculator(&fakeRandomizer{})
	tokensProc := NewTokenContributionProcessor(ctx, zap.NewNop())
	ctx.Publishers = &fakePublisherService{publishers: map[string]Publisher{
		"pub-1": {ID: "pub-1", Registered: true},
	}}
	fee := NewContributionFeeProcessor(ctx, zap.NewNop())
	external := NewExternalContributionProcessor(ctx, zap.NewNop(), fee)
	router := NewRouter(ctx, zap.NewNop(), tokensProc, external)

	state := SchedulerState{}
	id, err := ctx.JobStore.InitializeJobState(context.Background(), schedulerJobType, state)
	require.NoError(t, err)
	return NewSchedulerJob(id, ctx, zap.NewNop(), calc, tokensProc, router, nil, 1, 1, state)
}

func TestSchedulerTickTooSoonReschedulesWithoutRunning(t *testing.T) {
	now := time.Now()
	store := newSchedulerFakeStore()
	store.lastScheduled = now.Add(-time.Hour) // well within SchedulingInterval
	job := newSchedulerTestJob(t, store, &fakeUserPrefs{}, now)

	job.Resume(context.Background())

	require.False(t, store.activityWasReset)
	require.True(t, store.cursorAdvancedTo.IsZero())
}

func TestSchedulerTickRunsRecurringContributions(t *testing.T) {
	now := time.Now()
	store := newSchedulerFakeStore()
	store.lastScheduled = now.Add(-25 * time.Hour) // past SchedulingInterval
	store.recurring = []RecurringContribution{{PublisherID: "pub-1", Amount: VoteValue}}
	job := newSchedulerTestJob(t, store, &fakeUserPrefs{}, now)

	job.Resume(context.Background())
	store.done.Wait()

	require.True(t, store.activityWasReset)
	require.Equal(t, now, store.cursorAdvancedTo)
	require.Equal(t, now, job.State().LastRun)
}

func TestSchedulerTickRunsAutoContributeWhenEnabledAndFunded(t *testing.T) {
	now := time.Now()
	store := newSchedulerFakeStore()
	store.lastScheduled = now.Add(-25 * time.Hour)
	store.activity = []PublisherActivity{{PublisherID: "pub-1", Visits: 5, Duration: 120}}
	prefs := &fakeUserPrefs{enabled: true, amount: VoteValue}
	job := newSchedulerTestJob(t, store, prefs, now)

	job.Resume(context.Background())
	store.done.Wait()

	require.True(t, store.activityWasReset)
	require.Equal(t, now, job.State().LastRun)
}

func TestSchedulerTickSkipsAutoContributeWhenDisabled(t *testing.T) {
	now := time.Now()
	store := newSchedulerFakeStore()
	store.lastScheduled = now.Add(-25 * time.Hour)
	store.activity = []PublisherActivity{{PublisherID: "pub-1", Visits: 5, Duration: 120}}
	prefs := &fakeUserPrefs{enabled: false, amount: VoteValue}
	job := newSchedulerTestJob(t, store, prefs, now)

	job.Resume(context.Background())
	store.done.Wait()

	require.Equal(t, now, job.State().LastRun)
}

func TestSchedulerJobFactoryHandlesInvalidState(t *testing.T) {
	ctx, _, _, _, _ := newTestJobContextWithStore(t)
	calc := NewCalculator(&fakeRandomizer{})
	tokensProc := NewTokenContributionProcessor(ctx, zap.NewNop())
	factory := SchedulerJobFactory(ctx, zap.NewNop(), calc, tokensProc, nil, nil, 1, 1)

	rec := core.JobRecord{JobID: "sched-1", JobType: schedulerJobType, State: datatypes.JSON("not json")}
	resumable, err := factory(rec)
	require.NoError(t, err)

	invalid, ok := resumable.(schedulerInvalidStateResumable)
	require.True(t, ok)
	require.Equal(t, "sched-1", invalid.JobID())
}
