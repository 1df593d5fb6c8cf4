package contribution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
)

func newTestContributionJob(t *testing.T, gate *EligibilityGate, prefs *fakeUserPrefs, publishers *fakePublisherService,
	state ContributionState) (*ContributionJob, Context, *fakeStore) {
	ctx, _, wallet, tokens, store := newTestJobContextWithStore(t)
	ctx.UserPrefs = prefs
	ctx.Publishers = publishers
	wallet.connected = false // route through vg-tokens for a deterministic assertion surface

	for i, r := range state.Recurring {
		if i < state.RecurringIndex {
			continue
		}
		tokens.free = append(tokens.free, ContributionToken{
			ID: int64(i) + 1, Value: r.Amount, UnblindedToken: "tok", PublicKey: "pk", TokenType: string(TokenTypeVG),
		})
	}

	calc := NewCalculator(&fakeRandomizer{})
	tokensProc := NewTokenContributionProcessor(ctx, zap.NewNop())
	fee := NewContributionFeeProcessor(ctx, zap.NewNop())
	external := NewExternalContributionProcessor(ctx, zap.NewNop(), fee)
	router := NewRouter(ctx, zap.NewNop(), tokensProc, external)

	id, err := ctx.JobStore.InitializeJobState(context.Background(), contributionJobType, state)
	require.NoError(t, err)
	job := NewContributionJob(id, ctx, zap.NewNop(), calc, tokensProc, router, gate, state)
	return job, ctx, store
}

// A recurring contribution the client already opted into must not be
// silently dropped by an auto-contribute rollout gate that always refuses.
func TestContributionJobRecurringIgnoresEligibilityGate(t *testing.T) {
	gate, err := NewEligibilityGate(nil, "false", zap.NewNop())
	require.NoError(t, err)

	state := ContributionState{
		Recurring: []RecurringContribution{{PublisherID: "pub-1", Amount: VoteValue}},
	}
	job, _, store := newTestContributionJob(t, gate, &fakeUserPrefs{}, &fakePublisherService{}, state)

	job.Resume(context.Background())

	require.Equal(t, 1, store.savedCount())
	require.Equal(t, 1, job.State().RecurringIndex)
}

// A crash between two recurring contributions must resume at the
// checkpointed index, not replay the one already sent.
func TestContributionJobResumesFromRecurringCheckpoint(t *testing.T) {
	state := ContributionState{
		Recurring: []RecurringContribution{
			{PublisherID: "pub-1", Amount: VoteValue},
			{PublisherID: "pub-2", Amount: VoteValue},
		},
		RecurringIndex: 1,
	}
	job, _, store := newTestContributionJob(t, nil, &fakeUserPrefs{}, &fakePublisherService{}, state)

	job.Resume(context.Background())

	require.Equal(t, 1, store.savedCount())
	require.Equal(t, "pub-2", store.contributions[0].PublisherID)
	require.Equal(t, 2, job.State().RecurringIndex)
}

// Auto-contribute must only allocate votes to publishers the publisher
// service reports as registered.
func TestContributionJobAutoContributeFiltersUnregisteredPublishers(t *testing.T) {
	prefs := &fakeUserPrefs{enabled: true, amount: VoteValue}
	publishers := &fakePublisherService{publishers: map[string]Publisher{
		"pub-1": {ID: "pub-1", Registered: true},
	}}
	state := ContributionState{
		Activity:    []PublisherActivity{{PublisherID: "pub-1", Visits: 5, Duration: 120}, {PublisherID: "pub-2", Visits: 5, Duration: 120}},
		MinVisits:   1,
		MinDuration: 1,
	}
	job, ctx, _ := newTestContributionJob(t, nil, prefs, publishers, state)

	filtered := job.registeredActivity(context.Background(), state.Activity)

	require.Len(t, filtered, 1)
	require.Equal(t, "pub-1", filtered[0].PublisherID)
	_ = ctx
}

// Eligibility must be evaluated against the deployment's configured client
// identity, not a job's own generated id.
func TestContributionJobEligibleUsesConfiguredClientID(t *testing.T) {
	gate, err := NewEligibilityGate(nil, `client_id == "install-42"`, zap.NewNop())
	require.NoError(t, err)

	state := ContributionState{ClientID: "install-42"}
	job, _, _ := newTestContributionJob(t, gate, &fakeUserPrefs{}, &fakePublisherService{}, state)

	require.True(t, job.eligible(context.Background()))
}

func TestContributionJobFactoryHandlesInvalidState(t *testing.T) {
	ctx, _, _, _, _ := newTestJobContextWithStore(t)
	calc := NewCalculator(&fakeRandomizer{})
	tokensProc := NewTokenContributionProcessor(ctx, zap.NewNop())
	factory := ContributionJobFactory(ctx, zap.NewNop(), calc, tokensProc, nil, nil)

	rec := core.JobRecord{JobID: "contrib-1", JobType: contributionJobType, State: datatypes.JSON("not json")}
	resumable, err := factory(rec)
	require.NoError(t, err)

	invalid, ok := resumable.(contributionInvalidStateResumable)
	require.True(t, ok)
	require.Equal(t, "contrib-1", invalid.JobID())
}
