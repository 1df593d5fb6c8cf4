package contribution

import (
	"context"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/go-resty/resty/v2"
	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
	"github.com/brave-intl/bat-contribution-engine/internal/tokenmgr"
	"github.com/brave-intl/bat-contribution-engine/internal/walletmgr"
	"github.com/brave-intl/bat-contribution-engine/pkg/config"
	"github.com/brave-intl/bat-contribution-engine/pkg/featureflags"
)

// Module wires the entire contribution engine: the job runtime, every
// resumable job type, and the collaborators they share. Mirrors the
// teacher's fx.Module-per-package convention.
var Module = fx.Module("contribution",
	fx.Provide(
		core.NewJobStore,
		provideCoreContext,
		fx.Annotate(tokenmgr.NewGormManager, fx.As(new(tokenmgr.Manager))),
		provideWalletConfig,
		provideRestyClient,
		fx.Annotate(walletmgr.NewRestyManager, fx.As(new(walletmgr.Manager))),
		fx.Annotate(NewGormStore, fx.As(new(Store))),
		NewCalculator,
		provideKafkaProducer,
		provideEventPublisher,
		provideContext,
		NewTokenContributionProcessor,
		NewContributionFeeProcessor,
		NewExternalContributionProcessor,
		NewRouter,
		provideReceiptArchiver,
		provideEligibilityGate,
		NewSchedulerTickHandler,
	),
	fx.Invoke(migrateSchema, registerJobFactories),
)

// migrateSchema runs AutoMigrate for every model this package owns. The
// teacher pack has no standalone migration tool, so each domain module
// migrates its own tables at boot, matching internal/testutil's use of
// AutoMigrate for test fixtures.
func migrateSchema(db *gorm.DB) error {
	return db.AutoMigrate(
		&core.JobRecord{},
		&Contribution{},
		&ContributionToken{},
		&PublisherActivity{},
		&PendingContribution{},
		&DictionaryEntry{},
	)
}

func provideCoreContext(jobs *core.JobStore) core.Context {
	randomizer := core.SystemRandomizer{}
	return core.Context{
		Clock:          core.SystemClock{},
		Randomizer:     randomizer,
		DelayGenerator: core.NewTimerDelayGenerator(randomizer),
		JobStore:       jobs,
	}
}

// provideKafkaProducer returns nil when no broker address is configured;
// KafkaEventPublisher and NoopEventPublisher both handle a nil producer.
func provideKafkaProducer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*kafka.Producer, error) {
	if cfg.Kafka.Addrs == "" {
		return nil, nil
	}
	producer, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": cfg.Kafka.Addrs})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			producer.Close()
			return nil
		},
	})
	return producer, nil
}

func provideWalletConfig(cfg *config.Config) walletmgr.Config {
	return walletmgr.Config{
		UpholdBaseURL: cfg.ExternalWallet.UpholdBaseURL,
		GeminiBaseURL: cfg.ExternalWallet.GeminiBaseURL,
		FeeAddress: map[ExternalWalletProvider]string{
			ProviderUphold: cfg.ExternalWallet.UpholdFeeAddress,
			ProviderGemini: cfg.ExternalWallet.GeminiFeeAddress,
		},
		OrderAddress: map[ExternalWalletProvider]string{
			ProviderUphold: cfg.ExternalWallet.UpholdOrderAddress,
			ProviderGemini: cfg.ExternalWallet.GeminiOrderAddress,
		},
	}
}

func provideRestyClient() *resty.Client {
	return resty.New().SetTimeout(15 * time.Second)
}

func provideEventPublisher(producer *kafka.Producer, logger *zap.Logger) EventPublisher {
	if producer == nil {
		return NoopEventPublisher{}
	}
	return NewKafkaEventPublisher(producer, logger)
}

// contextParams collects every collaborator Context bundles. Payment,
// Publishers, PrivacyPass, and UserPrefs are provided by adapters outside
// this package (they call brokered HTTP/gRPC services not modeled here);
// leaving one unresolved is a wiring error surfaced at fx graph
// construction, which is the correct place to catch a missing adapter.
type contextParams struct {
	fx.In
	Core           core.Context
	Store          Store
	TokenManager   tokenmgr.Manager
	ExternalWallet walletmgr.Manager
	Payment        PaymentService
	Publishers     PublisherService
	PrivacyPass    PrivacyPass
	UserPrefs      UserPrefs
	Events         EventPublisher
	Config         *config.Config
}

func provideContext(p contextParams) Context {
	return Context{
		Context:        p.Core,
		ClientID:       p.Config.Platform.ID,
		Store:          p.Store,
		TokenManager:   p.TokenManager,
		ExternalWallet: p.ExternalWallet,
		Payment:        p.Payment,
		Publishers:     p.Publishers,
		PrivacyPass:    p.PrivacyPass,
		UserPrefs:      p.UserPrefs,
		Events:         p.Events,
	}
}

type gateParams struct {
	fx.In
	Flags  featureflags.FeatureFlag
	Config *config.Config
	Logger *zap.Logger
}

func provideEligibilityGate(p gateParams) (*EligibilityGate, error) {
	expr := p.Config.AccessControl.Policy
	if expr == "" {
		expr = "true"
	}
	return NewEligibilityGate(p.Flags, expr, p.Logger)
}

type minioParams struct {
	fx.In
	Client *minio.Client `optional:"true"`
	Config *config.Config
	Logger *zap.Logger
}

func provideReceiptArchiver(p minioParams) *ReceiptArchiver {
	return NewReceiptArchiver(p.Client, p.Config.Minio.BucketName, p.Logger)
}

// minVisitsDefault/minDurationDefault match the source's kMinVisits=1,
// kMinVisitDuration=8s auto-contribute eligibility floor. Deployments that
// need this configurable can promote it into config.Config later; nothing
// nothing calls for that yet.
const (
	minVisitsDefault   = 1
	minDurationDefault = 8.0
)

func registerJobFactories(ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor,
	router *Router, gate *EligibilityGate, receipts *ReceiptArchiver) {
	ctx.JobStore.Register(purchaseJobType, PurchaseJobFactory(ctx, logger, receipts))
	ctx.JobStore.Register(acJobType, ACJobFactory(ctx, logger, calc, tokens))
	ctx.JobStore.Register(contributionJobType, ContributionJobFactory(ctx, logger, calc, tokens, router, gate))
	ctx.JobStore.Register(schedulerJobType, SchedulerJobFactory(ctx, logger, calc, tokens, router, gate, minVisitsDefault, minDurationDefault))
}

// StartEngine resumes every pending PurchaseJob and ACJob and starts the
// scheduler's 24h loop. Deliberately not part of Module's own fx.Invoke
// list: only the long-running daemon process should call this (via
// fx.Invoke(contribution.StartEngine)) — a task-worker process that only
// wants SchedulerTickHandler must not also boot a second, competing
// scheduler loop against the same job_state table.
func StartEngine(lc fx.Lifecycle, ctx Context, logger *zap.Logger, calc *Calculator, tokens *TokenContributionProcessor,
	router *Router, gate *EligibilityGate) {
	lc.Append(fx.Hook{
		OnStart: func(gctx context.Context) error {
			if err := ctx.JobStore.ResumeJobs(gctx, purchaseJobType); err != nil {
				logger.Error("failed to resume purchase jobs", zap.Error(err))
			}
			if err := ctx.JobStore.ResumeJobs(gctx, acJobType); err != nil {
				logger.Error("failed to resume auto contribute jobs", zap.Error(err))
			}
			if err := ctx.JobStore.ResumeJobs(gctx, contributionJobType); err != nil {
				logger.Error("failed to resume contribution jobs", zap.Error(err))
			}
			return StartScheduler(gctx, ctx, logger, calc, tokens, router, gate, minVisitsDefault, minDurationDefault)
		},
	})
}
