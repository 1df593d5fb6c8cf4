// Command contributiond is the long-running contribution engine daemon: it
// hosts every resumable job type (PurchaseJob, ACJob, SchedulerJob), the
// scheduler's 24h loop, and the operator-facing admin/health surface.
package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	oteltrace "go.opentelemetry.io/otel/trace"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/contribution"
	"github.com/brave-intl/bat-contribution-engine/internal/paymentmgr"
	"github.com/brave-intl/bat-contribution-engine/internal/privacypass"
	"github.com/brave-intl/bat-contribution-engine/internal/publishermgr"
	"github.com/brave-intl/bat-contribution-engine/internal/userprefs"
	"github.com/brave-intl/bat-contribution-engine/pkg/adminapi"
	pkgasynq "github.com/brave-intl/bat-contribution-engine/pkg/asynq"
	"github.com/brave-intl/bat-contribution-engine/pkg/config"
	"github.com/brave-intl/bat-contribution-engine/pkg/db"
	"github.com/brave-intl/bat-contribution-engine/pkg/featureflags"
	"github.com/brave-intl/bat-contribution-engine/pkg/hashistack/secretmanager"
	"github.com/brave-intl/bat-contribution-engine/pkg/hashistack/servicediscover"
	"github.com/brave-intl/bat-contribution-engine/pkg/health"
	"github.com/brave-intl/bat-contribution-engine/pkg/httpapi"
	"github.com/brave-intl/bat-contribution-engine/pkg/logger"
	minioclient "github.com/brave-intl/bat-contribution-engine/pkg/minio"
	"github.com/brave-intl/bat-contribution-engine/pkg/otelcol"
	"github.com/brave-intl/bat-contribution-engine/pkg/otelcol/exporters"
	"github.com/brave-intl/bat-contribution-engine/pkg/redis"
	"github.com/brave-intl/bat-contribution-engine/pkg/server"
)

func main() {
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		featureflags.Module,
		health.Module,
		minioclient.Client,
		servicediscover.Module,
		pkgasynq.Client,

		fx.Provide(
			fx.Annotate(exporters.ProvideGrpc, fx.As(new(sdktrace.SpanExporter))),
			otelcol.NewMetricReader,
			fx.Annotate(otelcol.ProvideTrace, fx.As(new(oteltrace.TracerProvider))),
			fx.Annotate(otelcol.ProvideMetric, fx.As(new(otelmetric.MeterProvider))),
		),

		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
		httpapi.Module,

		contribution.Module,
		paymentmgr.Module,
		publishermgr.Module,
		userprefs.Module,
		privacypass.Module,

		adminapi.Module,

		fx.Invoke(contribution.StartEngine),

		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
	)

	app.Run()
}
