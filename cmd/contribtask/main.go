// Command contribtask is the asynq worker process: it handles
// out-of-band, manually-triggered tasks (currently just a forced
// scheduler tick from the admin API) that don't belong on the daemon's
// own lifecycle.
package main

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/contribution"
	"github.com/brave-intl/bat-contribution-engine/internal/paymentmgr"
	"github.com/brave-intl/bat-contribution-engine/internal/privacypass"
	"github.com/brave-intl/bat-contribution-engine/internal/publishermgr"
	"github.com/brave-intl/bat-contribution-engine/internal/userprefs"
	pkgasynq "github.com/brave-intl/bat-contribution-engine/pkg/asynq"
	"github.com/brave-intl/bat-contribution-engine/pkg/config"
	"github.com/brave-intl/bat-contribution-engine/pkg/db"
	"github.com/brave-intl/bat-contribution-engine/pkg/featureflags"
	"github.com/brave-intl/bat-contribution-engine/pkg/hashistack/secretmanager"
	"github.com/brave-intl/bat-contribution-engine/pkg/logger"
	minioclient "github.com/brave-intl/bat-contribution-engine/pkg/minio"
	"github.com/brave-intl/bat-contribution-engine/pkg/redis"
)

func main() {
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		featureflags.Module,
		minioclient.Client,

		pkgasynq.Client,
		pkgasynq.Server,

		contribution.Module,
		paymentmgr.Module,
		publishermgr.Module,
		userprefs.Module,
		privacypass.Module,

		fx.Invoke(registerHandlers),

		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
	)

	app.Run()
}

func registerHandlers(mux *asynq.ServeMux, handler *contribution.SchedulerTickHandler) {
	mux.HandleFunc(pkgasynq.SchedulerTickTask, handler.ProcessTask)
}
