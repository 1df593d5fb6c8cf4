// Package adminapi exposes the operator-facing surface: liveness/readiness,
// job introspection, and a manual scheduler-tick trigger, gated by a casbin
// RBAC policy keyed off the caller's role header.
package adminapi

import (
	"context"
	"net/http"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/brave-intl/bat-contribution-engine/internal/core"
	pkgasynq "github.com/brave-intl/bat-contribution-engine/pkg/asynq"
	"github.com/brave-intl/bat-contribution-engine/pkg/config"
	"github.com/brave-intl/bat-contribution-engine/pkg/db/pagination"
	"github.com/brave-intl/bat-contribution-engine/pkg/errutil"
	"github.com/brave-intl/bat-contribution-engine/pkg/health"
	"github.com/brave-intl/bat-contribution-engine/pkg/middleware"
)

var Module = fx.Module("adminapi",
	fx.Provide(NewEnforcer, NewEngine),
	fx.Invoke(Run),
)

// RoleHeader carries the caller's role, set by whatever edge auth proxy
// terminates operator traffic in front of this service. There is no
// identity provider modeled in this repository, so the header is trusted
// as-is; a production deployment puts this behind mTLS or an authenticating
// gateway.
const RoleHeader = "X-Admin-Role"

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// NewEnforcer builds the casbin RBAC enforcer with a fixed, in-process
// policy: viewers can read health/job state, operators can additionally
// force a scheduler tick.
func NewEnforcer() (*casbin.Enforcer, error) {
	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	policies := [][]string{
		{"viewer", "health", "read"},
		{"viewer", "jobs", "read"},
		{"operator", "health", "read"},
		{"operator", "jobs", "read"},
		{"operator", "scheduler", "trigger"},
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p); err != nil {
			return nil, err
		}
	}
	if _, err := e.AddGroupingPolicy("operator", "viewer"); err != nil {
		return nil, err
	}
	return e, nil
}

func requireRole(e *casbin.Enforcer, obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetHeader(RoleHeader)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + RoleHeader})
			return
		}
		ok, err := e.Enforce(role, obj, act)
		if err != nil || !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not permitted"})
			return
		}
		c.Next()
	}
}

type engineParams struct {
	fx.In
	Enforcer    *casbin.Enforcer
	Health      health.HealthService
	Jobs        *core.JobStore
	AsynqClient *asynq.Client `optional:"true"`
}

func NewEngine(p engineParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", requireRole(p.Enforcer, "health", "read"), func(c *gin.Context) { p.Health.Liveness(c) })
	r.GET("/readyz", requireRole(p.Enforcer, "health", "read"), func(c *gin.Context) { p.Health.Readiness(c) })

	r.GET("/admin/jobs/:id", requireRole(p.Enforcer, "jobs", "read"), func(c *gin.Context) {
		rec, err := p.Jobs.Load(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.Error(errutil.NotFound("job not found", err, errutil.WithErr(err)))
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	r.GET("/admin/jobs", requireRole(p.Enforcer, "jobs", "read"), func(c *gin.Context) {
		jobType := c.Query("job_type")
		if jobType == "" {
			c.Error(errutil.BadRequest("job_type is required", nil))
			return
		}
		var page pagination.Pagination
		if err := c.ShouldBindQuery(&page); err != nil {
			c.Error(errutil.ValidationFailed("invalid pagination parameters", err, errutil.WithErr(err)))
			return
		}
		recs, info, err := p.Jobs.ListByType(c.Request.Context(), jobType, page)
		if err != nil {
			c.Error(errutil.Internal("failed to list jobs", err, errutil.WithErr(err)))
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": recs, "page": info})
	})

	r.POST("/admin/scheduler/tick", requireRole(p.Enforcer, "scheduler", "trigger"), func(c *gin.Context) {
		if p.AsynqClient == nil {
			c.Error(errutil.New(errutil.StatusServiceUnavailable, "asynq client not configured"))
			return
		}
		task := asynq.NewTask(pkgasynq.SchedulerTickTask, nil)
		if _, err := p.AsynqClient.EnqueueContext(c.Request.Context(), task); err != nil {
			c.Error(errutil.Internal("failed to enqueue scheduler tick", err, errutil.WithErr(err)))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "enqueued"})
	})

	return r
}

func Run(lc fx.Lifecycle, cfg *config.Config, engine *gin.Engine, logger *zap.Logger) {
	srv := &http.Server{Addr: cfg.Server.AdminAddr, Handler: engine}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("admin api server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
