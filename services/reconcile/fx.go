package reconcile

import (
	"tickethub/pkg/config"
	"tickethub/pkg/middleware"
	"tickethub/pkg/repository"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.module",
	fx.Provide(
		repository.ProvideStore[SyncReport],
		NewReconciler,
		NewVerifier,
	),
)

var Server = fx.Module("reconcile.server",
	Module,
	fx.Invoke(RegisterRoutes),
)

// WorkerHost exposes the sync pass as an asynq task in the worker binary.
var WorkerHost = fx.Module("reconcile.worker",
	Module,
	fx.Invoke(RegisterTaskHandlers),
)

func RegisterRoutes(router *gin.Engine, cfg *config.Config, enforcer *casbin.Enforcer, rec *Reconciler, ver *Verifier) {
	g := router.Group("/api/v1/admin/reconcile", middleware.Authenticate(cfg))
	g.POST("/sync", middleware.Authorize(enforcer, "reconcile", "run"), rec.handleSync)
	g.POST("/verify", middleware.Authorize(enforcer, "reconcile", "run"), ver.handleVerify)
}
