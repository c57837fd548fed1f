package revocation

import (
	"tickethub/pkg/config"
	"tickethub/pkg/middleware"
	"tickethub/pkg/repository"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("revocation.module",
	fx.Provide(
		repository.ProvideStore[Log],
		repository.ProvideStore[QueueItem],
		NewService,
	),
)

// Server wires the admin revocation endpoints into the API binary.
var Server = fx.Module("revocation.server",
	Module,
	fx.Invoke(RegisterRoutes),
)

// WorkerHost runs the queue drain inside the worker binary: the asynq
// handler plus the scheduler that feeds it.
var WorkerHost = fx.Module("revocation.worker",
	Module,
	fx.Provide(NewWorker, NewScheduler),
	fx.Invoke(RegisterTaskHandlers, StartScheduler),
)

func RegisterRoutes(router *gin.Engine, cfg *config.Config, enforcer *casbin.Enforcer, svc *Service) {
	g := router.Group("/api/v1/admin", middleware.Authenticate(cfg))
	g.POST("/tickets/:id/revoke", middleware.Authorize(enforcer, "revocations", "write"), svc.handleRevoke)
	g.POST("/revocations/batch", middleware.Authorize(enforcer, "revocations", "write"), svc.handleBatchRevoke)
	g.GET("/revocations/queue", middleware.Authorize(enforcer, "revocations", "write"), svc.handleListQueue)
}
