package ticket

import (
	"tickethub/pkg/config"
	"tickethub/pkg/middleware"
	"tickethub/pkg/repository"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("ticket.module",
	fx.Provide(
		repository.ProvideStore[Ticket],
		repository.ProvideStore[User],
		repository.ProvideStore[Event],
		repository.ProvideStore[Payment],
		repository.ProvideStore[PurchaseHistory],
		NewService,
	),
)

var Server = fx.Module("ticket.server",
	Module,
	fx.Invoke(RegisterRoutes),
)

func RegisterRoutes(router *gin.Engine, cfg *config.Config, enforcer *casbin.Enforcer, svc *Service) {
	g := router.Group("/api/v1/tickets", middleware.Authenticate(cfg))
	g.GET("", middleware.Authorize(enforcer, "tickets", "read"), svc.handleList)
	g.GET("/:id", middleware.Authorize(enforcer, "tickets", "read"), svc.handleGet)
}
