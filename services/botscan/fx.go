package botscan

import (
	"tickethub/pkg/config"
	"tickethub/pkg/middleware"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("botscan.module",
	fx.Provide(NewService),
)

var Server = fx.Module("botscan.server",
	Module,
	fx.Invoke(RegisterRoutes),
)

func RegisterRoutes(router *gin.Engine, cfg *config.Config, enforcer *casbin.Enforcer, svc *Service) {
	g := router.Group("/api/v1/admin/botscan", middleware.Authenticate(cfg))
	g.POST("", middleware.Authorize(enforcer, "botscan", "run"), svc.handleScan)
}
