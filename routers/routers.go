package routers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/controllers"
	"github.com/fintrackhq/fintrack/controllers/connections"
	"github.com/fintrackhq/fintrack/controllers/webhooks"
	"github.com/fintrackhq/fintrack/routers/middleware"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/services/reconciler"
)

// Routes assembles the HTTP surface: catalog reads, the authenticated
// connection lifecycle, and the per-provider callback endpoints.
func Routes(db *sql.DB, registry *providers.Registry, recon *reconciler.Service) *gin.Engine {
	serverConf := config.ServerConfig()
	if !serverConf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RateLimitMiddleware())

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ctrl := controllers.NewController(db)
	connCtrl := connections.NewConnectionController(db, registry)

	v1 := router.Group("/v1")
	v1.GET("/providers", ctrl.GetProviders)
	v1.GET("/institutions", ctrl.GetInstitutions)

	authorized := v1.Group("", middleware.JWTMiddleware)
	authorized.POST("/connections/register", connCtrl.Register)
	authorized.POST("/connections", connCtrl.Connect)
	authorized.POST("/connections/reconnect", connCtrl.Reconnect)
	authorized.POST("/connections/complete", connCtrl.Complete)
	authorized.POST("/connections/refresh", connCtrl.Refresh)
	authorized.POST("/connections/deregister", connCtrl.Deregister)
	authorized.GET("/accounts", connCtrl.GetAccounts)
	authorized.GET("/accounts/:id/transactions", connCtrl.GetAccountTransactions)

	callbacks := router.Group("/callback/providers")
	callbacks.POST("/snaptrade", webhooks.NewSnapTradeController(recon, config.SnapTradeConfig()).Handle)
	callbacks.POST("/saltedge", webhooks.NewSaltEdgeController(recon, config.SaltEdgeConfig(), serverConf).Handle)
	callbacks.POST("/enablebanking", webhooks.NewEnableBankingController(recon, config.EnableBankingConfig()).Handle)
	callbacks.POST("/tink", webhooks.NewTinkController(recon, config.TinkConfig()).Handle)

	return router
}
