package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LaithMimi/blendarchatbot2/config"
	"github.com/LaithMimi/blendarchatbot2/middleware"
)

// NewRouter builds the gin engine with middleware and every route
func NewRouter(h *Handler, resolver middleware.IdentityResolver, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.Recovery(h.metrics),
		middleware.RequestID(),
		middleware.CORS(cfg),
		middleware.Metrics(h.metrics),
		middleware.AccessLog(),
	)

	r.GET("/health", h.Liveness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.Auth(resolver)
	r.POST("/ask", auth, h.Ask)

	api := r.Group("/api")
	{
		api.GET("/healthcheck", h.Healthcheck)
		api.POST("/webhook/meshulam", h.MeshulamWebhook)

		user := api.Group("", auth)
		{
			user.POST("/ask", h.Ask)
			user.GET("/usage", h.Usage)
			user.GET("/subscription", h.GetSubscription)
			user.POST("/subscription/create-payment", h.CreatePayment)
			user.POST("/subscription/verify-payment", h.VerifyPayment)
			user.POST("/subscription/cancel", h.CancelSubscription)
			user.POST("/subscription/change-plan", h.ChangePlan)
		}

		admin := api.Group("/chatlogs", auth, middleware.RequireAdmin())
		{
			admin.GET("", h.ListChatLogs)
			admin.DELETE("", h.DeleteAllChatLogs)
			admin.GET("/:sessionId", h.GetChatLog)
			admin.DELETE("/:sessionId", h.DeleteChatLog)
		}
	}

	r.NoRoute(h.SPA)
	return r
}
