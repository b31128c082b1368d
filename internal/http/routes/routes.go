package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopfront/payment-service/internal/app"
	"github.com/shopfront/payment-service/pkg/logger"
)

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(router *gin.Engine, application *app.App, registry *prometheus.Registry, log *logger.Logger) {
	router.Use(application.LoggerMiddleware)
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		// Публичные маршруты (без аутентификации)
		api.GET("/health", application.HealthHandler.Health)
		api.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

		// Защищенные маршруты (требуют аутентификации)
		auth := api.Group("")
		auth.Use(application.AuthMiddleware.RequireAuth())

		payments := auth.Group("/payments")
		{
			// Setup intent для сохранения нового метода
			payments.POST("/setup-intent", application.MethodsHandler.CreateSetupIntent)

			// Сохраненные платежные методы
			payments.POST("/methods", application.MethodsHandler.SavePaymentMethod)
			payments.GET("/methods", application.MethodsHandler.ListPaymentMethods)
			payments.DELETE("/methods/:id", application.MethodsHandler.DeletePaymentMethod)
			payments.POST("/methods/:id/default", application.MethodsHandler.SetDefaultPaymentMethod)

			// Payment intent на списание
			payments.POST("/intent", application.IntentHandler.CreatePaymentIntent)
		}
	}

	log.Infow("API routes successfully configured")
}
