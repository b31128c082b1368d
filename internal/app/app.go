package app

import (
	"github.com/gin-gonic/gin"

	"github.com/shopfront/payment-service/internal/config"
	"github.com/shopfront/payment-service/internal/db"
	"github.com/shopfront/payment-service/internal/http/handlers"
	"github.com/shopfront/payment-service/internal/middleware"
	"github.com/shopfront/payment-service/internal/services"
	"github.com/shopfront/payment-service/pkg/logger"
)

// App представляет собой контейнер для всех компонентов приложения.
// Зависимости пробрасываются явно: никаких глобальных синглтонов.
type App struct {
	Config           *config.Config
	MethodsService   *services.PaymentMethodsService
	MethodsHandler   *handlers.PaymentMethodsHandler
	IntentHandler    *handlers.IntentHandler
	HealthHandler    *handlers.HealthHandler
	AuthMiddleware   *middleware.JWTMiddleware
	LoggerMiddleware gin.HandlerFunc
	Logger           *logger.Logger
}

// NewApp создает и инициализирует новый экземпляр приложения
func NewApp(cfg *config.Config, methodsService *services.PaymentMethodsService, dbClient *db.DBClient, log *logger.Logger) *App {
	methodsHandler := handlers.NewPaymentMethodsHandler(methodsService, log)
	intentHandler := handlers.NewIntentHandler(methodsService, log)
	healthHandler := handlers.NewHealthHandler(dbClient, log)

	validator := &middleware.DefaultTokenValidator{Secret: []byte(cfg.Auth.JWTSecret)}
	authMiddleware := middleware.NewJWTMiddleware(log, validator)

	return &App{
		Config:           cfg,
		MethodsService:   methodsService,
		MethodsHandler:   methodsHandler,
		IntentHandler:    intentHandler,
		HealthHandler:    healthHandler,
		AuthMiddleware:   authMiddleware,
		LoggerMiddleware: middleware.RequestLogger(log),
		Logger:           log,
	}
}
