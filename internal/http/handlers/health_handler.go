package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shopfront/payment-service/internal/db"
	"github.com/shopfront/payment-service/pkg/logger"
)

// HealthHandler проверка живости сервиса и его зависимостей.
type HealthHandler struct {
	dbClient *db.DBClient
	log      *logger.Logger
}

func NewHealthHandler(dbClient *db.DBClient, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		dbClient: dbClient,
		log:      log,
	}
}

// Health обрабатывает GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if h.dbClient != nil {
		if err := h.dbClient.Pool().Ping(ctx); err != nil {
			h.log.Errorw("Health check: database ping failed", "error", err)
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{"status": status})
}
