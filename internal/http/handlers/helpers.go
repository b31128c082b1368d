package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/internal/middleware"
	"github.com/shopfront/payment-service/pkg/logger"
	"github.com/shopfront/payment-service/pkg/res"
)

// identityFromContext достает идентификатор и email пользователя,
// положенные auth middleware. При их отсутствии пишет 500 и завершает
// обработку.
func identityFromContext(c *gin.Context, log *logger.Logger) (userID, email string, ok bool) {
	userID, ok = middleware.UserIDFromContext(c)
	if !ok {
		// Недостижимо при корректно подключенном auth middleware
		log.Errorw("UserID not found in context after auth middleware")
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Internal server error"}, http.StatusInternalServerError)
		c.Abort()
		return "", "", false
	}
	if v, exists := c.Get(string(middleware.ContextUserEmailKey)); exists {
		email, _ = v.(string)
	}
	return userID, email, true
}

// writeServiceError переводит ошибки сервисного слоя в HTTP статусы.
func writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: err.Error()}, http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrNotFound):
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Payment method not found"}, http.StatusNotFound)
	case errors.Is(err, domain.ErrGateway):
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Payment provider error"}, http.StatusBadGateway)
	default:
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: fallback}, http.StatusInternalServerError)
	}
	c.Abort()
}
