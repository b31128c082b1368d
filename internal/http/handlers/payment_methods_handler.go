package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/internal/services"
	"github.com/shopfront/payment-service/pkg/logger"
	"github.com/shopfront/payment-service/pkg/req"
	"github.com/shopfront/payment-service/pkg/res"
)

// PaymentMethodsHandler обрабатывает HTTP запросы жизненного цикла
// платежных методов.
type PaymentMethodsHandler struct {
	service *services.PaymentMethodsService
	log     *logger.Logger
}

// NewPaymentMethodsHandler создает новый экземпляр PaymentMethodsHandler.
func NewPaymentMethodsHandler(service *services.PaymentMethodsService, log *logger.Logger) *PaymentMethodsHandler {
	return &PaymentMethodsHandler{
		service: service,
		log:     log,
	}
}

// --- DTO ---

type SavePaymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
	Brand           string `json:"brand"`
	Last4           string `json:"last4" validate:"omitempty,len=4,numeric"`
	Type            string `json:"type" validate:"omitempty,oneof=card"`
	IsDefault       *bool  `json:"is_default"`
}

type PaymentMethodResponse struct {
	ID              string `json:"id"`
	PaymentMethodID string `json:"payment_method_id"`
	Type            string `json:"type"`
	Brand           string `json:"brand"`
	Last4           string `json:"last4"`
	IsDefault       bool   `json:"is_default"`
	CreatedAt       string `json:"created_at"`
}

type ListPaymentMethodsResponse struct {
	Methods []PaymentMethodResponse `json:"methods"`
}

func toPaymentMethodResponse(pm *domain.PaymentMethod) PaymentMethodResponse {
	return PaymentMethodResponse{
		ID:              pm.ID.String(),
		PaymentMethodID: pm.StripePaymentMethodID,
		Type:            string(pm.Type),
		Brand:           pm.Brand,
		Last4:           pm.Last4,
		IsDefault:       pm.IsDefault,
		CreatedAt:       pm.CreatedAt.Format(time.RFC3339),
	}
}

// --- Обработчики ---

// CreateSetupIntent обрабатывает POST /payments/setup-intent
func (h *PaymentMethodsHandler) CreateSetupIntent(c *gin.Context) {
	ctx := c.Request.Context()
	userID, email, ok := identityFromContext(c, h.log)
	if !ok {
		return
	}

	intent, err := h.service.CreateSetupIntent(ctx, userID, email)
	if err != nil {
		h.log.Errorw("Failed to create setup intent", "userID", userID, "error", err)
		writeServiceError(c, err, "Failed to create setup intent")
		return
	}

	res.JsonResponse(c.Writer, intent, http.StatusCreated)
}

// SavePaymentMethod обрабатывает POST /payments/methods
func (h *PaymentMethodsHandler) SavePaymentMethod(c *gin.Context) {
	ctx := c.Request.Context()
	userID, email, ok := identityFromContext(c, h.log)
	if !ok {
		return
	}

	body, err := req.HandleBody[SavePaymentMethodRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	pm, err := h.service.SavePaymentMethod(ctx, userID, email, services.SavePaymentMethodInput{
		StripePaymentMethodID: body.PaymentMethodID,
		Type:                  domain.PaymentMethodType(body.Type),
		Brand:                 body.Brand,
		Last4:                 body.Last4,
		IsDefault:             body.IsDefault,
	})
	if err != nil {
		h.log.Errorw("Failed to save payment method", "userID", userID, "error", err)
		writeServiceError(c, err, "Failed to save payment method")
		return
	}

	res.JsonResponse(c.Writer, toPaymentMethodResponse(pm), http.StatusCreated)
}

// ListPaymentMethods обрабатывает GET /payments/methods
func (h *PaymentMethodsHandler) ListPaymentMethods(c *gin.Context) {
	ctx := c.Request.Context()
	userID, _, ok := identityFromContext(c, h.log)
	if !ok {
		return
	}

	methods, err := h.service.ListPaymentMethods(ctx, userID)
	if err != nil {
		h.log.Errorw("Failed to list payment methods", "userID", userID, "error", err)
		writeServiceError(c, err, "Failed to retrieve payment methods")
		return
	}

	response := ListPaymentMethodsResponse{Methods: make([]PaymentMethodResponse, 0, len(methods))}
	for i := range methods {
		response.Methods = append(response.Methods, toPaymentMethodResponse(&methods[i]))
	}

	res.JsonResponse(c.Writer, response, http.StatusOK)
}

// DeletePaymentMethod обрабатывает DELETE /payments/methods/:id
func (h *PaymentMethodsHandler) DeletePaymentMethod(c *gin.Context) {
	ctx := c.Request.Context()
	userID, _, ok := identityFromContext(c, h.log)
	if !ok {
		return
	}

	recordID, ok := h.recordID(c)
	if !ok {
		return
	}

	if err := h.service.DeletePaymentMethod(ctx, userID, recordID); err != nil {
		h.log.Warnw("Failed to delete payment method", "userID", userID, "recordID", recordID, "error", err)
		writeServiceError(c, err, "Failed to delete payment method")
		return
	}

	res.JsonResponse(c.Writer, map[string]string{"message": "Payment method deleted"}, http.StatusOK)
}

// SetDefaultPaymentMethod обрабатывает POST /payments/methods/:id/default
func (h *PaymentMethodsHandler) SetDefaultPaymentMethod(c *gin.Context) {
	ctx := c.Request.Context()
	userID, _, ok := identityFromContext(c, h.log)
	if !ok {
		return
	}

	recordID, ok := h.recordID(c)
	if !ok {
		return
	}

	pm, err := h.service.SetDefaultPaymentMethod(ctx, userID, recordID)
	if err != nil {
		h.log.Warnw("Failed to set default payment method", "userID", userID, "recordID", recordID, "error", err)
		writeServiceError(c, err, "Failed to set default payment method")
		return
	}

	res.JsonResponse(c.Writer, toPaymentMethodResponse(pm), http.StatusOK)
}

// --- Вспомогательные методы ---

func (h *PaymentMethodsHandler) recordID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.log.Warnw("Invalid payment method id in path", "id", raw)
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Invalid payment method id"}, http.StatusBadRequest)
		c.Abort()
		return uuid.Nil, false
	}
	return id, true
}
