package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shopfront/payment-service/internal/services"
	"github.com/shopfront/payment-service/pkg/logger"
	"github.com/shopfront/payment-service/pkg/req"
	"github.com/shopfront/payment-service/pkg/res"
)

// IntentHandler обрабатывает создание payment intent для оплаты заказа.
type IntentHandler struct {
	service *services.PaymentMethodsService
	log     *logger.Logger
}

func NewIntentHandler(service *services.PaymentMethodsService, log *logger.Logger) *IntentHandler {
	return &IntentHandler{
		service: service,
		log:     log,
	}
}

type CreatePaymentIntentRequest struct {
	// RecordID локальной записи сохраненного метода; пусто - метод
	// выберет клиент при подтверждении
	PaymentMethodRecordID string `json:"payment_method_record_id" validate:"omitempty,uuid4"`
	Amount                int64  `json:"amount" validate:"required,gt=0"`
	Currency              string `json:"currency" validate:"required,iso4217"`
}

// CreatePaymentIntent обрабатывает POST /payments/intent
func (h *IntentHandler) CreatePaymentIntent(c *gin.Context) {
	ctx := c.Request.Context()

	userID, email, ok := identityFromContext(c, h.log)
	if !ok {
		return
	}

	body, err := req.HandleBody[CreatePaymentIntentRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	input := services.CreatePaymentIntentInput{
		Amount:   body.Amount,
		Currency: body.Currency,
	}
	if body.PaymentMethodRecordID != "" {
		recordID, err := uuid.Parse(body.PaymentMethodRecordID)
		if err != nil {
			res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Invalid payment method record id"}, http.StatusUnprocessableEntity)
			c.Abort()
			return
		}
		input.RecordID = recordID
	}

	intent, err := h.service.CreatePaymentIntent(ctx, userID, email, input)
	if err != nil {
		h.log.Errorw("Failed to create payment intent", "userID", userID, "error", err)
		writeServiceError(c, err, "Failed to create payment intent")
		return
	}

	res.JsonResponse(c.Writer, intent, http.StatusCreated)
}
