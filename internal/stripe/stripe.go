package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/pkg/logger"
)

const (
	// Ключ метаданных для связи Stripe Customer с UserID магазина
	metadataUserIDKey = "user_id"
)

// Client определяет методы для взаимодействия со Stripe API.
// Внутренних ретраев нет: любая ошибка провайдера поднимается
// наверх как generic gateway error, восстановление инициирует пользователь.
type Client interface {
	// CreateCustomer создает нового клиента в Stripe и возвращает его Stripe ID.
	CreateCustomer(ctx context.Context, userID, email string) (string, error)

	// CreateSetupIntent создает транзакционный объект для сохранения
	// платежного метода без списания. Возвращает client secret.
	CreateSetupIntent(ctx context.Context, stripeCustomerID string) (string, error)

	// CreatePaymentIntent создает транзакционный объект для списания amount
	// (в минимальных единицах валюты). paymentMethodID опционален: если пуст,
	// метод выберет клиент при подтверждении.
	CreatePaymentIntent(ctx context.Context, stripeCustomerID string, amount int64, currency, paymentMethodID string) (clientSecret, intentID string, err error)

	// AttachPaymentMethod привязывает платежный метод к клиенту.
	// Ошибка привязки поднимается к вызывающему.
	AttachPaymentMethod(ctx context.Context, stripeCustomerID, paymentMethodID string) error

	// DetachPaymentMethod отвязывает платежный метод. "Уже отвязан"
	// не считается ошибкой.
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error

	// GetPaymentMethod возвращает метаданные карты (brand, last4, type).
	GetPaymentMethod(ctx context.Context, paymentMethodID string) (*domain.CardDetails, error)
}

// stripeClient реализует интерфейс Client.
type stripeClient struct {
	client *client.API
	log    *logger.Logger
}

// NewStripeClient создает новый экземпляр клиента Stripe.
func NewStripeClient(apiKey string, log *logger.Logger) Client {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &stripeClient{
		client: sc,
		log:    log,
	}
}

// CreateCustomer создает нового клиента в Stripe.
func (sc *stripeClient) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			metadataUserIDKey: userID,
		},
	}
	params.Context = ctx

	cus, err := sc.client.Customers.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCustomer", err)
		return "", wrapStripeError("CreateCustomer", err)
	}

	sc.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID, "userID", userID)
	return cus.ID, nil
}

// CreateSetupIntent создает setup intent для сохранения карты.
func (sc *stripeClient) CreateSetupIntent(ctx context.Context, stripeCustomerID string) (string, error) {
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(stripeCustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Usage:              stripe.String("off_session"),
	}
	params.Context = ctx

	si, err := sc.client.SetupIntents.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateSetupIntent", err)
		return "", wrapStripeError("CreateSetupIntent", err)
	}

	sc.log.Infow("Stripe setup intent created", "setupIntentID", si.ID, "stripeCustomerID", stripeCustomerID)
	return si.ClientSecret, nil
}

// CreatePaymentIntent создает payment intent на указанную сумму.
func (sc *stripeClient) CreatePaymentIntent(ctx context.Context, stripeCustomerID string, amount int64, currency, paymentMethodID string) (string, string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(currency),
		Customer:           stripe.String(stripeCustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx

	if paymentMethodID != "" {
		params.PaymentMethod = stripe.String(paymentMethodID)
	}

	pi, err := sc.client.PaymentIntents.New(params)
	if err != nil {
		logStripeError(sc.log, "CreatePaymentIntent", err)
		return "", "", wrapStripeError("CreatePaymentIntent", err)
	}

	sc.log.Infow("Stripe payment intent created",
		"paymentIntentID", pi.ID,
		"stripeCustomerID", stripeCustomerID,
		"amount", amount,
		"currency", currency,
	)
	return pi.ClientSecret, pi.ID, nil
}

// AttachPaymentMethod привязывает платежный метод к клиенту Stripe.
func (sc *stripeClient) AttachPaymentMethod(ctx context.Context, stripeCustomerID, paymentMethodID string) error {
	params := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(stripeCustomerID),
	}
	params.Context = ctx

	_, err := sc.client.PaymentMethods.Attach(paymentMethodID, params)
	if err != nil {
		logStripeError(sc.log, "AttachPaymentMethod", err)
		return wrapStripeError("AttachPaymentMethod", err)
	}

	sc.log.Debugw("Stripe payment method attached", "paymentMethodID", paymentMethodID, "stripeCustomerID", stripeCustomerID)
	return nil
}

// DetachPaymentMethod отвязывает платежный метод от его клиента.
func (sc *stripeClient) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx

	_, err := sc.client.PaymentMethods.Detach(paymentMethodID, params)
	if err != nil {
		// Уже отвязанный или отсутствующий метод не считаем ошибкой
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			sc.log.Warnw("Attempted to detach already detached/missing payment method", "paymentMethodID", paymentMethodID)
			return nil
		}
		logStripeError(sc.log, "DetachPaymentMethod", err)
		return wrapStripeError("DetachPaymentMethod", err)
	}

	sc.log.Infow("Stripe payment method detached", "paymentMethodID", paymentMethodID)
	return nil
}

// GetPaymentMethod возвращает метаданные карты платежного метода.
func (sc *stripeClient) GetPaymentMethod(ctx context.Context, paymentMethodID string) (*domain.CardDetails, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := sc.client.PaymentMethods.Get(paymentMethodID, params)
	if err != nil {
		logStripeError(sc.log, "GetPaymentMethod", err)
		return nil, wrapStripeError("GetPaymentMethod", err)
	}

	details := &domain.CardDetails{
		Type: string(pm.Type),
	}
	if pm.Card != nil {
		details.Brand = string(pm.Card.Brand)
		details.Last4 = pm.Card.Last4
	}

	return details, nil
}

// wrapStripeError приводит ошибку Stripe к доменной ошибке шлюза.
func wrapStripeError(operation string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return domain.NewGatewayError(operation, stripeErr.Msg, stripeErr.HTTPStatusCode, err)
	}
	return domain.NewGatewayError(operation, fmt.Sprintf("stripe request failed: %v", err), 0, err)
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
