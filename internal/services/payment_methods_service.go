package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/internal/kafka"
	"github.com/shopfront/payment-service/internal/metrics"
	"github.com/shopfront/payment-service/internal/repository"
	"github.com/shopfront/payment-service/internal/stripe"
	"github.com/shopfront/payment-service/pkg/logger"
)

// MethodCache кеш списков платежных методов пользователя.
// Ошибки кеша не фатальны для бизнес-операций.
type MethodCache interface {
	CacheUserPaymentMethods(ctx context.Context, userID string, methods []domain.PaymentMethod) error
	GetCachedUserPaymentMethods(ctx context.Context, userID string) ([]domain.PaymentMethod, error)
	InvalidateUserPaymentMethods(ctx context.Context, userID string) error
}

// SavePaymentMethodInput данные для сохранения платежного метода,
// полученного после подтверждения setup intent на клиенте.
type SavePaymentMethodInput struct {
	StripePaymentMethodID string
	Type                  domain.PaymentMethodType
	Brand                 string
	Last4                 string
	// IsDefault явный запрос статуса default; nil - метод становится
	// default только если он первый у пользователя
	IsDefault *bool
}

// CreatePaymentIntentInput данные для создания платежа.
type CreatePaymentIntentInput struct {
	RecordID uuid.UUID // локальная запись сохраненного метода; Nil - метод выберет клиент
	Amount   int64     // в минимальных единицах валюты
	Currency string
}

// PaymentMethodsService оркестрирует жизненный цикл платежных методов:
// Stripe, локальное хранилище, кеш и события.
type PaymentMethodsService struct {
	customerRepo  repository.CustomerRepository
	methodRepo    repository.PaymentMethodRepository
	cache         MethodCache
	stripeClient  stripe.Client
	kafkaProducer kafka.Producer
	metrics       metrics.PaymentMetrics
	log           *logger.Logger
}

// NewPaymentMethodsService конструктор сервиса. kafkaProducer и cache
// могут быть nil: сервис продолжает работать без событий и кеша.
func NewPaymentMethodsService(
	customerRepo repository.CustomerRepository,
	methodRepo repository.PaymentMethodRepository,
	cache MethodCache,
	stripeClient stripe.Client,
	kafkaProducer kafka.Producer,
	paymentMetrics metrics.PaymentMetrics,
	log *logger.Logger,
) *PaymentMethodsService {
	if kafkaProducer == nil {
		log.Warnw("Kafka producer is nil, event publishing will be skipped")
	}
	return &PaymentMethodsService{
		customerRepo:  customerRepo,
		methodRepo:    methodRepo,
		cache:         cache,
		stripeClient:  stripeClient,
		kafkaProducer: kafkaProducer,
		metrics:       paymentMetrics,
		log:           log,
	}
}

// GetOrCreateCustomer возвращает Stripe customer ID для пользователя.
// Сначала проверяется локальная запись; если ее нет, клиент создается
// в Stripe и сохраняется локально. Ошибка локального сохранения не
// фатальна: ID уже существует в Stripe и будет найден заново по
// метаданным при следующем обращении.
func (s *PaymentMethodsService) GetOrCreateCustomer(ctx context.Context, userID, email string) (*domain.GatewayCustomer, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}

	customer, err := s.customerRepo.GetByUserID(ctx, userID)
	if err == nil {
		// Email в токене мог измениться с момента создания записи
		if email != "" && customer.Email != email {
			if updateErr := s.customerRepo.UpdateEmail(ctx, userID, email); updateErr != nil {
				s.log.Warnw("Failed to refresh customer email", "userID", userID, "error", updateErr)
			} else {
				customer.Email = email
			}
		}
		return customer, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.log.Errorw("Failed to look up customer", "userID", userID, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	stripeCustomerID, err := s.stripeClient.CreateCustomer(ctx, userID, email)
	if err != nil {
		s.trackGatewayError("create_customer", err)
		return nil, err
	}

	customer = &domain.GatewayCustomer{
		UserID:           userID,
		StripeCustomerID: stripeCustomerID,
		Email:            email,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if err := s.customerRepo.Create(ctx, customer); err != nil {
		// Клиент уже создан в Stripe; локальная запись подтянется позже
		s.log.Warnw("Failed to persist customer locally, continuing",
			"userID", userID, "stripeCustomerID", stripeCustomerID, "error", err)
	} else {
		s.log.Infow("Stripe customer created", "userID", userID, "stripeCustomerID", stripeCustomerID)
	}

	return customer, nil
}

// CreateSetupIntent создает setup intent для сохранения нового метода
// и возвращает client secret для подтверждения на клиенте.
func (s *PaymentMethodsService) CreateSetupIntent(ctx context.Context, userID, email string) (*domain.SetupIntent, error) {
	customer, err := s.GetOrCreateCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	clientSecret, err := s.stripeClient.CreateSetupIntent(ctx, customer.StripeCustomerID)
	if err != nil {
		s.trackGatewayError("create_setup_intent", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncIntentCreated(string(domain.IntentKindSetup))
	}
	s.log.Infow("Setup intent created", "userID", userID, "stripeCustomerID", customer.StripeCustomerID)

	return &domain.SetupIntent{
		ClientSecret:     clientSecret,
		StripeCustomerID: customer.StripeCustomerID,
	}, nil
}

// SavePaymentMethod привязывает подтвержденный платежный метод к клиенту
// Stripe и сохраняет запись локально. Первый метод пользователя
// автоматически становится методом по умолчанию.
func (s *PaymentMethodsService) SavePaymentMethod(ctx context.Context, userID, email string, input SavePaymentMethodInput) (*domain.PaymentMethod, error) {
	if input.StripePaymentMethodID == "" {
		return nil, fmt.Errorf("%w: payment method id is required", domain.ErrInvalidInput)
	}

	customer, err := s.GetOrCreateCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	if err := s.stripeClient.AttachPaymentMethod(ctx, customer.StripeCustomerID, input.StripePaymentMethodID); err != nil {
		s.trackGatewayError("attach_payment_method", err)
		return nil, err
	}

	// Setup intent с usage=off_session уже привязал метод при подтверждении;
	// детали карты подтягиваем из Stripe, если клиент их не передал
	brand, last4, methodType := input.Brand, input.Last4, input.Type
	if brand == "" || last4 == "" {
		if details, err := s.stripeClient.GetPaymentMethod(ctx, input.StripePaymentMethodID); err != nil {
			s.log.Warnw("Failed to fetch card details, saving without them",
				"paymentMethodID", input.StripePaymentMethodID, "error", err)
		} else {
			brand, last4 = details.Brand, details.Last4
			if methodType == "" {
				methodType = domain.PaymentMethodType(details.Type)
			}
		}
	}
	if methodType == "" {
		methodType = domain.PaymentMethodTypeCard
	}

	isDefault := false
	if input.IsDefault != nil {
		isDefault = *input.IsDefault
	} else {
		count, err := s.methodRepo.CountByUserID(ctx, userID)
		if err != nil {
			s.log.Errorw("Failed to count payment methods", "userID", userID, "error", err)
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		isDefault = count == 0
	}

	pm := &domain.PaymentMethod{
		ID:                    uuid.New(),
		UserID:                userID,
		StripePaymentMethodID: input.StripePaymentMethodID,
		Type:                  methodType,
		Brand:                 brand,
		Last4:                 last4,
		IsDefault:             isDefault,
	}

	if err := s.methodRepo.Create(ctx, pm); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.log.Warnw("Payment method already saved", "userID", userID, "paymentMethodID", input.StripePaymentMethodID)
			return nil, fmt.Errorf("%w: payment method already saved", domain.ErrInvalidInput)
		}
		s.log.Errorw("Failed to persist payment method", "userID", userID, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	s.invalidateCache(ctx, userID)
	if s.metrics != nil {
		s.metrics.IncMethodSaved(string(pm.Type))
	}
	s.publishMethodEvent(ctx, kafka.TopicPaymentMethodSaved, pm)

	s.log.Infow("Payment method saved", "userID", userID, "recordID", pm.ID, "isDefault", pm.IsDefault)
	return pm, nil
}

// ListPaymentMethods возвращает сохраненные методы пользователя,
// метод по умолчанию первым. Кеш best-effort.
func (s *PaymentMethodsService) ListPaymentMethods(ctx context.Context, userID string) ([]domain.PaymentMethod, error) {
	if s.cache != nil {
		cached, err := s.cache.GetCachedUserPaymentMethods(ctx, userID)
		if err != nil {
			s.log.Warnw("Cache lookup failed, falling back to database", "userID", userID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	methods, err := s.methodRepo.ListByUserID(ctx, userID)
	if err != nil {
		s.log.Errorw("Failed to list payment methods", "userID", userID, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if s.cache != nil {
		if err := s.cache.CacheUserPaymentMethods(ctx, userID, methods); err != nil {
			s.log.Warnw("Failed to cache payment methods", "userID", userID, "error", err)
		}
	}

	return methods, nil
}

// DeletePaymentMethod удаляет локальную запись и отвязывает метод в
// Stripe. Отвязка best-effort: ее ошибка не отменяет удаление записи.
// Статус default не переназначается на оставшиеся методы.
func (s *PaymentMethodsService) DeletePaymentMethod(ctx context.Context, userID string, recordID uuid.UUID) error {
	pm, err := s.methodRepo.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewNotFoundError("payment method", recordID.String())
		}
		s.log.Errorw("Failed to load payment method", "recordID", recordID, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if pm.UserID != userID {
		// Чужая запись наружу неотличима от отсутствующей
		s.log.Warnw("User attempted to delete foreign payment method",
			"requesterID", userID, "ownerID", pm.UserID, "recordID", recordID)
		return domain.NewNotFoundError("payment method", recordID.String())
	}

	if err := s.methodRepo.Delete(ctx, userID, recordID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NewNotFoundError("payment method", recordID.String())
		}
		s.log.Errorw("Failed to delete payment method", "recordID", recordID, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if err := s.stripeClient.DetachPaymentMethod(ctx, pm.StripePaymentMethodID); err != nil {
		// Запись уже удалена; висящую привязку в Stripe почистит фоновая сверка
		s.trackGatewayError("detach_payment_method", err)
		s.log.Warnw("Failed to detach payment method in Stripe, local record deleted",
			"paymentMethodID", pm.StripePaymentMethodID, "error", err)
	}

	s.invalidateCache(ctx, userID)
	if s.metrics != nil {
		s.metrics.IncMethodDeleted()
	}
	s.publishMethodEvent(ctx, kafka.TopicPaymentMethodDeleted, pm)

	s.log.Infow("Payment method deleted", "userID", userID, "recordID", recordID)
	return nil
}

// SetDefaultPaymentMethod делает запись методом по умолчанию.
// Смена атомарна: прежний default снимается и новый ставится
// в одной транзакции.
func (s *PaymentMethodsService) SetDefaultPaymentMethod(ctx context.Context, userID string, recordID uuid.UUID) (*domain.PaymentMethod, error) {
	pm, err := s.methodRepo.SetDefault(ctx, userID, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NewNotFoundError("payment method", recordID.String())
		}
		s.log.Errorw("Failed to set default payment method", "userID", userID, "recordID", recordID, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	s.invalidateCache(ctx, userID)
	s.log.Infow("Default payment method changed", "userID", userID, "recordID", recordID)
	return pm, nil
}

// CreatePaymentIntent создает payment intent на списание. Если указан
// сохраненный метод, его принадлежность пользователю проверяется до
// обращения к Stripe.
func (s *PaymentMethodsService) CreatePaymentIntent(ctx context.Context, userID, email string, input CreatePaymentIntentInput) (*domain.PaymentIntent, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}
	if input.Currency == "" {
		return nil, fmt.Errorf("%w: currency is required", domain.ErrInvalidInput)
	}

	var stripePaymentMethodID string
	if input.RecordID != uuid.Nil {
		pm, err := s.methodRepo.GetByID(ctx, input.RecordID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, domain.NewNotFoundError("payment method", input.RecordID.String())
			}
			s.log.Errorw("Failed to load payment method for intent", "recordID", input.RecordID, "error", err)
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if pm.UserID != userID {
			s.log.Warnw("User attempted to pay with foreign payment method",
				"requesterID", userID, "ownerID", pm.UserID, "recordID", input.RecordID)
			return nil, domain.NewNotFoundError("payment method", input.RecordID.String())
		}
		stripePaymentMethodID = pm.StripePaymentMethodID
	}

	customer, err := s.GetOrCreateCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	clientSecret, intentID, err := s.stripeClient.CreatePaymentIntent(ctx, customer.StripeCustomerID, input.Amount, input.Currency, stripePaymentMethodID)
	if err != nil {
		s.trackGatewayError("create_payment_intent", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncIntentCreated(string(domain.IntentKindPayment))
		s.metrics.ObserveIntentAmount(float64(input.Amount), input.Currency)
	}

	if s.kafkaProducer != nil {
		event := kafka.PaymentIntentEvent{
			UserID:          userID,
			PaymentIntentID: intentID,
			Amount:          input.Amount,
			Currency:        input.Currency,
			OccurredAt:      time.Now().UTC(),
		}
		go s.publishIntentEvent(context.WithoutCancel(ctx), event)
	}

	s.log.Infow("Payment intent created", "userID", userID, "intentID", intentID,
		"amount", input.Amount, "currency", input.Currency)

	return &domain.PaymentIntent{
		ClientSecret:    clientSecret,
		PaymentIntentID: intentID,
	}, nil
}

func (s *PaymentMethodsService) invalidateCache(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUserPaymentMethods(ctx, userID); err != nil {
		s.log.Warnw("Failed to invalidate payment methods cache", "userID", userID, "error", err)
	}
}

func (s *PaymentMethodsService) publishMethodEvent(ctx context.Context, topic string, pm *domain.PaymentMethod) {
	if s.kafkaProducer == nil {
		return
	}
	event := kafka.PaymentMethodEvent{
		UserID:                pm.UserID,
		RecordID:              pm.ID.String(),
		StripePaymentMethodID: pm.StripePaymentMethodID,
		IsDefault:             pm.IsDefault,
		OccurredAt:            time.Now().UTC(),
	}
	go func(ctx context.Context) {
		kafkaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.kafkaProducer.PublishPaymentMethodEvent(kafkaCtx, topic, event); err != nil {
			s.log.Errorw("Failed to publish payment method event", "topic", topic, "recordID", event.RecordID, "error", err)
		}
	}(context.WithoutCancel(ctx))
}

func (s *PaymentMethodsService) publishIntentEvent(ctx context.Context, event kafka.PaymentIntentEvent) {
	kafkaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.kafkaProducer.PublishPaymentIntentEvent(kafkaCtx, event); err != nil {
		s.log.Errorw("Failed to publish payment intent event", "intentID", event.PaymentIntentID, "error", err)
	}
}

func (s *PaymentMethodsService) trackGatewayError(operation string, err error) {
	if s.metrics != nil {
		s.metrics.IncGatewayError(operation)
	}
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		s.log.Errorw("Stripe API error", "operation", operation,
			"message", gwErr.Message, "statusCode", gwErr.StatusCode)
		return
	}
	s.log.Errorw("Gateway operation failed", "operation", operation, "error", err)
}
