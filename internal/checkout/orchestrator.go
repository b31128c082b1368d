package checkout

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/pkg/logger"
)

// PaymentsAPI операции платежного API, нужные чекауту.
type PaymentsAPI interface {
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	CreateSetupIntent(ctx context.Context) (*domain.SetupIntent, error)
	CreatePaymentIntent(ctx context.Context, recordID uuid.UUID, amount int64, currency string) (*domain.PaymentIntent, error)
	SavePaymentMethod(ctx context.Context, req SaveMethodRequest) (*domain.PaymentMethod, error)
}

// GatewayConfirmer подтверждение интентов в UI шлюза. Черный ящик:
// возвращает результат подтверждения, детали рендеринга не важны.
type GatewayConfirmer interface {
	// ConfirmSetup подтверждает setup intent и возвращает ID
	// созданного у провайдера платежного метода.
	ConfirmSetup(ctx context.Context, clientSecret string) (string, error)

	// ConfirmPayment подтверждает списание и возвращает ID интента.
	ConfirmPayment(ctx context.Context, clientSecret string) (string, error)
}

// Orchestrator исполняет машину состояний чекаута: прогоняет события
// через Reduce и выполняет возвращенные команды. Вся работа с
// состоянием сериализована мьютексом; автоматических ретраев нет,
// восстановление всегда инициирует пользователь.
type Orchestrator struct {
	api       PaymentsAPI
	gateway   GatewayConfirmer
	onSuccess func(intentID string)
	log       *logger.Logger

	mu    sync.Mutex
	state Checkout
}

// NewOrchestrator создает оркестратор для корзины на amount/currency.
// onSuccess вызывается после подтвержденной оплаты и может быть nil.
func NewOrchestrator(api PaymentsAPI, gateway GatewayConfirmer, amount int64, currency string, onSuccess func(intentID string), log *logger.Logger) *Orchestrator {
	state, _ := New(amount, currency)
	return &Orchestrator{
		api:       api,
		gateway:   gateway,
		onSuccess: onSuccess,
		log:       log,
		state:     state,
	}
}

// State возвращает текущий снимок состояния.
func (o *Orchestrator) State() Checkout {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start загружает сохраненные методы и доводит машину до первого
// шага, требующего участия пользователя.
func (o *Orchestrator) Start(ctx context.Context) Checkout {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state, _ = New(o.state.Amount, o.state.Currency)
	o.run(ctx, []Command{LoadMethods{}})
	return o.state
}

// SelectMethod выбирает сохраненный метод.
func (o *Orchestrator) SelectMethod(ctx context.Context, id uuid.UUID) Checkout {
	return o.Dispatch(ctx, MethodSelected{ID: id})
}

// AddNewMethod переключает чекаут на добавление нового метода.
func (o *Orchestrator) AddNewMethod(ctx context.Context) Checkout {
	return o.Dispatch(ctx, AddNewRequested{})
}

// Submit отправляет подтверждение текущего интента в шлюз.
func (o *Orchestrator) Submit(ctx context.Context) Checkout {
	return o.Dispatch(ctx, ConfirmSubmitted{})
}

// Retry повторяет последний логический шаг после ошибки.
func (o *Orchestrator) Retry(ctx context.Context) Checkout {
	return o.Dispatch(ctx, RetryRequested{})
}

// Dispatch прогоняет событие через машину состояний и выполняет
// вытекающие из него команды.
func (o *Orchestrator) Dispatch(ctx context.Context, e Event) Checkout {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dispatch(ctx, e)
	return o.state
}

func (o *Orchestrator) dispatch(ctx context.Context, e Event) {
	prev := o.state.State
	next, cmds := Reduce(o.state, e)
	o.state = next
	if next.State != prev {
		o.log.Debugw("Checkout transition", "from", prev.String(), "to", next.State.String())
	}
	o.run(ctx, cmds)
}

// run выполняет команды; каждая может породить новое событие, которое
// снова прогоняется через dispatch. После обработки машина
// допинывается до запроса интента, если шаг этого требует.
func (o *Orchestrator) run(ctx context.Context, cmds []Command) {
	for _, cmd := range cmds {
		switch c := cmd.(type) {

		case LoadMethods:
			methods, err := o.api.ListPaymentMethods(ctx)
			if err != nil {
				o.log.Errorw("Failed to load payment methods", "error", err)
				o.dispatch(ctx, LoadFailed{Err: err})
				continue
			}
			o.dispatch(ctx, MethodsLoaded{Methods: methods})

		case CreateIntent:
			o.runCreateIntent(ctx, c)

		case ConfirmIntent:
			o.runConfirm(ctx, c.Secret)

		case SaveMethod:
			saved, err := o.api.SavePaymentMethod(ctx, SaveMethodRequest{
				PaymentMethodID: c.PaymentMethodID,
				IsDefault:       &c.IsDefault,
			})
			if err != nil {
				o.log.Errorw("Failed to save payment method", "error", err)
				o.dispatch(ctx, SaveFailed{Err: err})
				continue
			}
			o.dispatch(ctx, MethodSaved{Record: *saved})

		case NotifySuccess:
			if o.onSuccess != nil {
				o.onSuccess(c.IntentID)
			}
		}
	}

	o.pump(ctx)
}

// pump автоматически запрашивает интент, когда машина стоит на шаге
// выбора или добавления метода без закешированного секрета.
func (o *Orchestrator) pump(ctx context.Context) {
	s := o.state
	switch {
	case s.State == StateSelectMethod && s.Secret == nil && s.SelectedID != uuid.Nil:
		o.dispatch(ctx, IntentRequested{})
	case s.State == StateAddNewMethod && s.Secret == nil:
		o.dispatch(ctx, IntentRequested{})
	}
}

func (o *Orchestrator) runCreateIntent(ctx context.Context, c CreateIntent) {
	switch c.Kind {
	case domain.IntentKindSetup:
		intent, err := o.api.CreateSetupIntent(ctx)
		if err != nil {
			o.log.Errorw("Failed to create setup intent", "error", err)
			o.dispatch(ctx, IntentFailed{Err: err})
			return
		}
		o.dispatch(ctx, IntentCreated{
			Kind:         domain.IntentKindSetup,
			ClientSecret: intent.ClientSecret,
		})
	case domain.IntentKindPayment:
		intent, err := o.api.CreatePaymentIntent(ctx, c.RecordID, c.Amount, c.Currency)
		if err != nil {
			o.log.Errorw("Failed to create payment intent", "error", err)
			o.dispatch(ctx, IntentFailed{Err: err})
			return
		}
		o.dispatch(ctx, IntentCreated{
			Kind:         domain.IntentKindPayment,
			ClientSecret: intent.ClientSecret,
			IntentID:     intent.PaymentIntentID,
		})
	}
}

func (o *Orchestrator) runConfirm(ctx context.Context, secret Secret) {
	switch secret.Kind {
	case domain.IntentKindSetup:
		paymentMethodID, err := o.gateway.ConfirmSetup(ctx, secret.ClientSecret)
		if err != nil {
			o.log.Errorw("Gateway setup confirmation failed", "error", err)
			o.dispatch(ctx, GatewayFailed{Err: err})
			return
		}
		o.dispatch(ctx, SetupConfirmed{PaymentMethodID: paymentMethodID})
	case domain.IntentKindPayment:
		intentID, err := o.gateway.ConfirmPayment(ctx, secret.ClientSecret)
		if err != nil {
			o.log.Errorw("Gateway payment confirmation failed", "error", err)
			o.dispatch(ctx, GatewayFailed{Err: err})
			return
		}
		o.dispatch(ctx, PaymentConfirmed{IntentID: intentID})
	}
}
