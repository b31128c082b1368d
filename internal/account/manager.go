package account

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shopfront/payment-service/internal/checkout"
	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/pkg/logger"
)

// API операции платежного API, нужные экрану аккаунта.
type API interface {
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	CreateSetupIntent(ctx context.Context) (*domain.SetupIntent, error)
	SavePaymentMethod(ctx context.Context, req checkout.SaveMethodRequest) (*domain.PaymentMethod, error)
	DeletePaymentMethod(ctx context.Context, id uuid.UUID) error
	SetDefaultPaymentMethod(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error)
}

// ActionState независимый статус одного действия экрана.
type ActionState struct {
	Loading bool
	Err     string
}

// Manager экран управления сохраненными методами в аккаунте.
// В отличие от чекаута здесь нет машины состояний: каждое действие
// несет собственный флаг загрузки и ошибки.
type Manager struct {
	api     API
	gateway checkout.GatewayConfirmer
	log     *logger.Logger

	mu            sync.Mutex
	methods       []domain.PaymentMethod
	pendingDelete uuid.UUID

	listState    ActionState
	addState     ActionState
	deleteState  ActionState
	defaultState ActionState
}

// NewManager создает менеджер методов оплаты для аккаунта.
func NewManager(api API, gateway checkout.GatewayConfirmer, log *logger.Logger) *Manager {
	return &Manager{
		api:     api,
		gateway: gateway,
		log:     log,
	}
}

// Methods возвращает текущий список сохраненных методов.
func (m *Manager) Methods() []domain.PaymentMethod {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PaymentMethod, len(m.methods))
	copy(out, m.methods)
	return out
}

// ListState статус загрузки списка.
func (m *Manager) ListState() ActionState { return m.snapshot(&m.listState) }

// AddState статус добавления нового метода.
func (m *Manager) AddState() ActionState { return m.snapshot(&m.addState) }

// DeleteState статус удаления.
func (m *Manager) DeleteState() ActionState { return m.snapshot(&m.deleteState) }

// DefaultState статус смены метода по умолчанию.
func (m *Manager) DefaultState() ActionState { return m.snapshot(&m.defaultState) }

// Refresh перезагружает список методов с сервера.
func (m *Manager) Refresh(ctx context.Context) error {
	m.begin(&m.listState)
	methods, err := m.api.ListPaymentMethods(ctx)
	if err != nil {
		m.log.Errorw("Failed to load payment methods", "error", err)
		m.finish(&m.listState, err)
		return err
	}
	m.mu.Lock()
	m.methods = methods
	m.mu.Unlock()
	m.finish(&m.listState, nil)
	return nil
}

// AddNewMethod проводит полный цикл добавления: setup intent,
// подтверждение в UI шлюза, сохранение на сервере. Статус default
// определяет сервер (первый метод пользователя становится default).
func (m *Manager) AddNewMethod(ctx context.Context) (*domain.PaymentMethod, error) {
	m.begin(&m.addState)

	intent, err := m.api.CreateSetupIntent(ctx)
	if err != nil {
		m.log.Errorw("Failed to create setup intent", "error", err)
		m.finish(&m.addState, err)
		return nil, err
	}

	paymentMethodID, err := m.gateway.ConfirmSetup(ctx, intent.ClientSecret)
	if err != nil {
		m.log.Errorw("Gateway setup confirmation failed", "error", err)
		m.finish(&m.addState, err)
		return nil, err
	}

	saved, err := m.api.SavePaymentMethod(ctx, checkout.SaveMethodRequest{
		PaymentMethodID: paymentMethodID,
	})
	if err != nil {
		m.log.Errorw("Failed to save payment method", "error", err)
		m.finish(&m.addState, err)
		return nil, err
	}

	m.mu.Lock()
	m.methods = append(m.methods, *saved)
	m.mu.Unlock()
	m.finish(&m.addState, nil)
	return saved, nil
}

// RequestDelete помечает метод к удалению; само удаление выполняет
// ConfirmDelete после подтверждения пользователем.
func (m *Manager) RequestDelete(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingDelete = id
}

// CancelDelete снимает отметку удаления.
func (m *Manager) CancelDelete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingDelete = uuid.Nil
}

// PendingDelete возвращает метод, ожидающий подтверждения удаления.
func (m *Manager) PendingDelete() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingDelete
}

// ConfirmDelete удаляет ранее отмеченный метод.
func (m *Manager) ConfirmDelete(ctx context.Context) error {
	m.mu.Lock()
	id := m.pendingDelete
	m.mu.Unlock()
	if id == uuid.Nil {
		return nil
	}

	m.begin(&m.deleteState)
	if err := m.api.DeletePaymentMethod(ctx, id); err != nil {
		m.log.Errorw("Failed to delete payment method", "recordID", id, "error", err)
		m.finish(&m.deleteState, err)
		return err
	}

	m.mu.Lock()
	m.pendingDelete = uuid.Nil
	kept := m.methods[:0]
	for _, pm := range m.methods {
		if pm.ID != id {
			kept = append(kept, pm)
		}
	}
	m.methods = kept
	m.mu.Unlock()
	m.finish(&m.deleteState, nil)
	return nil
}

// SetDefault делает метод методом по умолчанию.
func (m *Manager) SetDefault(ctx context.Context, id uuid.UUID) error {
	m.begin(&m.defaultState)
	updated, err := m.api.SetDefaultPaymentMethod(ctx, id)
	if err != nil {
		m.log.Errorw("Failed to set default payment method", "recordID", id, "error", err)
		m.finish(&m.defaultState, err)
		return err
	}

	m.mu.Lock()
	for i := range m.methods {
		m.methods[i].IsDefault = m.methods[i].ID == updated.ID
	}
	m.mu.Unlock()
	m.finish(&m.defaultState, nil)
	return nil
}

func (m *Manager) begin(state *ActionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.Loading = true
	state.Err = ""
}

func (m *Manager) finish(state *ActionState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.Loading = false
	if err != nil {
		state.Err = err.Error()
	}
}

func (m *Manager) snapshot(state *ActionState) ActionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *state
}
