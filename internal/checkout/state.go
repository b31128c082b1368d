package checkout

import (
	"github.com/google/uuid"

	"github.com/shopfront/payment-service/internal/domain"
)

// State шаг оплаты в чекауте.
type State int

const (
	StateLoadingMethods State = iota
	StateSelectMethod
	StateAddNewMethod
	StateCreatingIntent
	StateIntentReady
	StateProcessingGateway
	StateSavingNewMethod
	StateError
)

var stateNames = []string{
	"LOADING_METHODS",
	"SELECT_METHOD",
	"ADD_NEW_METHOD",
	"CREATING_INTENT",
	"INTENT_READY",
	"PROCESSING_GATEWAY",
	"SAVING_NEW_METHOD",
	"ERROR_STATE",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Secret client secret транзакционного объекта шлюза. Секрет
// одноразовый и привязан к конкретной паре метод/сумма.
type Secret struct {
	Kind         domain.IntentKind
	ClientSecret string
}

// Checkout снимок состояния оплаты. Значение неизменяемое: Reduce
// возвращает новый снимок, не трогая старый.
type Checkout struct {
	State      State
	Methods    []domain.PaymentMethod
	SelectedID uuid.UUID
	Secret     *Secret

	// Amount и Currency текущей корзины (в минимальных единицах валюты)
	Amount   int64
	Currency string

	// IntentID созданного payment intent (пуст для setup)
	IntentID string

	// HadNoMethods у пользователя не было сохраненных методов на момент
	// загрузки; определяет isDefault при сохранении нового метода
	HadNoMethods bool

	// MidAdd пользователь находится в процессе добавления нового метода
	MidAdd bool

	// ErrMsg и RetryTo заполнены только в StateError
	ErrMsg  string
	RetryTo State
}

// Event входное событие машины состояний.
type Event interface{ isEvent() }

type (
	// MethodsLoaded список сохраненных методов получен.
	MethodsLoaded struct{ Methods []domain.PaymentMethod }
	// LoadFailed загрузка списка не удалась.
	LoadFailed struct{ Err error }
	// MethodSelected пользователь выбрал сохраненный метод.
	MethodSelected struct{ ID uuid.UUID }
	// AddNewRequested пользователь хочет добавить новый метод.
	AddNewRequested struct{}
	// IntentRequested шаг готов запросить транзакционный объект.
	IntentRequested struct{}
	// IntentCreated сервер вернул client secret.
	IntentCreated struct {
		Kind         domain.IntentKind
		ClientSecret string
		IntentID     string
	}
	// IntentFailed создание интента не удалось.
	IntentFailed struct{ Err error }
	// ConfirmSubmitted пользователь отправил форму подтверждения шлюза.
	ConfirmSubmitted struct{}
	// SetupConfirmed шлюз подтвердил setup intent и вернул ID метода.
	SetupConfirmed struct{ PaymentMethodID string }
	// PaymentConfirmed шлюз подтвердил списание.
	PaymentConfirmed struct{ IntentID string }
	// GatewayFailed подтверждение на шлюзе не удалось.
	GatewayFailed struct{ Err error }
	// MethodSaved новый метод сохранен на сервере.
	MethodSaved struct{ Record domain.PaymentMethod }
	// SaveFailed сохранение метода не удалось.
	SaveFailed struct{ Err error }
	// RetryRequested пользователь нажал Retry в состоянии ошибки.
	RetryRequested struct{}
)

func (MethodsLoaded) isEvent()    {}
func (LoadFailed) isEvent()       {}
func (MethodSelected) isEvent()   {}
func (AddNewRequested) isEvent()  {}
func (IntentRequested) isEvent()  {}
func (IntentCreated) isEvent()    {}
func (IntentFailed) isEvent()     {}
func (ConfirmSubmitted) isEvent() {}
func (SetupConfirmed) isEvent()   {}
func (PaymentConfirmed) isEvent() {}
func (GatewayFailed) isEvent()    {}
func (MethodSaved) isEvent()      {}
func (SaveFailed) isEvent()       {}
func (RetryRequested) isEvent()   {}

// Command побочный эффект, который исполнитель должен выполнить после
// перехода. Сам Reduce эффектов не производит.
type Command interface{ isCommand() }

type (
	// LoadMethods запросить список сохраненных методов.
	LoadMethods struct{}
	// CreateIntent запросить setup или payment intent.
	CreateIntent struct {
		Kind     domain.IntentKind
		RecordID uuid.UUID // только для payment
		Amount   int64
		Currency string
	}
	// ConfirmIntent открыть подтверждение шлюза для секрета.
	ConfirmIntent struct{ Secret Secret }
	// SaveMethod сохранить подтвержденный метод на сервере.
	SaveMethod struct {
		PaymentMethodID string
		IsDefault       bool
	}
	// NotifySuccess сообщить вызывающему об успешной оплате.
	NotifySuccess struct{ IntentID string }
)

func (LoadMethods) isCommand()   {}
func (CreateIntent) isCommand()  {}
func (ConfirmIntent) isCommand() {}
func (SaveMethod) isCommand()    {}
func (NotifySuccess) isCommand() {}

// New создает начальное состояние чекаута для корзины и команду
// загрузки сохраненных методов.
func New(amount int64, currency string) (Checkout, []Command) {
	return Checkout{
		State:    StateLoadingMethods,
		Amount:   amount,
		Currency: currency,
	}, []Command{LoadMethods{}}
}

// Reduce чистая функция перехода: (состояние, событие) -> (новое
// состояние, команды). События, не имеющие смысла в текущем состоянии,
// игнорируются.
func Reduce(c Checkout, e Event) (Checkout, []Command) {
	switch ev := e.(type) {

	case MethodsLoaded:
		if c.State != StateLoadingMethods {
			return c, nil
		}
		c.Methods = ev.Methods
		c.Secret = nil
		c.IntentID = ""
		if len(ev.Methods) == 0 {
			c.HadNoMethods = true
			c.MidAdd = true
			c.State = StateAddNewMethod
			return c, nil
		}
		c.HadNoMethods = false
		c.SelectedID = pickInitialMethod(ev.Methods)
		c.State = StateSelectMethod
		return c, nil

	case LoadFailed:
		if c.State != StateLoadingMethods {
			return c, nil
		}
		return fail(c, ev.Err, StateLoadingMethods), nil

	case MethodSelected:
		if c.State != StateSelectMethod && c.State != StateAddNewMethod && c.State != StateIntentReady {
			return c, nil
		}
		if !c.hasMethod(ev.ID) {
			return c, nil
		}
		if ev.ID == c.SelectedID && c.Secret != nil && c.Secret.Kind == domain.IntentKindPayment {
			// Тот же метод с живым платежным секретом: повторный интент
			// не нужен. Setup-секрет списание не покрывает
			return c, nil
		}
		// Секрет привязан к паре метод/сумма: смена метода его гасит.
		// Выбор сохраненного метода также выводит из добавления нового
		c.SelectedID = ev.ID
		c.Secret = nil
		c.IntentID = ""
		c.MidAdd = false
		c.State = StateSelectMethod
		return c, nil

	case AddNewRequested:
		if c.State != StateSelectMethod && c.State != StateIntentReady {
			return c, nil
		}
		c.SelectedID = uuid.Nil
		c.Secret = nil
		c.IntentID = ""
		c.MidAdd = true
		c.State = StateAddNewMethod
		return c, nil

	case IntentRequested:
		// Повторный запрос при закешированном секрете запрещен:
		// это и есть защита от дублирования интентов
		if c.Secret != nil {
			if c.State == StateSelectMethod || c.State == StateAddNewMethod {
				c.State = StateIntentReady
			}
			return c, nil
		}
		switch c.State {
		case StateSelectMethod:
			if c.SelectedID == uuid.Nil {
				return c, nil
			}
			c.State = StateCreatingIntent
			return c, []Command{CreateIntent{
				Kind:     domain.IntentKindPayment,
				RecordID: c.SelectedID,
				Amount:   c.Amount,
				Currency: c.Currency,
			}}
		case StateAddNewMethod:
			c.State = StateCreatingIntent
			return c, []Command{CreateIntent{Kind: domain.IntentKindSetup}}
		default:
			return c, nil
		}

	case IntentCreated:
		if c.State != StateCreatingIntent {
			return c, nil
		}
		c.Secret = &Secret{Kind: ev.Kind, ClientSecret: ev.ClientSecret}
		c.IntentID = ev.IntentID
		c.State = StateIntentReady
		return c, nil

	case IntentFailed:
		if c.State != StateCreatingIntent {
			return c, nil
		}
		return fail(c, ev.Err, retryTarget(c)), nil

	case ConfirmSubmitted:
		if c.State != StateIntentReady || c.Secret == nil {
			return c, nil
		}
		secret := *c.Secret
		c.State = StateProcessingGateway
		return c, []Command{ConfirmIntent{Secret: secret}}

	case SetupConfirmed:
		if c.State != StateProcessingGateway {
			return c, nil
		}
		c.State = StateSavingNewMethod
		return c, []Command{SaveMethod{
			PaymentMethodID: ev.PaymentMethodID,
			IsDefault:       c.HadNoMethods,
		}}

	case PaymentConfirmed:
		if c.State != StateProcessingGateway {
			return c, nil
		}
		// Оплата завершена: уведомляем вызывающего и сбрасываем машину.
		// Перезагрузку методов инициирует следующий Start, чтобы не
		// создавать интент для уже оплаченной корзины
		next, _ := New(c.Amount, c.Currency)
		return next, []Command{NotifySuccess{IntentID: ev.IntentID}}

	case GatewayFailed:
		if c.State != StateProcessingGateway {
			return c, nil
		}
		return fail(c, ev.Err, retryTarget(c)), nil

	case MethodSaved:
		if c.State != StateSavingNewMethod {
			return c, nil
		}
		c.Methods = append(append([]domain.PaymentMethod(nil), c.Methods...), ev.Record)
		c.SelectedID = ev.Record.ID
		c.Secret = nil
		c.IntentID = ""
		c.HadNoMethods = false
		c.MidAdd = false
		c.State = StateSelectMethod
		return c, nil

	case SaveFailed:
		if c.State != StateSavingNewMethod {
			return c, nil
		}
		return fail(c, ev.Err, retryTarget(c)), nil

	case RetryRequested:
		if c.State != StateError {
			return c, nil
		}
		c.Secret = nil
		c.IntentID = ""
		c.ErrMsg = ""
		c.State = c.RetryTo
		c.RetryTo = 0
		if c.State == StateLoadingMethods {
			return c, []Command{LoadMethods{}}
		}
		return c, nil
	}

	return c, nil
}

func (c Checkout) hasMethod(id uuid.UUID) bool {
	for i := range c.Methods {
		if c.Methods[i].ID == id {
			return true
		}
	}
	return false
}

// pickInitialMethod выбирает метод по умолчанию, иначе первый.
func pickInitialMethod(methods []domain.PaymentMethod) uuid.UUID {
	for i := range methods {
		if methods[i].IsDefault {
			return methods[i].ID
		}
	}
	return methods[0].ID
}

// retryTarget определяет шаг, на который вернет Retry: добавление
// метода, если пользователь был в нем или методов нет, иначе выбор.
func retryTarget(c Checkout) State {
	if c.HadNoMethods || c.MidAdd {
		return StateAddNewMethod
	}
	return StateSelectMethod
}

func fail(c Checkout, err error, retryTo State) Checkout {
	c.Secret = nil
	c.IntentID = ""
	if err != nil {
		c.ErrMsg = err.Error()
	} else {
		c.ErrMsg = "unknown error"
	}
	c.RetryTo = retryTo
	c.State = StateError
	return c
}
