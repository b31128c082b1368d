package domain

// IntentKind различает два вида транзакционных объектов шлюза.
type IntentKind string

const (
	// IntentKindSetup регистрация платежного метода без списания
	IntentKindSetup IntentKind = "setup"

	// IntentKindPayment списание конкретной суммы
	IntentKindPayment IntentKind = "payment"
)

// SetupIntent эфемерный объект шлюза для сохранения платежного метода.
// Не персистится; client secret одноразовый и живет одну попытку подтверждения.
type SetupIntent struct {
	ClientSecret     string `json:"client_secret"`
	StripeCustomerID string `json:"customer_id"`
}

// PaymentIntent эфемерный объект шлюза для списания суммы.
type PaymentIntent struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}
