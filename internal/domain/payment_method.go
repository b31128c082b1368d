package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethodType тип платежного метода
type PaymentMethodType string

const (
	PaymentMethodTypeCard PaymentMethodType = "card"
)

// PaymentMethod представляет локальную запись о сохраненном платежном методе.
// Она связывает пользователя с платежным методом на стороне Stripe.
// Инвариант: у пользователя не более одной записи с IsDefault = true.
type PaymentMethod struct {
	ID                    uuid.UUID         `json:"id" db:"id"`
	UserID                string            `json:"user_id" db:"user_id"`
	StripePaymentMethodID string            `json:"stripe_payment_method_id" db:"stripe_payment_method_id"`
	Type                  PaymentMethodType `json:"type" db:"type"`
	Brand                 string            `json:"brand,omitempty" db:"brand"`
	Last4                 string            `json:"last4,omitempty" db:"last4"`
	IsDefault             bool              `json:"is_default" db:"is_default"`
	CreatedAt             time.Time         `json:"created_at" db:"created_at"`
}

// CardDetails метаданные карты, которые клиент может передать при сохранении.
// Если brand/last4 отсутствуют, сервис запрашивает их у шлюза.
type CardDetails struct {
	Brand string `json:"brand,omitempty"`
	Last4 string `json:"last4,omitempty"`
	Type  string `json:"type,omitempty"`
}
