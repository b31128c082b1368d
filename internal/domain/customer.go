package domain

import "time"

// GatewayCustomer кеш идентификатора клиента Stripe в профиле пользователя.
// Запись создается лениво, не более одного раза на пользователя.
type GatewayCustomer struct {
	UserID           string    `json:"user_id" db:"user_id"`
	StripeCustomerID string    `json:"stripe_customer_id" db:"stripe_customer_id"`
	Email            string    `json:"email" db:"email"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
