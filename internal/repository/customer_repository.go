package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/pkg/logger"
)

// CustomerRepository кеш идентификаторов клиентов Stripe по пользователям.
type CustomerRepository interface {
	Create(ctx context.Context, customer *domain.GatewayCustomer) error
	GetByUserID(ctx context.Context, userID string) (*domain.GatewayCustomer, error)
	UpdateEmail(ctx context.Context, userID, email string) error
}

type postgresCustomerRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewCustomerRepository создает PostgreSQL реализацию репозитория.
func NewCustomerRepository(db *sqlx.DB, log *logger.Logger) CustomerRepository {
	return &postgresCustomerRepository{
		db:  db,
		log: log,
	}
}

func (r *postgresCustomerRepository) Create(ctx context.Context, customer *domain.GatewayCustomer) error {
	query := `
		INSERT INTO customers (user_id, stripe_customer_id, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`

	_, err := r.db.ExecContext(ctx, query,
		customer.UserID,
		customer.StripeCustomerID,
		customer.Email,
	)
	if err != nil {
		r.log.Errorw("Failed to create customer record", "error", err, "userID", customer.UserID)
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

func (r *postgresCustomerRepository) GetByUserID(ctx context.Context, userID string) (*domain.GatewayCustomer, error) {
	var customer domain.GatewayCustomer

	query := `
		SELECT user_id, stripe_customer_id, email, created_at, updated_at
		FROM customers
		WHERE user_id = $1
	`

	err := r.db.GetContext(ctx, &customer, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get customer by userID", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &customer, nil
}

func (r *postgresCustomerRepository) UpdateEmail(ctx context.Context, userID, email string) error {
	query := `
		UPDATE customers
		SET email = $1, updated_at = now()
		WHERE user_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, email, userID)
	if err != nil {
		r.log.Errorw("Failed to update customer email", "error", err, "userID", userID)
		return fmt.Errorf("failed to update customer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
