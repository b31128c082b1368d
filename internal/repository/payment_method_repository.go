package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/pkg/logger"
)

// PaymentMethodRepository доступ к локальным записям платежных методов.
type PaymentMethodRepository interface {
	Create(ctx context.Context, pm *domain.PaymentMethod) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error)
	ListByUserID(ctx context.Context, userID string) ([]domain.PaymentMethod, error)
	CountByUserID(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	SetDefault(ctx context.Context, userID string, id uuid.UUID) (*domain.PaymentMethod, error)
}

type postgresPaymentMethodRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPaymentMethodRepository создает PostgreSQL реализацию репозитория.
func NewPaymentMethodRepository(pool *pgxpool.Pool, log *logger.Logger) PaymentMethodRepository {
	return &postgresPaymentMethodRepository{
		pool: pool,
		log:  log,
	}
}

const paymentMethodColumns = `id, user_id, stripe_payment_method_id, type, brand, last4, is_default, created_at`

// Create вставляет новую запись. Если запись помечена как default,
// сброс флага у остальных записей пользователя и вставка выполняются
// в одной транзакции: инвариант "не более одного default" не должен
// ломаться гонкой двух конкурентных запросов.
func (r *postgresPaymentMethodRepository) Create(ctx context.Context, pm *domain.PaymentMethod) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if pm.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE payment_methods SET is_default = false WHERE user_id = $1 AND is_default`,
			pm.UserID,
		); err != nil {
			return fmt.Errorf("failed to unset previous default: %w", err)
		}
	}

	query := `
		INSERT INTO payment_methods (id, user_id, stripe_payment_method_id, type, brand, last4, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		pm.ID,
		pm.UserID,
		pm.StripePaymentMethodID,
		pm.Type,
		pm.Brand,
		pm.Last4,
		pm.IsDefault,
	).Scan(&pm.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create payment method: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debugw("Payment method record created", "id", pm.ID, "userID", pm.UserID, "isDefault", pm.IsDefault)
	return nil
}

// GetByID возвращает запись по локальному ID.
func (r *postgresPaymentMethodRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	query := `SELECT ` + paymentMethodColumns + ` FROM payment_methods WHERE id = $1`

	var pm domain.PaymentMethod
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&pm.ID,
		&pm.UserID,
		&pm.StripePaymentMethodID,
		&pm.Type,
		&pm.Brand,
		&pm.Last4,
		&pm.IsDefault,
		&pm.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}

	return &pm, nil
}

// ListByUserID возвращает все записи пользователя: сначала default,
// затем от новых к старым.
func (r *postgresPaymentMethodRepository) ListByUserID(ctx context.Context, userID string) ([]domain.PaymentMethod, error) {
	query := `
		SELECT ` + paymentMethodColumns + `
		FROM payment_methods
		WHERE user_id = $1
		ORDER BY is_default DESC, created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment methods: %w", err)
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		var pm domain.PaymentMethod
		if err := rows.Scan(
			&pm.ID,
			&pm.UserID,
			&pm.StripePaymentMethodID,
			&pm.Type,
			&pm.Brand,
			&pm.Last4,
			&pm.IsDefault,
			&pm.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		methods = append(methods, pm)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment methods: %w", err)
	}

	return methods, nil
}

// CountByUserID возвращает количество сохраненных методов пользователя.
func (r *postgresPaymentMethodRepository) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM payment_methods WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count payment methods: %w", err)
	}
	return count, nil
}

// Delete удаляет запись пользователя. Условие по user_id гарантирует,
// что чужая запись не будет удалена: для нее RowsAffected() == 0.
func (r *postgresPaymentMethodRepository) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM payment_methods WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete payment method: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.log.Debugw("Payment method record deleted", "id", id, "userID", userID)
	return nil
}

// SetDefault переназначает default-метод пользователя. Оба апдейта
// выполняются в одной транзакции (см. Create).
func (r *postgresPaymentMethodRepository) SetDefault(ctx context.Context, userID string, id uuid.UUID) (*domain.PaymentMethod, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE payment_methods SET is_default = false WHERE user_id = $1 AND is_default`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("failed to unset previous default: %w", err)
	}

	query := `
		UPDATE payment_methods
		SET is_default = true
		WHERE id = $1 AND user_id = $2
		RETURNING ` + paymentMethodColumns + `
	`

	var pm domain.PaymentMethod
	err = tx.QueryRow(ctx, query, id, userID).Scan(
		&pm.ID,
		&pm.UserID,
		&pm.StripePaymentMethodID,
		&pm.Type,
		&pm.Brand,
		&pm.Last4,
		&pm.IsDefault,
		&pm.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to set default payment method: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debugw("Default payment method changed", "id", id, "userID", userID)
	return &pm, nil
}
