package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopfront/payment-service/internal/domain"
	"github.com/shopfront/payment-service/pkg/logger"
)

const (
	// Префикс ключей со списками методов пользователя
	userMethodsKeyPrefix = "user_payment_methods:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository кеширует списки платежных методов в Redis.
// Кеш никогда не влияет на корректность: любая ошибка Redis
// означает промах, источником истины остается PostgreSQL.
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CacheUserPaymentMethods кеширует список методов пользователя
func (r *RedisCacheRepository) CacheUserPaymentMethods(ctx context.Context, userID string, methods []domain.PaymentMethod) error {
	key := fmt.Sprintf("%s%s", userMethodsKeyPrefix, userID)

	data, err := json.Marshal(methods)
	if err != nil {
		r.log.Errorw("Failed to marshal payment methods for caching", "error", err, "userID", userID)
		return fmt.Errorf("failed to marshal payment methods: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache payment methods in Redis", "error", err, "userID", userID)
		return fmt.Errorf("failed to cache payment methods: %w", err)
	}

	r.log.Debugw("Payment methods cached", "userID", userID, "count", len(methods))
	return nil
}

// GetCachedUserPaymentMethods получает список методов из кеша.
// Промах кеша возвращает (nil, nil).
func (r *RedisCacheRepository) GetCachedUserPaymentMethods(ctx context.Context, userID string) ([]domain.PaymentMethod, error) {
	key := fmt.Sprintf("%s%s", userMethodsKeyPrefix, userID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			r.log.Debugw("Payment methods not found in cache", "userID", userID)
			return nil, nil
		}
		r.log.Errorw("Error getting payment methods from Redis", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get payment methods from cache: %w", err)
	}

	var methods []domain.PaymentMethod
	if err := json.Unmarshal(data, &methods); err != nil {
		r.log.Errorw("Failed to unmarshal cached payment methods", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to unmarshal cached payment methods: %w", err)
	}

	r.log.Debugw("Payment methods retrieved from cache", "userID", userID, "count", len(methods))
	return methods, nil
}

// InvalidateUserPaymentMethods удаляет кеш списка методов пользователя.
// Вызывается после любой мутации: save, delete, set-default.
func (r *RedisCacheRepository) InvalidateUserPaymentMethods(ctx context.Context, userID string) error {
	key := fmt.Sprintf("%s%s", userMethodsKeyPrefix, userID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to invalidate payment methods cache", "error", err, "userID", userID)
		return fmt.Errorf("failed to invalidate payment methods cache: %w", err)
	}

	r.log.Debugw("Payment methods cache invalidated", "userID", userID)
	return nil
}
