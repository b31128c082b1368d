package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shopfront/payment-service/pkg/logger"
)

// Топики событий платежной подсистемы
const (
	TopicPaymentMethodSaved   = "payment_method_saved"
	TopicPaymentMethodDeleted = "payment_method_deleted"
	TopicPaymentIntentCreated = "payment_intent_created"
)

// PaymentMethodEvent событие жизненного цикла сохраненного метода.
type PaymentMethodEvent struct {
	UserID                string    `json:"user_id"`
	RecordID              string    `json:"record_id"`
	StripePaymentMethodID string    `json:"stripe_payment_method_id"`
	IsDefault             bool      `json:"is_default"`
	OccurredAt            time.Time `json:"occurred_at"`
}

// PaymentIntentEvent событие создания payment intent.
type PaymentIntentEvent struct {
	UserID          string    `json:"user_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Producer определяет интерфейс для публикации событий в Kafka.
type Producer interface {
	// PublishPaymentMethodEvent отправляет событие платежного метода.
	// Ключ сообщения - UserID: события одного пользователя попадают
	// в одну партицию и сохраняют порядок.
	PublishPaymentMethodEvent(ctx context.Context, topic string, event PaymentMethodEvent) error

	// PublishPaymentIntentEvent отправляет событие создания intent.
	PublishPaymentIntentEvent(ctx context.Context, event PaymentIntentEvent) error

	// Close закрывает соединение продюсера Kafka.
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	// RequiredAcks: RequireOne - подтверждение только от лидера партиции,
	// баланс между скоростью и надежностью.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)

	return &kafkaProducer{
		writer: writer,
		log:    log,
	}, nil
}

// PublishPaymentMethodEvent сериализует событие метода в JSON и отправляет в топик.
func (k *kafkaProducer) PublishPaymentMethodEvent(ctx context.Context, topic string, event PaymentMethodEvent) error {
	return k.publish(ctx, topic, event.UserID, event)
}

// PublishPaymentIntentEvent отправляет событие создания payment intent.
func (k *kafkaProducer) PublishPaymentIntentEvent(ctx context.Context, event PaymentIntentEvent) error {
	return k.publish(ctx, TopicPaymentIntentCreated, event.UserID, event)
}

func (k *kafkaProducer) publish(ctx context.Context, topic, key string, payload any) error {
	messageValue, err := json.Marshal(payload)
	if err != nil {
		k.log.Errorw("Failed to marshal event for Kafka", "error", err, "topic", topic)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: messageValue,
		Time:  time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "key", key)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Infow("Successfully published message to Kafka", "topic", topic, "key", key)
	return nil
}

// Close закрывает соединение Kafka Writer.
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer writer...")
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	k.log.Infow("Kafka producer writer closed successfully")
	return nil
}
