package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/shopfront/payment-service/pkg/logger"
)

// EnsureKafkaTopics проверяет и создает необходимые топики Kafka.
func EnsureKafkaTopics(brokers []string, log *logger.Logger) error {
	requiredTopics := map[string]kafkaGo.TopicConfig{
		TopicPaymentMethodSaved: {
			Topic:             TopicPaymentMethodSaved,
			NumPartitions:     3,
			ReplicationFactor: 1,
		},
		TopicPaymentMethodDeleted: {
			Topic:             TopicPaymentMethodDeleted,
			NumPartitions:     3,
			ReplicationFactor: 1,
		},
		TopicPaymentIntentCreated: {
			Topic:             TopicPaymentIntentCreated,
			NumPartitions:     3,
			ReplicationFactor: 1,
		},
	}

	log.Infow("Ensuring Kafka topics exist...", "topics", getTopicNames(requiredTopics))

	if len(brokers) == 0 || brokers[0] == "" {
		log.Errorw("Kafka broker address is empty")
		return errors.New("kafka broker address is empty")
	}

	// Подключаемся к первому брокеру для админских операций
	connCtx, cancelConn := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelConn()

	conn, err := kafkaGo.DialLeader(connCtx, "tcp", brokers[0], "", 0)
	if err != nil {
		log.Errorw("Failed to connect to Kafka broker for topic creation", "broker", brokers[0], "error", err)
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		log.Errorw("Failed to read partitions from Kafka", "error", err)
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}

	existingTopics := make(map[string]bool)
	for _, p := range partitions {
		existingTopics[p.Topic] = true
	}

	var topicsToCreate []kafkaGo.TopicConfig
	for topicName, config := range requiredTopics {
		if !existingTopics[topicName] {
			log.Infow("Topic needs to be created", "topic", topicName)
			topicsToCreate = append(topicsToCreate, config)
		} else {
			log.Debugw("Topic already exists", "topic", topicName)
		}
	}

	if len(topicsToCreate) == 0 {
		log.Infow("All required topics already exist.")
		return nil
	}

	if err := conn.CreateTopics(topicsToCreate...); err != nil {
		if errors.Is(err, kafkaGo.TopicAlreadyExists) {
			log.Warnw("One or more topics already existed during creation attempt", "topics", getTopicNamesFromConfig(topicsToCreate))
			return nil
		}
		log.Errorw("Failed to create topics", "error", err, "topics", getTopicNamesFromConfig(topicsToCreate))
		return fmt.Errorf("kafka create topics failed: %w", err)
	}

	log.Infow("Successfully created topics", "topics", getTopicNamesFromConfig(topicsToCreate))
	return nil
}

func getTopicNames(topicMap map[string]kafkaGo.TopicConfig) []string {
	names := make([]string, 0, len(topicMap))
	for name := range topicMap {
		names = append(names, name)
	}
	return names
}

func getTopicNamesFromConfig(topicConfigs []kafkaGo.TopicConfig) []string {
	names := make([]string, 0, len(topicConfigs))
	for _, tc := range topicConfigs {
		names = append(names, tc.Topic)
	}
	return names
}
