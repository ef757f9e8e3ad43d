package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/messaging/kafka"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitAndTrim(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initIngestConsumer создаёт consumer входящих заказов. Без producer или без топика возвращает nil, nil.
func initIngestConsumer(cfg Config, handler kafka.MessageHandler, dlqProducer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	if dlqProducer == nil || cfg.KafkaIngestTopic == "" {
		return nil, nil
	}

	consumer, err := kafka.NewConsumerWithDLQ(kafka.ConsumerConfig{
		Brokers:    cfg.Brokers(),
		GroupID:    cfg.KafkaGroupID,
		Topics:     []string{cfg.KafkaIngestTopic},
		DLQTopic:   cfg.KafkaDLQTopic,
		MaxRetries: cfg.KafkaMaxRetries,
		RetryDelay: cfg.KafkaRetryDelay,
	}, handler, dlqProducer)
	if err != nil {
		return nil, fmt.Errorf("create ingest consumer: %w", err)
	}

	logger.WithFields(log.Fields{
		"topic":    cfg.KafkaIngestTopic,
		"group_id": cfg.KafkaGroupID,
		"dlq":      cfg.KafkaDLQTopic,
	}).Info("kafka ingest consumer initialized")
	return consumer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
