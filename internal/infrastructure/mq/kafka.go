package mq

import (
	"fmt"

	"floraledger/internal/config"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

// Producer publishes ledger events to Kafka.
type Producer struct {
	producer sarama.SyncProducer
}

// InitKafka creates a synchronous producer that waits for all replicas.
func InitKafka(cfg *config.KafkaConfig) (*Producer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	log.Info().Str("component", "mq").Strs("brokers", cfg.Brokers).Msg("kafka producer created")
	return NewProducer(producer), nil
}

// NewProducer wraps an existing sarama producer.
func NewProducer(producer sarama.SyncProducer) *Producer {
	return &Producer{producer: producer}
}

// SendMessage publishes one keyed message.
func (p *Producer) SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *Producer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
