package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"vaultsync/config"
	"vaultsync/internal/models"
)

// KafkaProducer implements the Producer interface
type KafkaProducer struct {
	writer *kafka.Writer
	logger *logrus.Logger
	topic  string
}

// NewKafkaProducer creates a new KafkaProducer
func NewKafkaProducer(cfg config.ExportConfig, logger *logrus.Logger) (*KafkaProducer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("export configuration incomplete: both brokers and topic are required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 100 * time.Millisecond
	}

	batchBytes := cfg.BatchBytes
	if batchBytes == 0 {
		batchBytes = 5 * 1024 * 1024
	}

	var requiredAcks kafka.RequiredAcks
	switch cfg.RequiredAcks {
	case "none":
		requiredAcks = kafka.RequireNone
	case "one":
		requiredAcks = kafka.RequireOne
	case "all":
		requiredAcks = kafka.RequireAll
	default:
		requiredAcks = kafka.RequireOne
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 5 * time.Second
	}

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},

		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		BatchBytes:   int64(batchBytes),

		RequiredAcks: requiredAcks,
		Async:        cfg.Async,

		WriteTimeout: writeTimeout,
		ReadTimeout:  readTimeout,

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Errorf("Kafka writer error: "+msg, args...)
		}),
	}

	logger.WithFields(logrus.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Info("Mutation export producer created")

	return &KafkaProducer{
		writer: w,
		logger: logger,
		topic:  cfg.Topic,
	}, nil
}

// Publish sends a single mutation record. The record key is the vault
// address, so all mutations of one vault land on one partition in order.
func (p *KafkaProducer) Publish(ctx context.Context, rec *models.MutationRecord) error {
	msgBytes, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize mutation record: %w", err)
	}

	kafkaMsg := kafka.Message{
		Key:   []byte(rec.Vault.Hex()),
		Value: msgBytes,
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		p.logger.WithError(err).WithField("vault", rec.Vault.Hex()).
			Error("Failed to write mutation record to Kafka buffer")
		return fmt.Errorf("failed to write to Kafka buffer: %w", err)
	}
	return nil
}

// PublishBatch sends mutation records in batch to the export topic
func (p *KafkaProducer) PublishBatch(ctx context.Context, recs []*models.MutationRecord) error {
	if len(recs) == 0 {
		return nil
	}

	kafkaMsgs := make([]kafka.Message, len(recs))
	for i, rec := range recs {
		msgBytes, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to serialize mutation record (vault: %s): %w", rec.Vault.Hex(), err)
		}

		kafkaMsgs[i] = kafka.Message{
			Key:   []byte(rec.Vault.Hex()),
			Value: msgBytes,
		}
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsgs...); err != nil {
		p.logger.WithError(err).WithField("count", len(recs)).
			Error("Failed to batch write mutation records to Kafka buffer")
		return fmt.Errorf("failed to batch write to Kafka buffer: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"count": len(recs),
		"topic": p.topic,
	}).Debug("Mutation records queued for export")
	return nil
}

// Close closes the producer
func (p *KafkaProducer) Close() error {
	p.logger.Info("Closing mutation export producer (and flushing buffer)...")
	return p.writer.Close()
}

var _ Producer = (*KafkaProducer)(nil) // Compile-time interface check
