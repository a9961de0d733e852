package writer

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	appconfig "arbiflow/config"
	"arbiflow/logger"
	"arbiflow/models"
)

// kafkaProducer is the slice of kafka-go used by the publisher.
type kafkaProducer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher pushes ranked opportunities to a topic so downstream
// consumers can react to historical scans without parsing result files.
type KafkaPublisher struct {
	config   *appconfig.Config
	producer kafkaProducer
	log      *logger.Log
}

func NewKafkaPublisher(cfg *appconfig.Config) (*KafkaPublisher, error) {
	if len(cfg.Storage.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	kp := &KafkaPublisher{
		config: cfg,
		producer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Storage.Kafka.Brokers...),
			Topic:    cfg.Storage.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		log: logger.GetLogger(),
	}

	kp.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"brokers": cfg.Storage.Kafka.Brokers,
		"topic":   cfg.Storage.Kafka.Topic,
	}).Debug("kafka publisher initialized")
	return kp, nil
}

// PublishReport sends one message per ranked opportunity, keyed by
// instrument so partitioning groups divergences of the same market.
func (kp *KafkaPublisher) PublishReport(ctx context.Context, report *models.Report) error {
	if report.Count() == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, report.Count())
	for _, opp := range report.Opportunities {
		data, err := json.Marshal(opp)
		if err != nil {
			return fmt.Errorf("marshal opportunity: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(opp.Instrument),
			Value: data,
		})
	}

	if err := kp.producer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write messages: %w", err)
	}

	kp.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"run_id":   report.RunID,
		"messages": len(msgs),
	}).Info("opportunities published")
	return nil
}

func (kp *KafkaPublisher) Close() error {
	return kp.producer.Close()
}
