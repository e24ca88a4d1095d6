package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/sharmina-lina/livetweets-main/pkg/logging"
)

// KafkaPublisher publishes broadcast events to a Kafka topic for
// downstream consumers. Delivery is asynchronous; failures are logged
// and never propagate to the caller.
type KafkaPublisher struct {
	client   *kgo.Client
	topic    string
	logger   logging.Logger
	messages *prometheus.CounterVec
}

// NewKafkaPublisher creates a Kafka publisher for the given topic
func NewKafkaPublisher(brokers []string, clientID, topic string, logger logging.Logger, messages *prometheus.CounterVec) (*KafkaPublisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return &KafkaPublisher{
		client:   client,
		topic:    topic,
		logger:   logger,
		messages: messages,
	}, nil
}

// Publish sends the event to the topic without waiting for the broker
func (p *KafkaPublisher) Publish(event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Error("Failed to marshal broadcast event")
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	p.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			if p.messages != nil {
				p.messages.WithLabelValues(p.topic, "produce", "error").Inc()
			}
			p.logger.WithError(err).WithField("event_type", event.Type).Warn("Failed to produce broadcast event")
			return
		}
		if p.messages != nil {
			p.messages.WithLabelValues(p.topic, "produce", "ok").Inc()
		}
	})
}

// Close flushes pending records and releases the client
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}

// GetClient returns the underlying kgo.Client for health checks
func (p *KafkaPublisher) GetClient() *kgo.Client {
	return p.client
}
