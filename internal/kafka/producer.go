package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/spitkorean/billing-service/internal/events"
	"github.com/spitkorean/billing-service/pkg/logger"
)

// Kafka topics for billing events
const (
	TopicPaymentEvents      = "billing_payment_events"
	TopicSubscriptionEvents = "billing_subscription_events"
)

// Producer publishes billing events to Kafka
type Producer interface {
	// PublishEvent sends one domain event to the topic matching its type.
	PublishEvent(ctx context.Context, event events.Event) error
	// Close closes the Kafka writer.
	Close() error
}

// kafkaProducer implements Producer using segmentio/kafka-go.
type kafkaProducer struct {
	writer *kafkaGo.Writer
	log    *logger.Logger
}

// NewProducer creates and configures a Kafka producer.
func NewProducer(brokers []string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokers...),
		Balancer:     &kafkaGo.LeastBytes{},
		RequiredAcks: kafkaGo.RequireOne,
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

// PublishEvent serializes the event and writes it to Kafka. The
// subscription id keys the message so all events for one subscription
// land in the same partition and keep their order.
func (k *kafkaProducer) PublishEvent(ctx context.Context, event events.Event) error {
	topic := TopicSubscriptionEvents
	if event.Type == events.PaymentSucceeded || event.Type == events.PaymentFailed {
		topic = TopicPaymentEvents
	}

	var key []byte
	if event.Subscription != nil {
		key = []byte(event.Subscription.ID)
	}

	value, err := json.Marshal(event)
	if err != nil {
		k.log.Errorw("Failed to marshal event for Kafka", "error", err, "type", event.Type, "topic", topic)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafkaGo.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, message); err != nil {
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "type", event.Type)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Debugw("Event published to Kafka", "topic", topic, "type", event.Type)
	return nil
}

// Close closes the Kafka writer
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer")
	return k.writer.Close()
}

// Relay forwards every domain event from the in-process bus to Kafka.
// Publishing is best effort: a broker outage must not fail the billing
// operation that emitted the event. Returns the unsubscribe function.
func Relay(bus *events.Bus, producer Producer, log *logger.Logger) func() {
	return bus.SubscribeAll(func(e events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := producer.PublishEvent(ctx, e); err != nil {
			log.Warnw("Dropping event after Kafka publish failure", "type", e.Type, "error", err)
		}
	})
}
