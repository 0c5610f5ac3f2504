package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/service"
)

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	PaymentEventCompleted PaymentEventType = "payment.completed"
	PaymentEventFailed    PaymentEventType = "payment.failed"
	PaymentEventRefunded  PaymentEventType = "payment.refunded"
)

// PaymentEvent represents a payment-related event.
type PaymentEvent struct {
	ID        string           `json:"id"`
	Type      PaymentEventType `json:"type"`
	PaymentID string           `json:"payment_id"`
	OrderID   string           `json:"order_id"`
	Status    string           `json:"status"`
	Data      json.RawMessage  `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// PaymentOutcomeHandler applies a payment result to its order.
type PaymentOutcomeHandler interface {
	ApplyPaymentOutcome(ctx context.Context, orderID string, outcome service.PaymentOutcome) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer consumes payment events from Kafka.
type KafkaConsumer struct {
	reader   messageReader
	payments PaymentOutcomeHandler
	logger   *logging.LoggerV2
	stopCh   chan struct{}
	stopOnce sync.Once
	backoff  time.Duration
}

// NewKafkaConsumer creates a new Kafka-based event consumer.
func NewKafkaConsumer(cfg config.KafkaConfig, payments PaymentOutcomeHandler, logger *logging.LoggerV2) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.PaymentsTopic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})

	return &KafkaConsumer{
		reader:   reader,
		payments: payments,
		logger:   logger,
		stopCh:   make(chan struct{}),
		backoff:  500 * time.Millisecond,
	}
}

// Start consumes events until ctx is done or Stop is called. Transient
// failures are retried a few times before the message is committed anyway.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Kafka consumer")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			c.logger.Info("Kafka consumer stopped")
			return nil
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-c.stopCh:
				c.logger.Info("Kafka consumer stopped")
				return nil
			default:
			}
			c.logger.Error("Failed to read message", logging.Fields{"error": err.Error()})
			continue
		}

		c.handleWithRetry(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message", logging.Fields{
				"offset": msg.Offset,
				"error":  err.Error(),
			})
		}
	}
}

// Stop stops the consumer.
func (c *KafkaConsumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.reader.Close()
	})
}

const maxHandleAttempts = 3

func (c *KafkaConsumer) handleWithRetry(ctx context.Context, msg kafka.Message) {
	for attempt := 1; ; attempt++ {
		err := c.handleMessage(ctx, msg)
		if err == nil || !errors.Is(err, errors.ErrBackendUnavailable) || attempt == maxHandleAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	c.logger.Debug("Received message", logging.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	var event PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Error("Failed to unmarshal event", logging.Fields{"error": err.Error()})
		return nil
	}

	var outcome service.PaymentOutcome
	switch event.Type {
	case PaymentEventCompleted:
		outcome = service.PaymentCompleted
	case PaymentEventFailed:
		outcome = service.PaymentFailed
	case PaymentEventRefunded:
		outcome = service.PaymentRefunded
	default:
		c.logger.Debug("Ignoring unknown event type", logging.Fields{"type": event.Type})
		return nil
	}

	c.logger.Info("Handling payment event", logging.Fields{
		"type":       event.Type,
		"payment_id": event.PaymentID,
		"order_id":   event.OrderID,
	})

	if err := c.payments.ApplyPaymentOutcome(ctx, event.OrderID, outcome); err != nil {
		c.logger.Error("Failed to apply payment outcome", logging.Fields{
			"order_id": event.OrderID,
			"type":     event.Type,
			"error":    err.Error(),
		})
		return err
	}
	return nil
}
