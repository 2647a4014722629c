package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"mobileshop-backend/config"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// EventType represents the type of billing event.
type EventType string

const (
	EventTypeBillSaved            EventType = "bill.saved"
	EventTypePaymentRecorded      EventType = "payment.recorded"
	EventTypePurchaseRecorded     EventType = "purchase.recorded"
	EventTypeServiceStatusChanged EventType = "service.status_changed"
)

// Event is the envelope written to the topic. Key is the entity it concerns
// (bill number, purchase number, service id) and becomes the Kafka message key.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Key       string            `json:"key"`
	UserID    string            `json:"user_id,omitempty"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEvent marshals payload into a new event envelope.
func NewEvent(t EventType, key, userID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        "evt_" + uuid.NewString(),
		Type:      t,
		Key:       key,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// New returns a Kafka publisher when brokers are configured, otherwise one that
// only logs.
func New(cfg config.KafkaConfig, logger *logrus.Logger) Publisher {
	if !cfg.Enabled() {
		return NewNopPublisher(logger)
	}
	return NewKafkaPublisher(cfg, logger)
}

// KafkaPublisher publishes billing events to Kafka.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
	logger *logrus.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger *logrus.Logger) *KafkaPublisher {
	p := &KafkaPublisher{topic: cfg.Topic, logger: logger}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		// requests don't wait on the broker; failures surface in Completion
		Async:      true,
		Completion: p.completed,
	}
	return p
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: eventData,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
			"key":        event.Key,
			"error":      err.Error(),
		}).Error("Failed to publish event")
		return err
	}
	return nil
}

func (p *KafkaPublisher) completed(messages []kafka.Message, err error) {
	for _, m := range messages {
		fields := logrus.Fields{"topic": p.topic, "key": string(m.Key)}
		for _, h := range m.Headers {
			fields[h.Key] = string(h.Value)
		}
		if err != nil {
			fields["error"] = err.Error()
			p.logger.WithFields(fields).Error("Failed to publish event")
			continue
		}
		p.logger.WithFields(fields).Debug("Event published")
	}
}

func (p *KafkaPublisher) Close() error {
	p.logger.Info("Closing Kafka publisher")
	return p.writer.Close()
}

// NopPublisher drops events after logging them at debug level.
type NopPublisher struct {
	logger *logrus.Logger
}

func NewNopPublisher(logger *logrus.Logger) *NopPublisher {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &NopPublisher{logger: logger}
}

func (p *NopPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.WithFields(logrus.Fields{"event_type": event.Type, "key": event.Key}).Debug("event publishing disabled")
	return nil
}

func (p *NopPublisher) Close() error { return nil }

// MemoryPublisher keeps published events in memory, for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (m *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfType filters Events by type.
func (m *MemoryPublisher) OfType(t EventType) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
