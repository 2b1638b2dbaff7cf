// Package events publishes domain events (notifications, payments, reports)
// for out of process consumers such as email and push workers.
package events

import (
	"context"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/config"
	sdk "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TypeNotificationCreated = "notification.created"
	TypePaymentUpdated      = "payment.updated"
	TypePropertyReported    = "property.reported"
	TypeMatchCreated        = "match.created"
)

// Event is the envelope written to the topic
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       string                 `json:"type"`
	UserID     uint                   `json:"user_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

func NewEvent(eventType string, userID uint, payload map[string]interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// New returns a Kafka publisher when brokers are configured and a log
// publisher otherwise
func New(cfg *config.KafkaConfig, logger *zap.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		return NewLogPublisher(logger)
	}
	return NewKafkaPublisher(cfg, logger)
}

// KafkaPublisher writes events keyed by user id so one user's events stay ordered
type KafkaPublisher struct {
	writer *sdk.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(cfg *config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &sdk.Writer{
			Addr:         sdk.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &sdk.Hash{},
			RequiredAcks: sdk.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := toMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("event_type", event.Type),
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(event Event) (sdk.Message, error) {
	serialized, err := json.Marshal(event)
	if err != nil {
		return sdk.Message{}, err
	}
	return sdk.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.UserID), 10)),
		Value: serialized,
		Time:  event.OccurredAt,
		Headers: []sdk.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}

// LogPublisher writes events to the logger
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info("Event published",
		zap.String("event_type", event.Type),
		zap.String("event_id", event.ID.String()),
		zap.Uint("user_id", event.UserID),
		zap.Any("payload", event.Payload))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType filters Events by type
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
