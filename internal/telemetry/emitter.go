package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event is one request's telemetry record, appended to the analytics queue.
// Fire-and-forget: the gateway requires no acknowledgement.
type Event struct {
	URL             string      `json:"url"`
	RequestHeaders  http.Header `json:"requestHeaders"`
	ResponseHeaders http.Header `json:"responseHeaders"`
	ResponseStatus  int         `json:"responseStatus"`
	Timestamp       time.Time   `json:"timestamp"`
	DurationMs      float64     `json:"durationMs"`
}

// QueueSender is the queue surface the emitter needs.
type QueueSender interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// KafkaSender publishes telemetry payloads to a Kafka topic.
type KafkaSender struct {
	writer *kafka.Writer
}

var _ QueueSender = (*KafkaSender)(nil)

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (s *KafkaSender) Send(ctx context.Context, payload []byte) error {
	return s.writer.WriteMessages(ctx, kafka.Message{Value: payload})
}

func (s *KafkaSender) Close() error {
	return s.writer.Close()
}

// Emitter serializes and enqueues telemetry events.
type Emitter struct {
	sender QueueSender
	logger *slog.Logger
}

func NewEmitter(sender QueueSender, logger *slog.Logger) *Emitter {
	return &Emitter{sender: sender, logger: logger}
}

// Emit enqueues one event. Failures are returned for the background task
// runner to log; they never reach the client.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode telemetry event: %w", err)
	}
	if err := e.sender.Send(ctx, payload); err != nil {
		return fmt.Errorf("failed to enqueue telemetry event: %w", err)
	}
	return nil
}
