// Package kafka publishes notifications and outbound mail onto Kafka topics
// for downstream delivery services.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/tradeyard/tradeyard/internal/domain/notification"
)

const (
	TopicNotifications = "notifications"
	TopicEmails        = "emails"
)

type Sink struct {
	writer *kafkago.Writer
}

func NewSink(brokers []string) *Sink {
	return &Sink{writer: newWriter(brokers, TopicNotifications)}
}

func (s *Sink) Create(ctx context.Context, n notification.Notification) error {
	return write(ctx, s.writer, n.UserID, n)
}

func (s *Sink) Close() error { return s.writer.Close() }

type Mailer struct {
	writer *kafkago.Writer
}

func NewMailer(brokers []string) *Mailer {
	return &Mailer{writer: newWriter(brokers, TopicEmails)}
}

func (m *Mailer) Send(ctx context.Context, e notification.Email) error {
	return write(ctx, m.writer, e.To, e)
}

func (m *Mailer) Close() error { return m.writer.Close() }

func newWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:     kafkago.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafkago.LeastBytes{},
	}
}

func write(ctx context.Context, w *kafkago.Writer, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", w.Topic, err)
	}
	if err := w.WriteMessages(ctx, kafkago.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("write %s message: %w", w.Topic, err)
	}
	return nil
}
