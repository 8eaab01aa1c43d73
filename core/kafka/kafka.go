// Package kafka publishes change notifications of the backend to a kafka topic
package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/coffeeshop/core"
	"github.com/relabs-tech/coffeeshop/core/access"
	"github.com/relabs-tech/coffeeshop/core/logger"
)

// DefaultTopic is the topic used when the builder names none
const DefaultTopic = "drink_notification"

// message headers
const (
	HeaderResource  = "resource"
	HeaderOperation = "operation"
	HeaderSubject   = "subject"
)

// DefaultBatchTimeout is how long the writer waits for more messages before it
// sends a batch. Notify blocks until its message is written, so this adds to the
// latency of every mutating request.
const DefaultBatchTimeout = 10 * time.Millisecond

// messageWriter is the part of kafka.Writer the notifier needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Builder is a builder helper for the Notifier
type Builder struct {
	// Brokers are the addresses of the kafka brokers. This is mandatory.
	Brokers []string
	// Topic is the topic the notifications are written to. Defaults to DefaultTopic.
	Topic string
	// WriteTimeout limits a single write. Defaults to 10 seconds.
	WriteTimeout time.Duration
	// BatchTimeout limits how long a message waits for others to share its batch.
	// Defaults to DefaultBatchTimeout.
	BatchTimeout time.Duration
}

// Notifier is a core.Notifier which writes every notification as one kafka message.
// The message key is the resource id, so that all changes of one drink land in
// the same partition in order.
type Notifier struct {
	topic  string
	writer messageWriter
}

var _ core.Notifier = (*Notifier)(nil)

// ParseBrokers splits a comma separated broker list
func ParseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewNotifier returns a notifier writing to the brokers
func NewNotifier(b *Builder) *Notifier {
	if len(b.Brokers) == 0 {
		panic("kafka brokers are missing")
	}
	topic := b.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	timeout := b.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	batchTimeout := b.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}
	logger.Default().Infof("kafka: notifications go to topic %s on %s", topic, strings.Join(b.Brokers, ","))
	return &Notifier{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(b.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			WriteTimeout:           timeout,
			BatchTimeout:           batchTimeout,
			BatchSize:              1,
			AllowAutoTopicCreation: true,
		},
	}
}

// Notify implements core.Notifier. The subject of the claims in the context, if
// any, goes into the subject header.
func (n *Notifier) Notify(ctx context.Context, resource string, operation core.Operation, payload []byte) error {
	if !operation.IsMutation() {
		return fmt.Errorf("%s on %s is not a change", operation, resource)
	}
	msg, err := newMessage(resource, operation, payload)
	if err != nil {
		return err
	}
	if claims := access.ClaimsFromContext(ctx); claims != nil && claims.Subject != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: HeaderSubject, Value: []byte(claims.Subject)})
	}
	if err = n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("cannot write %s %s to %s: %w", resource, operation, n.topic, err)
	}
	logger.FromContext(ctx).Debugf("kafka: %s %s %s", resource, operation, msg.Key)
	return nil
}

// Close flushes pending messages and closes the writer
func (n *Notifier) Close() error {
	return n.writer.Close()
}

func newMessage(resource string, operation core.Operation, payload []byte) (kafka.Message, error) {
	var id struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(payload, &id); err != nil {
		return kafka.Message{}, fmt.Errorf("cannot read id of %s notification: %w", resource, err)
	}
	return kafka.Message{
		Key:   []byte(id.ID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderResource, Value: []byte(resource)},
			{Key: HeaderOperation, Value: []byte(operation)},
		},
	}, nil
}
