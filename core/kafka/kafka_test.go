package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/coffeeshop/core"
	"github.com/relabs-tech/coffeeshop/core/access"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestNotify(t *testing.T) {
	w := &fakeWriter{}
	n := &Notifier{topic: DefaultTopic, writer: w}

	payload := []byte(`{"id":17,"title":"Water","recipe":[]}`)
	require.NoError(t, n.Notify(context.Background(), "drink", core.OperationCreate, payload))
	require.NoError(t, n.Notify(context.Background(), "drink", core.OperationDelete, []byte(`{"id":17}`)))

	require.Len(t, w.messages, 2)
	assert.Equal(t, "17", string(w.messages[0].Key))
	assert.Equal(t, payload, w.messages[0].Value)
	assert.Equal(t, "drink", header(w.messages[0], HeaderResource))
	assert.Equal(t, "create", header(w.messages[0], HeaderOperation))
	assert.Equal(t, "17", string(w.messages[1].Key))
	assert.Equal(t, "delete", header(w.messages[1], HeaderOperation))
	assert.Empty(t, header(w.messages[1], HeaderSubject))

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestNotify_Subject(t *testing.T) {
	w := &fakeWriter{}
	n := &Notifier{topic: DefaultTopic, writer: w}

	claims := &access.Claims{}
	claims.Subject = "auth0|barista"
	ctx := access.ContextWithClaims(context.Background(), claims)
	require.NoError(t, n.Notify(ctx, "drink", core.OperationUpdate, []byte(`{"id":3}`)))

	require.Len(t, w.messages, 1)
	assert.Equal(t, "auth0|barista", header(w.messages[0], HeaderSubject))
}

func TestNotify_Errors(t *testing.T) {
	w := &fakeWriter{}
	n := &Notifier{topic: DefaultTopic, writer: w}
	assert.Error(t, n.Notify(context.Background(), "drink", core.OperationCreate, []byte(`not json`)))
	assert.Empty(t, w.messages)

	assert.Error(t, n.Notify(context.Background(), "drink", core.Operation("read"), []byte(`{"id":1}`)))
	assert.Empty(t, w.messages)

	w.err = errors.New("broker down")
	err := n.Notify(context.Background(), "drink", core.OperationUpdate, []byte(`{"id":1}`))
	assert.ErrorIs(t, err, w.err)
}

func TestNewNotifier(t *testing.T) {
	assert.Panics(t, func() { NewNotifier(&Builder{}) })

	n := NewNotifier(&Builder{Brokers: []string{"localhost:9092"}})
	assert.Equal(t, DefaultTopic, n.topic)
	writer, ok := n.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, DefaultTopic, writer.Topic)
	assert.Equal(t, DefaultBatchTimeout, writer.BatchTimeout)
	assert.Equal(t, 1, writer.BatchSize)
	assert.NoError(t, n.Close())

	n = NewNotifier(&Builder{Brokers: []string{"localhost:9092"}, Topic: "coffee", BatchTimeout: time.Millisecond})
	assert.Equal(t, "coffee", n.topic)
	assert.Equal(t, time.Millisecond, n.writer.(*kafka.Writer).BatchTimeout)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, ParseBrokers(""))
}
