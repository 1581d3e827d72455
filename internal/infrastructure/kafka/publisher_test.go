package kafka

import (
	"context"
	"errors"
	"testing"

	"provindex/internal/application"
	"provindex/internal/domain"
	"provindex/internal/streaming"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestPublisherPublish(t *testing.T) {
	writer := &fakeWriter{}
	publisher := newPublisher(writer, "olive")

	result := application.Result{
		Report: application.RunReport{RunID: "run-7", EventCount: 2, DeliveredCount: 2},
		Transactions: []domain.DetailedTransaction{
			{ID: "0x02", AssetID: 12},
			{ID: "0x01", AssetID: 11},
		},
	}
	require.NoError(t, publisher.Publish(context.Background(), result))
	require.Len(t, writer.messages, 3)

	first := writer.messages[0]
	assert.Equal(t, "olive-transactions", first.Topic)
	assert.Equal(t, "12", string(first.Key))
	msg, err := streaming.Decode(first.Value)
	require.NoError(t, err)
	assert.Equal(t, streaming.MessageTypeTransaction, msg.Type)
	assert.Equal(t, "run-7", msg.RunID)
	assert.Equal(t, "0x02", msg.Transaction.ID)

	assert.Equal(t, "11", string(writer.messages[1].Key))

	last := writer.messages[2]
	assert.Equal(t, "olive-runs", last.Topic)
	assert.Equal(t, "run-7", string(last.Key))
	msg, err = streaming.Decode(last.Value)
	require.NoError(t, err)
	assert.Equal(t, streaming.MessageTypeRun, msg.Type)
	assert.Equal(t, 2, msg.Run.DeliveredCount)
}

func TestPublisherPublishWriteError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	publisher := newPublisher(writer, "")

	err := publisher.Publish(context.Background(), application.Result{Report: application.RunReport{RunID: "r"}})
	assert.EqualError(t, err, "broker unavailable")
	assert.Equal(t, "provenance-transactions", publisher.TransactionsTopic())
	assert.Equal(t, "provenance-runs", publisher.RunsTopic())

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestNewPublisherRequiresBrokers(t *testing.T) {
	_, err := NewPublisher(PublisherConfig{})
	assert.Error(t, err)
}
