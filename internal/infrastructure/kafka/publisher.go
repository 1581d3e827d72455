package kafka

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"provindex/internal/application"
	"provindex/internal/infrastructure/telemetry"
	"provindex/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes reconstructed provenance to Kafka: one message per transaction on
// <prefix>-transactions keyed by asset id, and one run summary on <prefix>-runs.
type Publisher struct {
	writer messageWriter
	prefix string
}

type PublisherConfig struct {
	Brokers     []string
	TopicPrefix string
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           500 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(writer, cfg.TopicPrefix), nil
}

func newPublisher(writer messageWriter, prefix string) *Publisher {
	if strings.TrimSpace(prefix) == "" {
		prefix = "provenance"
	}
	return &Publisher{writer: writer, prefix: prefix}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) TransactionsTopic() string {
	return p.prefix + "-transactions"
}

func (p *Publisher) RunsTopic() string {
	return p.prefix + "-runs"
}

// Publish writes every transaction of result followed by its run report, in one batch.
func (p *Publisher) Publish(ctx context.Context, result application.Result) error {
	ctx, span := otel.Tracer("provindex/kafka").Start(ctx, "provenance.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", result.Report.RunID),
		attribute.Int("messages", len(result.Transactions)+1),
	)

	traceID := telemetry.TraceID(ctx)
	headers := telemetry.KafkaHeaders(ctx)
	messages := make([]kafka.Message, 0, len(result.Transactions)+1)
	for i := range result.Transactions {
		tx := &result.Transactions[i]
		payload, err := streaming.Encode(streaming.Message{
			Type:        streaming.MessageTypeTransaction,
			RunID:       result.Report.RunID,
			TraceID:     traceID,
			Transaction: tx,
		})
		if err != nil {
			return p.fail(span, err)
		}
		messages = append(messages, kafka.Message{
			Topic:   p.TransactionsTopic(),
			Key:     []byte(strconv.FormatUint(tx.AssetID, 10)),
			Value:   payload,
			Headers: headers,
		})
	}

	report := result.Report
	payload, err := streaming.Encode(streaming.Message{
		Type:    streaming.MessageTypeRun,
		RunID:   report.RunID,
		TraceID: traceID,
		Run:     &report,
	})
	if err != nil {
		return p.fail(span, err)
	}
	messages = append(messages, kafka.Message{
		Topic:   p.RunsTopic(),
		Key:     []byte(report.RunID),
		Value:   payload,
		Headers: headers,
	})

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return p.fail(span, err)
	}
	return nil
}

func (p *Publisher) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
